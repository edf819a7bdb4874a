// Package catalog tracks snapshot metadata in a SQLite registry (catalog.db).
package catalog

// Schema contains the SQL definitions for the snapshot catalog. The catalog
// is the source of truth for which snapshot files exist and where they live;
// the snapshot files themselves carry the data.

// CreateSnapshotsTableSQL creates the core snapshots table.
const CreateSnapshotsTableSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    snapshot_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    schema_source TEXT NOT NULL,
    table_source TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateSnapshotsIndexesSQL creates the catalog indexes. The fingerprint
// index is unique: one snapshot per dataset content, registering the same
// study twice yields the existing record.
var CreateSnapshotsIndexesSQL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_fingerprint ON snapshots(fingerprint)`,

	// Index for newest-first listings
	`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at)`,

	// Index for name lookups
	`CREATE INDEX IF NOT EXISTS idx_snapshots_name ON snapshots(name)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{CreateSnapshotsTableSQL}
	statements = append(statements, CreateSnapshotsIndexesSQL...)
	return statements
}
