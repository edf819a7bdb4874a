// Package snapshot persists a loaded study as a single SQLite file: the
// iteration table with its derived reductions, per-column statistics, and
// enough metadata to rebuild the study without the original inputs.
package snapshot

import (
	"fmt"
	"strings"

	"github.com/optiview/optiview/internal/dataset"
)

// FormatVersion is bumped whenever the snapshot layout changes incompatibly.
// Readers reject files written under a different version.
const FormatVersion = 1

// CreateStatsTableSQL creates the per-column statistics table. One row per
// dataset column, ordered by position so readers can restore column order.
const CreateStatsTableSQL = `
CREATE TABLE _optiview_stats (
    column_name TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    kind TEXT NOT NULL,
    width INTEGER NOT NULL,
    derived INTEGER NOT NULL,
    base TEXT NOT NULL,
    min_value REAL,
    max_value REAL,
    finite_count INTEGER NOT NULL
) WITHOUT ROWID`

// CreateMetaTableSQL creates the key/value metadata table holding the format
// version, identity, and the problem definition as JSON.
const CreateMetaTableSQL = `
CREATE TABLE _optiview_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID`

// Metadata keys stored in _optiview_meta.
const (
	metaFormatVersion = "format_version"
	metaSnapshotID    = "snapshot_id"
	metaFingerprint   = "fingerprint"
	metaRowCount      = "row_count"
	metaCreatedAt     = "created_at"
	metaSchemaJSON    = "schema_json"
	metaSchemaSource  = "schema_source"
	metaTableSource   = "table_source"
)

// iterationsDDL builds the CREATE TABLE statement for the iteration data.
// Scalar columns map to REAL, array columns to snappy-compressed BLOBs of
// little-endian float64s. Column names come from solver output and routinely
// contain dots, so every identifier is quoted.
func iterationsDDL(columns []*dataset.Series) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE iterations (\n    row_idx INTEGER PRIMARY KEY")
	for _, col := range columns {
		sqlType := "REAL"
		if !col.IsScalar() {
			sqlType = "BLOB"
		}
		sb.WriteString(fmt.Sprintf(",\n    %s %s", quoteIdent(col.Name), sqlType))
	}
	sb.WriteString("\n)")
	return sb.String()
}

// insertSQL builds the INSERT statement matching iterationsDDL column order.
func insertSQL(columns []*dataset.Series) string {
	names := make([]string, 0, len(columns)+1)
	names = append(names, "row_idx")
	for _, col := range columns {
		names = append(names, quoteIdent(col.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO iterations (%s) VALUES (%s)",
		strings.Join(names, ", "), placeholders)
}

// quoteIdent double-quotes an SQL identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
