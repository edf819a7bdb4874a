package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/snapshot"
)

// Record is one cataloged snapshot.
type Record struct {
	SnapshotID   string    `json:"snapshot_id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Fingerprint  string    `json:"fingerprint"`
	SchemaSource string    `json:"schema_source"`
	TableSource  string    `json:"table_source"`
	RowCount     int64     `json:"row_count"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

const recordColumns = `snapshot_id, name, path, fingerprint,
		schema_source, table_source, row_count, size_bytes, created_at`

// Catalog is the SQLite-backed snapshot registry. Writes go through a single
// connection guarded by a mutex; reads use a separate read-only pool.
type Catalog struct {
	db     *sql.DB
	readDB *sql.DB
	dbPath string
	log    *slog.Logger
	mu     sync.Mutex

	insertStmt *sql.Stmt
}

// New opens (creating if needed) the catalog database at dbPath.
func New(dbPath string, log *slog.Logger) (*Catalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	c := &Catalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
		log:    log,
	}

	if err := c.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	insertStmt, err := db.Prepare(`
		INSERT INTO snapshots (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to prepare insert statement: %w", err)
	}
	c.insertStmt = insertStmt

	return c, nil
}

func (c *Catalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Register adds a written snapshot to the catalog. Registering a snapshot
// whose fingerprint is already cataloged returns the existing record instead
// of inserting a duplicate; the caller should discard its duplicate file.
func (c *Catalog) Register(ctx context.Context, info *snapshot.Info, name, schemaSource, tableSource string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.lookupByFingerprint(ctx, info.Fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		c.log.Info("snapshot already cataloged",
			"snapshot", existing.SnapshotID,
			"fingerprint", existing.Fingerprint,
		)
		return existing, nil
	}

	rec := &Record{
		SnapshotID:   info.SnapshotID,
		Name:         name,
		Path:         info.Path,
		Fingerprint:  info.Fingerprint,
		SchemaSource: schemaSource,
		TableSource:  tableSource,
		RowCount:     info.RowCount,
		SizeBytes:    info.SizeBytes,
		CreatedAt:    time.Unix(info.CreatedAt.Unix(), 0),
	}

	_, err = c.insertStmt.ExecContext(ctx,
		rec.SnapshotID, rec.Name, rec.Path, rec.Fingerprint,
		rec.SchemaSource, rec.TableSource, rec.RowCount, rec.SizeBytes,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to insert snapshot: %w", err)
	}

	c.log.Info("snapshot cataloged",
		"snapshot", rec.SnapshotID,
		"name", rec.Name,
		"rows", rec.RowCount,
	)
	return rec, nil
}

// lookupByFingerprint returns the cataloged record holding fingerprint, or
// nil when none does. Runs on the write connection: callers hold the write
// lock and need to see their own uncommitted view.
func (c *Catalog) lookupByFingerprint(ctx context.Context, fingerprint string) (*Record, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM snapshots WHERE fingerprint = ?`, fingerprint)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to check fingerprint: %w", err)
	}
	return rec, nil
}

// Get retrieves a single snapshot record by ID.
func (c *Catalog) Get(ctx context.Context, snapshotID string) (*Record, error) {
	row := c.readDB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM snapshots WHERE snapshot_id = ?`, snapshotID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeSnapshotNotFound,
			fmt.Sprintf("snapshot %s is not cataloged", snapshotID))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get snapshot: %w", err)
	}
	return rec, nil
}

// Resolve retrieves a snapshot record by ID or by a fingerprint prefix. A
// prefix matching more than one snapshot is an error rather than a guess.
func (c *Catalog) Resolve(ctx context.Context, ref string) (*Record, error) {
	if ref == "" {
		return nil, errors.New(errors.ErrCategorySelection, errors.CodeBadFormat,
			"snapshot reference is empty")
	}

	rec, err := c.Get(ctx, ref)
	if err == nil {
		return rec, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	rows, err := c.readDB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM snapshots WHERE fingerprint LIKE ? ORDER BY snapshot_id`,
		ref+"%")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to resolve snapshot: %w", err)
	}
	defer rows.Close()

	var matches []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan snapshot: %w", err)
		}
		matches = append(matches, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: error iterating snapshots: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, errors.NewNotFoundError(errors.CodeSnapshotNotFound,
			fmt.Sprintf("no snapshot matches %q", ref))
	case 1:
		return matches[0], nil
	default:
		return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeBadFormat,
			"snapshot reference %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// List returns every cataloged snapshot, newest first.
func (c *Catalog) List(ctx context.Context) ([]*Record, error) {
	rows, err := c.readDB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM snapshots ORDER BY created_at DESC, snapshot_id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan snapshot: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: error iterating snapshots: %w", err)
	}
	return records, nil
}

// Delete removes a snapshot record and returns it so the caller can delete
// the underlying file.
func (c *Catalog) Delete(ctx context.Context, snapshotID string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM snapshots WHERE snapshot_id = ?`, snapshotID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeSnapshotNotFound,
			fmt.Sprintf("snapshot %s is not cataloged", snapshotID))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get snapshot: %w", err)
	}

	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE snapshot_id = ?", snapshotID); err != nil {
		return nil, fmt.Errorf("catalog: failed to delete snapshot: %w", err)
	}

	c.log.Info("snapshot removed from catalog", "snapshot", snapshotID)
	return rec, nil
}

// Count returns the number of cataloged snapshots.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var count int64
	err := c.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to count snapshots: %w", err)
	}
	return count, nil
}

// Close closes the catalog database connections.
func (c *Catalog) Close() error {
	if c.insertStmt != nil {
		c.insertStmt.Close()
	}

	// Close read connection first, then write connection
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var createdAtUnix int64

	err := s.Scan(
		&rec.SnapshotID, &rec.Name, &rec.Path, &rec.Fingerprint,
		&rec.SchemaSource, &rec.TableSource, &rec.RowCount, &rec.SizeBytes,
		&createdAtUnix,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = time.Unix(createdAtUnix, 0)
	return &rec, nil
}
