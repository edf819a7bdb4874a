package snapshot

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/study"
)

// Info describes a written snapshot.
type Info struct {
	SnapshotID  string    `json:"snapshot_id"`
	Path        string    `json:"path"`
	RowCount    int64     `json:"row_count"`
	SizeBytes   int64     `json:"size_bytes"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Writer persists studies as snapshot files.
type Writer struct {
	log *slog.Logger
}

// NewWriter creates a snapshot writer.
func NewWriter(log *slog.Logger) *Writer {
	return &Writer{log: log}
}

// Write persists the study to path. The file is built under a temporary name
// and renamed into place, so a crash mid-write never leaves a readable but
// incomplete snapshot at the target path.
func (w *Writer) Write(ctx context.Context, path string, st *study.Study) (*Info, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to create snapshot directory", err)
	}

	tmpPath := path + ".tmp"
	// A leftover from a crashed write is stale by definition.
	_ = os.Remove(tmpPath)

	info, err := w.build(ctx, tmpPath, st)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to publish snapshot", err)
	}
	info.Path = path

	w.log.Info("snapshot written",
		"snapshot", info.SnapshotID,
		"path", path,
		"rows", info.RowCount,
		"size_bytes", info.SizeBytes,
		"fingerprint", info.Fingerprint,
	)

	return info, nil
}

func (w *Writer) build(ctx context.Context, path string, st *study.Study) (*Info, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to create snapshot database", err)
	}
	defer db.Close()

	// WAL while building, DELETE once finished: the published file is a
	// single self-contained artifact.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to set journal mode", err)
	}

	columns := st.Data.Series()
	for _, stmt := range []string{iterationsDDL(columns), CreateStatsTableSQL, CreateMetaTableSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
				"failed to create snapshot tables", err)
		}
	}

	stats := NewStatsTracker()
	for _, col := range columns {
		stats.ObserveSeries(col)
	}

	if err := w.writeRows(ctx, db, columns, st.Data.RowCount()); err != nil {
		return nil, err
	}
	if err := w.writeStats(ctx, db, columns, stats); err != nil {
		return nil, err
	}

	info := &Info{
		SnapshotID:  uuid.NewString(),
		RowCount:    int64(st.Data.RowCount()),
		Fingerprint: fmt.Sprintf("%016x", st.Fingerprint),
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.writeMeta(ctx, db, st, info); err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to checkpoint WAL", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=DELETE"); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to finalize journal mode", err)
	}
	if err := db.Close(); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to close snapshot database", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to stat snapshot file", err)
	}
	info.SizeBytes = fi.Size()

	return info, nil
}

func (w *Writer) writeRows(ctx context.Context, db *sql.DB, columns []*dataset.Series, rows int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to begin snapshot transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL(columns))
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to prepare snapshot insert", err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(columns)+1)
	for i := 0; i < rows; i++ {
		args[0] = i
		for c, col := range columns {
			if col.IsScalar() {
				// SQLite has no NaN; store NULL and restore on read.
				v := col.Scalars[i]
				if math.IsNaN(v) {
					args[c+1] = nil
				} else {
					args[c+1] = v
				}
			} else {
				args[c+1] = snappy.Encode(nil, floatsToBytes(col.Arrays[i]))
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.NewStorageError(errors.CodeSnapshotWrite,
				fmt.Sprintf("failed to insert row %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to commit snapshot rows", err)
	}
	return nil
}

func (w *Writer) writeStats(ctx context.Context, db *sql.DB, columns []*dataset.Series, stats *StatsTracker) error {
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO _optiview_stats
			(column_name, position, kind, width, derived, base, min_value, max_value, finite_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to prepare stats insert", err)
	}
	defer stmt.Close()

	for pos, col := range columns {
		var min, max interface{}
		var finite int64
		if cs, ok := stats.Get(col.Name); ok {
			if cs.Min != nil {
				min = *cs.Min
			}
			if cs.Max != nil {
				max = *cs.Max
			}
			finite = cs.FiniteCount
		}

		derived := 0
		if col.Derived {
			derived = 1
		}
		if _, err := stmt.ExecContext(ctx,
			col.Name, pos, string(col.Kind), col.Width, derived, col.Base,
			min, max, finite,
		); err != nil {
			return errors.NewStorageError(errors.CodeSnapshotWrite,
				fmt.Sprintf("failed to insert stats for column %q", col.Name), err)
		}
	}
	return nil
}

func (w *Writer) writeMeta(ctx context.Context, db *sql.DB, st *study.Study, info *Info) error {
	schemaJSON, err := json.Marshal(st.Definition)
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to encode problem definition", err)
	}

	meta := map[string]string{
		metaFormatVersion: fmt.Sprintf("%d", FormatVersion),
		metaSnapshotID:    info.SnapshotID,
		metaFingerprint:   info.Fingerprint,
		metaRowCount:      fmt.Sprintf("%d", info.RowCount),
		metaCreatedAt:     info.CreatedAt.Format(time.RFC3339Nano),
		metaSchemaJSON:    string(schemaJSON),
		metaSchemaSource:  st.SchemaSource,
		metaTableSource:   st.TableSource,
	}

	stmt, err := db.PrepareContext(ctx, "INSERT INTO _optiview_meta (key, value) VALUES (?, ?)")
	if err != nil {
		return errors.NewStorageError(errors.CodeSnapshotWrite,
			"failed to prepare meta insert", err)
	}
	defer stmt.Close()

	for k, v := range meta {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return errors.NewStorageError(errors.CodeSnapshotWrite,
				fmt.Sprintf("failed to insert meta key %q", k), err)
		}
	}
	return nil
}

// floatsToBytes encodes values as little-endian float64s. Binary rather than
// JSON because array cells legitimately hold NaN and infinities.
func floatsToBytes(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// bytesToFloats decodes a little-endian float64 payload.
func bytesToFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of 8", len(buf))
	}
	values := make([]float64, len(buf)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return values, nil
}
