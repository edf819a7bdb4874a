package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/study"
	"github.com/optiview/optiview/pkg/types"
)

// columnDesc is one _optiview_stats row, enough to rebuild a column.
type columnDesc struct {
	name    string
	kind    dataset.Kind
	width   int
	derived bool
	base    string
}

// Read rebuilds a study from a snapshot file. The dataset fingerprint is
// recomputed and checked against the recorded one, so silent corruption of
// the data pages fails loudly instead of feeding bad values to the front.
func Read(ctx context.Context, path string) (*study.Study, *Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewNotFoundError(errors.CodeSnapshotNotFound,
				fmt.Sprintf("snapshot %s does not exist", path))
		}
		return nil, nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"failed to stat snapshot file", err)
	}

	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"failed to open snapshot database", err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	if v := meta[metaFormatVersion]; v != strconv.Itoa(FormatVersion) {
		return nil, nil, errors.Newf(errors.ErrCategoryStorage, errors.CodeSnapshotRead,
			"snapshot format version %s is not supported (want %d)", v, FormatVersion)
	}

	def, err := decodeDefinition(meta[metaSchemaJSON])
	if err != nil {
		return nil, nil, err
	}

	rowCount, err := strconv.Atoi(meta[metaRowCount])
	if err != nil {
		return nil, nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"snapshot row_count is malformed", err)
	}

	descs, err := readColumnDescs(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	ds, err := readIterations(ctx, db, descs, rowCount)
	if err != nil {
		return nil, nil, err
	}

	fingerprint := fmt.Sprintf("%016x", ds.Fingerprint())
	if fingerprint != meta[metaFingerprint] {
		return nil, nil, errors.Newf(errors.ErrCategoryStorage, errors.CodeSnapshotRead,
			"snapshot fingerprint mismatch: recorded %s, recomputed %s",
			meta[metaFingerprint], fingerprint)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, meta[metaCreatedAt])
	if err != nil {
		return nil, nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"snapshot created_at is malformed", err)
	}

	info := &Info{
		SnapshotID:  meta[metaSnapshotID],
		Path:        path,
		RowCount:    int64(rowCount),
		SizeBytes:   fi.Size(),
		Fingerprint: fingerprint,
		CreatedAt:   createdAt,
	}

	st := &study.Study{
		Definition:   def,
		Data:         ds,
		Fingerprint:  ds.Fingerprint(),
		SchemaSource: meta[metaSchemaSource],
		TableSource:  meta[metaTableSource],
		LoadedAt:     createdAt,
	}

	return st, info, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM _optiview_meta")
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"file is not a readable snapshot", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.NewStorageError(errors.CodeSnapshotRead,
				"failed to scan snapshot metadata", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"failed to read snapshot metadata", err)
	}
	return meta, nil
}

func decodeDefinition(schemaJSON string) (*types.Definition, error) {
	var decoded struct {
		DesignVars  []types.VariableSpec `json:"design_vars"`
		Constraints []types.VariableSpec `json:"constraints"`
		Objectives  []types.VariableSpec `json:"objectives"`
	}
	if err := json.Unmarshal([]byte(schemaJSON), &decoded); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"snapshot problem definition is malformed", err)
	}
	return types.NewDefinition(decoded.DesignVars, decoded.Constraints, decoded.Objectives), nil
}

func readColumnDescs(ctx context.Context, db *sql.DB) ([]columnDesc, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT column_name, kind, width, derived, base FROM _optiview_stats ORDER BY position")
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"failed to read snapshot column statistics", err)
	}
	defer rows.Close()

	var descs []columnDesc
	for rows.Next() {
		var d columnDesc
		var kind string
		var derived int
		if err := rows.Scan(&d.name, &kind, &d.width, &derived, &d.base); err != nil {
			return nil, errors.NewStorageError(errors.CodeSnapshotRead,
				"failed to scan snapshot column statistics", err)
		}
		d.kind = dataset.Kind(kind)
		d.derived = derived != 0
		descs = append(descs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"failed to read snapshot column statistics", err)
	}
	return descs, nil
}

func readIterations(ctx context.Context, db *sql.DB, descs []columnDesc, rowCount int) (*dataset.Dataset, error) {
	query := "SELECT row_idx"
	for _, d := range descs {
		query += ", " + quoteIdent(d.name)
	}
	query += " FROM iterations ORDER BY row_idx"

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"failed to read snapshot iterations", err)
	}
	defer rows.Close()

	scalars := make(map[int][]float64)
	arrays := make(map[int][][]float64)
	for c, d := range descs {
		if d.kind == dataset.KindScalar {
			scalars[c] = make([]float64, 0, rowCount)
		} else {
			arrays[c] = make([][]float64, 0, rowCount)
		}
	}

	targets := make([]interface{}, len(descs)+1)
	var rowIdx int
	targets[0] = &rowIdx
	nulls := make([]sql.NullFloat64, len(descs))
	blobs := make([][]byte, len(descs))
	for c, d := range descs {
		if d.kind == dataset.KindScalar {
			targets[c+1] = &nulls[c]
		} else {
			targets[c+1] = &blobs[c]
		}
	}

	seen := 0
	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return nil, errors.NewStorageError(errors.CodeSnapshotRead,
				"failed to scan snapshot row", err)
		}

		for c, d := range descs {
			if d.kind == dataset.KindScalar {
				v := math.NaN()
				if nulls[c].Valid {
					v = nulls[c].Float64
				}
				scalars[c] = append(scalars[c], v)
				continue
			}

			raw, err := snappy.Decode(nil, blobs[c])
			if err != nil {
				return nil, errors.NewStorageError(errors.CodeSnapshotRead,
					fmt.Sprintf("failed to decompress column %q at row %d", d.name, rowIdx), err)
			}
			values, err := bytesToFloats(raw)
			if err != nil || len(values) != d.width {
				return nil, errors.Newf(errors.ErrCategoryStorage, errors.CodeSnapshotRead,
					"column %q at row %d does not hold %d values", d.name, rowIdx, d.width)
			}
			arrays[c] = append(arrays[c], values)
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeSnapshotRead,
			"failed to read snapshot iterations", err)
	}
	if seen != rowCount {
		return nil, errors.Newf(errors.ErrCategoryStorage, errors.CodeSnapshotRead,
			"snapshot holds %d rows, metadata records %d", seen, rowCount)
	}

	ds := dataset.New(rowCount)
	for c, d := range descs {
		var err error
		switch {
		case d.kind == dataset.KindScalar && d.derived:
			err = ds.AddDerivedColumn(d.name, d.base, scalars[c])
		case d.kind == dataset.KindScalar:
			err = ds.AddScalarColumn(d.name, scalars[c])
		default:
			err = ds.AddArrayColumn(d.name, d.width, arrays[c])
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCategoryStorage, errors.CodeSnapshotRead,
				fmt.Sprintf("failed to rebuild column %q", d.name), err)
		}
	}

	return ds, nil
}
