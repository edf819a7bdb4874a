// Package export renders a session's working set to portable files and
// publishes them to object storage.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/storage"
	"github.com/optiview/optiview/internal/study"
)

// Format selects the rendered file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat converts a string into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", errors.Newf(errors.ErrCategorySelection, errors.CodeBadFormat,
		"unknown export format %q, want csv or json", s)
}

// Request names what to render. Columns defaults to every column and Rows to
// every row. FrontRows, when present, adds a 0/1 front-membership column;
// Highlight carries the highlighted row into JSON exports. Destination
// overrides the generated object path.
type Request struct {
	SessionID   string
	Columns     []string
	Rows        []int
	Format      Format
	Destination string
	FrontRows   []int
	Highlight   *int
}

// Result describes one published export.
type Result struct {
	ObjectPath string `json:"object_path"`
	Format     Format `json:"format"`
	Rows       int    `json:"rows"`
	Columns    int    `json:"columns"`
	SizeBytes  int64  `json:"size_bytes"`
}

// Exporter renders studies and uploads the rendered files.
type Exporter struct {
	store storage.ObjectStorage
	log   *slog.Logger
}

// NewExporter creates an Exporter publishing through store.
func NewExporter(store storage.ObjectStorage, log *slog.Logger) *Exporter {
	return &Exporter{store: store, log: log}
}

// Export renders the requested slice of st and uploads it under
// exports/<session>/. Non-finite values are written in the same spellings
// the table reader accepts, so an export loads back without loss.
func (e *Exporter) Export(ctx context.Context, st *study.Study, req Request) (*Result, error) {
	columns, err := resolveColumns(st.Data, req.Columns)
	if err != nil {
		return nil, err
	}
	rows, err := resolveRows(st.Data, req.Rows)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "optiview-export-")
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeUploadFailed,
			"failed to create export directory", err)
	}
	defer os.RemoveAll(dir)

	name := fmt.Sprintf("view-%s-%s.%s",
		time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8], req.Format)
	localPath := filepath.Join(dir, name)

	switch req.Format {
	case FormatCSV:
		err = writeCSV(localPath, st.Data, columns, rows, req.FrontRows)
	case FormatJSON:
		err = writeJSON(localPath, st, columns, rows, req.FrontRows, req.Highlight)
	default:
		return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeBadFormat,
			"unknown export format %q, want csv or json", req.Format)
	}
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(localPath)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeUploadFailed,
			"failed to stat rendered export", err)
	}

	objectPath := req.Destination
	if objectPath == "" {
		objectPath = fmt.Sprintf("exports/%s/%s", req.SessionID, name)
	}
	if err := e.store.Upload(ctx, localPath, objectPath); err != nil {
		return nil, errors.NewStorageError(errors.CodeUploadFailed,
			fmt.Sprintf("failed to upload export %s", objectPath), err)
	}

	e.log.Info("view exported",
		"session", req.SessionID,
		"object", objectPath,
		"format", req.Format,
		"rows", len(rows),
		"columns", len(columns),
		"size_bytes", fi.Size(),
	)

	return &Result{
		ObjectPath: objectPath,
		Format:     req.Format,
		Rows:       len(rows),
		Columns:    len(columns),
		SizeBytes:  fi.Size(),
	}, nil
}

// resolveColumns validates the requested columns, or expands to every column
// when none are named.
func resolveColumns(ds *dataset.Dataset, names []string) ([]string, error) {
	if len(names) == 0 {
		return ds.Columns(), nil
	}
	for _, name := range names {
		if !ds.HasColumn(name) {
			return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeUnknownColumn,
				"column %q does not exist", name)
		}
	}
	return append([]string(nil), names...), nil
}

// resolveRows validates the requested row indices, or expands to every row
// when none are named.
func resolveRows(ds *dataset.Dataset, rows []int) ([]int, error) {
	if rows == nil {
		all := make([]int, ds.RowCount())
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, row := range rows {
		if row < 0 || row >= ds.RowCount() {
			return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeRowOutOfRange,
				"row %d out of range [0, %d)", row, ds.RowCount())
		}
	}
	return append([]int(nil), rows...), nil
}

// writeCSV renders the slice in the table input format: scalars as plain
// floats, arrays in bracket form. The leading row column holds the original
// row index so a front export stays traceable to the full table. A non-nil
// front adds a trailing 0/1 membership column.
func writeCSV(path string, ds *dataset.Dataset, columns []string, rows []int, front []int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed,
			"failed to create export file", err)
	}
	defer f.Close()

	header := append([]string{"row"}, columns...)
	if front != nil {
		header = append(header, "front")
	}
	onFront := make(map[int]bool, len(front))
	for _, row := range front {
		onFront[row] = true
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed,
			"failed to write export header", err)
	}

	record := make([]string, len(header))
	for _, row := range rows {
		record[0] = strconv.Itoa(row)
		for i, name := range columns {
			col, _ := ds.Column(name)
			if col.IsScalar() {
				record[i+1] = formatFloat(col.Float(row))
			} else {
				record[i+1] = formatArrayCell(col.Array(row))
			}
		}
		if front != nil {
			record[len(columns)+1] = "0"
			if onFront[row] {
				record[len(columns)+1] = "1"
			}
		}
		if err := w.Write(record); err != nil {
			return errors.NewStorageError(errors.CodeUploadFailed,
				"failed to write export row", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed,
			"failed to flush export file", err)
	}
	return f.Close()
}

// jsonDocument is the JSON export layout: column-major cells keyed by row
// entry order, with the source fingerprint for provenance.
type jsonDocument struct {
	Fingerprint    string          `json:"fingerprint"`
	Columns        []string        `json:"columns"`
	RowIndices     []int           `json:"row_indices"`
	Rows           [][]interface{} `json:"rows"`
	FrontRows      []int           `json:"front_rows,omitempty"`
	HighlightedRow *int            `json:"highlighted_row,omitempty"`
}

// writeJSON renders the slice as one JSON document. JSON has no NaN or Inf
// literal, so non-finite cells are written as the string spellings the table
// reader parses.
func writeJSON(path string, st *study.Study, columns []string, rows []int, front []int, highlight *int) error {
	doc := jsonDocument{
		Fingerprint:    fmt.Sprintf("%016x", st.Fingerprint),
		Columns:        columns,
		RowIndices:     rows,
		Rows:           make([][]interface{}, len(rows)),
		FrontRows:      front,
		HighlightedRow: highlight,
	}

	for i, row := range rows {
		cells := make([]interface{}, len(columns))
		for c, name := range columns {
			col, _ := st.Data.Column(name)
			if col.IsScalar() {
				cells[c] = jsonValue(col.Float(row))
			} else {
				arr := col.Array(row)
				vals := make([]interface{}, len(arr))
				for k, v := range arr {
					vals[k] = jsonValue(v)
				}
				cells[c] = vals
			}
		}
		doc.Rows[i] = cells
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed,
			"failed to encode export document", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed,
			"failed to write export file", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatArrayCell(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func jsonValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return formatFloat(v)
	}
	return v
}
