package study

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/reduce"
	"github.com/optiview/optiview/internal/schema"
	"github.com/optiview/optiview/internal/storage"
	"github.com/optiview/optiview/pkg/types"
)

// Loader fetches study inputs, parses them, and builds a Study. A load either
// produces a complete Study or fails without side effects; callers keep
// whatever they had before.
type Loader struct {
	store     storage.ObjectStorage
	log       *slog.Logger
	delimiter rune
	maxRows   int
}

// NewLoader creates a loader reading through the given object storage.
// delimiter separates table cells; maxRows caps accepted table length
// (0 means unlimited).
func NewLoader(store storage.ObjectStorage, log *slog.Logger, delimiter rune, maxRows int) *Loader {
	return &Loader{
		store:     store,
		log:       log,
		delimiter: delimiter,
		maxRows:   maxRows,
	}
}

// Load fetches the schema and iteration table from object storage and builds
// a Study.
func (l *Loader) Load(ctx context.Context, schemaObject, tableObject string) (*Study, error) {
	tmpDir, err := os.MkdirTemp("", "optiview-load-")
	if err != nil {
		return nil, errors.NewInternalError("failed to create scratch directory", err)
	}
	defer os.RemoveAll(tmpDir)

	schemaRaw, err := l.fetch(ctx, schemaObject, filepath.Join(tmpDir, "schema"))
	if err != nil {
		return nil, err
	}
	tableRaw, err := l.fetch(ctx, tableObject, filepath.Join(tmpDir, "table"))
	if err != nil {
		return nil, err
	}

	return l.build(schemaObject, tableObject, schemaRaw, tableRaw)
}

// LoadFromFiles builds a Study from local files, bypassing object storage.
// The CLI front command uses this path.
func (l *Loader) LoadFromFiles(ctx context.Context, schemaPath, tablePath string) (*Study, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	schemaRaw, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("failed to read schema file %s", schemaPath), err)
	}
	tableRaw, err := os.ReadFile(tablePath)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("failed to read table file %s", tablePath), err)
	}

	return l.build(schemaPath, tablePath, schemaRaw, tableRaw)
}

func (l *Loader) fetch(ctx context.Context, objectPath, localPath string) ([]byte, error) {
	if err := l.store.Download(ctx, objectPath, localPath); err != nil {
		if err == storage.ErrObjectNotFound {
			return nil, errors.NewNotFoundError(errors.CodeObjectNotFound,
				fmt.Sprintf("object %s does not exist", objectPath))
		}
		return nil, errors.NewStorageError(errors.CodeDownloadFailed,
			fmt.Sprintf("failed to fetch %s", objectPath), err)
	}

	raw, err := os.ReadFile(localPath)
	if err != nil {
		return nil, errors.NewInternalError("failed to read fetched object", err)
	}
	return raw, nil
}

// build turns raw schema and table bytes into a Study: parse, load, validate
// against the declaration, reduce, fingerprint.
func (l *Loader) build(schemaSource, tableSource string, schemaRaw, tableRaw []byte) (*Study, error) {
	start := time.Now()

	def, err := schema.Parse(schemaRaw)
	if err != nil {
		return nil, err
	}

	ds, err := dataset.ReadTable(bytes.NewReader(tableRaw), l.delimiter)
	if err != nil {
		return nil, err
	}

	if l.maxRows > 0 && ds.RowCount() > l.maxRows {
		return nil, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeTableTooLarge,
			"table has %d rows, limit is %d", ds.RowCount(), l.maxRows)
	}

	if err := validate(def, ds); err != nil {
		return nil, err
	}

	if err := reduce.Reduce(ds, def); err != nil {
		return nil, err
	}

	st := &Study{
		Definition:   def,
		Data:         ds,
		Fingerprint:  ds.Fingerprint(),
		SchemaSource: schemaSource,
		TableSource:  tableSource,
		LoadedAt:     time.Now().UTC(),
	}

	l.log.Info("study loaded",
		"schema", schemaSource,
		"table", tableSource,
		"rows", ds.RowCount(),
		"columns", len(ds.Columns()),
		"variables", def.Count(),
		"fingerprint", fmt.Sprintf("%016x", st.Fingerprint),
		"elapsed", time.Since(start),
	)

	return st, nil
}

// validate checks the table against the declaration: every declared variable
// must be present with the declared width. Stops at the first mismatch.
func validate(def *types.Definition, ds *dataset.Dataset) error {
	for _, v := range def.All() {
		col, ok := ds.Column(v.Name)
		if !ok {
			return errors.NewDataFormatError(errors.CodeMissingColumn,
				fmt.Sprintf("declared variable %q has no table column", v.Name)).
				WithDetails(map[string]interface{}{
					"variable": v.Name,
					"role":     string(v.Role),
				})
		}

		got := 1
		if !col.IsScalar() {
			got = col.Width
		}
		if got != v.Size {
			return errors.NewDataFormatError(errors.CodeWidthMismatch,
				fmt.Sprintf("variable %q declared size %d but table column has width %d", v.Name, v.Size, got)).
				WithDetails(map[string]interface{}{
					"variable": v.Name,
					"declared": v.Size,
					"actual":   got,
				})
		}
	}
	return nil
}
