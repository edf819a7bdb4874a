// Package dataset implements the column-oriented store for optimization
// iteration tables. One row per iteration, identified by its 0-based
// position; columns are named series of floats or fixed-width float arrays.
// Datasets are built once at load time and extended only by the reducer's
// append-only derived columns.
package dataset

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/spaolacci/murmur3"

	"github.com/optiview/optiview/internal/errors"
)

// Dataset is a column-oriented iteration table with a stable row index.
type Dataset struct {
	columns []*Series
	index   map[string]*Series
	rows    int
}

// New creates an empty dataset with a fixed row count, populated through
// AddScalarColumn and AddArrayColumn. Snapshot reload and tests assemble
// datasets this way without round-tripping through text.
func New(rows int) *Dataset {
	return &Dataset{
		index: make(map[string]*Series),
		rows:  rows,
	}
}

// Load builds a Dataset from a header and raw string cells, one slice per
// row. Cell syntax and uniformity rules are enforced here: every cell parses
// as a float or a bracketed float array, a column is uniformly scalar or
// uniformly array across all rows, and array widths per column are constant.
// Blank cells fail; they are never zero-filled.
func Load(header []string, records [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, errors.NewDataFormatError(errors.CodeEmptyTable, "table has no header row")
	}

	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return nil, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeDuplicateColumn,
				"column %q appears more than once in the header", name)
		}
		seen[name] = struct{}{}
	}

	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeRowArity,
				"row %d has %d cells, header has %d", i, len(rec), len(header))
		}
	}

	ds := &Dataset{
		columns: make([]*Series, 0, len(header)),
		index:   make(map[string]*Series, len(header)),
		rows:    len(records),
	}

	for col, name := range header {
		s, err := buildSeries(name, col, records)
		if err != nil {
			return nil, err
		}
		ds.columns = append(ds.columns, s)
		ds.index[name] = s
	}

	return ds, nil
}

// buildSeries parses one column out of the row-major records.
func buildSeries(name string, col int, records [][]string) (*Series, error) {
	s := &Series{Name: name, Kind: KindScalar, Width: 1}

	for row, rec := range records {
		val, arr, isArray, err := parseCell(rec[col])
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				return nil, e.WithDetails(map[string]interface{}{"column": name, "row": row})
			}
			return nil, err
		}

		// Width-1 bracketed cells carry a single float; treat them as the
		// scalar they represent.
		if isArray && len(arr) == 1 {
			isArray = false
			val = arr[0]
		}

		if row == 0 {
			if isArray {
				s.Kind = KindArray
				s.Width = len(arr)
				s.Arrays = make([][]float64, 0, len(records))
			} else {
				s.Scalars = make([]float64, 0, len(records))
			}
		}

		switch {
		case isArray && s.Kind != KindArray, !isArray && s.Kind == KindArray:
			return nil, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeMixedColumnKind,
				"column %q mixes scalar and array cells (row %d)", name, row)
		case isArray && len(arr) != s.Width:
			return nil, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeRaggedArray,
				"column %q has width %d at row %d, expected %d", name, len(arr), row, s.Width)
		}

		if isArray {
			s.Arrays = append(s.Arrays, arr)
		} else {
			s.Scalars = append(s.Scalars, val)
		}
	}

	return s, nil
}

// Column returns the series stored under name.
func (d *Dataset) Column(name string) (*Series, bool) {
	s, ok := d.index[name]
	return s, ok
}

// HasColumn reports whether a column exists.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Columns returns all column names in load order, derived columns after
// their load-time peers.
func (d *Dataset) Columns() []string {
	names := make([]string, len(d.columns))
	for i, s := range d.columns {
		names[i] = s.Name
	}
	return names
}

// ScalarColumns returns the names of all scalar columns, sorted.
func (d *Dataset) ScalarColumns() []string {
	var names []string
	for _, s := range d.columns {
		if s.IsScalar() {
			names = append(names, s.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Series returns all columns in order. Callers must not modify the slice.
func (d *Dataset) Series() []*Series {
	return d.columns
}

// RowCount returns the number of iteration rows.
func (d *Dataset) RowCount() int {
	return d.rows
}

// AddScalarColumn appends a scalar column. Fails when the name collides with
// an existing column or the length does not match the row count.
func (d *Dataset) AddScalarColumn(name string, values []float64) error {
	return d.addColumn(&Series{
		Name:    name,
		Kind:    KindScalar,
		Width:   1,
		Scalars: values,
	})
}

// AddDerivedColumn appends a reducer-produced scalar column that records its
// source column.
func (d *Dataset) AddDerivedColumn(name, base string, values []float64) error {
	return d.addColumn(&Series{
		Name:    name,
		Kind:    KindScalar,
		Width:   1,
		Derived: true,
		Base:    base,
		Scalars: values,
	})
}

// AddArrayColumn appends an array column of the given width. Width must be at
// least 2; a width-1 column is a scalar column.
func (d *Dataset) AddArrayColumn(name string, width int, values [][]float64) error {
	if width < 2 {
		return errors.Newf(errors.ErrCategoryDataFormat, errors.CodeRaggedArray,
			"array column %q must have width >= 2, got %d", name, width)
	}
	for row, arr := range values {
		if len(arr) != width {
			return errors.Newf(errors.ErrCategoryDataFormat, errors.CodeRaggedArray,
				"column %q has width %d at row %d, expected %d", name, len(arr), row, width)
		}
	}
	return d.addColumn(&Series{
		Name:   name,
		Kind:   KindArray,
		Width:  width,
		Arrays: values,
	})
}

func (d *Dataset) addColumn(s *Series) error {
	if _, exists := d.index[s.Name]; exists {
		return errors.Newf(errors.ErrCategoryDataFormat, errors.CodeColumnCollision,
			"derived column %q collides with an existing column", s.Name)
	}
	if s.Len() != d.rows {
		return errors.Newf(errors.ErrCategoryDataFormat, errors.CodeRowArity,
			"column %q has %d values, dataset has %d rows", s.Name, s.Len(), d.rows)
	}
	d.columns = append(d.columns, s)
	d.index[s.Name] = s
	return nil
}

// Fingerprint returns a murmur3 content hash over the column layout and every
// cell. Two datasets with identical columns and values hash identically
// regardless of how they were loaded.
func (d *Dataset) Fingerprint() uint64 {
	h := murmur3.New64()
	var buf [8]byte

	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	for _, s := range d.columns {
		h.Write([]byte(s.Name))
		h.Write([]byte{0})
		h.Write([]byte(s.Kind))
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Width))
		h.Write(buf[:])

		if s.IsScalar() {
			for _, v := range s.Scalars {
				writeFloat(v)
			}
		} else {
			for _, arr := range s.Arrays {
				for _, v := range arr {
					writeFloat(v)
				}
			}
		}
	}

	return h.Sum64()
}
