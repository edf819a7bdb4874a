package dataset

// Kind discriminates scalar from array-valued columns.
type Kind string

const (
	// KindScalar marks a column holding one float per row.
	KindScalar Kind = "scalar"

	// KindArray marks a column holding a fixed-width float array per row.
	KindArray Kind = "array"
)

// Series is one named column. Exactly one of Scalars or Arrays is populated,
// selected by Kind. A Series is never mutated after the dataset is built.
type Series struct {
	// Name is the column key from the table header or the derived name
	Name string

	// Kind is scalar or array
	Kind Kind

	// Width is 1 for scalars, the fixed array width otherwise
	Width int

	// Derived marks a column appended by the reducer rather than loaded
	Derived bool

	// Base is the source column name for derived columns, "" otherwise
	Base string

	// Scalars holds per-row values for scalar columns
	Scalars []float64

	// Arrays holds per-row values for array columns
	Arrays [][]float64
}

// Len returns the number of rows in the series.
func (s *Series) Len() int {
	if s.Kind == KindScalar {
		return len(s.Scalars)
	}
	return len(s.Arrays)
}

// Float returns the scalar value at row. Only valid for scalar series.
func (s *Series) Float(row int) float64 {
	return s.Scalars[row]
}

// Array returns the array value at row. Only valid for array series.
// The returned slice is backing storage; callers must not modify it.
func (s *Series) Array(row int) []float64 {
	return s.Arrays[row]
}

// IsScalar reports whether the series holds one float per row.
func (s *Series) IsScalar() bool {
	return s.Kind == KindScalar
}
