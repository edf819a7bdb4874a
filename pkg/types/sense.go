package types

// Sense is the optimization direction of an objective.
type Sense string

const (
	// SenseMinimize means smaller values are better.
	SenseMinimize Sense = "minimize"

	// SenseMaximize means larger values are better.
	SenseMaximize Sense = "maximize"
)

// ParseSense converts a string into a Sense. The short forms "min" and "max"
// are accepted alongside the canonical names.
func ParseSense(s string) (Sense, error) {
	switch s {
	case string(SenseMinimize), "min":
		return SenseMinimize, nil
	case string(SenseMaximize), "max":
		return SenseMaximize, nil
	}
	return "", ErrInvalidSense
}

// Objective pairs a selectable column with its optimization sense.
type Objective struct {
	// Name is the column name, post-reduction: a scalar variable or a
	// derived _min/_max column of an array variable
	Name string `json:"name"`

	// Sense is the optimization direction; treated as minimize when empty
	Sense Sense `json:"sense"`
}

// Minimize reports whether the objective's sense is minimize, the default
// for an unset sense.
func (o Objective) Minimize() bool {
	return o.Sense != SenseMaximize
}
