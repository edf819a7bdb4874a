// Package reduce derives scalar summary columns from array-valued columns.
// Every array column <name> gains <name>_min and <name>_max holding the
// per-row element-wise extremes; downstream selection and Pareto computation
// only ever see scalar columns.
package reduce

import (
	"math"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/pkg/types"
)

// Reduce appends derived min/max columns for every array column in ds. The
// pass runs once per load and is idempotent: columns that already carry their
// derived pair are left alone, and the derived columns themselves are scalar,
// so a second pass produces nothing new.
//
// Non-finite array elements propagate into the derived values instead of
// being skipped; the Pareto engine is responsible for excluding such rows.
//
// When def declares the source variable as a constraint with bounds, derived
// values falling outside [lower, upper] are replaced by NaN. Bounds passed in
// as data are the only constraint handling the pipeline performs.
func Reduce(ds *dataset.Dataset, def *types.Definition) error {
	for _, s := range ds.Series() {
		if s.IsScalar() {
			continue
		}

		minName := s.Name + "_min"
		maxName := s.Name + "_max"

		done, err := alreadyReduced(ds, s.Name, minName, maxName)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		mins := make([]float64, ds.RowCount())
		maxs := make([]float64, ds.RowCount())
		for row := 0; row < ds.RowCount(); row++ {
			mins[row], maxs[row] = arrayMinMax(s.Array(row))
		}

		if lower, upper, ok := constraintBounds(def, s.Name); ok {
			maskOutOfBounds(mins, lower, upper)
			maskOutOfBounds(maxs, lower, upper)
		}

		if err := ds.AddDerivedColumn(minName, s.Name, mins); err != nil {
			return err
		}
		if err := ds.AddDerivedColumn(maxName, s.Name, maxs); err != nil {
			return err
		}
	}

	return nil
}

// alreadyReduced reports whether both derived columns for base exist from a
// prior pass. A plain table column occupying a derived name is a collision.
func alreadyReduced(ds *dataset.Dataset, base, minName, maxName string) (bool, error) {
	minCol, haveMin := ds.Column(minName)
	maxCol, haveMax := ds.Column(maxName)

	if !haveMin && !haveMax {
		return false, nil
	}
	if haveMin && haveMax && minCol.Derived && maxCol.Derived && minCol.Base == base && maxCol.Base == base {
		return true, nil
	}
	return false, errors.Newf(errors.ErrCategoryDataFormat, errors.CodeColumnCollision,
		"derived columns for %q collide with existing table columns", base)
}

// arrayMinMax folds one row's array. NaN poisons both extremes; infinities
// participate in the usual ordering.
func arrayMinMax(arr []float64) (float64, float64) {
	mn, mx := arr[0], arr[0]
	for _, v := range arr[1:] {
		mn = math.Min(mn, v)
		mx = math.Max(mx, v)
	}
	return mn, mx
}

// constraintBounds returns the declared bounds of name when it is a bounded
// constraint. Unset bounds widen to the corresponding infinity.
func constraintBounds(def *types.Definition, name string) (lower, upper float64, ok bool) {
	if def == nil {
		return 0, 0, false
	}
	spec, found := def.Lookup(name)
	if !found || spec.Role != types.RoleConstraint {
		return 0, 0, false
	}
	if spec.LowerBound == nil && spec.UpperBound == nil {
		return 0, 0, false
	}

	lower, upper = math.Inf(-1), math.Inf(1)
	if spec.LowerBound != nil {
		lower = *spec.LowerBound
	}
	if spec.UpperBound != nil {
		upper = *spec.UpperBound
	}
	return lower, upper, true
}

// maskOutOfBounds replaces values outside [lower, upper] with NaN. NaN input
// stays NaN since the comparison fails.
func maskOutOfBounds(values []float64, lower, upper float64) {
	for i, v := range values {
		if !(lower <= v && v <= upper) {
			values[i] = math.NaN()
		}
	}
}
