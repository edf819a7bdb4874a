// Package pareto computes the non-dominated subset of iteration rows under a
// set of objective columns and their optimization senses.
package pareto

import (
	"math"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/pkg/types"
)

// Front returns the indices of rows not dominated by any other row under the
// given objectives. The result carries no ordering contract; it happens to be
// ascending by construction. Identical rows are mutually non-dominating and
// all stay in the front.
//
// Rows holding a non-finite value in any selected objective column are
// excluded outright: they neither join the front nor dominate other rows.
//
// Fewer than two objectives make a front meaningless, so the call fails
// rather than returning an empty set. The computation is a full O(n²·k)
// pairwise pass on every call; at dashboard scales rebuilding from scratch
// beats carrying incremental state.
func Front(ds *dataset.Dataset, objectives []types.Objective) ([]int, error) {
	cols, err := normalize(ds, objectives)
	if err != nil {
		return nil, err
	}

	n := ds.RowCount()
	comparable := make([]bool, n)
	for i := 0; i < n; i++ {
		comparable[i] = true
		for k := range cols {
			v := cols[k][i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				comparable[i] = false
				break
			}
		}
	}

	var front []int
	for i := 0; i < n; i++ {
		if !comparable[i] {
			continue
		}

		dominated := false
		for j := 0; j < n; j++ {
			if i == j || !comparable[j] {
				continue
			}

			betterInAll := true
			betterInOne := false
			for k := range cols {
				if cols[k][j] > cols[k][i] {
					betterInAll = false
					break
				}
				if cols[k][j] < cols[k][i] {
					betterInOne = true
				}
			}

			if betterInAll && betterInOne {
				dominated = true
				break
			}
		}

		if !dominated {
			front = append(front, i)
		}
	}

	return front, nil
}

// normalize extracts the objective columns and flips maximize columns by
// negation so that smaller always means better. Returned slices are private
// copies whenever negation applies; minimize columns alias dataset storage
// and must not be written to.
func normalize(ds *dataset.Dataset, objectives []types.Objective) ([][]float64, error) {
	if len(objectives) < 2 {
		return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeTooFewObjectives,
			"pareto front requires at least 2 objectives, got %d", len(objectives))
	}

	cols := make([][]float64, len(objectives))
	for k, obj := range objectives {
		s, ok := ds.Column(obj.Name)
		if !ok {
			return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeUnknownColumn,
				"objective column %q does not exist", obj.Name)
		}
		if !s.IsScalar() {
			return nil, errors.Newf(errors.ErrCategorySelection, errors.CodeNotSelectable,
				"objective column %q is array-valued; select its _min/_max reduction instead", obj.Name)
		}

		col := s.Scalars
		if !obj.Minimize() {
			neg := make([]float64, len(col))
			for i, v := range col {
				neg[i] = -v
			}
			col = neg
		}
		cols[k] = col
	}

	return cols, nil
}
