package reduce

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/pkg/types"
)

func floatPtr(v float64) *float64 { return &v }

func TestReduceDerivesMinMax(t *testing.T) {
	ds, err := dataset.Load(
		[]string{"iter", "chord"},
		[][]string{
			{"0", "[1.0 2.0 1.5]"},
			{"1", "[0.4 0.2 0.3]"},
		},
	)
	require.NoError(t, err)

	require.NoError(t, Reduce(ds, nil))

	mn, ok := ds.Column("chord_min")
	require.True(t, ok)
	mx, ok := ds.Column("chord_max")
	require.True(t, ok)

	assert.Equal(t, []float64{1.0, 0.2}, mn.Scalars)
	assert.Equal(t, []float64{2.0, 0.4}, mx.Scalars)
	assert.True(t, mn.Derived)
	assert.Equal(t, "chord", mn.Base)

	// source array column retained but still array-kind
	chord, _ := ds.Column("chord")
	assert.Equal(t, dataset.KindArray, chord.Kind)
}

func TestReduceScalarPassThrough(t *testing.T) {
	ds, err := dataset.Load(
		[]string{"mass"},
		[][]string{{"1"}, {"2"}},
	)
	require.NoError(t, err)

	require.NoError(t, Reduce(ds, nil))
	assert.Equal(t, []string{"mass"}, ds.Columns())
}

func TestReduceMinLEMax(t *testing.T) {
	ds, err := dataset.Load(
		[]string{"v"},
		[][]string{
			{"[3.0 1.0 2.0]"},
			{"[-5.0 -5.0 -5.0]"},
			{"[0.25 100.0 -3.5]"},
		},
	)
	require.NoError(t, err)
	require.NoError(t, Reduce(ds, nil))

	mn, _ := ds.Column("v_min")
	mx, _ := ds.Column("v_max")
	for row := 0; row < ds.RowCount(); row++ {
		assert.LessOrEqual(t, mn.Float(row), mx.Float(row), "row %d", row)
	}
}

func TestReduceNonFinitePropagation(t *testing.T) {
	ds, err := dataset.Load(
		[]string{"v"},
		[][]string{
			{"[1.0 nan 3.0]"},
			{"[1.0 inf 3.0]"},
			{"[-inf 2.0 3.0]"},
		},
	)
	require.NoError(t, err)
	require.NoError(t, Reduce(ds, nil))

	mn, _ := ds.Column("v_min")
	mx, _ := ds.Column("v_max")

	// NaN poisons both extremes rather than being skipped
	assert.True(t, math.IsNaN(mn.Float(0)))
	assert.True(t, math.IsNaN(mx.Float(0)))

	// infinities participate in the ordering
	assert.Equal(t, 1.0, mn.Float(1))
	assert.True(t, math.IsInf(mx.Float(1), 1))
	assert.True(t, math.IsInf(mn.Float(2), -1))
	assert.Equal(t, 3.0, mx.Float(2))
}

func TestReduceConstraintBoundMasking(t *testing.T) {
	def := types.NewDefinition(
		nil,
		[]types.VariableSpec{{
			Name:       "margin",
			Role:       types.RoleConstraint,
			LowerBound: floatPtr(0.0),
			UpperBound: floatPtr(1.0),
			Size:       2,
		}},
		nil,
	)

	ds, err := dataset.Load(
		[]string{"margin"},
		[][]string{
			{"[0.2 0.8]"},  // inside bounds
			{"[-0.5 0.9]"}, // min below lower bound
			{"[0.1 4.0]"},  // max above upper bound
		},
	)
	require.NoError(t, err)
	require.NoError(t, Reduce(ds, def))

	mn, _ := ds.Column("margin_min")
	mx, _ := ds.Column("margin_max")

	assert.Equal(t, 0.2, mn.Float(0))
	assert.Equal(t, 0.8, mx.Float(0))

	assert.True(t, math.IsNaN(mn.Float(1)))
	assert.Equal(t, 0.9, mx.Float(1))

	assert.Equal(t, 0.1, mn.Float(2))
	assert.True(t, math.IsNaN(mx.Float(2)))
}

func TestReduceNoMaskingForNonConstraints(t *testing.T) {
	def := types.NewDefinition(
		[]types.VariableSpec{{
			Name:       "diameter",
			Role:       types.RoleDesignVar,
			LowerBound: floatPtr(0.0),
			UpperBound: floatPtr(1.0),
			Size:       2,
		}},
		nil, nil,
	)

	ds, err := dataset.Load(
		[]string{"diameter"},
		[][]string{{"[5.0 6.0]"}},
	)
	require.NoError(t, err)
	require.NoError(t, Reduce(ds, def))

	// design variable bounds do not mask
	mn, _ := ds.Column("diameter_min")
	assert.Equal(t, 5.0, mn.Float(0))
}

func TestReduceIdempotent(t *testing.T) {
	ds, err := dataset.Load(
		[]string{"chord"},
		[][]string{{"[1.0 2.0]"}},
	)
	require.NoError(t, err)

	require.NoError(t, Reduce(ds, nil))
	cols := ds.Columns()

	require.NoError(t, Reduce(ds, nil))
	assert.Equal(t, cols, ds.Columns(), "second pass must be a no-op")
}

func TestReduceCollisionWithTableColumn(t *testing.T) {
	// the table itself carries a column occupying the derived name
	ds, err := dataset.Load(
		[]string{"chord", "chord_min"},
		[][]string{{"[1.0 2.0]", "0.0"}},
	)
	require.NoError(t, err)

	err = Reduce(ds, nil)
	require.Error(t, err)
	assert.True(t, errors.IsDataFormatError(err))
	assert.Equal(t, errors.CodeColumnCollision, errors.GetCode(err))
}
