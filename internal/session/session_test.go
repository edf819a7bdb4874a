package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/logger"
	"github.com/optiview/optiview/internal/reduce"
	"github.com/optiview/optiview/internal/study"
	"github.com/optiview/optiview/pkg/types"
)

// testStudy builds a 4-row study in memory: two scalar objectives, one scalar
// design variable, one array objective with derived reductions.
func testStudy(t *testing.T) *study.Study {
	t.Helper()

	ds := dataset.New(4)
	require.NoError(t, ds.AddScalarColumn("iter", []float64{0, 1, 2, 3}))
	require.NoError(t, ds.AddScalarColumn("floating.joint", []float64{0.1, 0.2, 0.3, 0.4}))
	require.NoError(t, ds.AddScalarColumn("raft.pitch", []float64{5, 4, 3, 5}))
	require.NoError(t, ds.AddScalarColumn("turbine.cost", []float64{1, 2, 3, 2}))
	require.NoError(t, ds.AddArrayColumn("rotor.chord", 3, [][]float64{
		{1.0, 2.0, 1.5},
		{1.1, 2.2, 1.4},
		{0.9, 1.8, 1.2},
		{1.0, 1.9, 1.3},
	}))

	def := types.NewDefinition(
		[]types.VariableSpec{{Name: "floating.joint", Role: types.RoleDesignVar, Size: 1}},
		nil,
		[]types.VariableSpec{
			{Name: "raft.pitch", Role: types.RoleObjective, Size: 1},
			{Name: "turbine.cost", Role: types.RoleObjective, Size: 1},
			{Name: "rotor.chord", Role: types.RoleObjective, Size: 3},
		},
	)
	require.NoError(t, reduce.Reduce(ds, def))

	return &study.Study{
		Definition:  def,
		Data:        ds,
		Fingerprint: ds.Fingerprint(),
		TableSource: "mem://table",
	}
}

func newTestSession() *Session {
	return newSession("test-session", logger.NewNop())
}

func TestSessionRequiresStudy(t *testing.T) {
	s := newTestSession()

	assertNoStudy := func(err error) {
		t.Helper()
		require.Error(t, err)
		assert.True(t, errors.IsSelectionError(err))
		assert.Equal(t, errors.CodeNoStudyLoaded, errors.GetCode(err))
	}

	assertNoStudy(s.SelectVariables(types.RoleObjective, []string{"raft.pitch"}))
	assertNoStudy(s.SetObjectiveSense("raft.pitch", types.SenseMaximize))
	assertNoStudy(s.SetHighlight(0))
	_, err := s.CurrentView()
	assertNoStudy(err)
}

func TestLoadStudyDefaults(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	view, err := s.CurrentView()
	require.NoError(t, err)

	// Scalar declared objectives become the default selection; the array
	// objective is left out.
	assert.Equal(t, []string{"raft.pitch", "turbine.cost"}, view.SelectedColumns["objective"])
	require.Len(t, view.Objectives, 2)
	assert.Equal(t, types.SenseMinimize, view.Objectives[0].Sense)
	assert.False(t, view.ShowPareto)
	assert.Nil(t, view.ParetoRows)
	assert.Nil(t, view.HighlightedRow)
	assert.Equal(t, 4, view.Rows)
	assert.NotEmpty(t, view.Fingerprint)
}

func TestSelectVariables(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	require.NoError(t, s.SelectVariables(types.RoleDesignVar, []string{"floating.joint"}))
	require.NoError(t, s.SelectVariables(types.RoleObjective, []string{"raft.pitch", "rotor.chord_max"}))

	view, err := s.CurrentView()
	require.NoError(t, err)
	assert.Equal(t, []string{"floating.joint"}, view.SelectedColumns["design_var"])
	assert.Equal(t, []string{"raft.pitch", "rotor.chord_max"}, view.SelectedColumns["objective"])
}

func TestSelectVariablesValidation(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	err := s.SelectVariables(types.RoleObjective, []string{"nope"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnknownColumn, errors.GetCode(err))

	err = s.SelectVariables(types.RoleObjective, []string{"rotor.chord"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotSelectable, errors.GetCode(err))

	err = s.SelectVariables(types.Role("axis"), []string{"raft.pitch"})
	require.Error(t, err)
	assert.True(t, errors.IsSelectionError(err))

	// A failed selection leaves the previous one standing.
	view, err := s.CurrentView()
	require.NoError(t, err)
	assert.Equal(t, []string{"raft.pitch", "turbine.cost"}, view.SelectedColumns["objective"])
}

func TestSetObjectiveSense(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	require.NoError(t, s.SetObjectiveSense("turbine.cost", types.SenseMaximize))

	view, err := s.CurrentView()
	require.NoError(t, err)
	require.Len(t, view.Objectives, 2)
	assert.Equal(t, types.SenseMinimize, view.Objectives[0].Sense)
	assert.Equal(t, types.SenseMaximize, view.Objectives[1].Sense)

	err = s.SetObjectiveSense("nope", types.SenseMinimize)
	require.Error(t, err)
	assert.Equal(t, errors.CodeUnknownColumn, errors.GetCode(err))

	err = s.SetObjectiveSense("rotor.chord", types.SenseMinimize)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotSelectable, errors.GetCode(err))

	err = s.SetObjectiveSense("raft.pitch", types.Sense("downhill"))
	require.Error(t, err)
	assert.True(t, errors.IsSelectionError(err))

	// Short spellings are stored canonically, so Minimize() sees them.
	require.NoError(t, s.SetObjectiveSense("raft.pitch", types.Sense("max")))
	view, err = s.CurrentView()
	require.NoError(t, err)
	assert.Equal(t, types.SenseMaximize, view.Objectives[0].Sense)
}

func TestParetoToggle(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	s.TogglePareto(true)
	view, err := s.CurrentView()
	require.NoError(t, err)
	assert.True(t, view.ShowPareto)
	// pitch (5,4,3,5) / cost (1,2,3,2): row 3 loses to row 1 on pitch at
	// equal cost, the rest trade off.
	assert.Equal(t, []int{0, 1, 2}, view.ParetoRows)

	s.TogglePareto(false)
	view, err = s.CurrentView()
	require.NoError(t, err)
	assert.False(t, view.ShowPareto)
	assert.Nil(t, view.ParetoRows)
}

func TestParetoSenseChangesFront(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	require.NoError(t, s.SetObjectiveSense("turbine.cost", types.SenseMaximize))
	s.TogglePareto(true)

	view, err := s.CurrentView()
	require.NoError(t, err)
	// Minimizing pitch while maximizing cost leaves only row 2 (3, 3).
	assert.Equal(t, []int{2}, view.ParetoRows)
}

func TestParetoTooFewObjectives(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	require.NoError(t, s.SelectVariables(types.RoleObjective, []string{"raft.pitch"}))
	s.TogglePareto(true)

	_, err := s.CurrentView()
	require.Error(t, err)
	assert.Equal(t, errors.CodeTooFewObjectives, errors.GetCode(err))

	// Turning the toggle off makes the view renderable again.
	s.TogglePareto(false)
	_, err = s.CurrentView()
	require.NoError(t, err)
}

func TestHighlight(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	require.NoError(t, s.SetHighlight(2))
	view, err := s.CurrentView()
	require.NoError(t, err)
	require.NotNil(t, view.HighlightedRow)
	assert.Equal(t, 2, *view.HighlightedRow)

	// Re-highlighting the same row clears it.
	require.NoError(t, s.SetHighlight(2))
	view, err = s.CurrentView()
	require.NoError(t, err)
	assert.Nil(t, view.HighlightedRow)

	err = s.SetHighlight(4)
	require.Error(t, err)
	assert.Equal(t, errors.CodeRowOutOfRange, errors.GetCode(err))

	err = s.SetHighlight(-1)
	require.Error(t, err)
	assert.Equal(t, errors.CodeRowOutOfRange, errors.GetCode(err))

	s.ClearHighlight()
	s.ClearHighlight() // idempotent
}

func TestLoadStudyResetsState(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	require.NoError(t, s.SetObjectiveSense("turbine.cost", types.SenseMaximize))
	require.NoError(t, s.SetHighlight(1))
	s.TogglePareto(true)

	s.LoadStudy(testStudy(t))

	view, err := s.CurrentView()
	require.NoError(t, err)
	assert.False(t, view.ShowPareto)
	assert.Nil(t, view.HighlightedRow)
	assert.Equal(t, []string{"raft.pitch", "turbine.cost"}, view.SelectedColumns["objective"])
	require.Len(t, view.Objectives, 2)
	assert.Equal(t, types.SenseMinimize, view.Objectives[1].Sense)
}

func TestViewIsCopy(t *testing.T) {
	s := newTestSession()
	s.LoadStudy(testStudy(t))

	view, err := s.CurrentView()
	require.NoError(t, err)
	view.SelectedColumns["objective"][0] = "mutated"

	again, err := s.CurrentView()
	require.NoError(t, err)
	assert.Equal(t, "raft.pitch", again.SelectedColumns["objective"][0])
}
