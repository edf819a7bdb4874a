// Package session holds the mutable view state of one dashboard user: which
// columns are selected per role, objective senses, the Pareto toggle, and the
// highlighted row. The loaded study itself is immutable; only this state
// changes between requests.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/pareto"
	"github.com/optiview/optiview/internal/study"
	"github.com/optiview/optiview/pkg/types"
)

// Session is one logical dashboard session. All mutations are synchronous:
// the next CurrentView call reflects every change made before it. A single
// mutex serializes access so concurrent HTTP requests against the same
// session behave as if issued one at a time.
type Session struct {
	id        string
	createdAt time.Time
	log       *slog.Logger

	mu         sync.Mutex
	study      *study.Study
	selections map[types.Role][]string
	senses     map[string]types.Sense
	showPareto bool
	highlight  *int
}

// View is the rendering payload assembled by CurrentView.
type View struct {
	// SelectedColumns maps role to the selected column names, in selection order
	SelectedColumns map[string][]string `json:"selected_columns"`

	// Objectives is the objective selection the Pareto front is computed over
	Objectives []types.Objective `json:"objective_selection"`

	// ShowPareto reports whether front membership is being computed
	ShowPareto bool `json:"show_pareto"`

	// ParetoRows holds the non-dominated row indices when ShowPareto is set
	ParetoRows []int `json:"pareto_rows,omitempty"`

	// HighlightedRow is the clicked row, nil when nothing is highlighted
	HighlightedRow *int `json:"highlighted_row,omitempty"`

	// Rows is the iteration count of the loaded study
	Rows int `json:"rows"`

	// Fingerprint identifies the loaded dataset
	Fingerprint string `json:"fingerprint"`
}

func newSession(id string, log *slog.Logger) *Session {
	return &Session{
		id:         id,
		createdAt:  time.Now().UTC(),
		log:        log.With("session", id),
		selections: make(map[types.Role][]string),
		senses:     make(map[string]types.Sense),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LoadStudy replaces the loaded study and resets all view state. The default
// objective selection is the study's scalar objectives, minimized. Callers
// only reach this with a fully built study, so a failed load elsewhere never
// disturbs the state here.
func (s *Session) LoadStudy(st *study.Study) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.study = st
	s.selections = make(map[types.Role][]string)
	s.senses = make(map[string]types.Sense)
	s.showPareto = false
	s.highlight = nil

	objs := st.DefaultObjectives()
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Name
	}
	s.selections[types.RoleObjective] = names

	s.log.Info("study loaded into session",
		"table", st.TableSource,
		"rows", st.Data.RowCount(),
		"default_objectives", len(names),
	)
}

// Study returns the loaded study, or nil before the first load.
func (s *Session) Study() *study.Study {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.study
}

// SelectVariables replaces the selected columns for one role. Every name
// must be an existing scalar column; array columns are represented by their
// derived reductions.
func (s *Session) SelectVariables(role types.Role, names []string) error {
	if _, err := types.ParseRole(string(role)); err != nil {
		return errors.Newf(errors.ErrCategorySelection, errors.CodeNotSelectable,
			"unknown role %q", string(role))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.study == nil {
		return errNoStudy()
	}

	for _, name := range names {
		col, ok := s.study.Data.Column(name)
		if !ok {
			return errors.Newf(errors.ErrCategorySelection, errors.CodeUnknownColumn,
				"column %q does not exist", name)
		}
		if !col.IsScalar() {
			return errors.Newf(errors.ErrCategorySelection, errors.CodeNotSelectable,
				"column %q is array-valued; select its _min/_max reduction instead", name)
		}
	}

	s.selections[role] = append([]string(nil), names...)
	return nil
}

// SetObjectiveSense records the optimization direction for one column.
// The sense applies whenever the column is part of the objective selection.
// Short spellings are stored in canonical form.
func (s *Session) SetObjectiveSense(name string, sense types.Sense) error {
	parsed, err := types.ParseSense(string(sense))
	if err != nil {
		return errors.Newf(errors.ErrCategorySelection, errors.CodeNotSelectable,
			"unknown sense %q", string(sense))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.study == nil {
		return errNoStudy()
	}

	col, ok := s.study.Data.Column(name)
	if !ok {
		return errors.Newf(errors.ErrCategorySelection, errors.CodeUnknownColumn,
			"column %q does not exist", name)
	}
	if !col.IsScalar() {
		return errors.Newf(errors.ErrCategorySelection, errors.CodeNotSelectable,
			"column %q is array-valued; set the sense on its _min/_max reduction", name)
	}

	s.senses[name] = parsed
	return nil
}

// TogglePareto switches front computation on or off. The front itself is
// recomputed by the next CurrentView call; an under-specified objective
// selection surfaces there, not here.
func (s *Session) TogglePareto(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showPareto = on
}

// SetHighlight marks a row as highlighted. Highlighting the already
// highlighted row clears it, matching click-to-toggle plots.
func (s *Session) SetHighlight(row int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.study == nil {
		return errNoStudy()
	}
	if row < 0 || row >= s.study.Data.RowCount() {
		return errors.Newf(errors.ErrCategorySelection, errors.CodeRowOutOfRange,
			"row %d out of range [0, %d)", row, s.study.Data.RowCount())
	}

	if s.highlight != nil && *s.highlight == row {
		s.highlight = nil
		return nil
	}
	r := row
	s.highlight = &r
	return nil
}

// ClearHighlight removes the highlight, if any.
func (s *Session) ClearHighlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlight = nil
}

// Highlight returns the highlighted row, nil when nothing is highlighted.
func (s *Session) Highlight() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.highlight == nil {
		return nil
	}
	r := *s.highlight
	return &r
}

// Objectives returns the current objective selection with senses applied.
func (s *Session) Objectives() []types.Objective {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objectivesLocked()
}

func (s *Session) objectivesLocked() []types.Objective {
	names := s.selections[types.RoleObjective]
	objs := make([]types.Objective, len(names))
	for i, name := range names {
		sense := s.senses[name]
		if sense == "" {
			sense = types.SenseMinimize
		}
		objs[i] = types.Objective{Name: name, Sense: sense}
	}
	return objs
}

// CurrentView assembles the rendering payload from the current state. When
// the Pareto toggle is on, the front is recomputed here on every call; a
// selection that cannot produce a front fails the whole call.
func (s *Session) CurrentView() (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.study == nil {
		return nil, errNoStudy()
	}

	view := &View{
		SelectedColumns: make(map[string][]string, len(s.selections)),
		Objectives:      s.objectivesLocked(),
		ShowPareto:      s.showPareto,
		Rows:            s.study.Data.RowCount(),
		Fingerprint:     fmt.Sprintf("%016x", s.study.Fingerprint),
	}
	for role, names := range s.selections {
		view.SelectedColumns[string(role)] = append([]string(nil), names...)
	}
	if s.highlight != nil {
		r := *s.highlight
		view.HighlightedRow = &r
	}

	if s.showPareto {
		front, err := pareto.Front(s.study.Data, view.Objectives)
		if err != nil {
			return nil, err
		}
		view.ParetoRows = front
	}

	return view, nil
}

func errNoStudy() error {
	return errors.New(errors.ErrCategorySelection, errors.CodeNoStudyLoaded,
		"no study loaded")
}
