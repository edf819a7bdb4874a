// Package study assembles a loaded optimization study: the parsed problem
// definition together with its iteration table, cross-validated and reduced.
package study

import (
	"time"

	"github.com/optiview/optiview/internal/dataset"
	"github.com/optiview/optiview/pkg/types"
)

// Study is an immutable loaded study. A reload builds a fresh Study and the
// session swaps the pointer; nothing mutates an existing one.
type Study struct {
	// Definition is the parsed problem definition
	Definition *types.Definition

	// Data is the iteration table with derived reductions appended
	Data *dataset.Dataset

	// Fingerprint identifies the dataset contents for snapshot dedup
	Fingerprint uint64

	// SchemaSource is where the definition was fetched from
	SchemaSource string

	// TableSource is where the iteration table was fetched from
	TableSource string

	// LoadedAt is when the load completed
	LoadedAt time.Time
}

// DefaultObjectives returns the declared objectives that map to scalar table
// columns, minimized by default. Array-valued objectives are skipped; the
// caller selects one of their reductions explicitly.
func (s *Study) DefaultObjectives() []types.Objective {
	var objs []types.Objective
	for _, v := range s.Definition.Objectives {
		col, ok := s.Data.Column(v.Name)
		if !ok || !col.IsScalar() {
			continue
		}
		objs = append(objs, types.Objective{Name: v.Name, Sense: types.SenseMinimize})
	}
	return objs
}

// SelectableColumns returns every scalar column name, sorted. These are the
// candidates for plotting axes and objective selection.
func (s *Study) SelectableColumns() []string {
	return s.Data.ScalarColumns()
}

// RoleOf returns the declared role for a column. Derived reduction columns
// inherit the role of their base variable; undeclared columns carry no role.
func (s *Study) RoleOf(column string) (types.Role, bool) {
	name := column
	if col, ok := s.Data.Column(column); ok && col.Derived {
		name = col.Base
	}
	v, ok := s.Definition.Lookup(name)
	if !ok {
		return "", false
	}
	return v.Role, true
}
