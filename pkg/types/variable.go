// Package types provides core data types for OptiView.
package types

import "strings"

// Role identifies how a declared variable participates in the optimization.
type Role string

const (
	// RoleDesignVar marks a variable the optimizer is free to change.
	RoleDesignVar Role = "design_var"

	// RoleConstraint marks a variable bounded by the problem definition.
	RoleConstraint Role = "constraint"

	// RoleObjective marks a variable the optimizer minimizes or maximizes.
	RoleObjective Role = "objective"
)

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDesignVar, RoleConstraint, RoleObjective:
		return Role(s), nil
	}
	return "", ErrInvalidRole
}

// VariableSpec describes one declared variable from the problem definition.
type VariableSpec struct {
	// Name is the unique key, matched verbatim against table column headers
	Name string `json:"name" yaml:"name"`

	// Role is the variable's category in the problem definition
	Role Role `json:"role" yaml:"role"`

	// LowerBound is the declared lower bound; nil means unbounded below
	LowerBound *float64 `json:"lower_bound,omitempty" yaml:"lower_bound,omitempty"`

	// UpperBound is the declared upper bound; nil means unbounded above
	UpperBound *float64 `json:"upper_bound,omitempty" yaml:"upper_bound,omitempty"`

	// Equals pins an equality constraint to a single value
	Equals *float64 `json:"equals,omitempty" yaml:"equals,omitempty"`

	// Size is the declared width: 1 for a scalar, >1 for a fixed-length array
	Size int `json:"size" yaml:"size"`
}

// IsArray reports whether the variable is array-valued.
func (v VariableSpec) IsArray() bool { return v.Size > 1 }

// DisplayName returns the trailing segment of a dotted name. Solver output
// uses fully qualified names like "floatingse.constr_draft_heel_margin";
// labels want just the last piece.
func (v VariableSpec) DisplayName() string {
	if i := strings.LastIndex(v.Name, "."); i >= 0 {
		return v.Name[i+1:]
	}
	return v.Name
}

// Definition is a parsed problem definition: the three role lists in
// declaration order. Built once at load time and never mutated; a schema
// reload replaces the whole value.
type Definition struct {
	// DesignVars are the declared design variables
	DesignVars []VariableSpec `json:"design_vars"`

	// Constraints are the declared constraints
	Constraints []VariableSpec `json:"constraints"`

	// Objectives are the declared objectives
	Objectives []VariableSpec `json:"objectives"`

	byName map[string]*VariableSpec
}

// NewDefinition assembles a Definition and its by-name index. Role collision
// checks belong to the schema parser, not here.
func NewDefinition(designVars, constraints, objectives []VariableSpec) *Definition {
	d := &Definition{
		DesignVars:  designVars,
		Constraints: constraints,
		Objectives:  objectives,
	}
	d.byName = make(map[string]*VariableSpec, len(designVars)+len(constraints)+len(objectives))
	for _, list := range [][]VariableSpec{d.DesignVars, d.Constraints, d.Objectives} {
		for i := range list {
			d.byName[list[i].Name] = &list[i]
		}
	}
	return d
}

// Lookup returns the variable declared under name. Falls back to a linear
// scan when the index is absent (e.g. a Definition decoded from JSON).
func (d *Definition) Lookup(name string) (*VariableSpec, bool) {
	if d.byName != nil {
		v, ok := d.byName[name]
		return v, ok
	}
	for _, list := range [][]VariableSpec{d.DesignVars, d.Constraints, d.Objectives} {
		for i := range list {
			if list[i].Name == name {
				return &list[i], true
			}
		}
	}
	return nil, false
}

// All returns every declared variable in declaration order: design variables,
// then constraints, then objectives.
func (d *Definition) All() []VariableSpec {
	out := make([]VariableSpec, 0, len(d.DesignVars)+len(d.Constraints)+len(d.Objectives))
	out = append(out, d.DesignVars...)
	out = append(out, d.Constraints...)
	out = append(out, d.Objectives...)
	return out
}

// Count returns the total number of declared variables.
func (d *Definition) Count() int {
	return len(d.DesignVars) + len(d.Constraints) + len(d.Objectives)
}
