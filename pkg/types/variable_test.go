package types

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"design_var", RoleDesignVar, false},
		{"constraint", RoleConstraint, false},
		{"objective", RoleObjective, false},
		{"axis", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidRole) {
				t.Errorf("ParseRole(%q): err = %v, want ErrInvalidRole", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRole(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseSense(t *testing.T) {
	cases := []struct {
		in      string
		want    Sense
		wantErr bool
	}{
		{"minimize", SenseMinimize, false},
		{"min", SenseMinimize, false},
		{"maximize", SenseMaximize, false},
		{"max", SenseMaximize, false},
		{"MAX", "", true},
		{"descending", "", true},
	}

	for _, tc := range cases {
		got, err := ParseSense(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidSense) {
				t.Errorf("ParseSense(%q): err = %v, want ErrInvalidSense", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSense(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSense(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestObjectiveMinimizeDefault(t *testing.T) {
	// An unset sense counts as minimize.
	if !(Objective{Name: "cost"}).Minimize() {
		t.Error("empty sense should minimize")
	}
	if !(Objective{Name: "cost", Sense: SenseMinimize}).Minimize() {
		t.Error("explicit minimize should minimize")
	}
	if (Objective{Name: "mass", Sense: SenseMaximize}).Minimize() {
		t.Error("maximize should not minimize")
	}
}

func TestVariableSpecDisplayName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"floatingse.constr_draft_heel_margin", "constr_draft_heel_margin"},
		{"a.b.c", "c"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		v := VariableSpec{Name: tc.name}
		if got := v.DisplayName(); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDefinitionLookup(t *testing.T) {
	def := NewDefinition(
		[]VariableSpec{{Name: "rotor.chord", Role: RoleDesignVar, Size: 3}},
		[]VariableSpec{{Name: "tip.deflection", Role: RoleConstraint, Size: 1}},
		[]VariableSpec{{Name: "turbine.cost", Role: RoleObjective, Size: 1}},
	)

	v, ok := def.Lookup("tip.deflection")
	if !ok {
		t.Fatal("expected to find tip.deflection")
	}
	if v.Role != RoleConstraint {
		t.Errorf("role = %q, want constraint", v.Role)
	}
	if _, ok := def.Lookup("unknown"); ok {
		t.Error("expected lookup miss for unknown name")
	}

	if got := def.Count(); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
	all := def.All()
	if len(all) != 3 {
		t.Fatalf("All() returned %d specs, want 3", len(all))
	}
	// Declaration order: design vars, constraints, objectives.
	if all[0].Name != "rotor.chord" || all[2].Name != "turbine.cost" {
		t.Errorf("All() order = [%s %s %s]", all[0].Name, all[1].Name, all[2].Name)
	}
}

func TestDefinitionLookupWithoutIndex(t *testing.T) {
	// A Definition decoded from JSON has no by-name index; Lookup falls back
	// to scanning the role lists.
	def := &Definition{
		Objectives: []VariableSpec{{Name: "turbine.cost", Role: RoleObjective, Size: 1}},
	}
	v, ok := def.Lookup("turbine.cost")
	if !ok || v.Role != RoleObjective {
		t.Fatalf("fallback lookup failed: ok=%v v=%+v", ok, v)
	}
}
