// Package schema parses problem-definition documents into typed variable
// records. The input is the optimizer's YAML problem description: three
// ordered lists keyed design_vars, constraints, objectives, each entry a
// [name, attributes] pair.
package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/pkg/types"
)

// roleKeys maps top-level document keys to variable roles, in the order the
// three lists are assembled.
var roleKeys = []struct {
	key  string
	role types.Role
}{
	{"design_vars", types.RoleDesignVar},
	{"constraints", types.RoleConstraint},
	{"objectives", types.RoleObjective},
}

// rawAttrs is the attribute mapping of one schema entry. Val carries the
// optimizer's example value and is not used by any computation.
type rawAttrs struct {
	Lower  *float64  `yaml:"lower"`
	Upper  *float64  `yaml:"upper"`
	Equals *float64  `yaml:"equals"`
	Size   *int      `yaml:"size"`
	Val    yaml.Node `yaml:"val"`
}

// Parse parses a problem-definition document into a Definition. The parse is
// pure: no I/O, no partial results on failure.
//
// Every entry must declare a positive size. Array-ness is a declared schema
// property, never inferred from table shapes at use time.
func Parse(data []byte) (*types.Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCategorySchema, errors.CodeMalformedVariable,
			"problem definition is not valid YAML", err)
	}

	root := documentRoot(&doc)
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, errors.NewSchemaError(errors.CodeMalformedVariable,
			"problem definition must be a mapping")
	}

	lists := make(map[string][]types.VariableSpec, len(roleKeys))
	seen := make(map[string]types.Role)

	for _, rk := range roleKeys {
		node, ok := mappingValue(root, rk.key)
		if !ok {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeMissingRoleKey,
				"missing required key %q", rk.key)
		}

		specs, err := parseRoleList(node, rk.key, rk.role, seen)
		if err != nil {
			return nil, err
		}
		lists[rk.key] = specs
	}

	return types.NewDefinition(lists["design_vars"], lists["constraints"], lists["objectives"]), nil
}

// parseRoleList parses one role's entry sequence. A null node counts as an
// empty list; any other non-sequence kind is malformed.
func parseRoleList(node *yaml.Node, key string, role types.Role, seen map[string]types.Role) ([]types.VariableSpec, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeMalformedVariable,
			"%s must be a sequence of variable entries", key)
	}

	specs := make([]types.VariableSpec, 0, len(node.Content))
	for i, entry := range node.Content {
		spec, err := parseEntry(entry, role)
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				return nil, e.WithDetails(map[string]interface{}{"role": string(role), "index": i})
			}
			return nil, err
		}

		if prev, dup := seen[spec.Name]; dup {
			return nil, errors.Newf(errors.ErrCategorySchema, errors.CodeDuplicateName,
				"variable %q declared as both %s and %s", spec.Name, prev, role)
		}
		seen[spec.Name] = role
		specs = append(specs, spec)
	}
	return specs, nil
}

// parseEntry parses one [name, attributes] entry into a VariableSpec.
func parseEntry(node *yaml.Node, role types.Role) (types.VariableSpec, error) {
	var zero types.VariableSpec

	if node.Kind != yaml.SequenceNode {
		return zero, errors.NewSchemaError(errors.CodeMalformedVariable,
			"entry must be a [name, attributes] pair")
	}
	if len(node.Content) != 2 {
		return zero, errors.Newf(errors.ErrCategorySchema, errors.CodeMalformedVariable,
			"entry must have exactly 2 elements, got %d", len(node.Content))
	}

	nameNode, attrsNode := node.Content[0], node.Content[1]
	if nameNode.Kind != yaml.ScalarNode || nameNode.Value == "" {
		return zero, errors.NewSchemaError(errors.CodeMalformedVariable,
			"entry name must be a non-empty string")
	}
	name := nameNode.Value

	if attrsNode.Kind != yaml.MappingNode {
		return zero, errors.Newf(errors.ErrCategorySchema, errors.CodeMalformedVariable,
			"attributes of %q must be a mapping", name)
	}

	var attrs rawAttrs
	if err := attrsNode.Decode(&attrs); err != nil {
		return zero, errors.Wrap(errors.ErrCategorySchema, errors.CodeMalformedVariable,
			fmt.Sprintf("attributes of %q are malformed", name), err)
	}

	if attrs.Size == nil {
		return zero, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSize,
			"variable %q does not declare size", name)
	}
	if *attrs.Size <= 0 {
		return zero, errors.Newf(errors.ErrCategorySchema, errors.CodeInvalidSize,
			"variable %q has non-positive size %d", name, *attrs.Size)
	}

	return types.VariableSpec{
		Name:       name,
		Role:       role,
		LowerBound: attrs.Lower,
		UpperBound: attrs.Upper,
		Equals:     attrs.Equals,
		Size:       *attrs.Size,
	}, nil
}

// documentRoot unwraps the document node yaml.Unmarshal produces.
func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return doc
}

// mappingValue finds the value node for key in a mapping node.
func mappingValue(m *yaml.Node, key string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1], true
		}
	}
	return nil, false
}
