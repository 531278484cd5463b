package types

import (
	"fmt"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// StrategySpec defines how a job fans out into matrix legs.
type StrategySpec struct {
	// Matrix maps leg names to their variable assignments
	Matrix MatrixSpec `json:"matrix,omitempty" yaml:"matrix,omitempty"`

	// MaxParallel bounds concurrently running legs; zero means unbounded
	MaxParallel int `json:"maxParallel,omitempty" yaml:"maxParallel,omitempty"`
}

// MatrixSpec is an ordered list of matrix legs. Order follows the YAML
// document so runs execute legs in the order the author wrote them.
type MatrixSpec struct {
	Legs []MatrixLeg `json:"legs" yaml:"legs"`
}

// MatrixLeg is one named cell of a matrix with its variable assignments.
type MatrixLeg struct {
	// Leg name, unique within the matrix (e.g. "linux", "mac", "windows")
	Name string `json:"name" yaml:"name"`

	// Variables set for this leg, overriding job and pipeline variables
	Variables map[string]string `json:"variables" yaml:"variables"`
}

// UnmarshalYAML decodes the mapping form while preserving leg order.
// Scalar values keep their literal text, so python: 3.10 stays "3.10"
// instead of collapsing to the float 3.1.
func (m *MatrixSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("matrix must be a mapping of leg names at line %d", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]
		if val.Kind != yaml.MappingNode {
			return fmt.Errorf("matrix leg '%s' must be a mapping at line %d", key.Value, val.Line)
		}

		leg := MatrixLeg{
			Name:      key.Value,
			Variables: make(map[string]string, len(val.Content)/2),
		}
		for j := 0; j+1 < len(val.Content); j += 2 {
			varKey := val.Content[j]
			varVal := val.Content[j+1]
			value, err := scalarText(varVal)
			if err != nil {
				return fmt.Errorf("matrix leg '%s' variable '%s' at line %d: %w", key.Value, varKey.Value, varVal.Line, err)
			}
			leg.Variables[varKey.Value] = value
		}
		m.Legs = append(m.Legs, leg)
	}

	return nil
}

// MarshalYAML emits the mapping form the parser accepts.
func (m MatrixSpec) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, leg := range m.Legs {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: leg.Name}
		valNode := &yaml.Node{}
		if err := valNode.Encode(leg.Variables); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// scalarText converts a scalar YAML node into its string form. Numeric
// and boolean scalars keep the text as written; anything else goes
// through the usual string conversion.
func scalarText(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("expected a scalar value")
	}

	switch node.Tag {
	case "!!int", "!!float", "!!bool", "!!str":
		return node.Value, nil
	case "!!null":
		return "", nil
	default:
		var v interface{}
		if err := node.Decode(&v); err != nil {
			return "", err
		}
		return cast.ToStringE(v)
	}
}

// Validate validates the strategy specification.
func (s *StrategySpec) Validate() error {
	if s.MaxParallel < 0 {
		return NewValidationError("maxParallel cannot be negative")
	}

	seen := make(map[string]bool)
	for i := range s.Matrix.Legs {
		leg := &s.Matrix.Legs[i]
		if leg.Name == "" {
			return NewValidationError("matrix leg name is required")
		}
		if seen[leg.Name] {
			return NewValidationError(fmt.Sprintf("duplicate matrix leg %q", leg.Name))
		}
		seen[leg.Name] = true
	}

	return nil
}

// IsEmpty reports whether the strategy declares no matrix legs.
func (s *StrategySpec) IsEmpty() bool {
	return s == nil || len(s.Matrix.Legs) == 0
}
