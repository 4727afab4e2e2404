package engine

import (
	"fmt"

	yaml "gopkg.in/yaml.v3"
)

type runTestsYAML struct {
	Valid   []yaml.Node       `yaml:"valid"`
	Invalid []InvalidTestCase `yaml:"invalid"`
}

// UnmarshalYAML decodes valid entries given either as plain strings or as
// records.
func (rt *RunTests) UnmarshalYAML(value *yaml.Node) error {
	var raw runTestsYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	valid := make([]ValidCase, 0, len(raw.Valid))
	for i, node := range raw.Valid {
		switch node.Kind {
		case yaml.ScalarNode:
			var code string
			if err := node.Decode(&code); err != nil {
				return fmt.Errorf("valid[%d]: %w", i, err)
			}
			valid = append(valid, Code(code))
		case yaml.MappingNode:
			var tc ValidTestCase
			if err := node.Decode(&tc); err != nil {
				return fmt.Errorf("valid[%d]: %w", i, err)
			}
			valid = append(valid, tc)
		default:
			return fmt.Errorf("valid[%d]: line %d: expected a string or a mapping", i, node.Line)
		}
	}

	rt.Valid = valid
	rt.Invalid = raw.Invalid
	return nil
}
