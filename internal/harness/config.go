// Package harness loads rule test suites from YAML and runs them through the
// rule tester.
package harness

import (
	"github.com/715d/ruletester/pkg/engine"
	"github.com/715d/ruletester/pkg/ruletester"
)

// SuiteFile is the name of the file describing a suite inside its directory.
const SuiteFile = "suite.yaml"

// Suite represents a single rule test suite.
type Suite struct {
	// Dir is the directory containing the suite, relative to the testdata
	// root when one was given.
	Dir string `yaml:"-" json:"dir"`

	// Path is the absolute directory containing the suite.
	Path string `yaml:"-" json:"-"`

	// Name is the suite name used for subtests. Defaults to Dir.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Rule names the rule under test.
	Rule string `yaml:"rule" json:"rule"`

	// Config is the rule tester configuration. A relative project is
	// resolved against the suite directory.
	Config ruletester.Config `yaml:",inline" json:"config"`

	// Tests are the suite's valid and invalid cases.
	Tests engine.RunTests `yaml:"tests" json:"tests"`

	// Skip disables the suite.
	Skip bool `yaml:"skip,omitempty" json:"skip,omitempty"`

	// Reason explains why the suite is skipped.
	Reason string `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// DisplayName returns Name, or Dir when no name is set.
func (s *Suite) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Dir
}
