package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/ruletester/internal/rules"
	"github.com/715d/ruletester/pkg/engine"
	"github.com/715d/ruletester/pkg/parser"
	"github.com/715d/ruletester/pkg/ruletester"
)

// ErrUnknownRule is returned for suites naming a rule that does not exist.
var ErrUnknownRule = errors.New("unknown rule")

// TestHarness manages suite execution.
type TestHarness struct {
	// opts are applied to every rule tester the harness creates
	opts []ruletester.Option
}

// NewHarness creates a new test harness.
func NewHarness(opts ...ruletester.Option) *TestHarness {
	return &TestHarness{opts: opts}
}

// Run executes a suite. Fixture paths of type-aware suites are computed from
// the suite directory.
func (h *TestHarness) Run(t *testing.T, s *Suite) {
	t.Helper()

	r, ok := rules.ByName(s.Rule)
	require.True(t, ok, "suite %s: %v %q", s.Dir, ErrUnknownRule, s.Rule)

	opts := append([]ruletester.Option{ruletester.WithWorkingDir(s.Path)}, h.opts...)
	rt := ruletester.New(t, s.Config, opts...)

	slog.Debug("running suite", "suite", s.DisplayName(), "rule", s.Rule, "default_filename", rt.DefaultFilename())
	rt.Run(t, s.DisplayName(), r, s.Tests)
}

// CheckResult represents the result of checking a suite without running it.
type CheckResult struct {
	// Suite is the suite that was checked.
	Suite *Suite `json:"suite"`

	// DefaultFilename is the fixture filename of type-aware suites.
	DefaultFilename string `json:"default_filename,omitempty"`

	// Normalized are the cases as the engine would receive them.
	Normalized engine.RunTests `json:"normalized"`

	// Err is the configuration problem found, if any.
	Err error `json:"-"`
}

// Success reports whether the suite passed the check.
func (r *CheckResult) Success() bool {
	return r.Err == nil
}

// Check validates s the way the rule tester would before running it: the
// rule must exist, the parser must be allow-listed and no case may restate
// an allow-listed parser.
func Check(s *Suite) *CheckResult {
	res := &CheckResult{Suite: s}

	if _, ok := rules.ByName(s.Rule); !ok {
		res.Err = fmt.Errorf("%w %q", ErrUnknownRule, s.Rule)
		return res
	}
	if !parser.IsValidParser(s.Config.Parser) {
		res.Err = fmt.Errorf("%w: %q is not one of %v", parser.ErrUnresolvedParser, s.Config.Parser, parser.ValidParsers())
		return res
	}

	res.DefaultFilename = ruletester.DefaultFilenameFor(s.Path, s.Config.ParserOptions)
	normalized, err := ruletester.Normalize(s.Tests, res.DefaultFilename)
	if err != nil {
		res.Err = err
		return res
	}
	res.Normalized = normalized
	return res
}
