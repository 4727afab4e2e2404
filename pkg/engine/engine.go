// Package engine runs lint rule test cases as Go subtests. Valid cases must
// produce no findings; invalid cases must produce exactly the expected ones.
package engine

import (
	"fmt"
	"go/ast"
	"log/slog"
	"maps"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/ruletester/pkg/parser"
	"github.com/715d/ruletester/pkg/parser/goparser"
	"github.com/715d/ruletester/pkg/rule"
	"github.com/715d/ruletester/pkg/suppress"
)

// T is the part of *testing.T the engine needs.
type T interface {
	require.TestingT
	Helper()
	Run(name string, f func(t *testing.T)) bool
}

// Config configures an Engine.
type Config struct {
	// Parser is the suite parser, used unless a case overrides it.
	Parser parser.Resolved

	// ParserOptions apply to every case without its own options.
	ParserOptions parser.Options

	// Settings are shared with every rule pass.
	Settings map[string]any
}

// Engine runs rule test suites.
type Engine struct {
	cfg Config
}

// New creates an engine. cfg.Parser must hold a parser implementation.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run runs every case of tests against r in a subtest called name.
func (e *Engine) Run(t T, name string, r *rule.Rule, tests RunTests) {
	t.Helper()

	valid := make([]ValidTestCase, 0, len(tests.Valid))
	for _, c := range tests.Valid {
		valid = append(valid, AsTestCase(c))
	}
	only := hasOnly(valid, tests.Invalid)

	slog.Debug("running rule tests",
		"suite", name,
		"rule", r.Name,
		"parser", e.cfg.Parser.ID,
		"valid", len(valid),
		"invalid", len(tests.Invalid))

	t.Run(name, func(t *testing.T) {
		if len(valid) > 0 {
			t.Run("valid", func(t *testing.T) {
				for i, tc := range valid {
					t.Run(caseName(tc, i), func(t *testing.T) {
						if only && !tc.Only {
							t.Skip("skipped: another case sets only")
						}
						e.runValid(t, r, tc)
					})
				}
			})
		}
		if len(tests.Invalid) > 0 {
			t.Run("invalid", func(t *testing.T) {
				for i, tc := range tests.Invalid {
					t.Run(caseName(tc.ValidTestCase, i), func(t *testing.T) {
						if only && !tc.Only {
							t.Skip("skipped: another case sets only")
						}
						e.runInvalid(t, r, tc)
					})
				}
			})
		}
	})
}

func (e *Engine) runValid(t require.TestingT, r *rule.Rule, tc ValidTestCase) {
	diags, err := e.Check(r, tc)
	require.NoError(t, err)
	assert.Empty(t, diags, "should have no errors but had %d:\n%s", len(diags), formatDiagnostics(diags))
}

func (e *Engine) runInvalid(t require.TestingT, r *rule.Rule, tc InvalidTestCase) {
	require.NotEmpty(t, tc.Errors, "invalid cases must specify at least one expected error")

	diags, err := e.Check(r, tc.ValidTestCase)
	require.NoError(t, err)
	require.Len(t, diags, len(tc.Errors), "should have %d errors but had %d:\n%s",
		len(tc.Errors), len(diags), formatDiagnostics(diags))

	for i, want := range tc.Errors {
		got := diags[i]
		if !assert.True(t, want.MessageID != "" || want.Message != "",
			"error %d must specify a message or a message id", i) {
			continue
		}

		if want.MessageID != "" {
			if r.Messages != nil {
				_, ok := r.Messages[want.MessageID]
				assert.True(t, ok, "error %d: rule %s has no message id %q", i, r.Name, want.MessageID)
			}
			assert.Equal(t, want.MessageID, got.MessageID, "error %d: message id", i)
		}
		if want.Message != "" {
			assert.Equal(t, want.Message, got.Message, "error %d: message", i)
		}
		if want.Line != 0 {
			assert.Equal(t, want.Line, got.Line, "error %d: line", i)
		}
		if want.Column != 0 {
			assert.Equal(t, want.Column, got.Column, "error %d: column", i)
		}
		if want.EndLine != 0 {
			assert.Equal(t, want.EndLine, got.EndLine, "error %d: end line", i)
		}
		if want.EndColumn != 0 {
			assert.Equal(t, want.EndColumn, got.EndColumn, "error %d: end column", i)
		}
	}
}

// Check parses tc and runs r over it, returning unsuppressed findings.
func (e *Engine) Check(r *rule.Rule, tc ValidTestCase) ([]rule.Diagnostic, error) {
	p := e.cfg.Parser.Parser
	if tc.Parser != "" {
		override, ok := parser.Lookup(tc.Parser)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not registered", parser.ErrUnresolvedParser, tc.Parser)
		}
		p = override
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no parser configured", parser.ErrUnresolvedParser)
	}

	opts := e.cfg.ParserOptions
	if tc.ParserOptions != nil {
		opts = *tc.ParserOptions
	}

	src := []byte(tc.Code)
	file, err := p.Parse(tc.Filename, src, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing test case: %w", err)
	}

	settings := maps.Clone(e.cfg.Settings)
	if len(tc.Settings) > 0 {
		if settings == nil {
			settings = make(map[string]any, len(tc.Settings))
		}
		maps.Copy(settings, tc.Settings)
	}

	diags, err := rule.Check(r, &rule.Pass{
		Filename: tc.Filename,
		Source:   src,
		File:     file,
		Options:  tc.Options,
		Settings: settings,
	})
	if err != nil {
		return nil, err
	}
	return filterSuppressed(r.Name, file, diags)
}

// filterSuppressed drops findings on lines carrying a nolint or lint:ignore
// directive for the rule. Only Go sources have directives.
func filterSuppressed(ruleName string, file any, diags []rule.Diagnostic) ([]rule.Diagnostic, error) {
	gf, ok := file.(*goparser.File)
	if !ok || len(diags) == 0 {
		return diags, nil
	}

	checker := suppress.NewChecker(ruleName)
	if err := checker.Load(gf.Fset, []*ast.File{gf.AST}); err != nil {
		return nil, fmt.Errorf("loading suppressions: %w", err)
	}

	kept := diags[:0:0]
	for _, d := range diags {
		if suppressed, reason := checker.IsSuppressed(d.Line); suppressed {
			slog.Debug("finding suppressed", "rule", ruleName, "line", d.Line, "reason", reason)
			continue
		}
		kept = append(kept, d)
	}
	return kept, nil
}

func hasOnly(valid []ValidTestCase, invalid []InvalidTestCase) bool {
	for _, tc := range valid {
		if tc.Only {
			return true
		}
	}
	for _, tc := range invalid {
		if tc.Only {
			return true
		}
	}
	return false
}

func formatDiagnostics(diags []rule.Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		b.WriteString("  ")
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}
