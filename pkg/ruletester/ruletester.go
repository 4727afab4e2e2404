// Package ruletester wraps the rule-testing engine for suites that use one of
// the module's parsers. It resolves the suite parser up front, points
// type-aware suites at a fixture file and rejects test cases that restate the
// suite parser.
package ruletester

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/require"

	"github.com/715d/ruletester/pkg/engine"
	"github.com/715d/ruletester/pkg/parser"
	"github.com/715d/ruletester/pkg/rule"

	// Register the allow-listed parsers.
	_ "github.com/715d/ruletester/pkg/parser/goparser"
	_ "github.com/715d/ruletester/pkg/parser/tmplparser"
)

// Fixture location used by type-aware suites, relative to the working
// directory. A file must exist there for type-aware parsing to resolve.
const (
	FixturesRootDir = "tests/fixtures"
	FixtureFilename = "file.ts"
)

// defaultLocator is shared so each package is looked up once per process.
var defaultLocator = parser.NewPackageLocator(parser.LocatorOptions{})

// Config configures a RuleTester.
type Config struct {
	// Parser must be parser.GoParserID or parser.TemplateParserID.
	Parser string `yaml:"parser" json:"parser"`

	// ParserOptions apply to every case. A non-empty Project makes the suite
	// type-aware.
	ParserOptions parser.Options `yaml:"parser_options,omitempty" json:"parser_options,omitempty"`

	// Settings are passed through to every rule pass.
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Engine runs normalized test cases.
type Engine interface {
	Run(t engine.T, name string, r *rule.Rule, tests engine.RunTests)
}

// TB is the part of testing.TB needed to construct a RuleTester.
type TB interface {
	require.TestingT
	Helper()
	Cleanup(func())
	Context() context.Context
}

// RuleTester runs rule test suites against one of the allow-listed parsers.
type RuleTester struct {
	engine          Engine
	parser          parser.Resolved
	defaultFilename string
}

type options struct {
	engine  func(engine.Config) Engine
	locator parser.Locator
	workDir string
}

// Option customizes New.
type Option func(*options)

// WithEngine replaces the engine built from the resolved configuration.
func WithEngine(newEngine func(engine.Config) Engine) Option {
	return func(o *options) {
		o.engine = newEngine
	}
}

// WithLocator sets how parser packages are found on disk.
func WithLocator(loc parser.Locator) Option {
	return func(o *options) {
		o.locator = loc
	}
}

// WithWorkingDir sets the directory fixture paths are computed from instead
// of the process working directory.
func WithWorkingDir(dir string) Option {
	return func(o *options) {
		o.workDir = dir
	}
}

// New creates a RuleTester for cfg and fails t if the parser cannot be
// resolved. Parser caches are cleared once t and its subtests complete.
func New(t TB, cfg Config, opts ...Option) *RuleTester {
	t.Helper()

	rt, err := newRuleTester(t.Context(), cfg, opts...)
	require.NoError(t, err)

	p := rt.parser.Parser
	t.Cleanup(func() {
		// Parsers may hold file handles between tests.
		parser.ClearCaches(p)
	})
	return rt
}

func newRuleTester(ctx context.Context, cfg Config, opts ...Option) (*RuleTester, error) {
	o := options{
		engine: func(c engine.Config) Engine {
			return engine.New(c)
		},
		locator: defaultLocator,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if !parser.IsValidParser(cfg.Parser) {
		return nil, fmt.Errorf("%w: %q is not one of %v", parser.ErrUnresolvedParser, cfg.Parser, parser.ValidParsers())
	}
	resolved, err := parser.Resolve(ctx, o.locator, cfg.Parser)
	if err != nil {
		return nil, err
	}

	rt := &RuleTester{
		engine: o.engine(engine.Config{
			Parser:        resolved,
			ParserOptions: cfg.ParserOptions,
			Settings:      cfg.Settings,
		}),
		parser: resolved,
	}

	if cfg.ParserOptions.TypeAware() {
		dir := o.workDir
		if dir == "" {
			if dir, err = os.Getwd(); err != nil {
				return nil, fmt.Errorf("working directory: %w", err)
			}
		}
		rt.defaultFilename = DefaultFilenameFor(dir, cfg.ParserOptions)
	}
	return rt, nil
}

// DefaultFilenameFor returns the fixture filename type-aware suites rooted at
// dir give to cases without one, or "" when opts are not type-aware.
func DefaultFilenameFor(dir string, opts parser.Options) string {
	if !opts.TypeAware() {
		return ""
	}
	return filepath.Join(dir, FixturesRootDir, FixtureFilename)
}

// DefaultFilename returns the fixture filename given to cases without one,
// or "" when the suite is not type-aware.
func (rt *RuleTester) DefaultFilename() string {
	return rt.defaultFilename
}

// Parser returns the resolved suite parser.
func (rt *RuleTester) Parser() parser.Resolved {
	return rt.parser
}

// Run normalizes tests and hands them to the engine. A case that sets its
// parser to an allow-listed one fails t before anything runs.
func (rt *RuleTester) Run(t engine.T, name string, r *rule.Rule, tests engine.RunTests) {
	t.Helper()

	normalized, err := Normalize(tests, rt.defaultFilename)
	require.NoError(t, err)

	rt.engine.Run(t, name, r, normalized)
}
