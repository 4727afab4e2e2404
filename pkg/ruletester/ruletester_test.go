package ruletester

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/ruletester/pkg/engine"
	"github.com/715d/ruletester/pkg/parser"
	"github.com/715d/ruletester/pkg/parser/goparser"
	"github.com/715d/ruletester/pkg/rule"
)

var sampleRule = &rule.Rule{
	Name: "sample",
	Run:  func(*rule.Pass) error { return nil },
}

// fakeLocator places every parser under a temporary directory so tests do
// not invoke the go command.
func fakeLocator(t *testing.T) parser.Locator {
	t.Helper()
	root := t.TempDir()
	return parser.LocatorFunc(func(_ context.Context, id string) (string, error) {
		return filepath.Join(root, filepath.Base(id)), nil
	})
}

type delegatedRun struct {
	name  string
	rule  *rule.Rule
	tests engine.RunTests
}

type fakeEngine struct {
	cfg  engine.Config
	runs []delegatedRun
}

func (f *fakeEngine) Run(_ engine.T, name string, r *rule.Rule, tests engine.RunTests) {
	f.runs = append(f.runs, delegatedRun{name: name, rule: r, tests: tests})
}

func newWithFakeEngine(t *testing.T, cfg Config, opts ...Option) (*RuleTester, *fakeEngine) {
	t.Helper()
	fe := &fakeEngine{}
	opts = append([]Option{
		WithLocator(fakeLocator(t)),
		WithEngine(func(c engine.Config) Engine {
			fe.cfg = c
			return fe
		}),
	}, opts...)
	return New(t, cfg, opts...), fe
}

// failingT records assertion failures and stops the calling goroutine on
// FailNow, like *testing.T does.
type failingT struct {
	*testing.T
	failures []string
}

func (f *failingT) Errorf(format string, args ...any) {
	f.failures = append(f.failures, fmt.Sprintf(format, args...))
}

func (f *failingT) FailNow() {
	runtime.Goexit()
}

func runCapturingFailures(t *testing.T, fn func(ft *failingT)) []string {
	t.Helper()
	ft := &failingT{T: t}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ft)
	}()
	<-done
	return ft.failures
}

func TestNew_ResolvesParser(t *testing.T) {
	for _, id := range parser.ValidParsers() {
		t.Run(filepath.Base(id), func(t *testing.T) {
			rt, fe := newWithFakeEngine(t, Config{Parser: id})

			require.Equal(t, id, rt.Parser().ID)
			require.True(t, filepath.IsAbs(rt.Parser().Dir))
			require.NotNil(t, rt.Parser().Parser)
			require.Equal(t, rt.Parser(), fe.cfg.Parser)
		})
	}
}

func TestNew_PassesConfigThrough(t *testing.T) {
	settings := map[string]any{"maxDepth": 3}
	_, fe := newWithFakeEngine(t, Config{
		Parser:        parser.TemplateParserID,
		ParserOptions: parser.Options{Extra: map[string]any{"funcs": []string{"upper"}}},
		Settings:      settings,
	})

	require.Equal(t, settings, fe.cfg.Settings)
	require.Equal(t, []string{"upper"}, fe.cfg.ParserOptions.Extra["funcs"])
}

func TestNewRuleTester_ResolutionErrors(t *testing.T) {
	tests := []struct {
		name    string
		parser  string
		locator parser.Locator
	}{
		{name: "empty parser", parser: ""},
		{name: "not allow-listed", parser: "example.com/other/parser"},
		{
			name:   "locator failure",
			parser: parser.GoParserID,
			locator: parser.LocatorFunc(func(context.Context, string) (string, error) {
				return "", errors.New("cannot find module providing package")
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := tt.locator
			if loc == nil {
				loc = fakeLocator(t)
			}
			_, err := newRuleTester(t.Context(), Config{Parser: tt.parser}, WithLocator(loc))
			require.ErrorIs(t, err, parser.ErrUnresolvedParser)
		})
	}
}

func TestNew_DefaultFilename(t *testing.T) {
	t.Run("not type-aware", func(t *testing.T) {
		rt, _ := newWithFakeEngine(t, Config{Parser: parser.GoParserID})
		require.Empty(t, rt.DefaultFilename())
	})

	t.Run("type-aware", func(t *testing.T) {
		rt, _ := newWithFakeEngine(t, Config{
			Parser:        parser.GoParserID,
			ParserOptions: parser.Options{Project: "./tests/fixtures"},
		}, WithWorkingDir("/work"))
		require.Equal(t, filepath.Join("/work", "tests", "fixtures", "file.ts"), rt.DefaultFilename())
	})

	t.Run("process working directory", func(t *testing.T) {
		cwd, err := os.Getwd()
		require.NoError(t, err)

		rt, _ := newWithFakeEngine(t, Config{
			Parser:        parser.GoParserID,
			ParserOptions: parser.Options{Project: "tests/fixtures"},
		})
		require.Equal(t, filepath.Join(cwd, "tests/fixtures/file.ts"), rt.DefaultFilename())
	})
}

func TestRun_WithoutProject(t *testing.T) {
	rt, fe := newWithFakeEngine(t, Config{Parser: parser.GoParserID})

	rt.Run(t, "no-project", sampleRule, engine.RunTests{
		Valid: []engine.ValidCase{engine.Code("const x = 1;")},
	})

	require.Len(t, fe.runs, 1)
	run := fe.runs[0]
	require.Equal(t, "no-project", run.name)
	require.Same(t, sampleRule, run.rule)
	require.Len(t, run.tests.Valid, 1)

	tc := engine.AsTestCase(run.tests.Valid[0])
	assert.Equal(t, "const x = 1;", tc.Code)
	assert.Empty(t, tc.Filename)
}

func TestRun_WithProject(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	rt, fe := newWithFakeEngine(t, Config{
		Parser:        parser.GoParserID,
		ParserOptions: parser.Options{Project: "tests/fixtures"},
	})

	rt.Run(t, "project", sampleRule, engine.RunTests{
		Valid: []engine.ValidCase{engine.Code("const x: number = 1;")},
	})

	require.Len(t, fe.runs, 1)
	require.Equal(t, []engine.ValidCase{
		engine.ValidTestCase{
			Code:     "const x: number = 1;",
			Filename: filepath.Join(cwd, "tests", "fixtures", "file.ts"),
		},
	}, fe.runs[0].tests.Valid)
}

func TestRun_ParserOverrideStopsBeforeDelegation(t *testing.T) {
	for _, id := range parser.ValidParsers() {
		t.Run(filepath.Base(id), func(t *testing.T) {
			rt, fe := newWithFakeEngine(t, Config{Parser: parser.GoParserID})

			failures := runCapturingFailures(t, func(ft *failingT) {
				rt.Run(ft, "override", sampleRule, engine.RunTests{
					Valid: []engine.ValidCase{engine.ValidTestCase{Code: "x", Parser: id}},
				})
			})

			require.Len(t, failures, 1)
			require.Contains(t, failures[0], parser.GoParserID)
			require.Contains(t, failures[0], parser.TemplateParserID)
			require.Empty(t, fe.runs, "engine must not be reached")
		})
	}
}

// cleanupRecorder counts registered cleanups instead of running them.
type cleanupRecorder struct {
	*testing.T
	cleanups []func()
}

func (c *cleanupRecorder) Cleanup(f func()) {
	c.cleanups = append(c.cleanups, f)
}

func TestNew_RegistersOneCleanup(t *testing.T) {
	rec := &cleanupRecorder{T: t}
	New(rec, Config{Parser: parser.TemplateParserID}, WithLocator(fakeLocator(t)))
	require.Len(t, rec.cleanups, 1)

	require.NotPanics(t, rec.cleanups[0], "parsers without caches are skipped")
}

func TestNew_ClearsParserCachesAfterSuite(t *testing.T) {
	p, ok := parser.Lookup(parser.GoParserID)
	require.True(t, ok)
	gp := p.(*goparser.Parser)

	src := []byte("package teardown\n")
	before, err := gp.ParseFile("teardown.go", src, parser.Options{})
	require.NoError(t, err)

	passed := t.Run("suite", func(t *testing.T) {
		New(t, Config{Parser: parser.GoParserID}, WithLocator(fakeLocator(t)))

		during, err := gp.ParseFile("teardown.go", src, parser.Options{})
		require.NoError(t, err)
		require.Same(t, before, during, "caches must survive until the suite ends")
	})
	require.True(t, passed)

	after, err := gp.ParseFile("teardown.go", src, parser.Options{})
	require.NoError(t, err)
	require.NotSame(t, before, after, "caches should be cleared after the suite")
}

func TestNew_TeardownWithoutCacheClearer(t *testing.T) {
	passed := t.Run("suite", func(t *testing.T) {
		rt, _ := newWithFakeEngine(t, Config{Parser: parser.TemplateParserID})
		rt.Run(t, "templates", sampleRule, engine.RunTests{
			Valid: []engine.ValidCase{engine.Code("{{.}}")},
		})
	})
	require.True(t, passed)
}

func TestRun_RealEngine(t *testing.T) {
	rt := New(t, Config{Parser: parser.GoParserID}, WithLocator(fakeLocator(t)))

	rt.Run(t, "sample", sampleRule, engine.RunTests{
		Valid: []engine.ValidCase{
			engine.Code("package p\n"),
			engine.ValidTestCase{Code: "{{.}}", Parser: "example.com/ruletester/ruletester-test-parser"},
		},
	})
}

type passthroughParser struct{}

func (passthroughParser) Parse(_ string, src []byte, _ parser.Options) (any, error) {
	return string(src), nil
}

func init() {
	parser.Register("example.com/ruletester/ruletester-test-parser", passthroughParser{})
}
