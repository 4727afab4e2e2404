package engine

import (
	"fmt"
	"go/ast"
	"runtime"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/ruletester/pkg/parser"
	"github.com/715d/ruletester/pkg/parser/goparser"
	_ "github.com/715d/ruletester/pkg/parser/tmplparser"
	"github.com/715d/ruletester/pkg/rule"
)

// noPanic reports calls to the panic builtin.
var noPanic = &rule.Rule{
	Name:     "nopanic",
	Messages: map[string]string{"noPanic": "do not call panic"},
	Run: func(pass *rule.Pass) error {
		f, ok := pass.File.(*goparser.File)
		if !ok {
			return fmt.Errorf("unexpected file %T", pass.File)
		}
		ast.Inspect(f.AST, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			if id, ok := call.Fun.(*ast.Ident); ok && id.Name == "panic" {
				pos := f.Fset.Position(call.Pos())
				pass.Reportf("noPanic", pos.Line, pos.Column)
			}
			return true
		})
		return nil
	},
}

func goEngine(t *testing.T) *Engine {
	t.Helper()
	p, ok := parser.Lookup(parser.GoParserID)
	require.True(t, ok)
	return New(Config{Parser: parser.Resolved{ID: parser.GoParserID, Dir: t.TempDir(), Parser: p}})
}

// failureRecorder captures assertion failures instead of failing the test.
type failureRecorder struct {
	mu       sync.Mutex
	messages []string
	stopped  bool
}

func (r *failureRecorder) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func (r *failureRecorder) FailNow() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	runtime.Goexit()
}

func record(fn func(t require.TestingT)) *failureRecorder {
	rec := &failureRecorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(rec)
	}()
	<-done
	return rec
}

func TestRun_Passing(t *testing.T) {
	goEngine(t).Run(t, "nopanic", noPanic, RunTests{
		Valid: []ValidCase{
			Code("package p\n\nfunc f() {}\n"),
			ValidTestCase{Name: "recover only", Code: "package p\n\nfunc f() { recover() }\n"},
		},
		Invalid: []InvalidTestCase{
			{
				ValidTestCase: ValidTestCase{Code: "package p\n\nfunc f() {\n\tpanic(1)\n}\n"},
				Errors:        []TestCaseError{{MessageID: "noPanic", Line: 4, Column: 2}},
			},
			{
				ValidTestCase: ValidTestCase{Code: "package p\n\nfunc f() { panic(1); panic(2) }\n"},
				Errors: []TestCaseError{
					{Message: "do not call panic", Column: 12},
					{MessageID: "noPanic", Column: 22},
				},
			},
		},
	})
}

func TestRunValid_ReportsFindings(t *testing.T) {
	e := goEngine(t)
	rec := record(func(rt require.TestingT) {
		e.runValid(rt, noPanic, ValidTestCase{Code: "package p\n\nfunc f() { panic(1) }\n"})
	})
	require.NotEmpty(t, rec.messages)
	require.Contains(t, rec.messages[0], "should have no errors but had 1")
}

func TestRunInvalid_Mismatches(t *testing.T) {
	e := goEngine(t)
	src := "package p\n\nfunc f() { panic(1) }\n"

	tests := []struct {
		name    string
		errors  []TestCaseError
		want    string
		stopped bool
	}{
		{
			name:    "no expected errors",
			want:    "must specify at least one expected error",
			stopped: true,
		},
		{
			name:    "count mismatch",
			errors:  []TestCaseError{{MessageID: "noPanic"}, {MessageID: "noPanic"}},
			want:    "should have 2 errors but had 1",
			stopped: true,
		},
		{
			name:   "wrong line",
			errors: []TestCaseError{{MessageID: "noPanic", Line: 2}},
			want:   "error 0: line",
		},
		{
			name:   "unknown message id",
			errors: []TestCaseError{{MessageID: "noExit"}},
			want:   `has no message id "noExit"`,
		},
		{
			name:   "neither message nor id",
			errors: []TestCaseError{{Line: 3}},
			want:   "must specify a message or a message id",
		},
		{
			name:   "wrong message",
			errors: []TestCaseError{{Message: "do not exit"}},
			want:   "error 0: message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(func(rt require.TestingT) {
				e.runInvalid(rt, noPanic, InvalidTestCase{
					ValidTestCase: ValidTestCase{Code: src},
					Errors:        tt.errors,
				})
			})
			require.NotEmpty(t, rec.messages)
			assert.Contains(t, rec.messages[0], tt.want)
			assert.Equal(t, tt.stopped, rec.stopped)
		})
	}
}

func TestCheck_ParserSelection(t *testing.T) {
	e := goEngine(t)

	var seen any
	capture := &rule.Rule{Name: "capture", Run: func(pass *rule.Pass) error {
		seen = pass.File
		return nil
	}}

	_, err := e.Check(capture, ValidTestCase{Code: "package p\n"})
	require.NoError(t, err)
	require.IsType(t, &goparser.File{}, seen)

	_, err = e.Check(capture, ValidTestCase{Code: "{{.Name}}", Parser: parser.TemplateParserID})
	require.NoError(t, err)
	require.NotNil(t, seen)
	_, isGo := seen.(*goparser.File)
	require.False(t, isGo)

	_, err = e.Check(capture, ValidTestCase{Code: "package p\n", Parser: "example.com/unknown"})
	require.ErrorIs(t, err, parser.ErrUnresolvedParser)

	_, err = New(Config{}).Check(capture, ValidTestCase{Code: "package p\n"})
	require.ErrorIs(t, err, parser.ErrUnresolvedParser)
}

func TestCheck_ParserOptions(t *testing.T) {
	e := goEngine(t)
	project := t.TempDir()

	_, err := e.Check(noPanic, ValidTestCase{
		Code:          "package p\n",
		Filename:      "/elsewhere/file.go",
		ParserOptions: &parser.Options{Project: project},
	})
	require.ErrorIs(t, err, goparser.ErrNotInProject)

	_, err = e.Check(noPanic, ValidTestCase{Code: "package p\nfunc {"})
	require.ErrorContains(t, err, "parsing test case")
}

func TestCheck_Settings(t *testing.T) {
	p, _ := parser.Lookup(parser.GoParserID)
	e := New(Config{
		Parser:   parser.Resolved{ID: parser.GoParserID, Parser: p},
		Settings: map[string]any{"suite": 1, "shared": "suite"},
	})

	var got map[string]any
	capture := &rule.Rule{Name: "capture", Run: func(pass *rule.Pass) error {
		got = pass.Settings
		return nil
	}}

	_, err := e.Check(capture, ValidTestCase{Code: "package p\n", Settings: map[string]any{"shared": "case"}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"suite": 1, "shared": "case"}, got)
	require.Equal(t, "suite", e.Config().Settings["shared"], "suite settings must not change")
}

func TestCheck_Suppressed(t *testing.T) {
	diags, err := goEngine(t).Check(noPanic, ValidTestCase{Code: `package p

func f() {
	panic(1) //nolint:nopanic
	//lint:ignore nopanic unreachable
	panic(2)
	panic(3)
}
`})
	require.NoError(t, err)
	require.Len(t, diags, 1)
	require.Equal(t, 7, diags[0].Line)
}

func TestRun_Only(t *testing.T) {
	var seen []string
	r := &rule.Rule{Name: "record", Run: func(pass *rule.Pass) error {
		seen = append(seen, string(pass.Source))
		return nil
	}}

	goEngine(t).Run(t, "only", r, RunTests{
		Valid: []ValidCase{
			Code("package skipped\n"),
			ValidTestCase{Code: "package focused\n", Only: true},
		},
	})
	require.Equal(t, []string{"package focused\n"}, seen)
}

func TestCaseName(t *testing.T) {
	require.Equal(t, "named", caseName(ValidTestCase{Name: "named", Code: "x"}, 0))
	require.Equal(t, "package p", caseName(ValidTestCase{Code: "\npackage p\nfunc f() {}"}, 0))
	require.Equal(t, "#3", caseName(ValidTestCase{}, 3))

	long := strings.Repeat("a", 70)
	require.Equal(t, long[:maxCaseNameLen], caseName(ValidTestCase{Code: long}, 0))

	// A two-byte rune straddling the limit is dropped whole.
	name := caseName(ValidTestCase{Code: strings.Repeat("a", maxCaseNameLen-1) + "é tail"}, 0)
	require.True(t, utf8.ValidString(name))
	require.Equal(t, strings.Repeat("a", maxCaseNameLen-1), name)

	name = caseName(ValidTestCase{Code: "// " + strings.Repeat("日本語", 30)}, 0)
	require.True(t, utf8.ValidString(name))
	require.LessOrEqual(t, len(name), maxCaseNameLen)
}

func TestAsTestCase(t *testing.T) {
	require.Equal(t, ValidTestCase{Code: "x"}, AsTestCase(Code("x")))
	require.Equal(t, ValidTestCase{Code: "y", Filename: "f"}, AsTestCase(ValidTestCase{Code: "y", Filename: "f"}))
	require.Equal(t, ValidTestCase{Code: "z"}, AsTestCase(&ValidTestCase{Code: "z"}))
}
