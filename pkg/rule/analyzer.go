package rule

import (
	"fmt"
	"go/ast"
	"go/types"
	"os"
	"runtime"

	"golang.org/x/tools/go/analysis"

	"github.com/715d/ruletester/pkg/parser/goparser"
)

// FromAnalyzer wraps a go/analysis analyzer as a rule over *goparser.File.
// Required analyzers are run first. Analyzers using facts are rejected since
// a single file has no dependency graph to propagate them through.
//
// Diagnostics use their category as message id, or the analyzer name when
// the category is empty.
func FromAnalyzer(a *analysis.Analyzer) *Rule {
	return &Rule{
		Name: a.Name,
		Doc:  a.Doc,
		Run: func(pass *Pass) error {
			return runAnalyzer(a, pass)
		},
	}
}

func runAnalyzer(root *analysis.Analyzer, pass *Pass) error {
	f, ok := pass.File.(*goparser.File)
	if !ok {
		return fmt.Errorf("analyzer %s needs a Go source file, got %T", root.Name, pass.File)
	}

	pkg, info := f.Pkg, f.TypesInfo
	if pkg == nil {
		// Syntax only: give analyzers an empty package so they do not have
		// to guard against nil.
		pkg = types.NewPackage(f.AST.Name.Name, f.AST.Name.Name)
		info = emptyInfo()
	}

	r := &analyzerRun{
		file:    f,
		pkg:     pkg,
		info:    info,
		pass:    pass,
		root:    root,
		results: make(map[*analysis.Analyzer]any),
	}
	_, err := r.run(root)
	return err
}

type analyzerRun struct {
	file    *goparser.File
	pkg     *types.Package
	info    *types.Info
	pass    *Pass
	root    *analysis.Analyzer
	results map[*analysis.Analyzer]any
}

func (r *analyzerRun) run(a *analysis.Analyzer) (any, error) {
	if res, ok := r.results[a]; ok {
		return res, nil
	}
	if len(a.FactTypes) > 0 {
		return nil, fmt.Errorf("analyzer %s uses facts, which are not supported", a.Name)
	}

	resultOf := make(map[*analysis.Analyzer]any, len(a.Requires))
	for _, req := range a.Requires {
		res, err := r.run(req)
		if err != nil {
			return nil, err
		}
		resultOf[req] = res
	}

	ap := &analysis.Pass{
		Analyzer:   a,
		Fset:       r.file.Fset,
		Files:      []*ast.File{r.file.AST},
		Pkg:        r.pkg,
		TypesInfo:  r.info,
		TypesSizes: types.SizesFor("gc", runtime.GOARCH),
		TypeErrors: r.file.TypeErrors,
		ResultOf:   resultOf,
		ReadFile:   r.readFile,
		Report: func(d analysis.Diagnostic) {
			if a == r.root {
				r.pass.Report(r.convert(a, d))
			}
		},
	}

	res, err := a.Run(ap)
	if err != nil {
		return nil, fmt.Errorf("analyzer %s: %w", a.Name, err)
	}
	r.results[a] = res
	return res, nil
}

func (r *analyzerRun) convert(a *analysis.Analyzer, d analysis.Diagnostic) Diagnostic {
	id := d.Category
	if id == "" {
		id = a.Name
	}

	start := r.file.Fset.Position(d.Pos)
	out := Diagnostic{
		MessageID: id,
		Message:   d.Message,
		Line:      start.Line,
		Column:    start.Column,
	}
	if d.End.IsValid() {
		end := r.file.Fset.Position(d.End)
		out.EndLine, out.EndColumn = end.Line, end.Column
	}
	return out
}

// readFile serves the file under test from memory so fixtures need not exist.
func (r *analyzerRun) readFile(filename string) ([]byte, error) {
	if filename == r.file.Fset.Position(r.file.AST.Pos()).Filename {
		return r.pass.Source, nil
	}
	return nil, &os.PathError{Op: "read", Path: filename, Err: os.ErrNotExist}
}

func emptyInfo() *types.Info {
	return &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Instances:  make(map[*ast.Ident]types.Instance),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Implicits:  make(map[ast.Node]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
	}
}
