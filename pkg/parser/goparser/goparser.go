// Package goparser parses Go source for rule tests. With a project configured
// it also type-checks the file so type-aware rules can run.
package goparser

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	rtparser "github.com/715d/ruletester/pkg/parser"
)

// ID is the identifier this parser is registered under.
const ID = rtparser.GoParserID

// defaultFilename names sources parsed without a filename.
const defaultFilename = "input.go"

// ErrNotInProject is returned by type-aware parses of files outside the
// configured project root.
var ErrNotInProject = errors.New("file is not part of the configured project")

func init() {
	rtparser.Register(ID, New())
}

// File is the result of parsing a single Go source file.
type File struct {
	Fset *token.FileSet
	AST  *ast.File

	// Pkg, TypesInfo and TypeErrors are only populated by type-aware parses.
	Pkg        *types.Package
	TypesInfo  *types.Info
	TypeErrors []types.Error
}

// TypeAware reports whether f carries type information.
func (f *File) TypeAware() bool {
	return f.Pkg != nil
}

type cacheKey struct {
	filename string
	project  string
	sum      [sha256.Size]byte
}

// Parser parses Go files and caches the results. It is safe for concurrent
// use.
type Parser struct {
	files *xsync.Map[cacheKey, *File]

	// mu guards importer and serializes type checking, which shares it.
	mu       sync.Mutex
	importer types.Importer
}

// New creates a parser with empty caches.
func New() *Parser {
	return &Parser{
		files: xsync.NewMap[cacheKey, *File](),
	}
}

// Parse implements parser.Parser. The returned value is a *File.
func (p *Parser) Parse(filename string, src []byte, opts rtparser.Options) (any, error) {
	return p.ParseFile(filename, src, opts)
}

// ParseFile parses src as filename. Results are shared between callers
// parsing the same source under the same options and must not be modified.
func (p *Parser) ParseFile(filename string, src []byte, opts rtparser.Options) (*File, error) {
	if filename == "" {
		filename = defaultFilename
	}

	key := cacheKey{filename: filename, project: opts.Project, sum: sha256.Sum256(src)}
	if f, ok := p.files.Load(key); ok {
		return f, nil
	}

	if opts.TypeAware() {
		if err := checkInProject(filename, opts.Project); err != nil {
			return nil, err
		}
	}

	fset := token.NewFileSet()
	af, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	f := &File{Fset: fset, AST: af}
	if opts.TypeAware() {
		p.check(f)
	}

	actual, _ := p.files.LoadOrStore(key, f)
	return actual, nil
}

// ClearCaches drops parsed files and the importer with its loaded packages.
func (p *Parser) ClearCaches() {
	p.files.Clear()

	p.mu.Lock()
	p.importer = nil
	p.mu.Unlock()
}

func (p *Parser) check(f *File) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.importer == nil {
		p.importer = importer.Default()
	}

	info := &types.Info{
		Types:      make(map[ast.Expr]types.TypeAndValue),
		Instances:  make(map[*ast.Ident]types.Instance),
		Defs:       make(map[*ast.Ident]types.Object),
		Uses:       make(map[*ast.Ident]types.Object),
		Implicits:  make(map[ast.Node]types.Object),
		Selections: make(map[*ast.SelectorExpr]*types.Selection),
		Scopes:     make(map[ast.Node]*types.Scope),
	}
	conf := types.Config{
		Importer: p.importer,
		Error: func(err error) {
			var typeErr types.Error
			if errors.As(err, &typeErr) {
				f.TypeErrors = append(f.TypeErrors, typeErr)
			}
		},
	}

	// Type errors are collected above; a partially checked package is still
	// useful to rules.
	pkg, _ := conf.Check(f.AST.Name.Name, f.Fset, []*ast.File{f.AST}, info)
	f.Pkg = pkg
	f.TypesInfo = info
}

func checkInProject(filename, project string) error {
	root, err := filepath.Abs(project)
	if err != nil {
		return fmt.Errorf("project root %s: %w", project, err)
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return fmt.Errorf("file %s: %w", filename, err)
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside %s", ErrNotInProject, abs, root)
	}
	return nil
}
