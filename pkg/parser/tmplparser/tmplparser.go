// Package tmplparser parses text/template sources for rule tests.
package tmplparser

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/template/parse"

	rtparser "github.com/715d/ruletester/pkg/parser"
)

// ID is the identifier this parser is registered under.
const ID = rtparser.TemplateParserID

const defaultName = "input.tmpl"

// Keys recognized in parser.Options.Extra.
const (
	// ExtraFuncs lists the names of functions available to the template
	// besides the builtins.
	ExtraFuncs = "funcs"
	// ExtraLeftDelim and ExtraRightDelim override the action delimiters.
	ExtraLeftDelim  = "leftDelim"
	ExtraRightDelim = "rightDelim"
)

// builtins mirrors the functions text/template predefines.
var builtins = []string{
	"and", "call", "html", "index", "slice", "js", "len", "not", "or",
	"print", "printf", "println", "urlquery",
	"eq", "ge", "gt", "le", "lt", "ne",
}

// defined marks a function name as known. The parser only checks that the
// map value is non-nil; it never calls it.
var defined = struct{}{}

func init() {
	rtparser.Register(ID, Parser{})
}

// File is a parsed template and the templates it defines.
type File struct {
	Name   string
	Source string
	Trees  map[string]*parse.Tree
}

// Root returns the tree for the file itself.
func (f *File) Root() *parse.Tree {
	return f.Trees[f.Name]
}

// Position converts the byte offset of n into a 1-based line and column.
func (f *File) Position(n parse.Node) (line, column int) {
	offset := min(int(n.Position()), len(f.Source))
	before := f.Source[:offset]
	line = strings.Count(before, "\n") + 1
	column = offset - strings.LastIndexByte(before, '\n')
	return line, column
}

// Parser parses templates. It keeps no state between parses.
type Parser struct{}

// Parse implements parser.Parser. The returned value is a *File.
func (p Parser) Parse(filename string, src []byte, opts rtparser.Options) (any, error) {
	return p.ParseTemplate(filename, src, opts)
}

// ParseTemplate parses src, named after the base of filename.
func (Parser) ParseTemplate(filename string, src []byte, opts rtparser.Options) (*File, error) {
	name := defaultName
	if filename != "" {
		name = filepath.Base(filename)
	}

	funcs := make(map[string]any, len(builtins))
	for _, fn := range builtins {
		funcs[fn] = defined
	}
	extra, err := stringList(opts.Extra[ExtraFuncs])
	if err != nil {
		return nil, fmt.Errorf("parser option %s: %w", ExtraFuncs, err)
	}
	for _, fn := range extra {
		funcs[fn] = defined
	}

	leftDelim, _ := opts.Extra[ExtraLeftDelim].(string)
	rightDelim, _ := opts.Extra[ExtraRightDelim].(string)

	trees := make(map[string]*parse.Tree)
	tree := parse.New(name)
	tree.Mode = parse.ParseComments
	if _, err := tree.Parse(string(src), leftDelim, rightDelim, trees, funcs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	return &File{Name: name, Source: string(src), Trees: trees}, nil
}

// stringList accepts the shapes a list of names takes after YAML or JSON
// decoding.
func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not string", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of names, got %T", v)
	}
}
