// Package parser defines the parsers a lint rule can be tested against and
// the registry used to resolve them by identifier.
package parser

import (
	"fmt"
	"slices"
)

// Identifiers of the parsers shipped with this module. Suites choose one of
// these at the top level; test cases must not repeat them.
const (
	GoParserID       = "github.com/715d/ruletester/pkg/parser/goparser"
	TemplateParserID = "github.com/715d/ruletester/pkg/parser/tmplparser"
)

var validParsers = []string{GoParserID, TemplateParserID}

// ValidParsers returns the allow-listed parser identifiers in a fixed order.
func ValidParsers() []string {
	return slices.Clone(validParsers)
}

// IsValidParser reports whether id is exactly one of the allow-listed parser
// identifiers. The empty string is never valid.
func IsValidParser(id string) bool {
	if id == "" {
		return false
	}
	return slices.Contains(validParsers, id)
}

// Parser turns source text into a syntax value understood by rules written
// for it.
type Parser interface {
	Parse(filename string, src []byte, opts Options) (any, error)
}

// CacheClearer is implemented by parsers that hold state between parses.
type CacheClearer interface {
	ClearCaches()
}

// Options configures a single parse.
type Options struct {
	// Project enables type-aware parsing rooted at the given directory.
	Project string `yaml:"project,omitempty" json:"project,omitempty"`

	// Extra carries parser specific settings.
	Extra map[string]any `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// TypeAware reports whether the options request program-based analysis.
func (o Options) TypeAware() bool {
	return o.Project != ""
}

// ClearCaches releases the caches held by p, if it has any. Any panic raised
// while doing so is discarded.
func ClearCaches(p Parser) (cleared bool) {
	defer func() {
		if r := recover(); r != nil {
			cleared = false
		}
	}()
	c, ok := p.(CacheClearer)
	if !ok {
		return false
	}
	c.ClearCaches()
	return true
}

// Resolved is a parser identifier bound to its implementation and the
// absolute directory of the package that provides it.
type Resolved struct {
	ID     string
	Dir    string
	Parser Parser
}

func (r Resolved) String() string {
	return fmt.Sprintf("%s (%s)", r.ID, r.Dir)
}
