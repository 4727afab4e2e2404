package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/715d/ruletester/pkg/parser"
)

// ValidCase is an entry of RunTests.Valid: either a bare Code string or a
// ValidTestCase record.
type ValidCase interface {
	validCase()
}

// Code is a valid case given only as source text.
type Code string

func (Code) validCase() {}

// ValidTestCase is a source that must produce no findings.
type ValidTestCase struct {
	// Name overrides the subtest name derived from Code.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	Code string `yaml:"code" json:"code"`

	// Filename is passed to the parser. Type-aware parsers require it to lie
	// inside the configured project.
	Filename string `yaml:"filename,omitempty" json:"filename,omitempty"`

	// Parser selects a parser other than the suite's for this case.
	Parser string `yaml:"parser,omitempty" json:"parser,omitempty"`

	// ParserOptions replace the suite's parser options for this case.
	ParserOptions *parser.Options `yaml:"parser_options,omitempty" json:"parser_options,omitempty"`

	// Options are handed to the rule.
	Options []any `yaml:"options,omitempty" json:"options,omitempty"`

	// Settings are merged over the suite settings.
	Settings map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`

	// Only restricts the run to cases that set it.
	Only bool `yaml:"only,omitempty" json:"only,omitempty"`
}

func (ValidTestCase) validCase() {}

// InvalidTestCase is a source that must produce exactly Errors.
type InvalidTestCase struct {
	ValidTestCase `yaml:",inline"`

	Errors []TestCaseError `yaml:"errors" json:"errors"`
}

// TestCaseError describes an expected finding. Zero fields are not compared.
type TestCaseError struct {
	MessageID string `yaml:"message_id,omitempty" json:"message_id,omitempty"`
	Message   string `yaml:"message,omitempty" json:"message,omitempty"`
	Line      int    `yaml:"line,omitempty" json:"line,omitempty"`
	Column    int    `yaml:"column,omitempty" json:"column,omitempty"`
	EndLine   int    `yaml:"end_line,omitempty" json:"end_line,omitempty"`
	EndColumn int    `yaml:"end_column,omitempty" json:"end_column,omitempty"`
}

// RunTests is the collection of cases for one rule.
type RunTests struct {
	Valid   []ValidCase       `yaml:"valid" json:"valid"`
	Invalid []InvalidTestCase `yaml:"invalid" json:"invalid"`
}

// AsTestCase returns c as a record. Bare code becomes a record with only
// Code set.
func AsTestCase(c ValidCase) ValidTestCase {
	switch c := c.(type) {
	case Code:
		return ValidTestCase{Code: string(c)}
	case ValidTestCase:
		return c
	case *ValidTestCase:
		if c == nil {
			return ValidTestCase{}
		}
		return *c
	default:
		panic(fmt.Sprintf("engine: unexpected valid case type %T", c))
	}
}

// maxCaseNameLen bounds derived subtest names, in bytes.
const maxCaseNameLen = 60

// caseName derives a subtest name from the case name or its first line.
func caseName(tc ValidTestCase, index int) string {
	if tc.Name != "" {
		return tc.Name
	}
	line, _, _ := strings.Cut(strings.TrimSpace(tc.Code), "\n")
	if len(line) > maxCaseNameLen {
		cut := maxCaseNameLen
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = line[:cut]
	}
	if line == "" {
		return fmt.Sprintf("#%d", index)
	}
	return line
}
