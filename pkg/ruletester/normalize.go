package ruletester

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/715d/ruletester/pkg/engine"
	"github.com/715d/ruletester/pkg/parser"
)

// ErrParserOverride is returned when a test case sets its parser to one of
// the allow-listed parsers, which the suite configuration already governs.
var ErrParserOverride = errors.New("Do not set the parser at the test level unless you want to use a parser other than " +
	strings.Join(parser.ValidParsers(), ", "))

// Normalize returns a copy of tests ready for the engine. When
// defaultFilename is set, bare valid code becomes a record carrying it, and
// every record without a filename receives it. Records whose parser is an
// allow-listed one are rejected with ErrParserOverride. tests is not
// modified, and the slices, maps and parser options of the result are
// copies. Values held inside Options and Settings are shared.
//
// Only the valid list holds bare code; invalid cases are always records.
func Normalize(tests engine.RunTests, defaultFilename string) (engine.RunTests, error) {
	out := engine.RunTests{
		Valid:   make([]engine.ValidCase, 0, len(tests.Valid)),
		Invalid: make([]engine.InvalidTestCase, 0, len(tests.Invalid)),
	}

	for i, c := range tests.Valid {
		if code, ok := c.(engine.Code); ok {
			if defaultFilename == "" {
				out.Valid = append(out.Valid, code)
				continue
			}
			c = engine.ValidTestCase{Code: string(code), Filename: defaultFilename}
		}

		tc, err := normalizeCase(engine.AsTestCase(c), defaultFilename)
		if err != nil {
			return engine.RunTests{}, fmt.Errorf("valid[%d]: %w", i, err)
		}
		out.Valid = append(out.Valid, tc)
	}

	for i, c := range tests.Invalid {
		tc, err := normalizeCase(c.ValidTestCase, defaultFilename)
		if err != nil {
			return engine.RunTests{}, fmt.Errorf("invalid[%d]: %w", i, err)
		}
		c.ValidTestCase = tc
		c.Errors = slices.Clone(c.Errors)
		out.Invalid = append(out.Invalid, c)
	}

	return out, nil
}

func normalizeCase(tc engine.ValidTestCase, defaultFilename string) (engine.ValidTestCase, error) {
	if parser.IsValidParser(tc.Parser) {
		return tc, ErrParserOverride
	}
	if tc.Filename == "" {
		tc.Filename = defaultFilename
	}
	tc.Options = slices.Clone(tc.Options)
	tc.Settings = maps.Clone(tc.Settings)
	if tc.ParserOptions != nil {
		opts := *tc.ParserOptions
		opts.Extra = maps.Clone(opts.Extra)
		tc.ParserOptions = &opts
	}
	return tc, nil
}
