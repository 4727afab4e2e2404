// Package rule describes lint rules and the passes they run over.
package rule

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownMessage is returned when a rule reports a message id it did not
// declare.
var ErrUnknownMessage = errors.New("unknown message id")

// Rule is a lint rule under test.
type Rule struct {
	// Name identifies the rule in suppression directives and test output.
	Name string

	// Doc is a short description of what the rule reports.
	Doc string

	// Messages maps message ids to fmt templates. When nil, any id is
	// accepted and reports must carry their own message.
	Messages map[string]string

	// Run inspects pass.File and reports findings on pass.
	Run func(pass *Pass) error
}

func (r *Rule) String() string {
	return r.Name
}

// Diagnostic is a single finding. Lines and columns are 1-based; zero end
// positions mean the rule did not report a range.
type Diagnostic struct {
	MessageID string `json:"message_id" yaml:"message_id"`
	Message   string `json:"message" yaml:"message"`
	Line      int    `json:"line" yaml:"line"`
	Column    int    `json:"column" yaml:"column"`
	EndLine   int    `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	EndColumn int    `json:"end_column,omitempty" yaml:"end_column,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d %s: %s", d.Line, d.Column, d.MessageID, d.Message)
}

// Pass carries one parsed source to a rule.
type Pass struct {
	Rule     *Rule
	Filename string
	Source   []byte

	// File is the value returned by the parser, e.g. *goparser.File.
	File any

	// Options are the rule options of the current test case.
	Options []any

	// Settings are shared, suite level settings.
	Settings map[string]any

	diagnostics []Diagnostic
}

// Report records d.
func (p *Pass) Report(d Diagnostic) {
	p.diagnostics = append(p.diagnostics, d)
}

// Reportf records a finding at line:column using the rule's template for
// messageID.
func (p *Pass) Reportf(messageID string, line, column int, args ...any) {
	var msg string
	if p.Rule != nil {
		if tmpl, ok := p.Rule.Messages[messageID]; ok {
			msg = fmt.Sprintf(tmpl, args...)
		}
	}
	p.Report(Diagnostic{
		MessageID: messageID,
		Message:   msg,
		Line:      line,
		Column:    column,
	})
}

// Check runs r over pass and returns its findings ordered by position.
func Check(r *Rule, pass *Pass) ([]Diagnostic, error) {
	if r == nil || r.Run == nil {
		return nil, errors.New("rule has no Run function")
	}
	pass.Rule = r
	pass.diagnostics = nil

	if err := r.Run(pass); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.Name, err)
	}

	diags := slices.Clone(pass.diagnostics)
	for i, d := range diags {
		if r.Messages == nil {
			continue
		}
		tmpl, ok := r.Messages[d.MessageID]
		if !ok {
			return nil, fmt.Errorf("rule %s: %w %q", r.Name, ErrUnknownMessage, d.MessageID)
		}
		if d.Message == "" {
			diags[i].Message = tmpl
		}
	}

	slices.SortStableFunc(diags, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Column, b.Column),
			cmp.Compare(a.MessageID, b.MessageID),
		)
	})
	return diags, nil
}
