// Package suppress implements comment-based suppression of rule findings in
// Go sources.
package suppress

import (
	"fmt"
	"go/ast"
	"go/token"
	"maps"
	"regexp"
	"strings"
)

// Checker handles nolint and lint:ignore comment suppression for one rule.
type Checker struct {
	// rule is the rule name directives must mention
	rule string

	// suppressions maps a line to the suppression reason
	suppressions map[int]string

	nolintPattern     *regexp.Regexp
	lintIgnorePattern *regexp.Regexp
}

// Suppression represents a parsed suppression directive.
type Suppression struct {
	Position token.Pos
	Reason   string
	Type     SuppressionType
}

// SuppressionType represents different types of suppression comments.
type SuppressionType int

const (
	// SuppressionNolint represents //nolint:<rule> comments.
	SuppressionNolint SuppressionType = iota

	// SuppressionLintIgnore represents //lint:ignore <rule> comments.
	SuppressionLintIgnore
)

// Rule independent suppression patterns.
var (
	// genericNolintPattern matches //nolint comments without specific linter
	genericNolintPattern = regexp.MustCompile(`//\s*nolint(?:\s|$)`)

	// nolintWithMultipleRules matches nolint with multiple comma-separated rules
	nolintWithMultipleRules = regexp.MustCompile(`//\s*nolint:([^/\s]+)`)
)

// NewChecker creates a suppression checker for the named rule.
func NewChecker(rule string) *Checker {
	quoted := regexp.QuoteMeta(rule)
	return &Checker{
		rule:              rule,
		suppressions:      make(map[int]string),
		nolintPattern:     regexp.MustCompile(`//\s*nolint:` + quoted + `(?:\s+//\s*(.+))?$`),
		lintIgnorePattern: regexp.MustCompile(`//\s*lint:ignore\s+` + quoted + `(?:\s+(.+))?$`),
	}
}

// Load parses suppression comments from AST files. A directive applies to
// its own line and to the line after it.
func (sc *Checker) Load(fset *token.FileSet, files []*ast.File) error {
	if fset == nil {
		return fmt.Errorf("fset cannot be nil")
	}
	if files == nil {
		return fmt.Errorf("files cannot be nil")
	}

	for _, file := range files {
		for _, commentGroup := range file.Comments {
			for _, comment := range commentGroup.List {
				suppression := sc.parseComment(comment)
				if suppression == nil {
					continue
				}

				reason := suppression.Reason
				if reason == "" {
					reason = "suppressed"
				}
				line := fset.Position(comment.Pos()).Line
				sc.suppressions[line] = reason
				if _, exists := sc.suppressions[line+1]; !exists {
					sc.suppressions[line+1] = reason
				}
			}
		}
	}

	return nil
}

// parseComment parses a comment to check if it's a suppression directive.
func (sc *Checker) parseComment(comment *ast.Comment) *Suppression {
	text := comment.Text

	if matches := sc.nolintPattern.FindStringSubmatch(text); matches != nil {
		reason := ""
		if len(matches) > 1 && matches[1] != "" {
			reason = strings.TrimSpace(matches[1])
		}
		return &Suppression{
			Position: comment.Pos(),
			Reason:   reason,
			Type:     SuppressionNolint,
		}
	}

	if matches := sc.lintIgnorePattern.FindStringSubmatch(text); matches != nil {
		reason := ""
		if len(matches) > 1 && matches[1] != "" {
			reason = strings.TrimSpace(matches[1])
		}
		return &Suppression{
			Position: comment.Pos(),
			Reason:   reason,
			Type:     SuppressionLintIgnore,
		}
	}

	if genericNolintPattern.MatchString(text) {
		return &Suppression{
			Position: comment.Pos(),
			Type:     SuppressionNolint,
		}
	}

	if matches := nolintWithMultipleRules.FindStringSubmatch(text); len(matches) > 1 {
		for rule := range strings.SplitSeq(matches[1], ",") {
			if strings.TrimSpace(rule) != sc.rule {
				continue
			}
			reason := ""
			if idx := strings.Index(text[2:], "//"); idx >= 0 {
				reason = strings.TrimSpace(text[idx+4:])
			}
			return &Suppression{
				Position: comment.Pos(),
				Reason:   reason,
				Type:     SuppressionNolint,
			}
		}
	}

	return nil
}

// IsSuppressed checks if findings on the given line are suppressed.
func (sc *Checker) IsSuppressed(line int) (bool, string) {
	if reason, exists := sc.suppressions[line]; exists {
		return true, reason
	}
	return false, ""
}

// Clear clears all suppressions.
func (sc *Checker) Clear() {
	sc.suppressions = make(map[int]string)
}

func (sc *Checker) getAllSuppressions() map[int]string {
	result := make(map[int]string)
	maps.Copy(result, sc.suppressions)
	return result
}
