// Package rules holds the sample rules used to exercise the rule tester.
package rules

import (
	"maps"
	"slices"

	"github.com/715d/ruletester/pkg/rule"
)

var all = map[string]*rule.Rule{
	NoEmptyBlock.Name:  rule.FromAnalyzer(NoEmptyBlock),
	RedundantConv.Name: rule.FromAnalyzer(RedundantConv),
	TmplNoPrint.Name:   TmplNoPrint,
}

// ByName returns the rule registered under name.
func ByName(name string) (*rule.Rule, bool) {
	r, ok := all[name]
	return r, ok
}

// Names returns the sorted names of all rules.
func Names() []string {
	return slices.Sorted(maps.Keys(all))
}
