package rules

import (
	"fmt"
	"slices"
	"text/template/parse"

	"github.com/715d/ruletester/pkg/parser/tmplparser"
	"github.com/715d/ruletester/pkg/rule"
)

var printFuncs = []string{"print", "println"}

// TmplNoPrint reports print and println calls in templates. The first rule
// option may be a map with an "allow" list of function names to accept.
var TmplNoPrint = &rule.Rule{
	Name: "tmplnoprint",
	Doc:  "reports print and println in template actions",
	Messages: map[string]string{
		"noPrint": "avoid %s in templates; format values in Go code",
	},
	Run: runTmplNoPrint,
}

func runTmplNoPrint(pass *rule.Pass) error {
	f, ok := pass.File.(*tmplparser.File)
	if !ok {
		return fmt.Errorf("tmplnoprint needs a template, got %T", pass.File)
	}

	allowed, err := allowList(pass.Options)
	if err != nil {
		return err
	}

	for _, tree := range f.Trees {
		walkTemplate(tree.Root, func(n parse.Node) {
			id, ok := n.(*parse.IdentifierNode)
			if !ok || !slices.Contains(printFuncs, id.Ident) || slices.Contains(allowed, id.Ident) {
				return
			}
			line, col := f.Position(id)
			pass.Reportf("noPrint", line, col, id.Ident)
		})
	}
	return nil
}

func allowList(options []any) ([]string, error) {
	if len(options) == 0 {
		return nil, nil
	}
	opt, ok := options[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tmplnoprint: option must be a map, got %T", options[0])
	}

	var allowed []string
	switch v := opt["allow"].(type) {
	case nil:
	case []string:
		allowed = v
	case []any:
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("tmplnoprint: allow entries must be strings, got %T", e)
			}
			allowed = append(allowed, s)
		}
	default:
		return nil, fmt.Errorf("tmplnoprint: allow must be a list, got %T", v)
	}
	return allowed, nil
}

// walkTemplate calls fn for n and every node below it.
func walkTemplate(n parse.Node, fn func(parse.Node)) {
	if n == nil {
		return
	}
	fn(n)

	switch n := n.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			walkTemplate(c, fn)
		}
	case *parse.ActionNode:
		walkTemplate(n.Pipe, fn)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, c := range n.Cmds {
			walkTemplate(c, fn)
		}
	case *parse.CommandNode:
		for _, a := range n.Args {
			walkTemplate(a, fn)
		}
	case *parse.ChainNode:
		walkTemplate(n.Node, fn)
	case *parse.IfNode:
		walkBranch(&n.BranchNode, fn)
	case *parse.RangeNode:
		walkBranch(&n.BranchNode, fn)
	case *parse.WithNode:
		walkBranch(&n.BranchNode, fn)
	case *parse.TemplateNode:
		walkTemplate(n.Pipe, fn)
	}
}

func walkBranch(b *parse.BranchNode, fn func(parse.Node)) {
	walkTemplate(b.Pipe, fn)
	walkTemplate(b.List, fn)
	if b.ElseList != nil {
		walkTemplate(b.ElseList, fn)
	}
}
