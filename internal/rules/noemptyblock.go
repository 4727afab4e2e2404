package rules

import (
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// NoEmptyBlock reports empty if, else, for and range bodies. Blocks holding
// only a comment are accepted.
var NoEmptyBlock = &analysis.Analyzer{
	Name:     "noemptyblock",
	Doc:      "reports empty control flow blocks",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      runNoEmptyBlock,
}

func runNoEmptyBlock(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.IfStmt)(nil),
		(*ast.ForStmt)(nil),
		(*ast.RangeStmt)(nil),
	}
	insp.Preorder(nodeFilter, func(n ast.Node) {
		var blocks []*ast.BlockStmt
		switch n := n.(type) {
		case *ast.IfStmt:
			blocks = append(blocks, n.Body)
			if els, ok := n.Else.(*ast.BlockStmt); ok {
				blocks = append(blocks, els)
			}
		case *ast.ForStmt:
			blocks = append(blocks, n.Body)
		case *ast.RangeStmt:
			blocks = append(blocks, n.Body)
		}

		for _, b := range blocks {
			if len(b.List) > 0 || hasComment(pass, b) {
				continue
			}
			pass.Report(analysis.Diagnostic{
				Pos:      b.Lbrace,
				End:      b.Rbrace + 1,
				Category: "emptyBlock",
				Message:  "empty block",
			})
		}
	})
	return nil, nil
}

func hasComment(pass *analysis.Pass, b *ast.BlockStmt) bool {
	for _, f := range pass.Files {
		for _, cg := range f.Comments {
			if cg.Pos() > b.Lbrace && cg.End() <= b.Rbrace {
				return true
			}
		}
	}
	return false
}
