package rules

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

// RedundantConv reports conversions T(x) where x already has type T. It
// needs type information and reports nothing on syntax-only parses.
var RedundantConv = &analysis.Analyzer{
	Name:     "redundantconv",
	Doc:      "reports conversions to the type the operand already has",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      runRedundantConv,
}

func runRedundantConv(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		if len(call.Args) != 1 || call.Ellipsis.IsValid() {
			return
		}

		fun, ok := pass.TypesInfo.Types[call.Fun]
		if !ok || !fun.IsType() {
			return
		}
		arg, ok := pass.TypesInfo.Types[call.Args[0]]
		if !ok || arg.Type == nil {
			return
		}
		if isUntyped(arg.Type) {
			return
		}
		// Untyped constant operands are recorded with the conversion's type.
		if arg.Value != nil && !isTypedConst(pass.TypesInfo, call.Args[0]) {
			return
		}
		if !types.Identical(fun.Type, arg.Type) {
			return
		}

		pass.Report(analysis.Diagnostic{
			Pos:      call.Pos(),
			End:      call.End(),
			Category: "redundantConversion",
			Message:  "redundant conversion to " + types.TypeString(fun.Type, types.RelativeTo(pass.Pkg)),
		})
	})
	return nil, nil
}

func isUntyped(t types.Type) bool {
	basic, ok := t.(*types.Basic)
	return ok && basic.Info()&types.IsUntyped != 0
}

// isTypedConst reports whether e names a constant declared with a type.
func isTypedConst(info *types.Info, e ast.Expr) bool {
	var id *ast.Ident
	switch e := ast.Unparen(e).(type) {
	case *ast.Ident:
		id = e
	case *ast.SelectorExpr:
		id = e.Sel
	default:
		return false
	}
	c, ok := info.Uses[id].(*types.Const)
	return ok && !isUntyped(c.Type())
}
