// Package semantic analyzes parsed JSQ trees.  Analysis runs three passes
// over the tree: the binder allocates scopes, the declarator populates them
// with the source and element symbols, and the typer resolves every node to
// its semantics.  Results ride on the nodes as annotations so later phases
// ask the tree, not the analyzer.
package semantic

import (
	"reflect"

	"github.com/jsqlang/jsq/compiler/ast"
)

// Analyze checks root against the element type carried by ctx and leaves
// the tree fully typed.  The first error found aborts the analysis.
func Analyze(root *ast.Query, ctx *Context) error {
	if err := bindScopes(root); err != nil {
		return err
	}
	ctx.bind(root)
	if err := declareSymbols(ctx, root); err != nil {
		return err
	}
	_, err := SemanticsOf(root)
	return err
}

// ResultType returns the result type of an analyzed query, or nil when the
// root has not been resolved.
func ResultType(root *ast.Query) reflect.Type {
	sem, _ := memoSemantics(root).(*QuerySemantics)
	if sem == nil {
		return nil
	}
	return sem.Result
}
