package semantic

import (
	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/optr"
)

// bindScopes allocates the scope tree for a query.  The query root owns the
// outermost scope and every collection operation gets a scope of its own,
// parented to the nearest enclosing bound scope, with a fresh child scope
// for each of its operands.  Binding is idempotent: a tree whose root is
// already bound is left untouched.
func bindScopes(root *ast.Query) error {
	if root.Parent() != nil {
		return NewError(root, InvariantViolation, "query node is not the tree root")
	}
	if BoundScope(root) != nil {
		return nil
	}
	bindScope(root, NewScope(nil))
	ast.Walk(root, func(n ast.Node) bool {
		op, ok := n.(*ast.Operation)
		if !ok {
			return true
		}
		info, known := optr.Lookup(op.Operator)
		if !known || !info.IsCollection() {
			return true
		}
		// ScopeOf finds the nearest bound ancestor since op itself is
		// not bound yet.  An operation that sits in operand position
		// nests inside the operand scope its parent bound to it.
		opScope := NewScope(ScopeOf(op))
		bindScope(op, opScope)
		for _, operand := range op.Operands {
			bindScope(operand, NewScope(opScope))
		}
		return true
	})
	return nil
}
