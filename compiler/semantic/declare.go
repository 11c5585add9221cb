package semantic

import (
	"reflect"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/optr"
	"github.com/jsqlang/jsq/runtime/provider"
)

// declareSymbols populates the scope tree built by bindScopes.  The source
// sequence symbol lands in the root scope and every collection operation
// whose source has a structurally determinable element type declares that
// element into the scopes of its non-source operands.  When the element
// type cannot be determined nothing is declared and the typer reports the
// offending source instead.
func declareSymbols(ctx *Context, root *ast.Query) error {
	rootScope := BoundScope(root)
	if rootScope == nil {
		return NewError(root, InvariantViolation, "tree has no bound scopes")
	}
	if !rootScope.Contains(ast.SourceIdent, false) {
		if err := rootScope.Declare(NewSourceSymbol(ctx.Source)); err != nil {
			return NewError(root, DuplicateSymbol, "%s", err)
		}
	}
	var firstErr error
	ast.Walk(root, func(n ast.Node) bool {
		if firstErr != nil {
			return false
		}
		op, ok := n.(*ast.Operation)
		if !ok {
			return true
		}
		info, known := optr.Lookup(op.Operator)
		if !known || !info.IsCollection() {
			return true
		}
		if len(op.Operands) == 0 {
			firstErr = NewError(op, ArityError, "operator %q has no operands", op.Operator)
			return false
		}
		elem, ok := declaredElementType(op.Operands[0])
		if !ok {
			return true
		}
		for _, operand := range op.Operands[1:] {
			scope := BoundScope(operand)
			if scope == nil {
				firstErr = NewError(operand, InvariantViolation, "operand has no bound scope")
				return false
			}
			if scope.Contains(ast.ElementIdent, false) {
				continue
			}
			if err := scope.Declare(NewParameterSymbol(elem)); err != nil {
				firstErr = NewError(operand, DuplicateSymbol, "%s", err)
				return false
			}
		}
		return true
	})
	return firstErr
}

// declaredElementType determines the element type of a source expression
// from declarations alone.
func declaredElementType(source ast.Expr) (reflect.Type, bool) {
	t, ok := declaredType(source, nil)
	if !ok || !isSequence(t) {
		return nil, false
	}
	return t.Elem(), true
}

// declaredType computes the type an expression denotes without typing the
// whole tree, so nested lambdas can have their parameters declared before
// the typer runs.  elem, when non-nil, is the element type bound by the
// lambda being synthesized; a nil elem sends references to the scope chain,
// which pre-order declaration has already populated for every enclosing
// operation.  The second result is false when the type is not structurally
// determinable, which is never an error here.
func declaredType(e ast.Expr, elem reflect.Type) (reflect.Type, bool) {
	switch e := e.(type) {
	case *ast.Reference:
		if e.Ident == ast.ElementIdent && elem != nil {
			return elem, true
		}
		scope := ScopeOf(e)
		if scope == nil {
			return nil, false
		}
		sym := scope.Resolve(e.Ident)
		if sym == nil {
			return nil, false
		}
		return sym.Type(), true
	case *ast.Literal:
		switch e.Type {
		case ast.LitString:
			return stringType, true
		case ast.LitInt:
			return int64Type, true
		case ast.LitFloat:
			return floatType, true
		case ast.LitBool:
			return boolType, true
		case ast.LitNull:
			return nil, true
		}
	case *ast.MemberAccess:
		owner, ok := declaredType(e.Operand, elem)
		if !ok {
			return nil, false
		}
		st, _, ok := structOf(owner)
		if !ok {
			return nil, false
		}
		field, ok := fieldLookup(st, e.Name)
		if !ok {
			return nil, false
		}
		return field.Type, true
	case *ast.AnonymousObject:
		fields := make([]reflect.StructField, 0, len(e.Properties))
		seen := make(map[string]bool)
		for _, prop := range e.Properties {
			if seen[prop.Name] {
				return nil, false
			}
			seen[prop.Name] = true
			t, ok := declaredType(prop.Value, elem)
			if !ok {
				return nil, false
			}
			field, err := buildField(prop.Name, t)
			if err != nil {
				return nil, false
			}
			fields = append(fields, field)
		}
		return reflect.StructOf(fields), true
	case *ast.Operation:
		info, known := optr.Lookup(e.Operator)
		if !known {
			return nil, false
		}
		if info.IsCollection() {
			return declaredCollectionType(e, info, elem)
		}
		if info.Category == optr.Arithmetic {
			types := make([]reflect.Type, 0, len(e.Operands))
			for _, operand := range e.Operands {
				t, ok := declaredType(operand, elem)
				if !ok || !isNumeric(t) {
					return nil, false
				}
				types = append(types, t)
			}
			if len(types) == 0 {
				return nil, false
			}
			return widenNumeric(types)
		}
		// Relational, string relational, logical, and semantic
		// operators all produce bool.
		return boolType, true
	}
	return nil, false
}

func declaredCollectionType(op *ast.Operation, info optr.Op, elem reflect.Type) (reflect.Type, bool) {
	if len(op.Operands) == 0 {
		return nil, false
	}
	srcT, ok := declaredType(op.Operands[0], elem)
	if !ok || !isSequence(srcT) {
		return nil, false
	}
	srcElem := srcT.Elem()
	selector := func() (reflect.Type, bool) {
		if len(op.Operands) < 2 || isBoolLiteral(op.Operands[1]) {
			return srcElem, true
		}
		return declaredType(op.Operands[1], srcElem)
	}
	switch info.Kind {
	case provider.Where, provider.Take, provider.Drop:
		return reflect.SliceOf(srcElem), true
	case provider.Project:
		projT, ok := selector()
		if !ok || projT == nil {
			return nil, false
		}
		return reflect.SliceOf(projT), true
	case provider.Flatten:
		selT, ok := selector()
		if !ok || !isSequence(selT) {
			return nil, false
		}
		return reflect.SliceOf(selT.Elem()), true
	case provider.ElementAt:
		return srcElem, true
	case provider.Count:
		return int64Type, true
	case provider.Contains, provider.Any, provider.All:
		return boolType, true
	case provider.Min, provider.Max:
		return selector()
	case provider.Sum:
		selT, ok := selector()
		if !ok || !isNumeric(selT) {
			return nil, false
		}
		if isFloatKind(selT.Kind()) {
			return floatType, true
		}
		return int64Type, true
	case provider.Average:
		return floatType, true
	}
	return nil, false
}

// isBoolLiteral reports whether e is a bool literal, the placeholder the
// parser supplies for value-form applications like {$count: path}.
func isBoolLiteral(e ast.Expr) bool {
	lit, ok := e.(*ast.Literal)
	return ok && lit.Type == ast.LitBool
}
