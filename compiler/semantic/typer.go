package semantic

import (
	"fmt"
	"reflect"

	"github.com/araddon/dateparse"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/optr"
	"github.com/jsqlang/jsq/runtime/provider"
)

// SemanticsOf resolves and returns the semantics of n, memoizing the result
// on the node.  Resolution recurses through operands so forcing the query
// root types the whole tree.  Errors abort resolution; nothing downstream
// of a failed node is typed.
func SemanticsOf(n ast.Node) (Semantics, error) {
	if sem := memoSemantics(n); sem != nil {
		return sem, nil
	}
	sem, err := resolveNode(n)
	if err != nil {
		return nil, err
	}
	setSemantics(n, sem)
	return sem, nil
}

func resolveNode(n ast.Node) (Semantics, error) {
	switch n := n.(type) {
	case *ast.Query:
		body, err := SemanticsOf(n.Body)
		if err != nil {
			return nil, err
		}
		return &QuerySemantics{Result: body.Type()}, nil
	case *ast.Reference:
		return resolveReference(n)
	case *ast.Literal:
		return resolveLiteral(n)
	case *ast.MemberAccess:
		return resolveMember(n)
	case *ast.AnonymousObject:
		return resolveObject(n)
	case *ast.AnonymousObjectProperty:
		return resolveProperty(n)
	case *ast.Operation:
		return resolveOperation(n)
	}
	return nil, NewError(n, MalformedTree, "unexpected node %T", n)
}

func resolveReference(n *ast.Reference) (Semantics, error) {
	scope := ScopeOf(n)
	if scope == nil {
		return nil, NewError(n, InvariantViolation, "tree has no bound scopes")
	}
	sym := scope.Resolve(n.Ident)
	if sym == nil {
		return nil, NewError(n, SymbolNotFound, "symbol %q is not defined", n.Ident)
	}
	return &ReferenceSemantics{Symbol: sym}, nil
}

func resolveLiteral(n *ast.Literal) (Semantics, error) {
	switch n.Type {
	case ast.LitString:
		return &LiteralSemantics{Typ: stringType, Value: n.Value}, nil
	case ast.LitInt:
		return &LiteralSemantics{Typ: int64Type, Value: n.Value}, nil
	case ast.LitFloat:
		return &LiteralSemantics{Typ: floatType, Value: n.Value}, nil
	case ast.LitBool:
		return &LiteralSemantics{Typ: boolType, Value: n.Value}, nil
	case ast.LitNull:
		return &LiteralSemantics{}, nil
	}
	return nil, NewError(n, MalformedTree, "unknown literal type %q", n.Type)
}

func resolveMember(n *ast.MemberAccess) (Semantics, error) {
	operand, err := SemanticsOf(n.Operand)
	if err != nil {
		return nil, err
	}
	owner, indirect, ok := structOf(operand.Type())
	if !ok {
		return nil, NewError(n, FieldNotFound, "type %s has no field %q", typeName(operand.Type()), n.Name)
	}
	field, ok := fieldLookup(owner, n.Name)
	if !ok {
		return nil, NewError(n, FieldNotFound, "field %q not found in %s", n.Name, owner)
	}
	return &MemberSemantics{Owner: owner, Field: field, Indirect: indirect}, nil
}

func resolveObject(n *ast.AnonymousObject) (Semantics, error) {
	if len(n.Properties) == 0 {
		return nil, NewError(n, MalformedTree, "object has no properties")
	}
	fields := make([]reflect.StructField, 0, len(n.Properties))
	seen := make(map[string]bool)
	for _, prop := range n.Properties {
		if seen[prop.Name] {
			return nil, NewError(prop, MalformedTree, "duplicate property %q", prop.Name)
		}
		seen[prop.Name] = true
		sem, err := SemanticsOf(prop)
		if err != nil {
			return nil, err
		}
		fields = append(fields, sem.(*PropertySemantics).Field)
	}
	return &ObjectSemantics{Struct: reflect.StructOf(fields)}, nil
}

func resolveProperty(n *ast.AnonymousObjectProperty) (Semantics, error) {
	value, err := SemanticsOf(n.Value)
	if err != nil {
		return nil, err
	}
	field, err := buildField(n.Name, value.Type())
	if err != nil {
		return nil, NewError(n, MalformedTree, "%s", err)
	}
	return &PropertySemantics{Name: n.Name, Field: field}, nil
}

func resolveOperation(n *ast.Operation) (Semantics, error) {
	op, ok := optr.Lookup(n.Operator)
	if !ok {
		return nil, NewError(n, MalformedTree, "unknown operator %q", n.Operator)
	}
	if !op.CheckArity(len(n.Operands)) {
		return nil, NewError(n, ArityError, "operator %q expects %s, got %d",
			n.Operator, arityNoun(op), len(n.Operands))
	}
	switch op.Category {
	case optr.Arithmetic:
		return resolveArithmetic(n, op)
	case optr.Relational:
		return resolveRelational(n, op)
	case optr.StringRelational:
		return resolveStringRelational(n, op)
	case optr.Logical:
		return resolveLogical(n, op)
	case optr.Semantic:
		return resolveMatch(n, op)
	}
	return resolveCollection(n, op)
}

func arityNoun(op optr.Op) string {
	if op.MaxArity < 0 {
		return fmt.Sprintf("at least %d operands", op.MinArity)
	}
	if op.MinArity == op.MaxArity {
		if op.MinArity == 1 {
			return "1 operand"
		}
		return fmt.Sprintf("%d operands", op.MinArity)
	}
	return fmt.Sprintf("%d to %d operands", op.MinArity, op.MaxArity)
}

func resolveArithmetic(n *ast.Operation, op optr.Op) (Semantics, error) {
	types := make([]reflect.Type, len(n.Operands))
	for i, operand := range n.Operands {
		sem, err := SemanticsOf(operand)
		if err != nil {
			return nil, err
		}
		t := sem.Type()
		if !isNumeric(t) {
			return nil, NewError(operand, IncompatibleOperandTypes,
				"operator %q requires numeric operands, got %s", n.Operator, typeName(t))
		}
		types[i] = t
	}
	result, _ := widenNumeric(types)
	if n.Operator == "$mod" && isFloatKind(result.Kind()) {
		return nil, NewError(n, IncompatibleOperandTypes,
			"operator %q requires integer operands", n.Operator)
	}
	return &OperationSemantics{Op: op, Result: result, Operand: result}, nil
}

func resolveRelational(n *ast.Operation, op optr.Op) (Semantics, error) {
	lhs, err := SemanticsOf(n.Operands[0])
	if err != nil {
		return nil, err
	}
	rhs, err := SemanticsOf(n.Operands[1])
	if err != nil {
		return nil, err
	}
	common, err := comparisonType(n, n.Operands[0], n.Operands[1], lhs, rhs)
	if err != nil {
		return nil, err
	}
	switch n.Operator {
	case "$eq", "$ne":
		if common != nil && !common.Comparable() {
			return nil, NewError(n, IncompatibleOperandTypes,
				"values of type %s cannot be compared", common)
		}
	default:
		if !isOrdered(common) {
			return nil, NewError(n, IncompatibleOperandTypes,
				"operator %q cannot order values of type %s", n.Operator, typeName(common))
		}
	}
	return &OperationSemantics{Op: op, Result: boolType, Operand: common}, nil
}

func resolveStringRelational(n *ast.Operation, op optr.Op) (Semantics, error) {
	for _, operand := range n.Operands {
		sem, err := SemanticsOf(operand)
		if err != nil {
			return nil, err
		}
		if t := sem.Type(); t == nil || t.Kind() != reflect.String {
			return nil, NewError(operand, IncompatibleOperandTypes,
				"operator %q requires string operands, got %s", n.Operator, typeName(t))
		}
	}
	return &OperationSemantics{Op: op, Result: boolType, Operand: stringType}, nil
}

func resolveLogical(n *ast.Operation, op optr.Op) (Semantics, error) {
	for _, operand := range n.Operands {
		sem, err := SemanticsOf(operand)
		if err != nil {
			return nil, err
		}
		if t := sem.Type(); !isBoolType(t) {
			return nil, NewError(operand, IncompatibleOperandTypes,
				"operator %q requires boolean operands, got %s", n.Operator, typeName(t))
		}
	}
	return &OperationSemantics{Op: op, Result: boolType, Operand: boolType}, nil
}

// resolveMatch types $match.  A literal or expression pattern compares the
// target value directly; an anonymous object is a structural pattern whose
// properties are checked recursively against the target's fields.
func resolveMatch(n *ast.Operation, op optr.Op) (Semantics, error) {
	lhs, err := SemanticsOf(n.Operands[0])
	if err != nil {
		return nil, err
	}
	if obj, ok := n.Operands[1].(*ast.AnonymousObject); ok {
		if err := matchPattern(obj, lhs.Type()); err != nil {
			return nil, err
		}
		return &OperationSemantics{Op: op, Result: boolType, Operand: lhs.Type()}, nil
	}
	rhs, err := SemanticsOf(n.Operands[1])
	if err != nil {
		return nil, err
	}
	common, err := comparisonType(n, n.Operands[0], n.Operands[1], lhs, rhs)
	if err != nil {
		return nil, err
	}
	if common != nil && !common.Comparable() {
		return nil, NewError(n, IncompatibleOperandTypes,
			"values of type %s cannot be compared", common)
	}
	return &OperationSemantics{Op: op, Result: boolType, Operand: common}, nil
}

// matchPattern checks a structural pattern against target and annotates the
// pattern's nodes for plan generation: each property gets the struct field
// it matches and each object gets the struct type it tests.
func matchPattern(obj *ast.AnonymousObject, target reflect.Type) error {
	st, _, ok := structOf(target)
	if !ok {
		return NewError(obj, IncompatibleOperandTypes,
			"match pattern requires a struct value, got %s", typeName(target))
	}
	seen := make(map[string]bool)
	for _, prop := range obj.Properties {
		if seen[prop.Name] {
			return NewError(prop, MalformedTree, "duplicate property %q", prop.Name)
		}
		seen[prop.Name] = true
		field, ok := fieldLookup(st, prop.Name)
		if !ok {
			return NewError(prop, FieldNotFound, "field %q not found in %s", prop.Name, st)
		}
		if nested, ok := prop.Value.(*ast.AnonymousObject); ok {
			if err := matchPattern(nested, field.Type); err != nil {
				return err
			}
		} else {
			value, err := SemanticsOf(prop.Value)
			if err != nil {
				return err
			}
			if _, err := operandType(prop.Value, value, field.Type); err != nil {
				return err
			}
		}
		setSemantics(prop, &PropertySemantics{Name: prop.Name, Field: field})
	}
	setSemantics(obj, &ObjectSemantics{Struct: st})
	return nil
}

func resolveCollection(n *ast.Operation, op optr.Op) (Semantics, error) {
	src, err := SemanticsOf(n.Operands[0])
	if err != nil {
		return nil, err
	}
	srcT := src.Type()
	if !isSequence(srcT) {
		return nil, NewError(n.Operands[0], NotQueryable, "type %s is not queryable", typeName(srcT))
	}
	elem := srcT.Elem()
	arg := n.Operands[1]

	// The selector of a projecting or aggregating operator; a bool
	// literal is the parser's placeholder for the whole element.
	selector := func() (reflect.Type, error) {
		if isBoolLiteral(arg) {
			return elem, nil
		}
		sem, err := SemanticsOf(arg)
		if err != nil {
			return nil, err
		}
		return sem.Type(), nil
	}
	predicate := func() error {
		sem, err := SemanticsOf(arg)
		if err != nil {
			return err
		}
		if t := sem.Type(); !isBoolType(t) {
			return NewError(arg, IncompatibleOperandTypes,
				"predicate of %q must produce bool, got %s", n.Operator, typeName(t))
		}
		return nil
	}
	count := func() error {
		sem, err := SemanticsOf(arg)
		if err != nil {
			return err
		}
		if t := sem.Type(); !isIntType(t) {
			return NewError(arg, IncompatibleOperandTypes,
				"operator %q requires an integer count, got %s", n.Operator, typeName(t))
		}
		return nil
	}

	switch op.Kind {
	case provider.Where:
		if err := predicate(); err != nil {
			return nil, err
		}
		return &OperationSemantics{Op: op, Result: reflect.SliceOf(elem), Operand: boolType}, nil
	case provider.Project:
		selT, err := selector()
		if err != nil {
			return nil, err
		}
		if selT == nil {
			return nil, NewError(arg, IncompatibleOperandTypes, "cannot project null")
		}
		return &OperationSemantics{Op: op, Result: reflect.SliceOf(selT), Operand: selT}, nil
	case provider.Flatten:
		selT, err := selector()
		if err != nil {
			return nil, err
		}
		if !isSequence(selT) {
			return nil, NewError(arg, IncompatibleOperandTypes,
				"selector of %q must produce a sequence, got %s", n.Operator, typeName(selT))
		}
		return &OperationSemantics{Op: op, Result: reflect.SliceOf(selT.Elem()), Operand: selT}, nil
	case provider.Take, provider.Drop:
		if err := count(); err != nil {
			return nil, err
		}
		return &OperationSemantics{Op: op, Result: reflect.SliceOf(elem), Operand: int64Type}, nil
	case provider.Count:
		if err := predicate(); err != nil {
			return nil, err
		}
		return &OperationSemantics{Op: op, Result: int64Type, Operand: boolType}, nil
	case provider.Contains:
		sem, err := SemanticsOf(arg)
		if err != nil {
			return nil, err
		}
		common, err := operandType(arg, sem, elem)
		if err != nil {
			return nil, err
		}
		if common != nil && !common.Comparable() {
			return nil, NewError(n, IncompatibleOperandTypes,
				"values of type %s cannot be compared", common)
		}
		return &OperationSemantics{Op: op, Result: boolType, Operand: common}, nil
	case provider.ElementAt:
		if err := count(); err != nil {
			return nil, err
		}
		return &OperationSemantics{Op: op, Result: elem, Operand: int64Type}, nil
	case provider.Any:
		if err := predicate(); err != nil {
			return nil, err
		}
		return &OperationSemantics{Op: op, Result: boolType, Operand: boolType}, nil
	case provider.All:
		if _, ok := arg.(*ast.Literal); ok {
			return nil, NewError(n, ArityError, "operator %q requires a predicate", n.Operator)
		}
		if err := predicate(); err != nil {
			return nil, err
		}
		return &OperationSemantics{Op: op, Result: boolType, Operand: boolType}, nil
	case provider.Min, provider.Max:
		selT, err := selector()
		if err != nil {
			return nil, err
		}
		if !isOrdered(selT) {
			return nil, NewError(arg, IncompatibleOperandTypes,
				"operator %q requires an ordered selector, got %s", n.Operator, typeName(selT))
		}
		return &OperationSemantics{Op: op, Result: selT, Operand: selT}, nil
	case provider.Sum:
		selT, err := selector()
		if err != nil {
			return nil, err
		}
		if !isNumeric(selT) {
			return nil, NewError(arg, IncompatibleOperandTypes,
				"operator %q requires a numeric selector, got %s", n.Operator, typeName(selT))
		}
		result := int64Type
		if isFloatKind(selT.Kind()) {
			result = floatType
		}
		return &OperationSemantics{Op: op, Result: result, Operand: selT}, nil
	case provider.Average:
		selT, err := selector()
		if err != nil {
			return nil, err
		}
		if !isNumeric(selT) {
			return nil, NewError(arg, IncompatibleOperandTypes,
				"operator %q requires a numeric selector, got %s", n.Operator, typeName(selT))
		}
		return &OperationSemantics{Op: op, Result: floatType, Operand: selT}, nil
	}
	return nil, NewError(n, InvariantViolation, "operator %q has no provider kind", n.Operator)
}

// comparisonType reconciles the two sides of a comparison: exact type
// match, literal coercion toward the non-literal side, or numeric widening.
// A nil result with nil error is a null comparison.
func comparisonType(n ast.Node, lhsNode, rhsNode ast.Expr, lhs, rhs Semantics) (reflect.Type, error) {
	tl, tr := lhs.Type(), rhs.Type()
	switch {
	case tl == nil && tr == nil:
		return nil, nil
	case tl == nil:
		if !isNullable(tr) {
			return nil, NewError(n, IncompatibleOperandTypes,
				"type %s cannot be compared with null", tr)
		}
		return nil, nil
	case tr == nil:
		if !isNullable(tl) {
			return nil, NewError(n, IncompatibleOperandTypes,
				"type %s cannot be compared with null", tl)
		}
		return nil, nil
	}
	if _, ok := rhs.(*LiteralSemantics); ok {
		return operandType(rhsNode, rhs, tl)
	}
	if _, ok := lhs.(*LiteralSemantics); ok {
		return operandType(lhsNode, lhs, tr)
	}
	if common, ok := widenTypes(tl, tr); ok {
		return common, nil
	}
	return nil, NewError(n, IncompatibleOperandTypes,
		"incompatible operand types %s and %s", tl, tr)
}

// operandType reconciles one value expression against a target type.
func operandType(valueNode ast.Expr, value Semantics, target reflect.Type) (reflect.Type, error) {
	tv := value.Type()
	if tv == nil {
		if !isNullable(target) {
			return nil, NewError(valueNode, IncompatibleOperandTypes,
				"type %s cannot be compared with null", target)
		}
		return nil, nil
	}
	if tv == target {
		return target, nil
	}
	if sem, ok := value.(*LiteralSemantics); ok {
		if lit, ok := valueNode.(*ast.Literal); ok && coerceLiteral(lit, sem, target) {
			return target, nil
		}
	}
	if common, ok := widenTypes(tv, target); ok {
		return common, nil
	}
	return nil, NewError(valueNode, IncompatibleOperandTypes,
		"incompatible operand types %s and %s", typeName(target), typeName(tv))
}

// coerceLiteral rewrites the literal's memoized semantics to target when
// its value converts losslessly: integer literals widen to float types,
// string literals parse into time.Time, and same-kind conversions reach
// named types.  Lossy conversions are refused so a fractional literal never
// silently truncates against an integer field.
func coerceLiteral(lit *ast.Literal, sem *LiteralSemantics, target reflect.Type) bool {
	t := sem.Typ
	if t == nil || target == nil {
		return false
	}
	if t == target {
		return true
	}
	var converted any
	switch {
	case t.Kind() == reflect.String && target == timeType:
		parsed, err := dateparse.ParseAny(sem.Value.(string))
		if err != nil {
			return false
		}
		converted = parsed
	case isNumeric(t) && isNumeric(target):
		if isFloatKind(t.Kind()) && isIntKind(target.Kind()) {
			return false
		}
		v := reflect.ValueOf(sem.Value)
		if isIntKind(t.Kind()) && isIntKind(target.Kind()) {
			probe := reflect.New(target).Elem()
			switch {
			case probe.CanInt():
				if probe.OverflowInt(v.Int()) {
					return false
				}
			case probe.CanUint():
				if v.Int() < 0 || probe.OverflowUint(uint64(v.Int())) {
					return false
				}
			}
		}
		converted = v.Convert(target).Interface()
	case t.Kind() == target.Kind():
		converted = reflect.ValueOf(sem.Value).Convert(target).Interface()
	default:
		return false
	}
	sem.Typ = target
	sem.Value = converted
	return true
}
