package semantic_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/parser"
	"github.com/jsqlang/jsq/compiler/semantic"
)

type address struct {
	City string `json:"city"`
	Zip  string `json:"zip"`
}

type order struct {
	ID     int64     `json:"id"`
	Total  float64   `json:"total"`
	Placed time.Time `json:"placed"`
}

type account struct {
	Name    string    `json:"name"`
	Age     int       `json:"age"`
	Active  bool      `json:"active"`
	Balance float64   `json:"balance"`
	Created time.Time `json:"created"`
	Address *address  `json:"address"`
	Orders  []order   `json:"orders"`
	Tags    []string  `json:"tags"`
}

func analyze(t *testing.T, src string) *ast.Query {
	t.Helper()
	q, err := parser.ParseString(src)
	require.NoError(t, err)
	require.NoError(t, semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{}))))
	return q
}

func analyzeErr(t *testing.T, src string) *semantic.Error {
	t.Helper()
	q, err := parser.ParseString(src)
	require.NoError(t, err)
	err = semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{})))
	require.Error(t, err)
	serr, ok := semantic.AsError(err)
	require.True(t, ok, "expected a semantic error, got %T", err)
	return serr
}

func findOp(t *testing.T, q *ast.Query, token string) *ast.Operation {
	t.Helper()
	var found *ast.Operation
	ast.Walk(q, func(n ast.Node) bool {
		if op, ok := n.(*ast.Operation); ok && found == nil && op.Operator == token {
			found = op
		}
		return true
	})
	require.NotNil(t, found, "no %s operation in tree", token)
	return found
}

func findLiteral(t *testing.T, q *ast.Query, text string) *ast.Literal {
	t.Helper()
	var found *ast.Literal
	ast.Walk(q, func(n ast.Node) bool {
		if lit, ok := n.(*ast.Literal); ok && found == nil && lit.Text == text {
			found = lit
		}
		return true
	})
	require.NotNil(t, found, "no literal %q in tree", text)
	return found
}

func mustSemantics(t *testing.T, n ast.Node) semantic.Semantics {
	t.Helper()
	sem, err := semantic.SemanticsOf(n)
	require.NoError(t, err)
	return sem
}

func TestResultTypes(t *testing.T) {
	cases := []struct {
		query string
		want  reflect.Type
	}{
		{"{}", reflect.TypeOf([]account{})},
		{"{$filter: {age: {$gte: 18}}}", reflect.TypeOf([]account{})},
		{"{$filter: {name: 'Ann'}}", reflect.TypeOf([]account{})},
		{"{$filter: {tags: null}}", reflect.TypeOf([]account{})},
		{"{$skip: 5, $take: 10}", reflect.TypeOf([]account{})},
		{"{$count: true}", reflect.TypeOf(int64(0))},
		{"{$filter: {active: true}, $count: true}", reflect.TypeOf(int64(0))},
		{"{$count: {active: true}}", reflect.TypeOf(int64(0))},
		{"{$sum: balance}", reflect.TypeOf(float64(0))},
		{"{$sum: age}", reflect.TypeOf(int64(0))},
		{"{$average: age}", reflect.TypeOf(float64(0))},
		{"{$min: created}", reflect.TypeOf(time.Time{})},
		{"{$max: name}", reflect.TypeOf("")},
		{"{$index: 0}", reflect.TypeOf(account{})},
		{"{$any: {balance: {$gt: 1000}}}", reflect.TypeOf(false)},
		{"{$all: {active: true}}", reflect.TypeOf(false)},
	}
	for _, c := range cases {
		t.Run(c.query, func(t *testing.T) {
			q := analyze(t, c.query)
			assert.Equal(t, c.want, semantic.ResultType(q))
		})
	}
}

func TestSelectSynthesizesStruct(t *testing.T) {
	q := analyze(t, "{$select: {name: name, years: age}}")
	result := semantic.ResultType(q)
	require.Equal(t, reflect.Slice, result.Kind())
	elem := result.Elem()
	require.Equal(t, reflect.Struct, elem.Kind())
	require.Equal(t, 2, elem.NumField())
	name := elem.Field(0)
	assert.Equal(t, "Name", name.Name)
	assert.Equal(t, reflect.TypeOf(""), name.Type)
	assert.Equal(t, reflect.StructTag(`json:"name" yaml:"name"`), name.Tag)
	years := elem.Field(1)
	assert.Equal(t, "Years", years.Name)
	assert.Equal(t, reflect.TypeOf(0), years.Type)
	assert.Equal(t, reflect.StructTag(`json:"years" yaml:"years"`), years.Tag)
}

func TestProjectionArithmetic(t *testing.T) {
	q := analyze(t, "{$select: {total: {$add: [balance, 10]}}}")
	elem := semantic.ResultType(q).Elem()
	require.Equal(t, 1, elem.NumField())
	assert.Equal(t, reflect.TypeOf(float64(0)), elem.Field(0).Type)
}

func TestChainedStagesPropagateTypes(t *testing.T) {
	q := analyze(t, "{$select: {city: address.city}, $filter: {city: {$startsWith: 'O'}}}")
	result := semantic.ResultType(q)
	require.Equal(t, reflect.Slice, result.Kind())
	elem := result.Elem()
	require.Equal(t, 1, elem.NumField())
	assert.Equal(t, "City", elem.Field(0).Name)
	assert.Equal(t, reflect.TypeOf(""), elem.Field(0).Type)

	sem := mustSemantics(t, findOp(t, q, "$startsWith")).(*semantic.OperationSemantics)
	assert.Equal(t, reflect.TypeOf(""), sem.Operand)
}

func TestMemberResolution(t *testing.T) {
	// Case-insensitive fallback.
	analyze(t, "{$filter: {AGE: {$gte: 21}}}")

	// Dotted paths cross pointers; the leaf member records the deref.
	q := analyze(t, "{$filter: {address.city: 'Odense'}}")
	var city *ast.MemberAccess
	ast.Walk(q, func(n ast.Node) bool {
		if m, ok := n.(*ast.MemberAccess); ok && m.Name == "city" {
			city = m
		}
		return true
	})
	require.NotNil(t, city)
	sem := mustSemantics(t, city).(*semantic.MemberSemantics)
	assert.True(t, sem.Indirect)
	assert.Equal(t, "City", sem.Field.Name)
	assert.Equal(t, reflect.TypeOf(address{}), sem.Owner)
}

func TestTimeCoercion(t *testing.T) {
	q := analyze(t, "{$filter: {created: {$gt: '2024-01-15'}}}")
	sem := mustSemantics(t, findLiteral(t, q, "2024-01-15")).(*semantic.LiteralSemantics)
	require.Equal(t, reflect.TypeOf(time.Time{}), sem.Typ)
	ts, ok := sem.Value.(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())
	assert.Equal(t, time.January, ts.Month())
	assert.Equal(t, 15, ts.Day())
}

func TestIntLiteralWidensToFloat(t *testing.T) {
	q := analyze(t, "{$filter: {balance: {$gt: 100}}}")
	lit := mustSemantics(t, findLiteral(t, q, "100")).(*semantic.LiteralSemantics)
	assert.Equal(t, reflect.TypeOf(float64(0)), lit.Typ)
	assert.Equal(t, float64(100), lit.Value)
	op := mustSemantics(t, findOp(t, q, "$gt")).(*semantic.OperationSemantics)
	assert.Equal(t, reflect.TypeOf(float64(0)), op.Operand)
}

func TestFloatComparesAgainstIntMember(t *testing.T) {
	// 21.5 cannot narrow to int, so the comparison widens instead.
	q := analyze(t, "{$filter: {age: {$lt: 21.5}}}")
	lit := mustSemantics(t, findLiteral(t, q, "21.5")).(*semantic.LiteralSemantics)
	assert.Equal(t, reflect.TypeOf(float64(0)), lit.Typ)
	op := mustSemantics(t, findOp(t, q, "$lt")).(*semantic.OperationSemantics)
	assert.Equal(t, reflect.TypeOf(float64(0)), op.Operand)
}

func TestNestedLambdaShadowsElement(t *testing.T) {
	// Inside the $any predicate the element is an order, so total
	// resolves but balance does not.
	analyze(t, "{$filter: {orders: {$any: {total: {$gt: 100}}}}}")

	serr := analyzeErr(t, "{$filter: {orders: {$any: {total: {$gt: balance}}}}}")
	assert.Equal(t, semantic.FieldNotFound, serr.Code)
	assert.Contains(t, serr.Error(), `"balance"`)
}

func TestAnalyzeErrors(t *testing.T) {
	cases := []struct {
		name  string
		query string
		code  semantic.Code
		msg   string
	}{
		{
			"unknown field",
			"{$filter: {salary: {$gt: 10}}}",
			semantic.FieldNotFound,
			`field "salary" not found`,
		},
		{
			"member of scalar",
			"{$filter: {age.digits: 1}}",
			semantic.FieldNotFound,
			"type int has no field",
		},
		{
			"string against int",
			"{$filter: {age: {$eq: 'x'}}}",
			semantic.IncompatibleOperandTypes,
			"incompatible operand types",
		},
		{
			"unparseable timestamp",
			"{$filter: {created: {$gt: 'not a date'}}}",
			semantic.IncompatibleOperandTypes,
			"incompatible operand types",
		},
		{
			"ordering booleans",
			"{$filter: {active: {$gt: false}}}",
			semantic.IncompatibleOperandTypes,
			"cannot order values of type bool",
		},
		{
			"null against value type",
			"{$filter: {age: {$eq: null}}}",
			semantic.IncompatibleOperandTypes,
			"cannot be compared with null",
		},
		{
			"fractional count",
			"{$take: 2.5}",
			semantic.IncompatibleOperandTypes,
			"integer count",
		},
		{
			"scalar as source",
			"{$filter: {age: {$any: {id: 1}}}}",
			semantic.NotQueryable,
			"type int is not queryable",
		},
		{
			"all needs a predicate",
			"{$all: true}",
			semantic.ArityError,
			"requires a predicate",
		},
		{
			"sum of strings",
			"{$sum: name}",
			semantic.IncompatibleOperandTypes,
			"numeric selector",
		},
		{
			"min of structs",
			"{$min: orders}",
			semantic.IncompatibleOperandTypes,
			"ordered selector",
		},
		{
			"string operator on int",
			"{$filter: {age: {$startsWith: 'x'}}}",
			semantic.IncompatibleOperandTypes,
			"string operands",
		},
		{
			"mod of floats",
			"{$select: {r: {$mod: [balance, 2]}}}",
			semantic.IncompatibleOperandTypes,
			"integer operands",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			serr := analyzeErr(t, c.query)
			assert.Equal(t, c.code, serr.Code, "got: %s", serr)
			assert.Contains(t, serr.Error(), c.msg)
		})
	}
}

func TestArityCheckedOnRawTrees(t *testing.T) {
	loc := ast.NewLoc(0, 1)
	src := ast.NewReference(ast.SourceIdent, loc)
	op := ast.NewOperation("$filter", []ast.Expr{src}, loc)
	q := ast.NewQuery(op, loc)
	err := semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{})))
	require.Error(t, err)
	assert.True(t, semantic.IsCode(err, semantic.ArityError))
	assert.Contains(t, err.Error(), "expects 2 operands, got 1")
}

func TestNoOperandsOnRawTrees(t *testing.T) {
	loc := ast.NewLoc(0, 1)
	op := ast.NewOperation("$count", nil, loc)
	q := ast.NewQuery(op, loc)
	err := semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{})))
	require.Error(t, err)
	assert.True(t, semantic.IsCode(err, semantic.ArityError))
}

func TestUnknownOperatorOnRawTrees(t *testing.T) {
	loc := ast.NewLoc(0, 1)
	src := ast.NewReference(ast.SourceIdent, loc)
	lit := ast.NewLiteral(ast.LitBool, "true", true, loc)
	op := ast.NewOperation("$frobnicate", []ast.Expr{src, lit}, loc)
	q := ast.NewQuery(op, loc)
	err := semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{})))
	require.Error(t, err)
	assert.True(t, semantic.IsCode(err, semantic.MalformedTree))
}

func TestUnknownSymbol(t *testing.T) {
	loc := ast.NewLoc(0, 1)
	q := ast.NewQuery(ast.NewReference("mystery", loc), loc)
	err := semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{})))
	require.Error(t, err)
	assert.True(t, semantic.IsCode(err, semantic.SymbolNotFound))
	assert.Contains(t, err.Error(), `"mystery"`)
}

func TestStructuralMatch(t *testing.T) {
	loc := ast.NewLoc(0, 1)
	build := func(propName string, value ast.Expr) *ast.Query {
		member := ast.NewMemberAccess(ast.NewReference(ast.ElementIdent, loc), "address", loc)
		pattern := ast.NewAnonymousObject([]*ast.AnonymousObjectProperty{
			ast.NewAnonymousObjectProperty(propName, value, loc),
		}, loc)
		match := ast.NewOperation("$match", []ast.Expr{member, pattern}, loc)
		filter := ast.NewOperation("$filter",
			[]ast.Expr{ast.NewReference(ast.SourceIdent, loc), match}, loc)
		return ast.NewQuery(filter, loc)
	}

	q := build("city", ast.NewLiteral(ast.LitString, "Odense", "Odense", loc))
	require.NoError(t, semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{}))))
	pattern := findOp(t, q, "$match").Operands[1].(*ast.AnonymousObject)
	objSem := mustSemantics(t, pattern).(*semantic.ObjectSemantics)
	assert.Equal(t, reflect.TypeOf(address{}), objSem.Struct)
	propSem := mustSemantics(t, pattern.Properties[0]).(*semantic.PropertySemantics)
	assert.Equal(t, "City", propSem.Field.Name)

	q = build("country", ast.NewLiteral(ast.LitString, "DK", "DK", loc))
	err := semantic.Analyze(q, semantic.NewContext(reflect.TypeOf(account{})))
	require.Error(t, err)
	assert.True(t, semantic.IsCode(err, semantic.FieldNotFound))
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	q, err := parser.ParseString("{$filter: {balance: {$gt: 100}}}")
	require.NoError(t, err)
	ctx := semantic.NewContext(reflect.TypeOf(account{}))
	require.NoError(t, semantic.Analyze(q, ctx))
	first := mustSemantics(t, findLiteral(t, q, "100"))

	require.NoError(t, semantic.Analyze(q, ctx))
	second := mustSemantics(t, findLiteral(t, q, "100"))
	assert.Same(t, first, second)
	assert.Equal(t, reflect.TypeOf(float64(0)), second.(*semantic.LiteralSemantics).Typ)
	assert.Equal(t, reflect.TypeOf([]account{}), semantic.ResultType(q))
}

func TestScopes(t *testing.T) {
	outer := semantic.NewScope(nil)
	require.NoError(t, outer.Declare(semantic.NewSourceSymbol(reflect.TypeOf([]account{}))))
	inner := semantic.NewScope(outer)
	elemSym := semantic.NewParameterSymbol(reflect.TypeOf(account{}))
	require.NoError(t, inner.Declare(elemSym))

	assert.Same(t, outer, inner.Parent())
	assert.NotNil(t, inner.Resolve(ast.SourceIdent))
	assert.Equal(t, semantic.Symbol(elemSym), inner.Resolve(ast.ElementIdent))
	assert.Nil(t, outer.Resolve(ast.ElementIdent))
	assert.Nil(t, inner.Resolve("nope"))

	assert.True(t, inner.Contains(ast.SourceIdent, true))
	assert.False(t, inner.Contains(ast.SourceIdent, false))
	assert.True(t, inner.Contains(ast.ElementIdent, false))

	err := inner.Declare(semantic.NewParameterSymbol(reflect.TypeOf(order{})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redefined")

	// Shadowing the source in a child scope is legal.
	child := semantic.NewScope(inner)
	require.NoError(t, child.Declare(semantic.NewSourceSymbol(reflect.TypeOf([]order{}))))
	assert.Equal(t, reflect.TypeOf([]order{}), child.Resolve(ast.SourceIdent).Type())
	assert.Equal(t, reflect.TypeOf([]account{}), inner.Resolve(ast.SourceIdent).Type())
}

func TestScalarSequenceAggregations(t *testing.T) {
	q := analyze(t, "{$filter: {tags: {$contains: 'go'}}}")
	sem := mustSemantics(t, findOp(t, q, "$contains")).(*semantic.OperationSemantics)
	assert.Equal(t, reflect.TypeOf(false), sem.Result)
	assert.Equal(t, reflect.TypeOf(""), sem.Operand)

	q = analyze(t, "{$filter: {$eq: [{$count: [orders, {total: {$gte: 50}}]}, 2]}}")
	sem = mustSemantics(t, findOp(t, q, "$count")).(*semantic.OperationSemantics)
	assert.Equal(t, reflect.TypeOf(int64(0)), sem.Result)
}
