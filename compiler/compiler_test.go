package compiler_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/jsqlang/jsq/compiler"
	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/semantic"
	"github.com/jsqlang/jsq/compiler/srcfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type email string

type account struct {
	Nickname string  `json:"nickname"`
	Email    email   `json:"email"`
	Balance  float64 `json:"balance"`
}

var accounts = []account{
	{Nickname: "ada", Email: "ada@example.com", Balance: 120},
	{Nickname: "jacques", Email: "jacques@example.com", Balance: 10},
	{Nickname: "grace", Email: "grace@example.com", Balance: 87.5},
	{Nickname: "alan", Email: "alan@example.com", Balance: 0},
}

var accountType = reflect.TypeOf(account{})

func TestCompileEndToEnd(t *testing.T) {
	const query = `{ $filter: {nickname: 'jacques'}, $select: {nickname: nickname, email: email} }`
	for _, suspendable := range []bool{false, true} {
		name := "sync"
		if suspendable {
			name = "suspendable"
		}
		t.Run(name, func(t *testing.T) {
			plan, err := compiler.Compile(query, accountType,
				compiler.Settings{UseSuspendableProvider: suspendable})
			require.NoError(t, err)
			out, err := plan.Run(context.Background(), accounts)
			require.NoError(t, err)
			rows := reflect.ValueOf(out)
			require.Equal(t, 1, rows.Len())
			row := rows.Index(0)
			assert.Equal(t, "jacques", row.FieldByName("Nickname").String())
			assert.Equal(t, "jacques@example.com", row.FieldByName("Email").String())
		})
	}
}

func TestCompileTwiceBehavesSame(t *testing.T) {
	const query = `{ $filter: {balance: {$gt: 0}}, $select: nickname }`
	first, err := compiler.Compile(query, accountType, compiler.Settings{})
	require.NoError(t, err)
	second, err := compiler.Compile(query, accountType, compiler.Settings{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	outFirst, err := first.Run(context.Background(), accounts)
	require.NoError(t, err)
	outSecond, err := second.Run(context.Background(), accounts)
	require.NoError(t, err)
	assert.Equal(t, outFirst, outSecond)
	assert.Equal(t, []string{"ada", "jacques", "grace"}, outFirst)
}

func TestCompileErrorsRenderSourceContext(t *testing.T) {
	_, err := compiler.Compile(`{ $filter: {salary: {$gt: 10}} }`, accountType, compiler.Settings{})
	require.Error(t, err)
	assert.True(t, semantic.IsCode(err, semantic.FieldNotFound))
	msg := err.Error()
	assert.Contains(t, msg, `field "salary" not found`)
	assert.Contains(t, msg, "at line 1, column")
	assert.Contains(t, msg, "~")
}

func TestParseErrorsRenderSourceContext(t *testing.T) {
	_, err := compiler.Compile("{\n  $filter: }", accountType, compiler.Settings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at line 2")
}

func TestCompileFileNamesFile(t *testing.T) {
	file := srcfile.New("queries/bad.jsq", `{ $filter: {salary: 1} }`)
	_, err := compiler.CompileFile(file, accountType, compiler.Settings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in queries/bad.jsq")
}

func TestCompileAST(t *testing.T) {
	const treeJSON = `{
		"kind": "Query",
		"body": {
			"kind": "Operation",
			"operator": "$count",
			"operands": [
				{"kind": "Reference", "ident": "<source>"},
				{"kind": "Literal", "type": "bool", "text": "true"}
			]
		}
	}`
	root, err := ast.UnmarshalQuery([]byte(treeJSON))
	require.NoError(t, err)
	plan, err := compiler.CompileAST(root, accountType, compiler.Settings{})
	require.NoError(t, err)
	out, err := plan.Run(context.Background(), accounts)
	require.NoError(t, err)
	assert.Equal(t, int64(4), out)
}

func TestCompileASTErrorsHaveNoLocation(t *testing.T) {
	root, err := compiler.Parse(`{ $filter: {salary: 1} }`)
	require.NoError(t, err)
	_, err = compiler.CompileAST(root, accountType, compiler.Settings{})
	require.Error(t, err)
	assert.True(t, semantic.IsCode(err, semantic.FieldNotFound))
	assert.NotContains(t, err.Error(), "at line")
}

func TestAnalyze(t *testing.T) {
	root, err := compiler.Parse(`{ $filter: {balance: {$gte: 10}} }`)
	require.NoError(t, err)
	ctx, err := compiler.Analyze(root, accountType,
		compiler.Settings{UseSuspendableProvider: true})
	require.NoError(t, err)
	assert.Equal(t, reflect.SliceOf(accountType), ctx.Source)
	assert.True(t, ctx.Suspendable)
	assert.Same(t, root, ctx.Root())
}
