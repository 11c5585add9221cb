package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsqlang/jsq/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.Root()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

const accountSchema = `
name: account
fields:
  nickname: string
  age: int
`

func TestCompileCanonical(t *testing.T) {
	out, err := execute(t, "compile", "-C", "{$filter: {age: {$gte: 21}}, $count: true}")
	require.NoError(t, err)
	assert.Equal(t, "{\n  $filter: {age: {$gte: 21}},\n  $count: true\n}\n", out)
}

func TestCompileAST(t *testing.T) {
	out, err := execute(t, "compile", "--ast", "{ $count: true }")
	require.NoError(t, err)
	assert.Contains(t, out, `"kind"`)
	assert.Contains(t, out, `"$count"`)
}

func TestCompilePlanDescription(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "account.yaml", accountSchema)
	out, err := execute(t, "compile", "-s", schemaPath, "{ $count: true }")
	require.NoError(t, err)
	assert.Contains(t, out, "plan ")
	assert.Contains(t, out, "-> int64")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "account.yaml", accountSchema)
	inputPath := writeFile(t, dir, "rows.yaml",
		"- {nickname: ada, age: 36}\n- {nickname: grace, age: 45}\n")
	out, err := execute(t, "run", "-s", schemaPath,
		"{$filter: {age: {$gte: 40}}, $select: nickname}", inputPath)
	require.NoError(t, err)
	assert.Equal(t, "- grace\n", out)
}

func TestRunSuspendable(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "account.yaml", accountSchema)
	inputPath := writeFile(t, dir, "rows.yaml",
		"- {nickname: ada, age: 36}\n- {nickname: grace, age: 45}\n")
	out, err := execute(t, "run", "-s", schemaPath, "--suspendable",
		"{$filter: {age: {$gte: 40}}, $count: true}", inputPath)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestRunRequiresSchema(t *testing.T) {
	t.Setenv("JSQ_SCHEMA", "")
	dir := t.TempDir()
	inputPath := writeFile(t, dir, "rows.yaml", "- {nickname: ada}\n")
	_, err := execute(t, "run", "{ $count: true }", inputPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no element schema")
}

func TestCompileReportsLocatedErrors(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "account.yaml", accountSchema)
	_, err := execute(t, "compile", "-s", schemaPath, "{ $filter: {salary: 1} }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "salary" not found`)
	assert.Contains(t, err.Error(), "at line 1")
}
