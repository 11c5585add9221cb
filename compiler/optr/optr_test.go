package optr_test

import (
	"testing"

	"github.com/jsqlang/jsq/compiler/optr"
	"github.com/jsqlang/jsq/runtime/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	op, ok := optr.Lookup("$filter")
	require.True(t, ok)
	assert.Equal(t, optr.CollectionManipulation, op.Category)
	assert.Equal(t, provider.Where, op.Kind)
	assert.True(t, op.IsCollection())

	op, ok = optr.Lookup("$gt")
	require.True(t, ok)
	assert.Equal(t, optr.Relational, op.Category)
	assert.False(t, op.IsCollection())

	_, ok = optr.Lookup("$frobnicate")
	assert.False(t, ok)
	_, ok = optr.Lookup("filter")
	assert.False(t, ok)
}

func TestArity(t *testing.T) {
	add, _ := optr.Lookup("$add")
	assert.False(t, add.CheckArity(1))
	assert.True(t, add.CheckArity(2))
	assert.True(t, add.CheckArity(7))

	not, _ := optr.Lookup("$not")
	assert.True(t, not.CheckArity(1))
	assert.False(t, not.CheckArity(2))

	filter, _ := optr.Lookup("$filter")
	assert.False(t, filter.CheckArity(0))
	assert.False(t, filter.CheckArity(1))
	assert.True(t, filter.CheckArity(2))
	assert.False(t, filter.CheckArity(3))
}

func TestCollectionKinds(t *testing.T) {
	for token, kind := range map[string]provider.Kind{
		"$select":     provider.Project,
		"$selectMany": provider.Flatten,
		"$take":       provider.Take,
		"$skip":       provider.Drop,
		"$count":      provider.Count,
		"$index":      provider.ElementAt,
		"$average":    provider.Average,
	} {
		op, ok := optr.Lookup(token)
		require.True(t, ok, token)
		assert.Equal(t, kind, op.Kind, token)
	}
}
