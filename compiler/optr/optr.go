// Package optr classifies the closed set of JSQ operators.  The parser uses
// the table to recognize $-tokens and pick shaping rules; the analyzer uses
// it for arity and category checks; the plan generator uses it to select
// provider operator kinds.
package optr

import "github.com/jsqlang/jsq/runtime/provider"

type Category int

const (
	Invalid Category = iota
	Arithmetic
	Relational
	StringRelational
	Logical
	Semantic
	CollectionManipulation
	CollectionAggregation
)

var categoryNames = map[Category]string{
	Invalid:                "invalid",
	Arithmetic:             "arithmetic",
	Relational:             "relational",
	StringRelational:       "string-relational",
	Logical:                "logical",
	Semantic:               "semantic",
	CollectionManipulation: "collection-manipulation",
	CollectionAggregation:  "collection-aggregation",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "invalid"
}

// Op describes one classified operator.  MaxArity of -1 means unbounded.
// Kind is set for collection operators only.
type Op struct {
	Token    string
	Category Category
	MinArity int
	MaxArity int
	Kind     provider.Kind
}

// IsCollection reports whether the operator consumes a source sequence as
// its first operand.
func (o Op) IsCollection() bool {
	return o.Category == CollectionManipulation || o.Category == CollectionAggregation
}

// CheckArity reports whether n operands satisfy the operator.
func (o Op) CheckArity(n int) bool {
	if n < o.MinArity {
		return false
	}
	return o.MaxArity < 0 || n <= o.MaxArity
}

var ops = map[string]Op{
	"$add": {"$add", Arithmetic, 2, -1, provider.KindInvalid},
	"$sub": {"$sub", Arithmetic, 2, 2, provider.KindInvalid},
	"$mul": {"$mul", Arithmetic, 2, -1, provider.KindInvalid},
	"$div": {"$div", Arithmetic, 2, 2, provider.KindInvalid},
	"$mod": {"$mod", Arithmetic, 2, 2, provider.KindInvalid},

	"$eq":  {"$eq", Relational, 2, 2, provider.KindInvalid},
	"$ne":  {"$ne", Relational, 2, 2, provider.KindInvalid},
	"$gt":  {"$gt", Relational, 2, 2, provider.KindInvalid},
	"$gte": {"$gte", Relational, 2, 2, provider.KindInvalid},
	"$lt":  {"$lt", Relational, 2, 2, provider.KindInvalid},
	"$lte": {"$lte", Relational, 2, 2, provider.KindInvalid},

	"$startsWith": {"$startsWith", StringRelational, 2, 2, provider.KindInvalid},
	"$endsWith":   {"$endsWith", StringRelational, 2, 2, provider.KindInvalid},
	"$has":        {"$has", StringRelational, 2, 2, provider.KindInvalid},

	"$and": {"$and", Logical, 2, -1, provider.KindInvalid},
	"$or":  {"$or", Logical, 2, -1, provider.KindInvalid},
	"$not": {"$not", Logical, 1, 1, provider.KindInvalid},

	"$match": {"$match", Semantic, 2, 2, provider.KindInvalid},

	"$filter":     {"$filter", CollectionManipulation, 2, 2, provider.Where},
	"$select":     {"$select", CollectionManipulation, 2, 2, provider.Project},
	"$selectMany": {"$selectMany", CollectionManipulation, 2, 2, provider.Flatten},
	"$take":       {"$take", CollectionManipulation, 2, 2, provider.Take},
	"$skip":       {"$skip", CollectionManipulation, 2, 2, provider.Drop},

	"$count":    {"$count", CollectionAggregation, 2, 2, provider.Count},
	"$contains": {"$contains", CollectionAggregation, 2, 2, provider.Contains},
	"$index":    {"$index", CollectionAggregation, 2, 2, provider.ElementAt},
	"$any":      {"$any", CollectionAggregation, 2, 2, provider.Any},
	"$all":      {"$all", CollectionAggregation, 2, 2, provider.All},
	"$min":      {"$min", CollectionAggregation, 2, 2, provider.Min},
	"$max":      {"$max", CollectionAggregation, 2, 2, provider.Max},
	"$sum":      {"$sum", CollectionAggregation, 2, 2, provider.Sum},
	"$average":  {"$average", CollectionAggregation, 2, 2, provider.Average},
}

// Lookup returns the classification of token.
func Lookup(token string) (Op, bool) {
	op, ok := ops[token]
	return op, ok
}
