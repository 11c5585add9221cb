package parser_test

import (
	"testing"

	"github.com/jsqlang/jsq/compiler/parser"
	"github.com/jsqlang/jsq/compiler/qfmt"
)

// FuzzParse feeds arbitrary text to the parser and, for anything that
// parses, checks that the canonical form reparses to the same canonical
// text.  The seeds cover each sugared form the grammar accepts.
func FuzzParse(f *testing.F) {
	for _, seed := range []string{
		"{}",
		"{ $filter: {age: {$gte: 21}} }",
		"{ $filter: {nickname: 'jacques'}, $select: {nickname: nickname, email: email} }",
		"{ $filter: {address: {city: 'london'}}, $skip: 1, $take: 2 }",
		"{ $filter: {$or: [{active: true}, {$not: {balance: 0}}]} }",
		"{ $filter: {'weird key.nested': null} }",
		"{ $select: {worth: {$mul: [balance, 2]}}, $count: true }",
		"{ $count: {orders: {$any: {total: {$gt: 200}}}} }",
		"{ $min: created }",
		"{ $sum: [orders, total] }",
		"{ $filter: {$match: [age, 21]}, $index: 0 }",
		"{ $filter: {tags: {$contains: 'a\\'b'}} }",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, src string) {
		root, err := parser.ParseString(src)
		if err != nil {
			return
		}
		canonical := qfmt.Query(root)
		again, err := parser.ParseString(canonical)
		if err != nil {
			t.Fatalf("canonical form does not reparse: %s\nsource: %q\ncanonical:\n%s", err, src, canonical)
		}
		if second := qfmt.Query(again); second != canonical {
			t.Fatalf("canonical form is not a fixed point\nsource: %q\nfirst:\n%s\nsecond:\n%s", src, canonical, second)
		}
	})
}
