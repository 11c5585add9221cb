// Package parser turns JSQ query text into a syntax tree.
//
// A query is a JSON-shaped pipeline: the root object is an ordered sequence
// of collection operators applied to the implicit source, and operand
// objects are shaped by operator category.  Predicate objects desugar
// field/value pairs into match operations joined by $and, projection
// objects become anonymous objects, and scalar operands are literals,
// member paths, or single-operator applications.  Member paths root at the
// reserved "<element>" reference and are resolved later by the analyzer.
package parser

import (
	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/srcfile"
)

// Parse parses the query text held by file.
func Parse(file *srcfile.File) (*ast.Query, error) {
	p := &parser{file: file, lexer: newLexer(file)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseQuery()
}

// ParseString parses inline query text.
func ParseString(text string) (*ast.Query, error) {
	return Parse(srcfile.New("", text))
}
