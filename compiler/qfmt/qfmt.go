// Package qfmt renders parsed query trees back to canonical JSQ text.
// Pipelines print one stage per line; nested expressions stay inline.  The
// printer prefers the sugared predicate forms the parser accepts, falling
// back to explicit operand arrays where no sugar applies, so formatting a
// parsed query and reparsing the output yields the same shape.
package qfmt

import (
	"slices"
	"strings"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/optr"
)

// Query formats a whole query as a root pipeline.
func Query(q *ast.Query) string {
	c := &canon{formatter{tab: 2}}
	stages, ok := pipelineStages(q.Body)
	if !ok {
		c.expr(q.Body)
		return c.String()
	}
	if len(stages) == 0 {
		return "{}"
	}
	c.open("{")
	for i, stage := range stages {
		if i > 0 {
			c.write(",")
		}
		c.ret()
		c.write("%s: ", stage.Operator)
		c.stageOperand(stage)
	}
	c.close()
	c.ret()
	c.write("}")
	return c.String()
}

// Expr formats a single expression inline.
func Expr(e ast.Expr) string {
	c := &canon{formatter{tab: 2}}
	c.expr(e)
	return c.String()
}

// pipelineStages unwinds the chain of collection operations whose source
// edge reaches the implicit source reference, in stage order.
func pipelineStages(e ast.Expr) ([]*ast.Operation, bool) {
	var rev []*ast.Operation
	for {
		op, ok := e.(*ast.Operation)
		if !ok || len(op.Operands) != 2 {
			break
		}
		if info, known := optr.Lookup(op.Operator); !known || !info.IsCollection() {
			break
		}
		rev = append(rev, op)
		e = op.Operands[0]
	}
	ref, ok := e.(*ast.Reference)
	if !ok || ref.Ident != ast.SourceIdent {
		return nil, false
	}
	slices.Reverse(rev)
	return rev, true
}

type canon struct {
	formatter
}

func (c *canon) stageOperand(op *ast.Operation) {
	arg := op.Operands[1]
	switch op.Operator {
	case "$filter", "$count", "$any", "$all":
		c.predicate(arg)
	case "$select", "$selectMany":
		c.projection(arg)
	default:
		c.expr(arg)
	}
}

// predicate prints a predicate operand: the placeholder literal stays
// bare, everything else becomes a braced term list.
func (c *canon) predicate(e ast.Expr) {
	if lit, ok := e.(*ast.Literal); ok && lit.Type == ast.LitBool {
		c.literal(lit)
		return
	}
	c.write("{")
	if op, ok := e.(*ast.Operation); ok && op.Operator == "$and" {
		for i, term := range op.Operands {
			if i > 0 {
				c.write(", ")
			}
			c.predTerm(term)
		}
	} else {
		c.predTerm(e)
	}
	c.write("}")
}

func (c *canon) predTerm(e ast.Expr) {
	op, ok := e.(*ast.Operation)
	if !ok {
		// A bare boolean expression has no key form; compare against true.
		c.write("$match: [")
		c.expr(e)
		c.write(", true]")
		return
	}
	switch op.Operator {
	case "$not":
		c.write("$not: ")
		c.predicate(op.Operands[0])
		return
	case "$and", "$or":
		c.write("%s: [", op.Operator)
		for i, term := range op.Operands {
			if i > 0 {
				c.write(", ")
			}
			c.predicate(term)
		}
		c.write("]")
		return
	}
	if len(op.Operands) == 2 {
		if path, ok := keyPath(op.Operands[0]); ok {
			c.memberTerm(path, op)
			return
		}
	}
	c.opApplication(op)
}

// memberTerm prints the "path: ..." sugar for an operation whose first
// operand is an element-rooted member path.
func (c *canon) memberTerm(path string, op *ast.Operation) {
	arg := op.Operands[1]
	if op.Operator == "$match" {
		c.write("%s: ", path)
		if obj, ok := arg.(*ast.AnonymousObject); ok {
			c.matchPattern(obj)
			return
		}
		c.expr(arg)
		return
	}
	c.write("%s: {%s: ", path, op.Operator)
	switch op.Operator {
	case "$count", "$any", "$all":
		c.predicate(arg)
	case "$select", "$selectMany":
		c.projection(arg)
	default:
		c.expr(arg)
	}
	c.write("}")
}

// matchPattern prints a structural pattern as nested member descent.
func (c *canon) matchPattern(obj *ast.AnonymousObject) {
	c.write("{")
	for i, p := range obj.Properties {
		if i > 0 {
			c.write(", ")
		}
		c.write("%s: ", keyName(p.Name))
		if nested, ok := p.Value.(*ast.AnonymousObject); ok {
			c.matchPattern(nested)
			continue
		}
		c.expr(p.Value)
	}
	c.write("}")
}

func (c *canon) projection(e ast.Expr) {
	if obj, ok := e.(*ast.AnonymousObject); ok {
		c.object(obj)
		return
	}
	c.expr(e)
}

func (c *canon) object(obj *ast.AnonymousObject) {
	c.write("{")
	for i, p := range obj.Properties {
		if i > 0 {
			c.write(", ")
		}
		c.write("%s: ", keyName(p.Name))
		c.projection(p.Value)
	}
	c.write("}")
}

// opApplication prints an operator application as an object property
// without surrounding braces.
func (c *canon) opApplication(op *ast.Operation) {
	info, known := optr.Lookup(op.Operator)
	if known && info.IsCollection() && len(op.Operands) == 2 {
		c.collectionApplication(op, info)
		return
	}
	if op.Operator == "$not" {
		c.write("$not: ")
		c.predicate(op.Operands[0])
		return
	}
	c.write("%s: [", op.Operator)
	for i, operand := range op.Operands {
		if i > 0 {
			c.write(", ")
		}
		if known && info.Category == optr.Logical {
			c.predicate(operand)
			continue
		}
		c.expr(operand)
	}
	c.write("]")
}

func (c *canon) collectionApplication(op *ast.Operation, info optr.Op) {
	src, arg := op.Operands[0], op.Operands[1]
	if lit, ok := arg.(*ast.Literal); ok && lit.Type == ast.LitBool {
		// A placeholder operand folds into the single-value form.
		c.write("%s: ", op.Operator)
		c.expr(src)
		return
	}
	c.write("%s: [", op.Operator)
	c.expr(src)
	c.write(", ")
	switch op.Operator {
	case "$filter", "$count", "$any", "$all":
		c.predicate(arg)
	case "$select", "$selectMany":
		c.projection(arg)
	default:
		c.expr(arg)
	}
	c.write("]")
}

func (c *canon) expr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.Literal:
		c.literal(e)
	case *ast.Reference:
		c.write("%s", e.Ident)
	case *ast.MemberAccess:
		if path, ok := pathOf(e); ok {
			c.write("%s", path)
			return
		}
		c.expr(e.Operand)
		c.write(".%s", e.Name)
	case *ast.AnonymousObject:
		c.object(e)
	case *ast.Operation:
		c.write("{")
		c.opApplication(e)
		c.write("}")
	}
}

func (c *canon) literal(lit *ast.Literal) {
	if lit.Type == ast.LitString {
		c.write("%s", quote(lit.Text))
		return
	}
	if lit.Text != "" {
		c.write("%s", lit.Text)
		return
	}
	c.write("%v", lit.Value)
}

// pathSegs flattens a member chain rooted at the element reference into
// its segments in access order.
func pathSegs(e ast.Expr) ([]string, bool) {
	var segs []string
	for {
		m, ok := e.(*ast.MemberAccess)
		if !ok {
			break
		}
		segs = append(segs, m.Name)
		e = m.Operand
	}
	ref, ok := e.(*ast.Reference)
	if !ok || ref.Ident != ast.ElementIdent || len(segs) == 0 {
		return nil, false
	}
	slices.Reverse(segs)
	return segs, true
}

// pathOf renders a member chain in its bare dotted form, usable in
// expression position, so every segment must lex as an identifier.
func pathOf(e ast.Expr) (string, bool) {
	segs, ok := pathSegs(e)
	if !ok {
		return "", false
	}
	for _, seg := range segs {
		if !isIdent(seg) {
			return "", false
		}
	}
	return strings.Join(segs, "."), true
}

// keyPath renders a member chain as a property key.  Chains with segments
// the lexer cannot read bare become a quoted string key, which the parser
// splits on dots again; a segment that itself contains a dot has no key
// form at all.
func keyPath(e ast.Expr) (string, bool) {
	segs, ok := pathSegs(e)
	if !ok {
		return "", false
	}
	ident := true
	for _, seg := range segs {
		if seg == "" || strings.Contains(seg, ".") {
			return "", false
		}
		ident = ident && isIdent(seg)
	}
	joined := strings.Join(segs, ".")
	if ident {
		return joined, true
	}
	return quote(joined), true
}

func keyName(name string) string {
	if isIdent(name) {
		return name
	}
	return quote(name)
}

// isIdent mirrors the lexer's identifier rules; the literal keywords need
// quoting since they lex as values.
func isIdent(s string) bool {
	if s == "" || s == "true" || s == "false" || s == "null" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
			i > 0 && c >= '0' && c <= '9'
		if !ok {
			return false
		}
	}
	return true
}

// quote renders s as a single-quoted string with the lexer's escapes.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
