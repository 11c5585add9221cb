package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/optr"
	"github.com/jsqlang/jsq/compiler/srcfile"
)

// valueMode selects how an object in operand position is read.
type valueMode int

const (
	modeScalar valueMode = iota
	modePredicate
	modeProjection
)

type parser struct {
	lexer *lexer
	file  *srcfile.File
	tok   token
}

func (p *parser) advance() error {
	tok, err := p.lexer.scan()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expect(kind tokenKind) (token, error) {
	if p.tok.kind != kind {
		return token{}, p.errorf(p.tok, "expected %s, got %s", kind, p.tok.kind)
	}
	tok := p.tok
	return tok, p.advance()
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return p.file.NewError(fmt.Sprintf(format, args...), tok.pos, tok.end)
}

// operandMode returns how op's non-source operand is read.
func operandMode(op optr.Op) valueMode {
	switch op.Token {
	case "$filter", "$any", "$all", "$count":
		return modePredicate
	case "$select", "$selectMany":
		return modeProjection
	}
	if op.Category == optr.Logical {
		return modePredicate
	}
	return modeScalar
}

// parseQuery reads the root pipeline object.  Each property applies a
// collection operator to the previous stage; the first stage's source is
// the implicit "<source>" reference.
func (p *parser) parseQuery() (*ast.Query, error) {
	lbrace, err := p.expect(tokenLBrace)
	if err != nil {
		return nil, err
	}
	var seq ast.Expr
	for p.tok.kind != tokenRBrace {
		keyTok := p.tok
		if keyTok.kind != tokenOp {
			return nil, p.errorf(keyTok, "pipeline stages must be operators, got %s", keyTok.kind)
		}
		op, ok := optr.Lookup(keyTok.text)
		if !ok {
			return nil, p.errorf(keyTok, "unknown operator %q", keyTok.text)
		}
		if !op.IsCollection() {
			return nil, p.errorf(keyTok, "operator %q cannot form a pipeline stage", keyTok.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenColon); err != nil {
			return nil, err
		}
		if seq == nil {
			seq = ast.NewReference(ast.SourceIdent, ast.NewLoc(lbrace.pos, lbrace.pos))
		}
		operand, err := p.parseValue(operandMode(op))
		if err != nil {
			return nil, err
		}
		seq = ast.NewOperation(keyTok.text, []ast.Expr{seq, operand},
			ast.NewLoc(keyTok.pos, operand.End()))
		if p.tok.kind != tokenComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokenRBrace {
			return nil, p.errorf(p.tok, "expected a pipeline stage after ','")
		}
	}
	rbrace, err := p.expect(tokenRBrace)
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokenEOF {
		return nil, p.errorf(p.tok, "unexpected text after query")
	}
	if seq == nil {
		seq = ast.NewReference(ast.SourceIdent, ast.NewLoc(lbrace.pos, rbrace.end))
	}
	return ast.NewQuery(seq, ast.NewLoc(lbrace.pos, rbrace.end)), nil
}

func (p *parser) parseValue(mode valueMode) (ast.Expr, error) {
	tok := p.tok
	switch tok.kind {
	case tokenString:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewLiteral(ast.LitString, tok.text, tok.text, ast.NewLoc(tok.pos, tok.end)), nil
	case tokenNumber:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.numberLiteral(tok)
	case tokenIdent:
		switch tok.text {
		case "true", "false":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return ast.NewLiteral(ast.LitBool, tok.text, tok.text == "true",
				ast.NewLoc(tok.pos, tok.end)), nil
		case "null":
			if err := p.advance(); err != nil {
				return nil, err
			}
			return ast.NewLiteral(ast.LitNull, tok.text, nil, ast.NewLoc(tok.pos, tok.end)), nil
		}
		return p.parsePath()
	case tokenLBrace:
		return p.parseObject(mode)
	case tokenLBracket:
		return nil, p.errorf(tok, "unexpected array; arrays appear only as operator operands")
	}
	return nil, p.errorf(tok, "expected a value, got %s", tok.kind)
}

func (p *parser) numberLiteral(tok token) (ast.Expr, error) {
	loc := ast.NewLoc(tok.pos, tok.end)
	if strings.ContainsAny(tok.text, ".eE") {
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.errorf(tok, "number out of range")
		}
		return ast.NewLiteral(ast.LitFloat, tok.text, v, loc), nil
	}
	v, err := strconv.ParseInt(tok.text, 10, 64)
	if err != nil {
		return nil, p.errorf(tok, "number out of range")
	}
	return ast.NewLiteral(ast.LitInt, tok.text, v, loc), nil
}

// parsePath reads ident ('.' ident)* as a member access chain rooted at the
// implicit element reference.
func (p *parser) parsePath() (ast.Expr, error) {
	first, err := p.expect(tokenIdent)
	if err != nil {
		return nil, err
	}
	root := ast.NewReference(ast.ElementIdent, ast.NewLoc(first.pos, first.pos))
	expr := ast.Expr(ast.NewMemberAccess(root, first.text, ast.NewLoc(first.pos, first.end)))
	for p.tok.kind == tokenDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		seg, err := p.expect(tokenIdent)
		if err != nil {
			return nil, err
		}
		expr = ast.NewMemberAccess(expr, seg.text, ast.NewLoc(first.pos, seg.end))
	}
	return expr, nil
}

// key is one object property key: either an operator token or a member
// path.  String keys may contain dots to reach nested members.
type key struct {
	segs []string
	ends []int
	tok  token
	op   bool
}

func (p *parser) parseKey() (key, error) {
	tok := p.tok
	switch tok.kind {
	case tokenOp:
		if err := p.advance(); err != nil {
			return key{}, err
		}
		return key{segs: []string{tok.text}, ends: []int{tok.end}, tok: tok, op: true}, nil
	case tokenIdent:
		k := key{segs: []string{tok.text}, ends: []int{tok.end}, tok: tok}
		if err := p.advance(); err != nil {
			return key{}, err
		}
		for p.tok.kind == tokenDot {
			if err := p.advance(); err != nil {
				return key{}, err
			}
			seg, err := p.expect(tokenIdent)
			if err != nil {
				return key{}, err
			}
			k.segs = append(k.segs, seg.text)
			k.ends = append(k.ends, seg.end)
		}
		return k, nil
	case tokenString:
		if err := p.advance(); err != nil {
			return key{}, err
		}
		segs := strings.Split(tok.text, ".")
		k := key{tok: tok}
		for _, seg := range segs {
			if seg == "" {
				return key{}, p.errorf(tok, "empty path segment in key %q", tok.text)
			}
			k.segs = append(k.segs, seg)
			k.ends = append(k.ends, tok.end)
		}
		return k, nil
	}
	return key{}, p.errorf(tok, "expected a property key, got %s", tok.kind)
}

// forEachProperty drives a comma-separated property list, calling fn for
// each key after its ':' is consumed, and returns the closing brace.
func (p *parser) forEachProperty(fn func(k key) error) (token, error) {
	for {
		k, err := p.parseKey()
		if err != nil {
			return token{}, err
		}
		if _, err := p.expect(tokenColon); err != nil {
			return token{}, err
		}
		if err := fn(k); err != nil {
			return token{}, err
		}
		if p.tok.kind != tokenComma {
			break
		}
		if err := p.advance(); err != nil {
			return token{}, err
		}
		if p.tok.kind == tokenRBrace {
			return token{}, p.errorf(p.tok, "expected a property after ','")
		}
	}
	return p.expect(tokenRBrace)
}

func (p *parser) parseObject(mode valueMode) (ast.Expr, error) {
	lbrace := p.tok
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokenRBrace {
		return nil, p.errorf(lbrace, "empty object")
	}
	switch mode {
	case modePredicate:
		return p.parsePredicateObject(lbrace)
	case modeProjection:
		return p.parseProjectionObject(lbrace)
	}
	return p.parseScalarObject()
}

// parsePredicateObject reads a predicate: field keys desugar to match
// operations against the element, $and/$or/$not and explicit operator
// applications pass through, and multiple terms conjoin under $and.
func (p *parser) parsePredicateObject(lbrace token) (ast.Expr, error) {
	var terms []ast.Expr
	rbrace, err := p.forEachProperty(func(k key) error {
		var term ast.Expr
		var err error
		if k.op {
			op, ok := optr.Lookup(k.segs[0])
			if !ok {
				return p.errorf(k.tok, "unknown operator %q", k.segs[0])
			}
			term, err = p.parseOpApplication(k, op)
		} else {
			term, err = p.parseMemberPredicate(memberFromKey(k))
		}
		if err != nil {
			return err
		}
		terms = append(terms, term)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conjoin(terms, ast.NewLoc(lbrace.pos, rbrace.end)), nil
}

// parseMemberPredicate reads the value side of a "member: value" predicate
// property.  Objects apply operators to the member or descend into nested
// fields; anything else becomes a match operation.
func (p *parser) parseMemberPredicate(member ast.Expr) (ast.Expr, error) {
	if p.tok.kind != tokenLBrace {
		if p.tok.kind == tokenLBracket {
			return nil, p.errorf(p.tok, "unexpected array in predicate")
		}
		v, err := p.parseValue(modeScalar)
		if err != nil {
			return nil, err
		}
		return ast.NewOperation("$match", []ast.Expr{member, v},
			ast.NewLoc(member.Pos(), v.End())), nil
	}
	lbrace := p.tok
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokenRBrace {
		return nil, p.errorf(lbrace, "empty object")
	}
	var terms []ast.Expr
	sawOp, sawField := false, false
	rbrace, err := p.forEachProperty(func(k2 key) error {
		if k2.op {
			sawOp = true
		} else {
			sawField = true
		}
		if sawOp && sawField {
			return p.errorf(k2.tok, "cannot mix operator and field keys in a member predicate")
		}
		if !k2.op {
			term, err := p.parseMemberPredicate(extendMember(member, k2))
			if err != nil {
				return err
			}
			terms = append(terms, term)
			return nil
		}
		op, ok := optr.Lookup(k2.segs[0])
		if !ok {
			return p.errorf(k2.tok, "unknown operator %q", k2.segs[0])
		}
		if op.Category == optr.Logical {
			return p.errorf(k2.tok, "operator %q cannot be applied to a member", op.Token)
		}
		// The member is the implied first operand: {orders: {$any: {...}}}
		// applies $any to the orders member, {age: {$gt: 21}} compares it.
		mode := modeScalar
		if op.IsCollection() {
			mode = operandMode(op)
		}
		arg, err := p.parseValue(mode)
		if err != nil {
			return err
		}
		terms = append(terms, ast.NewOperation(op.Token, []ast.Expr{member, arg},
			ast.NewLoc(member.Pos(), arg.End())))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conjoin(terms, ast.NewLoc(member.Pos(), rbrace.end)), nil
}

// parseProjectionObject reads either an anonymous object of named
// properties or, when the first key is an operator, a single operator
// application.
func (p *parser) parseProjectionObject(lbrace token) (ast.Expr, error) {
	if p.tok.kind == tokenOp {
		return p.parseScalarObjectBody()
	}
	var props []*ast.AnonymousObjectProperty
	seen := make(map[string]bool)
	rbrace, err := p.forEachProperty(func(k key) error {
		if k.op {
			return p.errorf(k.tok, "cannot mix operator and field keys in a projection")
		}
		if len(k.segs) != 1 {
			return p.errorf(k.tok, "projection property name cannot be a path")
		}
		name := k.segs[0]
		if seen[name] {
			return p.errorf(k.tok, "duplicate property %q", name)
		}
		seen[name] = true
		v, err := p.parseValue(modeProjection)
		if err != nil {
			return err
		}
		props = append(props, ast.NewAnonymousObjectProperty(name, v,
			ast.NewLoc(k.tok.pos, v.End())))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ast.NewAnonymousObject(props, ast.NewLoc(lbrace.pos, rbrace.end)), nil
}

func (p *parser) parseScalarObject() (ast.Expr, error) {
	if p.tok.kind != tokenOp {
		return nil, p.errorf(p.tok, "expected an operator key, got %s", p.tok.kind)
	}
	return p.parseScalarObjectBody()
}

// parseScalarObjectBody reads {"$op": operands} as a single operator
// application.
func (p *parser) parseScalarObjectBody() (ast.Expr, error) {
	var expr ast.Expr
	if _, err := p.forEachProperty(func(k key) error {
		if expr != nil {
			return p.errorf(k.tok, "operator application takes a single property")
		}
		if !k.op {
			return p.errorf(k.tok, "expected an operator key")
		}
		op, ok := optr.Lookup(k.segs[0])
		if !ok {
			return p.errorf(k.tok, "unknown operator %q", k.segs[0])
		}
		var err error
		expr, err = p.parseOpApplication(k, op)
		return err
	}); err != nil {
		return nil, err
	}
	return expr, nil
}

// parseOpApplication reads the value of an operator key.  Collection
// operators take either a single source value or a [source, operand] pair;
// $not takes a single predicate; every other operator takes an operand
// array.
func (p *parser) parseOpApplication(k key, op optr.Op) (ast.Expr, error) {
	if op.IsCollection() {
		if p.tok.kind == tokenLBracket {
			if err := p.advance(); err != nil {
				return nil, err
			}
			source, err := p.parseValue(modeScalar)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokenComma); err != nil {
				return nil, err
			}
			arg, err := p.parseValue(operandMode(op))
			if err != nil {
				return nil, err
			}
			rbracket, err := p.expect(tokenRBracket)
			if err != nil {
				if p.tok.kind == tokenComma {
					return nil, p.errorf(p.tok, "operator %q takes [source, operand]", op.Token)
				}
				return nil, err
			}
			return ast.NewOperation(op.Token, []ast.Expr{source, arg},
				ast.NewLoc(k.tok.pos, rbracket.end)), nil
		}
		source, err := p.parseValue(modeScalar)
		if err != nil {
			return nil, err
		}
		placeholder := ast.NewLiteral(ast.LitBool, "true", true,
			ast.NewLoc(source.End(), source.End()))
		return ast.NewOperation(op.Token, []ast.Expr{source, placeholder},
			ast.NewLoc(k.tok.pos, source.End())), nil
	}
	if op.Token == "$not" {
		v, err := p.parseValue(modePredicate)
		if err != nil {
			return nil, err
		}
		return ast.NewOperation(op.Token, []ast.Expr{v},
			ast.NewLoc(k.tok.pos, v.End())), nil
	}
	mode := modeScalar
	if op.Category == optr.Logical {
		mode = modePredicate
	}
	if p.tok.kind != tokenLBracket {
		return nil, p.errorf(p.tok, "operator %q takes an operand array", op.Token)
	}
	operands, rbracket, err := p.parseArray(mode)
	if err != nil {
		return nil, err
	}
	return ast.NewOperation(op.Token, operands, ast.NewLoc(k.tok.pos, rbracket.end)), nil
}

func (p *parser) parseArray(mode valueMode) ([]ast.Expr, token, error) {
	if err := p.advance(); err != nil { // '['
		return nil, token{}, err
	}
	var elems []ast.Expr
	for p.tok.kind != tokenRBracket {
		v, err := p.parseValue(mode)
		if err != nil {
			return nil, token{}, err
		}
		elems = append(elems, v)
		if p.tok.kind != tokenComma {
			break
		}
		if err := p.advance(); err != nil {
			return nil, token{}, err
		}
		if p.tok.kind == tokenRBracket {
			return nil, token{}, p.errorf(p.tok, "expected a value after ','")
		}
	}
	rbracket, err := p.expect(tokenRBracket)
	if err != nil {
		return nil, token{}, err
	}
	return elems, rbracket, nil
}

// memberFromKey builds the member access chain for k's path segments,
// rooted at the implicit element reference.
func memberFromKey(k key) ast.Expr {
	root := ast.NewReference(ast.ElementIdent, ast.NewLoc(k.tok.pos, k.tok.pos))
	return extendMember(root, k)
}

// extendMember appends k's path segments to an existing member chain.
func extendMember(member ast.Expr, k key) ast.Expr {
	expr := member
	for i, seg := range k.segs {
		expr = ast.NewMemberAccess(expr, seg, ast.NewLoc(k.tok.pos, k.ends[i]))
	}
	return expr
}

func conjoin(terms []ast.Expr, loc ast.Loc) ast.Expr {
	if len(terms) == 1 {
		return terms[0]
	}
	return ast.NewOperation("$and", terms, loc)
}
