// Package ast declares the types used to represent syntax trees for JSQ
// queries.
//
// The node set is closed: a tree is built either by the parser package or
// from external-parser JSON via UnmarshalQuery, and every node carries its
// source location, a link to its parent, and a small annotation store that
// the semantic analyzer owns.  Nodes live for one compilation.
package ast

// Node is the interface implemented by all JSQ syntax-tree nodes.
type Node interface {
	Pos() int // Position of first character belonging to the node.
	End() int // Position of first character immediately after the node.
	// Parent returns the node this node is attached to, or nil for the
	// tree root.
	Parent() Node
	// SetAnnotation and Annotation give the semantic analyzer a place to
	// hang per-node state.  The concrete types are owned by the semantic
	// package; nothing else should touch these.
	SetAnnotation(key string, val any)
	Annotation(key string) any
	setParent(Node)
}

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Reserved identifiers resolved by the analyzer rather than against
// element fields.
const (
	SourceIdent  = "<source>"
	ElementIdent = "<element>"
)

// Kind strings carried by every node and used as the discriminator in the
// JSON form of a tree.
const (
	KindQuery                   = "Query"
	KindOperation               = "Operation"
	KindMemberAccess            = "MemberAccess"
	KindReference               = "Reference"
	KindLiteral                 = "Literal"
	KindAnonymousObject         = "AnonymousObject"
	KindAnonymousObjectProperty = "AnonymousObjectProperty"
)

// Literal type discriminators.
const (
	LitString = "string"
	LitInt    = "int"
	LitFloat  = "float"
	LitBool   = "bool"
	LitNull   = "null"
)

type Loc struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

func NewLoc(pos, end int) Loc {
	return Loc{pos, end}
}

func (l Loc) Pos() int { return l.First }
func (l Loc) End() int { return l.Last }

// base carries the per-node state shared by every kind: the parent link and
// the analyzer's annotations.  It is invisible to the JSON form.
type base struct {
	parent Node
	annots map[string]any
}

func (b *base) Parent() Node     { return b.parent }
func (b *base) setParent(p Node) { b.parent = p }

func (b *base) SetAnnotation(key string, val any) {
	if b.annots == nil {
		b.annots = make(map[string]any)
	}
	b.annots[key] = val
}

func (b *base) Annotation(key string) any {
	return b.annots[key]
}

// A Query is the root of every tree.  Its body is the pipeline expression
// produced by the parser.
type Query struct {
	Kind string `json:"kind"`
	Body Expr   `json:"body"`
	Loc  `json:"loc"`
	base
}

// An Operation applies a classified operator to one or more operand
// expressions.  Operand order is fixed by the grammar: for collection
// operators the first operand is always the source sequence.
type Operation struct {
	Kind     string `json:"kind"`
	Operator string `json:"operator"`
	Operands []Expr `json:"operands"`
	Loc      `json:"loc"`
	base
}

// A MemberAccess selects a named field from the value of its operand.
type MemberAccess struct {
	Kind    string `json:"kind"`
	Operand Expr   `json:"operand"`
	Name    string `json:"name"`
	Loc     `json:"loc"`
	base
}

// A Reference names a symbol to be resolved against the enclosing scopes,
// e.g. the reserved idents "<source>" and "<element>".
type Reference struct {
	Kind  string `json:"kind"`
	Ident string `json:"ident"`
	Loc   `json:"loc"`
	base
}

// A Literal is a constant.  Type is one of the Lit* discriminators, Text is
// the source spelling, and Value holds the parsed Go value (string, int64,
// float64, bool, or nil).  Value is derived from Type and Text so it never
// travels in the JSON form.
type Literal struct {
	Kind  string `json:"kind"`
	Type  string `json:"type"`
	Text  string `json:"text"`
	Value any    `json:"-"`
	Loc   `json:"loc"`
	base
}

// An AnonymousObject is a projection shape: an ordered list of named
// property expressions that the typer lowers to a synthesized struct type.
type AnonymousObject struct {
	Kind       string                     `json:"kind"`
	Properties []*AnonymousObjectProperty `json:"properties"`
	Loc        `json:"loc"`
	base
}

// An AnonymousObjectProperty is one name/value pair of an AnonymousObject.
// It is a Node but not an Expr: it cannot appear outside its object.
type AnonymousObjectProperty struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Value Expr   `json:"value"`
	Loc   `json:"loc"`
	base
}

func (*Operation) exprNode()       {}
func (*MemberAccess) exprNode()    {}
func (*Reference) exprNode()       {}
func (*Literal) exprNode()         {}
func (*AnonymousObject) exprNode() {}

func NewQuery(body Expr, loc Loc) *Query {
	q := &Query{Kind: KindQuery, Body: body, Loc: loc}
	attach(q, body)
	return q
}

func NewOperation(operator string, operands []Expr, loc Loc) *Operation {
	o := &Operation{Kind: KindOperation, Operator: operator, Operands: operands, Loc: loc}
	for _, operand := range operands {
		attach(o, operand)
	}
	return o
}

func NewMemberAccess(operand Expr, name string, loc Loc) *MemberAccess {
	m := &MemberAccess{Kind: KindMemberAccess, Operand: operand, Name: name, Loc: loc}
	attach(m, operand)
	return m
}

func NewReference(ident string, loc Loc) *Reference {
	return &Reference{Kind: KindReference, Ident: ident, Loc: loc}
}

func NewLiteral(typ, text string, value any, loc Loc) *Literal {
	return &Literal{Kind: KindLiteral, Type: typ, Text: text, Value: value, Loc: loc}
}

func NewAnonymousObject(props []*AnonymousObjectProperty, loc Loc) *AnonymousObject {
	o := &AnonymousObject{Kind: KindAnonymousObject, Properties: props, Loc: loc}
	for _, p := range props {
		attach(o, p)
	}
	return o
}

func NewAnonymousObjectProperty(name string, value Expr, loc Loc) *AnonymousObjectProperty {
	p := &AnonymousObjectProperty{Kind: KindAnonymousObjectProperty, Name: name, Value: value, Loc: loc}
	attach(p, value)
	return p
}

func attach(parent, child Node) {
	if child != nil && !isNilNode(child) {
		child.setParent(parent)
	}
}

// isNilNode guards against typed-nil interfaces from optional children.
func isNilNode(n Node) bool {
	switch n := n.(type) {
	case *Query:
		return n == nil
	case *Operation:
		return n == nil
	case *MemberAccess:
		return n == nil
	case *Reference:
		return n == nil
	case *Literal:
		return n == nil
	case *AnonymousObject:
		return n == nil
	case *AnonymousObjectProperty:
		return n == nil
	}
	return n == nil
}

// Root walks the parent chain from n and returns the topmost node.
func Root(n Node) Node {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return n
}
