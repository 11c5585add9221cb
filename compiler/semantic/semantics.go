package semantic

import (
	"reflect"

	"github.com/jsqlang/jsq/compiler/optr"
)

// Semantics is the resolved meaning of a tree node: its type plus whatever
// the plan generator needs to lower the node without re-deriving anything.
// Variants form a closed sum keyed by node kind.
type Semantics interface {
	// Type is the node's result type.  It is nil only for the null
	// literal.
	Type() reflect.Type
	semantics()
}

// QuerySemantics is bound to the Query root.
type QuerySemantics struct {
	Result reflect.Type
}

func (q *QuerySemantics) Type() reflect.Type { return q.Result }
func (*QuerySemantics) semantics()           {}

// OperationSemantics carries the operator classification and result type of
// an Operation node.  Operand, when set, is the common type the operands
// widen to: the comparison type for relational operators, the accumulator
// type for arithmetic, and the selector or argument type for collection
// operators.
type OperationSemantics struct {
	Op      optr.Op
	Result  reflect.Type
	Operand reflect.Type
}

func (o *OperationSemantics) Type() reflect.Type { return o.Result }
func (*OperationSemantics) semantics()           {}

// ReferenceSemantics links a Reference to its resolved symbol.
type ReferenceSemantics struct {
	Symbol Symbol
}

func (r *ReferenceSemantics) Type() reflect.Type { return r.Symbol.Type() }
func (*ReferenceSemantics) semantics()           {}

// MemberSemantics records the struct field a MemberAccess resolved to.
// Indirect is set when the owner is reached through a pointer.
type MemberSemantics struct {
	Owner    reflect.Type
	Field    reflect.StructField
	Indirect bool
}

func (m *MemberSemantics) Type() reflect.Type { return m.Field.Type }
func (*MemberSemantics) semantics()           {}

// LiteralSemantics carries a literal's type and its compile-time value.
// When an operation coerces a literal operand (integer to float, string to
// time), the coerced type and value land here.
type LiteralSemantics struct {
	Typ   reflect.Type
	Value any
}

func (l *LiteralSemantics) Type() reflect.Type { return l.Typ }
func (*LiteralSemantics) semantics()           {}

// ObjectSemantics carries the struct type synthesized for an
// AnonymousObject.  Field order follows property order.
type ObjectSemantics struct {
	Struct reflect.Type
}

func (o *ObjectSemantics) Type() reflect.Type { return o.Struct }
func (*ObjectSemantics) semantics()           {}

// PropertySemantics carries the synthesized field of one anonymous object
// property.
type PropertySemantics struct {
	Name  string
	Field reflect.StructField
}

func (p *PropertySemantics) Type() reflect.Type { return p.Field.Type }
func (*PropertySemantics) semantics()           {}
