package semantic

import (
	"errors"
	"fmt"

	"github.com/jsqlang/jsq/compiler/ast"
)

// Code classifies analysis and translation failures.  Compilation stops at
// the first error raised; there is no aggregation across passes.
type Code int

const (
	CodeInvalid Code = iota
	MalformedTree
	DuplicateSymbol
	SymbolNotFound
	ArityError
	IncompatibleOperandTypes
	FieldNotFound
	NotQueryable
	Unsupported
	InvariantViolation
)

var codeNames = map[Code]string{
	CodeInvalid:              "invalid",
	MalformedTree:            "malformed tree",
	DuplicateSymbol:          "duplicate symbol",
	SymbolNotFound:           "symbol not found",
	ArityError:               "arity error",
	IncompatibleOperandTypes: "incompatible operand types",
	FieldNotFound:            "field not found",
	NotQueryable:             "not queryable",
	Unsupported:              "unsupported",
	InvariantViolation:       "invariant violation",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "invalid"
}

// Error is a classified compilation error located at a tree node.  Node may
// be nil when no single node is at fault.
type Error struct {
	Code Code
	Msg  string
	Node ast.Node
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewError builds a classified error at node n.
func NewError(n ast.Node, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Node: n}
}

// AsError unwraps err to a classified Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
