package semantic

import (
	"fmt"
	"reflect"

	"github.com/jsqlang/jsq/compiler/ast"
)

// Scope is one level of the lexical environment.  Scopes form a tree
// mirroring the query's collection operators: the root scope belongs to the
// Query node and each collection operator contributes a scope per operand.
type Scope struct {
	parent  *Scope
	symbols map[string]Symbol
}

func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: make(map[string]Symbol)}
}

func (s *Scope) Parent() *Scope { return s.parent }

// Declare binds sym in this scope.  Redefinition within the same scope is
// an error; shadowing an outer binding is not.
func (s *Scope) Declare(sym Symbol) error {
	name := sym.Name()
	if _, ok := s.symbols[name]; ok {
		return fmt.Errorf("symbol %q redefined", name)
	}
	s.symbols[name] = sym
	return nil
}

// Resolve walks from this scope outward and returns the first binding of
// name, or nil.
func (s *Scope) Resolve(name string) Symbol {
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.symbols[name]; ok {
			return sym
		}
	}
	return nil
}

// Contains reports whether name is bound here, or in any enclosing scope
// when ancestors is set.
func (s *Scope) Contains(name string, ancestors bool) bool {
	if !ancestors {
		_, ok := s.symbols[name]
		return ok
	}
	return s.Resolve(name) != nil
}

// Symbol is a named, typed binding.  The two kinds are the query source and
// the per-operand element parameter.
type Symbol interface {
	Name() string
	Type() reflect.Type
	symbol()
}

// SourceSymbol binds the reserved "<source>" identifier to the sequence
// being queried.
type SourceSymbol struct {
	typ reflect.Type
}

// NewSourceSymbol builds the source binding for a sequence type.
func NewSourceSymbol(seq reflect.Type) *SourceSymbol {
	return &SourceSymbol{typ: seq}
}

func (*SourceSymbol) Name() string         { return ast.SourceIdent }
func (s *SourceSymbol) Type() reflect.Type { return s.typ }
func (*SourceSymbol) symbol()              {}

// ParameterSymbol binds the reserved "<element>" identifier to the element
// type of a collection operator's source.
type ParameterSymbol struct {
	typ reflect.Type
}

// NewParameterSymbol builds the element binding for an element type.
func NewParameterSymbol(elem reflect.Type) *ParameterSymbol {
	return &ParameterSymbol{typ: elem}
}

func (*ParameterSymbol) Name() string         { return ast.ElementIdent }
func (s *ParameterSymbol) Type() reflect.Type { return s.typ }
func (*ParameterSymbol) symbol()              {}
