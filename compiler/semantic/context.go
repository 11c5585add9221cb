package semantic

import (
	"reflect"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/runtime/provider"
)

// Annotation keys owned by this package.  Nothing outside the analyzer
// reads or writes these; the typed accessors below are the public surface.
const (
	annotScope = "scope"
	annotSem   = "semantics"
	annotCtx   = "compilation_context"
)

// Context carries the per-compilation state shared by the analysis passes
// and the plan generator.  It is bound to the Query root and reachable from
// any node of the tree by walking parents.  A Context belongs to exactly
// one compilation and is never shared.
type Context struct {
	// Elem is the nominal element type of the queried sequence.
	Elem reflect.Type
	// Source is the sequence type presented to the query, always
	// slice-of-Elem.
	Source reflect.Type
	// Suspendable selects the suspension-capable operator family for
	// root-level stages.
	Suspendable bool
	// Resolver supplies provider operators during translation.  Nil means
	// the default in-memory provider.
	Resolver provider.Resolver

	root *ast.Query
}

// NewContext builds a Context for queries over sequences of elem.
func NewContext(elem reflect.Type) *Context {
	return &Context{Elem: elem, Source: reflect.SliceOf(elem)}
}

// Root returns the Query this context is bound to, or nil before Analyze.
func (c *Context) Root() *ast.Query { return c.root }

func (c *Context) bind(root *ast.Query) {
	c.root = root
	root.SetAnnotation(annotCtx, c)
}

// ContextOf walks n's parent chain to the root and returns the compilation
// context bound there, or nil if the tree is unanalyzed.
func ContextOf(n ast.Node) *Context {
	root := ast.Root(n)
	ctx, _ := root.Annotation(annotCtx).(*Context)
	return ctx
}

// ScopeOf returns the scope governing n: the scope bound to n itself or to
// its nearest scoped ancestor.  It returns nil on an unbound tree.
func ScopeOf(n ast.Node) *Scope {
	for ; n != nil; n = n.Parent() {
		if s, ok := n.Annotation(annotScope).(*Scope); ok {
			return s
		}
	}
	return nil
}

// BoundScope returns the scope bound directly to n, or nil.
func BoundScope(n ast.Node) *Scope {
	s, _ := n.Annotation(annotScope).(*Scope)
	return s
}

func bindScope(n ast.Node, s *Scope) {
	n.SetAnnotation(annotScope, s)
}

func memoSemantics(n ast.Node) Semantics {
	sem, _ := n.Annotation(annotSem).(Semantics)
	return sem
}

func setSemantics(n ast.Node, sem Semantics) {
	n.SetAnnotation(annotSem, sem)
}
