// Package compiler ties the stages of JSQ compilation together: parsing
// query text into a syntax tree, semantic analysis against an element
// type, and translation into an executable plan.  The subpackages hold
// the machinery; this package is the front door.
package compiler

import (
	"reflect"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/parser"
	"github.com/jsqlang/jsq/compiler/plangen"
	"github.com/jsqlang/jsq/compiler/semantic"
	"github.com/jsqlang/jsq/compiler/srcfile"
	"github.com/jsqlang/jsq/runtime/exec"
	"github.com/jsqlang/jsq/runtime/provider"
)

// Settings selects how a compiled plan draws on the provider.
type Settings struct {
	// UseSuspendableProvider runs pipeline stages on the provider's
	// suspension-capable operator family.  Operands off the pipeline
	// spine always use the synchronous family.
	UseSuspendableProvider bool
	// Resolver supplies the operator implementations.  Nil selects the
	// built-in in-memory provider.
	Resolver provider.Resolver
}

// Compile parses query and builds a plan over sequences of elem.
// Compilation stops at the first error; errors originating at a tree node
// render with the source line and a marker under the offending span.
func Compile(query string, elem reflect.Type, settings Settings) (*exec.Plan, error) {
	return CompileFile(srcfile.New("", query), elem, settings)
}

// CompileFile is Compile for query text already wrapped in a File, letting
// errors name the file they were located in.
func CompileFile(file *srcfile.File, elem reflect.Type, settings Settings) (*exec.Plan, error) {
	root, err := parser.Parse(file)
	if err != nil {
		return nil, err
	}
	return compile(root, file, elem, settings)
}

// CompileAST builds a plan from a tree produced outside the parser,
// typically decoded with ast.UnmarshalQuery.  With no source text to point
// into, errors render without location context.
func CompileAST(root *ast.Query, elem reflect.Type, settings Settings) (*exec.Plan, error) {
	return compile(root, nil, elem, settings)
}

// Parse parses query text without analyzing it.
func Parse(query string) (*ast.Query, error) {
	return parser.ParseString(query)
}

// Analyze runs semantic analysis on root for sequences of elem and returns
// the bound compilation context.  The tree must be fresh: a root already
// bound to a context cannot be analyzed again.
func Analyze(root *ast.Query, elem reflect.Type, settings Settings) (*semantic.Context, error) {
	ctx := semantic.NewContext(elem)
	ctx.Suspendable = settings.UseSuspendableProvider
	ctx.Resolver = settings.Resolver
	if err := semantic.Analyze(root, ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

func compile(root *ast.Query, file *srcfile.File, elem reflect.Type, settings Settings) (*exec.Plan, error) {
	ctx, err := Analyze(root, elem, settings)
	if err != nil {
		return nil, located(err, file)
	}
	plan, err := plangen.Build(root, ctx)
	if err != nil {
		return nil, located(err, file)
	}
	return plan, nil
}

// located attaches a source excerpt to a classified error whose node maps
// into file.  The classified error stays reachable through Unwrap, so
// semantic.AsError and semantic.IsCode see through the wrapper.
func located(err error, file *srcfile.File) error {
	if file == nil {
		return err
	}
	serr, ok := semantic.AsError(err)
	if !ok || serr.Node == nil {
		return err
	}
	pos := serr.Node.Pos()
	if !file.Position(pos).IsValid() {
		return err
	}
	return &locatedError{
		err:  serr,
		text: file.FormatError(serr.Error(), pos, serr.Node.End()),
	}
}

type locatedError struct {
	err  error
	text string
}

func (l *locatedError) Error() string { return l.text }

func (l *locatedError) Unwrap() error { return l.err }
