// Package plangen lowers analyzed query trees to executable plans.  Scalar
// expressions become evaluator chains over reflected values; collection
// operations become provider calls resolved through the compilation
// context.  When the context selects the suspendable family, the stages
// reachable from the query root along source operands run as a pull-stream
// pipeline; operators appearing inside lambdas or scalar arguments always
// resolve to the synchronous family, so suspension never crosses a lambda
// boundary.
package plangen

import (
	"context"
	"reflect"

	"github.com/jsqlang/jsq/compiler/ast"
	"github.com/jsqlang/jsq/compiler/optr"
	"github.com/jsqlang/jsq/compiler/semantic"
	"github.com/jsqlang/jsq/runtime/exec"
	"github.com/jsqlang/jsq/runtime/provider"
)

// Build lowers root, which must have been analyzed with ctx, to a plan.
func Build(root *ast.Query, ctx *semantic.Context) (*exec.Plan, error) {
	if semantic.ContextOf(root) != ctx {
		return nil, semantic.NewError(root, semantic.InvariantViolation,
			"query was not analyzed with this context")
	}
	qsem, err := semantic.SemanticsOf(root)
	if err != nil {
		return nil, err
	}
	b := &builder{ctx: ctx, resolver: ctx.Resolver}
	if b.resolver == nil {
		b.resolver = provider.Default()
	}
	run, err := b.run(root)
	if err != nil {
		return nil, err
	}
	return exec.New(ctx.Source, qsem.Type(), run), nil
}

type builder struct {
	ctx      *semantic.Context
	resolver provider.Resolver
}

type runFunc = func(context.Context, reflect.Value) (reflect.Value, error)

func (b *builder) run(root *ast.Query) (runFunc, error) {
	if b.ctx.Suspendable {
		if op, ok := root.Body.(*ast.Operation); ok && isCollectionOp(op) {
			return b.pipeline(op)
		}
	}
	ev, err := b.expr(root.Body)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, src reflect.Value) (reflect.Value, error) {
		return ev.Eval(&env{source: src}, reflect.Value{})
	}, nil
}

func isCollectionOp(op *ast.Operation) bool {
	info, ok := optr.Lookup(op.Operator)
	return ok && info.IsCollection()
}

func opSemantics(op *ast.Operation) (*semantic.OperationSemantics, error) {
	sem, err := semantic.SemanticsOf(op)
	if err != nil {
		return nil, err
	}
	osem, ok := sem.(*semantic.OperationSemantics)
	if !ok {
		return nil, semantic.NewError(op, semantic.InvariantViolation,
			"operation %q lacks operation semantics", op.Operator)
	}
	return osem, nil
}

// pipeline builds the run function for a root stage chain in the
// suspendable family.
func (b *builder) pipeline(op *ast.Operation) (runFunc, error) {
	sem, err := opSemantics(op)
	if err != nil {
		return nil, err
	}
	if sem.Op.Kind.Transform() || isSequence(sem.Result) {
		s, err := b.stream(op)
		if err != nil {
			return nil, err
		}
		result := sem.Result
		elem := result.Elem()
		return func(rctx context.Context, src reflect.Value) (reflect.Value, error) {
			st, err := s(rctx, &env{source: src})
			if err != nil {
				return reflect.Value{}, err
			}
			out, err := provider.Materialize(rctx, st, elem)
			if err != nil {
				return reflect.Value{}, err
			}
			if out.Type() != result {
				out = out.Convert(result)
			}
			return out, nil
		}, nil
	}
	up, err := b.stream(op.Operands[0])
	if err != nil {
		return nil, err
	}
	args, err := b.opArgs(op, sem)
	if err != nil {
		return nil, err
	}
	agg, err := b.streamAggregate(op, sem)
	if err != nil {
		return nil, err
	}
	return func(rctx context.Context, src reflect.Value) (reflect.Value, error) {
		e := &env{source: src}
		st, err := up(rctx, e)
		if err != nil {
			return reflect.Value{}, err
		}
		call, err := args.call(e, reflect.Value{})
		if err != nil {
			return reflect.Value{}, err
		}
		call.Stream = st
		return agg.Aggregate(rctx, call)
	}, nil
}

type streamer func(context.Context, *env) (provider.Stream, error)

// stream builds the streamer for an expression in source position.
// Collection operations chain upstream streamers; anything else evaluates
// synchronously and is re-streamed, which covers aggregates like $index
// yielding a nested sequence mid-chain.
func (b *builder) stream(expr ast.Expr) (streamer, error) {
	op, ok := expr.(*ast.Operation)
	if !ok || !isCollectionOp(op) {
		ev, err := b.expr(expr)
		if err != nil {
			return nil, err
		}
		return func(_ context.Context, e *env) (provider.Stream, error) {
			v, err := ev.Eval(e, reflect.Value{})
			if err != nil {
				return nil, err
			}
			return provider.NewStream(v), nil
		}, nil
	}
	sem, err := opSemantics(op)
	if err != nil {
		return nil, err
	}
	up, err := b.stream(op.Operands[0])
	if err != nil {
		return nil, err
	}
	args, err := b.opArgs(op, sem)
	if err != nil {
		return nil, err
	}
	if sem.Op.Kind.Transform() {
		t, err := b.streamTransform(op, sem)
		if err != nil {
			return nil, err
		}
		return func(rctx context.Context, e *env) (provider.Stream, error) {
			st, err := up(rctx, e)
			if err != nil {
				return nil, err
			}
			call, err := args.call(e, reflect.Value{})
			if err != nil {
				return nil, err
			}
			call.Stream = st
			return t.Transform(call)
		}, nil
	}
	agg, err := b.streamAggregate(op, sem)
	if err != nil {
		return nil, err
	}
	return func(rctx context.Context, e *env) (provider.Stream, error) {
		st, err := up(rctx, e)
		if err != nil {
			return nil, err
		}
		call, err := args.call(e, reflect.Value{})
		if err != nil {
			return nil, err
		}
		call.Stream = st
		v, err := agg.Aggregate(rctx, call)
		if err != nil {
			return nil, err
		}
		return provider.NewStream(v), nil
	}, nil
}

func (b *builder) streamTransform(op *ast.Operation, sem *semantic.OperationSemantics) (provider.StreamTransform, error) {
	resolved, err := b.resolver.Resolve(sem.Op.Kind, true)
	if err != nil {
		return nil, semantic.NewError(op, semantic.Unsupported, "%s", err)
	}
	t, ok := resolved.(provider.StreamTransform)
	if !ok {
		return nil, semantic.NewError(op, semantic.Unsupported,
			"provider offers no stream transform for %s", sem.Op.Kind)
	}
	return t, nil
}

func (b *builder) streamAggregate(op *ast.Operation, sem *semantic.OperationSemantics) (provider.StreamAggregate, error) {
	resolved, err := b.resolver.Resolve(sem.Op.Kind, true)
	if err != nil {
		return nil, semantic.NewError(op, semantic.Unsupported, "%s", err)
	}
	a, ok := resolved.(provider.StreamAggregate)
	if !ok {
		return nil, semantic.NewError(op, semantic.Unsupported,
			"provider offers no stream aggregate for %s", sem.Op.Kind)
	}
	return a, nil
}

func (b *builder) syncOperator(op *ast.Operation, sem *semantic.OperationSemantics) (provider.SyncOperator, error) {
	resolved, err := b.resolver.Resolve(sem.Op.Kind, false)
	if err != nil {
		return nil, semantic.NewError(op, semantic.Unsupported, "%s", err)
	}
	s, ok := resolved.(provider.SyncOperator)
	if !ok {
		return nil, semantic.NewError(op, semantic.Unsupported,
			"provider offers no synchronous operator for %s", sem.Op.Kind)
	}
	return s, nil
}

// expr lowers one expression to an evaluator.  Collection operations in
// expression position always use the synchronous family.
func (b *builder) expr(n ast.Expr) (evaluator, error) {
	sem, err := semantic.SemanticsOf(n)
	if err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case *ast.Literal:
		lsem := sem.(*semantic.LiteralSemantics)
		if lsem.Typ == nil {
			return &literalEval{}, nil
		}
		v := reflect.ValueOf(lsem.Value)
		if v.Type() != lsem.Typ {
			v = v.Convert(lsem.Typ)
		}
		return &literalEval{v: v}, nil
	case *ast.Reference:
		switch sem.(*semantic.ReferenceSemantics).Symbol.(type) {
		case *semantic.SourceSymbol:
			return sourceEval{}, nil
		case *semantic.ParameterSymbol:
			return elementEval{}, nil
		}
		return nil, semantic.NewError(n, semantic.InvariantViolation,
			"reference %q resolved to an unknown symbol kind", n.Ident)
	case *ast.MemberAccess:
		msem := sem.(*semantic.MemberSemantics)
		operand, err := b.expr(n.Operand)
		if err != nil {
			return nil, err
		}
		return &memberEval{operand: operand, name: n.Name, index: msem.Field.Index}, nil
	case *ast.AnonymousObject:
		osem := sem.(*semantic.ObjectSemantics)
		values := make([]evaluator, len(n.Properties))
		for i, prop := range n.Properties {
			values[i], err = b.expr(prop.Value)
			if err != nil {
				return nil, err
			}
		}
		return &objectEval{typ: osem.Struct, values: values}, nil
	case *ast.Operation:
		osem, err := opSemantics(n)
		if err != nil {
			return nil, err
		}
		return b.operation(n, osem)
	}
	return nil, semantic.NewError(n, semantic.MalformedTree, "unexpected node kind %T", n)
}

func (b *builder) operation(n *ast.Operation, sem *semantic.OperationSemantics) (evaluator, error) {
	if sem.Op.IsCollection() {
		args, err := b.opArgs(n, sem)
		if err != nil {
			return nil, err
		}
		source, err := b.expr(n.Operands[0])
		if err != nil {
			return nil, err
		}
		op, err := b.syncOperator(n, sem)
		if err != nil {
			return nil, err
		}
		return &collectionEval{source: source, args: args, op: op}, nil
	}
	switch sem.Op.Category {
	case optr.Arithmetic:
		operands, err := b.operands(n, sem.Operand)
		if err != nil {
			return nil, err
		}
		return &arithEval{
			token:    n.Operator,
			operands: operands,
			result:   sem.Result,
			float:    isFloatKind(sem.Operand.Kind()),
		}, nil
	case optr.Relational:
		operands, err := b.operands(n, sem.Operand)
		if err != nil {
			return nil, err
		}
		return &compareEval{
			token:  n.Operator,
			lhs:    operands[0],
			rhs:    operands[1],
			common: sem.Operand,
		}, nil
	case optr.StringRelational:
		operands, err := b.operands(n, nil)
		if err != nil {
			return nil, err
		}
		return &stringRelEval{token: n.Operator, lhs: operands[0], rhs: operands[1]}, nil
	case optr.Logical:
		operands, err := b.operands(n, nil)
		if err != nil {
			return nil, err
		}
		return &logicalEval{token: n.Operator, operands: operands}, nil
	case optr.Semantic:
		return b.match(n, sem)
	}
	return nil, semantic.NewError(n, semantic.InvariantViolation,
		"operator %q has no lowering", n.Operator)
}

// operands lowers every operand, converting each to common when set.
func (b *builder) operands(n *ast.Operation, common reflect.Type) ([]evaluator, error) {
	out := make([]evaluator, len(n.Operands))
	for i, operand := range n.Operands {
		ev, err := b.expr(operand)
		if err != nil {
			return nil, err
		}
		if common != nil {
			osem, err := semantic.SemanticsOf(operand)
			if err != nil {
				return nil, err
			}
			ev = convertTo(ev, osem.Type(), common)
		}
		out[i] = ev
	}
	return out, nil
}

func (b *builder) match(n *ast.Operation, sem *semantic.OperationSemantics) (evaluator, error) {
	target, err := b.expr(n.Operands[0])
	if err != nil {
		return nil, err
	}
	if obj, ok := n.Operands[1].(*ast.AnonymousObject); ok {
		tests, err := b.patternTests(obj)
		if err != nil {
			return nil, err
		}
		return &matchEval{target: target, tests: tests}, nil
	}
	operands, err := b.operands(n, sem.Operand)
	if err != nil {
		return nil, err
	}
	return &compareEval{
		token:  "$eq",
		lhs:    operands[0],
		rhs:    operands[1],
		common: sem.Operand,
	}, nil
}

// patternTests compiles the property tests of a structural pattern.  Each
// property carries the matched struct's field from analysis.
func (b *builder) patternTests(obj *ast.AnonymousObject) ([]fieldMatch, error) {
	tests := make([]fieldMatch, 0, len(obj.Properties))
	for _, prop := range obj.Properties {
		psem, err := semantic.SemanticsOf(prop)
		if err != nil {
			return nil, err
		}
		field := psem.(*semantic.PropertySemantics).Field
		test := fieldMatch{name: prop.Name, index: field.Index}
		if nested, ok := prop.Value.(*ast.AnonymousObject); ok {
			test.sub, err = b.patternTests(nested)
			if err != nil {
				return nil, err
			}
			tests = append(tests, test)
			continue
		}
		value, err := b.expr(prop.Value)
		if err != nil {
			return nil, err
		}
		vsem, err := semantic.SemanticsOf(prop.Value)
		if err != nil {
			return nil, err
		}
		if vsem.Type() != nil {
			common, ok := semantic.CommonType(field.Type, vsem.Type())
			if !ok {
				return nil, semantic.NewError(prop, semantic.InvariantViolation,
					"pattern property %q has no common type", prop.Name)
			}
			test.common = common
			value = convertTo(value, vsem.Type(), common)
		}
		test.value = value
		tests = append(tests, test)
	}
	return tests, nil
}

// opArgs is the compiled argument surface of one collection operation.
// pred and sel close over the per-element cursor; n and arg evaluate
// against the enclosing cursor when the call is assembled.
type opArgs struct {
	kind   provider.Kind
	elem   reflect.Type
	result reflect.Type
	pred   evaluator
	sel    evaluator
	n      evaluator
	arg    evaluator
	common reflect.Type
}

func (b *builder) opArgs(op *ast.Operation, sem *semantic.OperationSemantics) (*opArgs, error) {
	srcSem, err := semantic.SemanticsOf(op.Operands[0])
	if err != nil {
		return nil, err
	}
	a := &opArgs{kind: sem.Op.Kind, elem: srcSem.Type().Elem()}
	argNode := op.Operands[1]
	switch a.kind {
	case provider.Where, provider.Count, provider.Any, provider.All:
		a.pred, err = b.expr(argNode)
	case provider.Project:
		a.result = sem.Result.Elem()
		a.sel, err = b.selector(argNode)
	case provider.Flatten:
		return nil, semantic.NewError(op, semantic.Unsupported,
			"operator %q is not supported by the provider", op.Operator)
	case provider.Take, provider.Drop, provider.ElementAt:
		a.n, err = b.expr(argNode)
	case provider.Contains:
		a.common = sem.Operand
		a.arg, err = b.expr(argNode)
	case provider.Min, provider.Max, provider.Sum, provider.Average:
		a.sel, err = b.selector(argNode)
	default:
		return nil, semantic.NewError(op, semantic.InvariantViolation,
			"operator %q maps to no provider kind", op.Operator)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// selector lowers a selector operand; the parser's placeholder literal
// means the element itself.
func (b *builder) selector(argNode ast.Expr) (evaluator, error) {
	if lit, ok := argNode.(*ast.Literal); ok && lit.Type == ast.LitBool {
		return elementEval{}, nil
	}
	return b.expr(argNode)
}

// call assembles the provider call for one invocation against env e and
// the enclosing cursor.
func (a *opArgs) call(e *env, cursor reflect.Value) (provider.Call, error) {
	c := provider.Call{Elem: a.elem, Result: a.result}
	if a.pred != nil {
		pred := a.pred
		c.Pred = func(item reflect.Value) (bool, error) {
			v, err := pred.Eval(e, item)
			if err != nil {
				return false, err
			}
			return v.Bool(), nil
		}
	}
	if a.sel != nil {
		sel := a.sel
		c.Select = func(item reflect.Value) (reflect.Value, error) {
			return sel.Eval(e, item)
		}
	}
	if a.n != nil {
		v, err := a.n.Eval(e, cursor)
		if err != nil {
			return provider.Call{}, err
		}
		c.N = intOf(v)
	}
	if a.arg != nil {
		want, err := a.arg.Eval(e, cursor)
		if err != nil {
			return provider.Call{}, err
		}
		common := a.common
		if want.IsValid() && common != nil && want.Type() != common {
			want = want.Convert(common)
		}
		c.Pred = func(item reflect.Value) (bool, error) {
			if common != nil && item.IsValid() && item.Type() != common {
				item = item.Convert(common)
			}
			return equalValues(item, want, common), nil
		}
	}
	return c, nil
}

// collectionEval runs a collection operation in the synchronous family.
type collectionEval struct {
	source evaluator
	args   *opArgs
	op     provider.SyncOperator
}

func (c *collectionEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	src, err := c.source.Eval(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	call, err := c.args.call(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	call.Source = src
	return c.op.Invoke(call)
}

func isSequence(t reflect.Type) bool {
	return t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array)
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
