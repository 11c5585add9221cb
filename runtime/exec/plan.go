// Package exec carries executable query plans.
package exec

import (
	"context"
	"fmt"
	"reflect"

	"github.com/segmentio/ksuid"
)

// Plan is a compiled query ready to run against a source sequence.  A plan
// is immutable and safe for concurrent use; the ID correlates host logs
// with the compilation that produced it.
type Plan struct {
	id     ksuid.KSUID
	source reflect.Type
	result reflect.Type
	run    func(context.Context, reflect.Value) (reflect.Value, error)
}

// New builds a plan around run.  source is the sequence type the plan
// binds and result the type Run produces.
func New(source, result reflect.Type, run func(context.Context, reflect.Value) (reflect.Value, error)) *Plan {
	return &Plan{id: ksuid.New(), source: source, result: result, run: run}
}

func (p *Plan) ID() ksuid.KSUID      { return p.id }
func (p *Plan) Source() reflect.Type { return p.source }
func (p *Plan) Result() reflect.Type { return p.result }

func (p *Plan) String() string {
	return fmt.Sprintf("plan %s: %s -> %s", p.id, p.source, p.result)
}

// Run executes the plan against src, which must hold a value of exactly
// the plan's source type.
func (p *Plan) Run(ctx context.Context, src any) (any, error) {
	v := reflect.ValueOf(src)
	if !v.IsValid() || v.Type() != p.source {
		got := "nil"
		if v.IsValid() {
			got = v.Type().String()
		}
		return nil, fmt.Errorf("plan %s binds source type %s, got %s", p.id, p.source, got)
	}
	out, err := p.run(ctx, v)
	if err != nil {
		return nil, err
	}
	if !out.IsValid() {
		return nil, nil
	}
	return out.Interface(), nil
}
