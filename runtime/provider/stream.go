package provider

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"
)

// prefetchDepth bounds the channel between a pump goroutine and its
// consumer.
const prefetchDepth = 16

// NewStream returns a Stream over a materialized sequence.
func NewStream(seq reflect.Value) Stream {
	return &sliceStream{src: seq}
}

type sliceStream struct {
	src reflect.Value
	i   int
}

func (s *sliceStream) Next(ctx context.Context) (reflect.Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return reflect.Value{}, false, err
	}
	if s.i >= s.src.Len() {
		return reflect.Value{}, false, nil
	}
	v := s.src.Index(s.i)
	s.i++
	return v, true, nil
}

// Materialize drains s into a freshly built slice of elem.
func Materialize(ctx context.Context, s Stream, elem reflect.Type) (reflect.Value, error) {
	out := reflect.MakeSlice(reflect.SliceOf(elem), 0, 0)
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return reflect.Value{}, err
		}
		if !ok {
			return out, nil
		}
		out = reflect.Append(out, v)
	}
}

// streamOp executes one operator kind in the suspendable family: transform
// kinds wrap the upstream stream, aggregation kinds drain it.
type streamOp struct{ kind Kind }

func (o streamOp) Kind() Kind        { return o.kind }
func (o streamOp) Suspendable() bool { return true }

func (o streamOp) Transform(c Call) (Stream, error) {
	switch o.kind {
	case Where:
		return newPumpStream(c.Stream, func(v reflect.Value) (reflect.Value, bool, error) {
			keep, err := c.Pred(v)
			return v, keep, err
		}), nil
	case Project:
		return newPumpStream(c.Stream, func(v reflect.Value) (reflect.Value, bool, error) {
			out, err := c.Select(v)
			return out, true, err
		}), nil
	case Take:
		return &takeStream{src: c.Stream, n: c.N}, nil
	case Drop:
		return &dropStream{src: c.Stream, n: c.N}, nil
	case Flatten:
		return nil, ErrUnsupported
	}
	return nil, fmt.Errorf("operator %s is not a transform", o.kind)
}

func (o streamOp) Aggregate(ctx context.Context, c Call) (reflect.Value, error) {
	switch o.kind {
	case Count:
		var count int64
		err := drain(ctx, c.Stream, func(v reflect.Value) (bool, error) {
			hit, err := c.Pred(v)
			if hit {
				count++
			}
			return true, err
		})
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(count), nil
	case Contains, Any:
		found := false
		err := drain(ctx, c.Stream, func(v reflect.Value) (bool, error) {
			hit, err := c.Pred(v)
			found = hit
			return !hit, err
		})
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(found), nil
	case All:
		all := true
		err := drain(ctx, c.Stream, func(v reflect.Value) (bool, error) {
			hit, err := c.Pred(v)
			if !hit {
				all = false
			}
			return hit, err
		})
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(all), nil
	case ElementAt:
		if c.N < 0 {
			return reflect.Value{}, fmt.Errorf("%w: %d", ErrOutOfRange, c.N)
		}
		var at reflect.Value
		var i int64
		err := drain(ctx, c.Stream, func(v reflect.Value) (bool, error) {
			if i == c.N {
				at = v
				return false, nil
			}
			i++
			return true, nil
		})
		if err != nil {
			return reflect.Value{}, err
		}
		if !at.IsValid() {
			return reflect.Value{}, fmt.Errorf("%w: %d in a sequence of %d", ErrOutOfRange, c.N, i)
		}
		return at, nil
	case Min, Max:
		fold := minmax{max: o.kind == Max}
		err := drain(ctx, c.Stream, func(v reflect.Value) (bool, error) {
			sel, err := c.Select(v)
			if err != nil {
				return false, err
			}
			fold.add(sel)
			return true, nil
		})
		if err != nil {
			return reflect.Value{}, err
		}
		return fold.result(o.kind)
	case Sum, Average:
		var fold summer
		err := drain(ctx, c.Stream, func(v reflect.Value) (bool, error) {
			sel, err := c.Select(v)
			if err != nil {
				return false, err
			}
			fold.add(sel)
			return true, nil
		})
		if err != nil {
			return reflect.Value{}, err
		}
		if o.kind == Sum {
			return fold.sum(o.kind)
		}
		return fold.average(o.kind)
	}
	return reflect.Value{}, fmt.Errorf("operator %s is not an aggregate", o.kind)
}

// drain pulls s to exhaustion, stopping early when fn returns false.
func drain(ctx context.Context, s Stream, fn func(reflect.Value) (bool, error)) error {
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		more, err := fn(v)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// pumpStream prefetches transformed elements through a bounded channel fed
// by an errgroup goroutine, so a cancelled context unblocks both producer
// and consumer promptly.  The pump starts on the first Next call and runs
// under that call's context.
type pumpStream struct {
	src   Stream
	step  func(reflect.Value) (reflect.Value, bool, error)
	once  sync.Once
	ch    chan reflect.Value
	group *errgroup.Group
}

func newPumpStream(src Stream, step func(reflect.Value) (reflect.Value, bool, error)) *pumpStream {
	return &pumpStream{src: src, step: step}
}

func (s *pumpStream) Next(ctx context.Context) (reflect.Value, bool, error) {
	s.once.Do(func() { s.start(ctx) })
	select {
	case v, ok := <-s.ch:
		if !ok {
			return reflect.Value{}, false, s.group.Wait()
		}
		return v, true, nil
	case <-ctx.Done():
		return reflect.Value{}, false, ctx.Err()
	}
}

func (s *pumpStream) start(ctx context.Context) {
	ch := make(chan reflect.Value, prefetchDepth)
	group, gctx := errgroup.WithContext(ctx)
	s.ch = ch
	s.group = group
	group.Go(func() error {
		defer close(ch)
		for {
			v, ok, err := s.src.Next(gctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			out, keep, err := s.step(v)
			if err != nil {
				return err
			}
			if !keep {
				continue
			}
			select {
			case ch <- out:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
}

type takeStream struct {
	src Stream
	n   int64
}

func (s *takeStream) Next(ctx context.Context) (reflect.Value, bool, error) {
	if s.n <= 0 {
		return reflect.Value{}, false, nil
	}
	v, ok, err := s.src.Next(ctx)
	if err != nil || !ok {
		return reflect.Value{}, false, err
	}
	s.n--
	return v, true, nil
}

type dropStream struct {
	src Stream
	n   int64
}

func (s *dropStream) Next(ctx context.Context) (reflect.Value, bool, error) {
	for s.n > 0 {
		_, ok, err := s.src.Next(ctx)
		if err != nil || !ok {
			return reflect.Value{}, false, err
		}
		s.n--
	}
	return s.src.Next(ctx)
}
