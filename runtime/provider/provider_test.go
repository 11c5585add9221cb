package provider_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsqlang/jsq/runtime/provider"
)

var intType = reflect.TypeOf(int64(0))

func ints(vals ...int64) reflect.Value { return reflect.ValueOf(vals) }

func isEven(v reflect.Value) (bool, error) { return v.Int()%2 == 0, nil }

func identity(v reflect.Value) (reflect.Value, error) { return v, nil }

func sync(t *testing.T, kind provider.Kind) provider.SyncOperator {
	t.Helper()
	op, err := provider.Default().Resolve(kind, false)
	require.NoError(t, err)
	return op.(provider.SyncOperator)
}

func invoke(t *testing.T, kind provider.Kind, c provider.Call) reflect.Value {
	t.Helper()
	out, err := sync(t, kind).Invoke(c)
	require.NoError(t, err)
	return out
}

func TestWherePreservesOrder(t *testing.T) {
	out := invoke(t, provider.Where, provider.Call{
		Source: ints(5, 2, 8, 1, 4),
		Elem:   intType,
		Pred:   isEven,
	})
	assert.Equal(t, []int64{2, 8, 4}, out.Interface())
}

func TestProject(t *testing.T) {
	out := invoke(t, provider.Project, provider.Call{
		Source: ints(1, 2, 3),
		Elem:   intType,
		Result: intType,
		Select: func(v reflect.Value) (reflect.Value, error) {
			return reflect.ValueOf(v.Int() * 10), nil
		},
	})
	assert.Equal(t, []int64{10, 20, 30}, out.Interface())
}

func TestTakeDropSaturate(t *testing.T) {
	src := ints(1, 2, 3)
	assert.Equal(t, []int64{1, 2}, invoke(t, provider.Take,
		provider.Call{Source: src, Elem: intType, N: 2}).Interface())
	assert.Equal(t, []int64{1, 2, 3}, invoke(t, provider.Take,
		provider.Call{Source: src, Elem: intType, N: 10}).Interface())
	assert.Equal(t, []int64{}, invoke(t, provider.Take,
		provider.Call{Source: src, Elem: intType, N: -1}).Interface())
	assert.Equal(t, []int64{3}, invoke(t, provider.Drop,
		provider.Call{Source: src, Elem: intType, N: 2}).Interface())
	assert.Equal(t, []int64{}, invoke(t, provider.Drop,
		provider.Call{Source: src, Elem: intType, N: 10}).Interface())
	assert.Equal(t, []int64{1, 2, 3}, invoke(t, provider.Drop,
		provider.Call{Source: src, Elem: intType, N: -1}).Interface())
}

func TestElementAt(t *testing.T) {
	out := invoke(t, provider.ElementAt, provider.Call{Source: ints(7, 8, 9), N: 1})
	assert.Equal(t, int64(8), out.Interface())

	_, err := sync(t, provider.ElementAt).Invoke(provider.Call{Source: ints(7), N: 3})
	assert.True(t, errors.Is(err, provider.ErrOutOfRange))
	_, err = sync(t, provider.ElementAt).Invoke(provider.Call{Source: ints(7), N: -1})
	assert.True(t, errors.Is(err, provider.ErrOutOfRange))
}

func TestPredicateAggregates(t *testing.T) {
	src := ints(1, 2, 3, 4)
	assert.Equal(t, int64(2), invoke(t, provider.Count,
		provider.Call{Source: src, Pred: isEven}).Interface())
	assert.Equal(t, true, invoke(t, provider.Any,
		provider.Call{Source: src, Pred: isEven}).Interface())
	assert.Equal(t, false, invoke(t, provider.All,
		provider.Call{Source: src, Pred: isEven}).Interface())
	assert.Equal(t, true, invoke(t, provider.Contains, provider.Call{
		Source: src,
		Pred:   func(v reflect.Value) (bool, error) { return v.Int() == 3, nil },
	}).Interface())
}

func TestNumericAggregates(t *testing.T) {
	src := reflect.ValueOf([]float64{2.5, 1.5, 4.0})
	call := provider.Call{Source: src, Select: identity}
	assert.Equal(t, 1.5, invoke(t, provider.Min, call).Interface())
	assert.Equal(t, 4.0, invoke(t, provider.Max, call).Interface())
	assert.Equal(t, 8.0, invoke(t, provider.Sum, call).Interface())
	assert.InDelta(t, 8.0/3, invoke(t, provider.Average, call).Interface(), 1e-9)

	assert.Equal(t, int64(6), invoke(t, provider.Sum,
		provider.Call{Source: ints(1, 2, 3), Select: identity}).Interface())
}

func TestTimeOrdering(t *testing.T) {
	early := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	src := reflect.ValueOf([]time.Time{late, early})
	out := invoke(t, provider.Min, provider.Call{Source: src, Select: identity})
	assert.Equal(t, early, out.Interface())
}

func TestEmptyAggregatesError(t *testing.T) {
	empty := provider.Call{Source: ints(), Select: identity}
	for _, kind := range []provider.Kind{provider.Min, provider.Max, provider.Sum, provider.Average} {
		_, err := sync(t, kind).Invoke(empty)
		assert.True(t, errors.Is(err, provider.ErrEmptySequence), "%s on empty input", kind)
	}
}

func TestFlattenUnsupported(t *testing.T) {
	_, err := sync(t, provider.Flatten).Invoke(provider.Call{Source: ints(1)})
	assert.True(t, errors.Is(err, provider.ErrUnsupported))

	op, err := provider.Default().Resolve(provider.Flatten, true)
	require.NoError(t, err)
	_, err = op.(provider.StreamTransform).Transform(provider.Call{})
	assert.True(t, errors.Is(err, provider.ErrUnsupported))
}

func TestStreamPipeline(t *testing.T) {
	ctx := context.Background()
	where, err := provider.Default().Resolve(provider.Where, true)
	require.NoError(t, err)
	take, err := provider.Default().Resolve(provider.Take, true)
	require.NoError(t, err)

	s := provider.NewStream(ints(1, 2, 3, 4, 5, 6, 7, 8))
	s, err = where.(provider.StreamTransform).Transform(provider.Call{Stream: s, Pred: isEven})
	require.NoError(t, err)
	s, err = take.(provider.StreamTransform).Transform(provider.Call{Stream: s, N: 3})
	require.NoError(t, err)

	out, err := provider.Materialize(ctx, s, intType)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4, 6}, out.Interface())
}

func TestStreamAggregate(t *testing.T) {
	op, err := provider.Default().Resolve(provider.Count, true)
	require.NoError(t, err)
	out, err := op.(provider.StreamAggregate).Aggregate(context.Background(), provider.Call{
		Stream: provider.NewStream(ints(1, 2, 3, 4)),
		Pred:   isEven,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Interface())
}

// counterStream yields 1, 2, 3, ... forever, so only cancellation can end
// a pipeline that consumes it.
type counterStream struct{ n int64 }

func (s *counterStream) Next(ctx context.Context) (reflect.Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return reflect.Value{}, false, err
	}
	s.n++
	return reflect.ValueOf(s.n), true, nil
}

func TestStreamCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	op, err := provider.Default().Resolve(provider.Where, true)
	require.NoError(t, err)
	s, err := op.(provider.StreamTransform).Transform(provider.Call{
		Stream: &counterStream{},
		Pred:   isEven,
	})
	require.NoError(t, err)

	_, ok, err := s.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	for {
		_, ok, err = s.Next(ctx)
		if err != nil || !ok {
			break
		}
	}
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResolverFamilies(t *testing.T) {
	kinds := []provider.Kind{
		provider.Where, provider.Project, provider.Flatten, provider.Take,
		provider.Drop, provider.Count, provider.Contains, provider.ElementAt,
		provider.Any, provider.All, provider.Min, provider.Max, provider.Sum,
		provider.Average,
	}
	for _, kind := range kinds {
		op, err := provider.Default().Resolve(kind, false)
		require.NoError(t, err)
		assert.Equal(t, kind, op.Kind())
		assert.False(t, op.Suspendable())
		_, isSync := op.(provider.SyncOperator)
		assert.True(t, isSync, "%s", kind)

		op, err = provider.Default().Resolve(kind, true)
		require.NoError(t, err)
		assert.Equal(t, kind, op.Kind())
		assert.True(t, op.Suspendable())
		if kind.Transform() {
			_, isTransform := op.(provider.StreamTransform)
			assert.True(t, isTransform, "%s", kind)
		} else {
			_, isAggregate := op.(provider.StreamAggregate)
			assert.True(t, isAggregate, "%s", kind)
		}
	}

	_, err := provider.Default().Resolve(provider.KindInvalid, false)
	assert.Error(t, err)
}
