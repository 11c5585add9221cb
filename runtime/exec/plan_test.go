package exec_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsqlang/jsq/runtime/exec"
)

func TestPlanRun(t *testing.T) {
	intSlice := reflect.TypeOf([]int64{})
	p := exec.New(intSlice, reflect.TypeOf(int64(0)),
		func(_ context.Context, src reflect.Value) (reflect.Value, error) {
			var sum int64
			for i := 0; i < src.Len(); i++ {
				sum += src.Index(i).Int()
			}
			return reflect.ValueOf(sum), nil
		})

	out, err := p.Run(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(6), out)
	assert.Equal(t, intSlice, p.Source())
	assert.Equal(t, reflect.TypeOf(int64(0)), p.Result())
	assert.Contains(t, p.String(), p.ID().String())
}

func TestPlanRejectsWrongSourceType(t *testing.T) {
	p := exec.New(reflect.TypeOf([]int64{}), reflect.TypeOf(int64(0)),
		func(_ context.Context, src reflect.Value) (reflect.Value, error) {
			return reflect.ValueOf(int64(0)), nil
		})

	_, err := p.Run(context.Background(), []string{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binds source type []int64")

	_, err = p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got nil")
}

func TestPlanPropagatesRunError(t *testing.T) {
	boom := errors.New("boom")
	p := exec.New(reflect.TypeOf([]int64{}), reflect.TypeOf(int64(0)),
		func(_ context.Context, _ reflect.Value) (reflect.Value, error) {
			return reflect.Value{}, boom
		})
	_, err := p.Run(context.Background(), []int64{})
	assert.True(t, errors.Is(err, boom))
}

func TestPlanIDsAreUnique(t *testing.T) {
	runFn := func(_ context.Context, src reflect.Value) (reflect.Value, error) {
		return src, nil
	}
	a := exec.New(reflect.TypeOf([]int64{}), reflect.TypeOf([]int64{}), runFn)
	b := exec.New(reflect.TypeOf([]int64{}), reflect.TypeOf([]int64{}), runFn)
	assert.NotEqual(t, a.ID(), b.ID())
}
