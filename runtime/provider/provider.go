// Package provider defines the operator capability surface that compiled
// plans execute against.  Operators come in two families: the synchronous
// family works on materialized sequences and the suspendable family works
// on pull streams that honor context cancellation.  A Resolver maps each
// emitted operator kind to an executable operator; Default backs both
// families with the in-memory engine.
package provider

import (
	"context"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnsupported marks operations the provider cannot execute.
	ErrUnsupported = errors.New("operation not supported by provider")
	// ErrEmptySequence is returned by aggregations that need at least one
	// element.
	ErrEmptySequence = errors.New("empty sequence")
	// ErrOutOfRange is returned by ElementAt for indexes outside the
	// sequence.
	ErrOutOfRange = errors.New("index out of range")
)

// Call carries the inputs of one operator invocation.  The compiler fills
// the fields the kind consumes: Source or Stream for the input sequence,
// Pred for predicate kinds, Select for selector kinds, and N for the
// counting kinds.
type Call struct {
	Source reflect.Value // materialized input, sync family
	Stream Stream        // streaming input, suspendable family
	Elem   reflect.Type  // element type of the input
	Result reflect.Type  // result element type for Project
	Pred   func(reflect.Value) (bool, error)
	Select func(reflect.Value) (reflect.Value, error)
	N      int64
}

// Stream is a pull iterator over a sequence.  Next returns the next
// element, reporting false when the sequence is exhausted.  Implementations
// return promptly once ctx is cancelled.
type Stream interface {
	Next(ctx context.Context) (reflect.Value, bool, error)
}

// Operator is one resolved capability.
type Operator interface {
	Kind() Kind
	Suspendable() bool
}

// SyncOperator executes against a materialized source in one call.
type SyncOperator interface {
	Operator
	Invoke(c Call) (reflect.Value, error)
}

// StreamTransform wraps an upstream stream with a transform stage.
type StreamTransform interface {
	Operator
	Transform(c Call) (Stream, error)
}

// StreamAggregate drains an upstream stream into a scalar.
type StreamAggregate interface {
	Operator
	Aggregate(ctx context.Context, c Call) (reflect.Value, error)
}

// Resolver maps an operator kind to an executable operator of the
// requested family.
type Resolver interface {
	Resolve(kind Kind, suspendable bool) (Operator, error)
}

// Default returns the resolver for the in-memory engine, which serves
// every kind in both families.
func Default() Resolver { return defaultResolver{} }

type defaultResolver struct{}

func (defaultResolver) Resolve(kind Kind, suspendable bool) (Operator, error) {
	if _, ok := kindNames[kind]; !ok || kind == KindInvalid {
		return nil, fmt.Errorf("unknown operator kind %d", int(kind))
	}
	if suspendable {
		return streamOp{kind: kind}, nil
	}
	return syncOp{kind: kind}, nil
}
