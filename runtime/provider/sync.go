package provider

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// syncOp executes one operator kind against a materialized sequence.
type syncOp struct{ kind Kind }

func (o syncOp) Kind() Kind        { return o.kind }
func (o syncOp) Suspendable() bool { return false }

func (o syncOp) Invoke(c Call) (reflect.Value, error) {
	src := c.Source
	switch o.kind {
	case Where:
		out := reflect.MakeSlice(reflect.SliceOf(c.Elem), 0, src.Len())
		for i := 0; i < src.Len(); i++ {
			v := src.Index(i)
			keep, err := c.Pred(v)
			if err != nil {
				return reflect.Value{}, err
			}
			if keep {
				out = reflect.Append(out, v)
			}
		}
		return out, nil
	case Project:
		out := reflect.MakeSlice(reflect.SliceOf(c.Result), 0, src.Len())
		for i := 0; i < src.Len(); i++ {
			v, err := c.Select(src.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	case Flatten:
		return reflect.Value{}, ErrUnsupported
	case Take:
		n := clampN(c.N, src.Len())
		out := reflect.MakeSlice(reflect.SliceOf(c.Elem), 0, n)
		for i := 0; i < n; i++ {
			out = reflect.Append(out, src.Index(i))
		}
		return out, nil
	case Drop:
		start := clampN(c.N, src.Len())
		out := reflect.MakeSlice(reflect.SliceOf(c.Elem), 0, src.Len()-start)
		for i := start; i < src.Len(); i++ {
			out = reflect.Append(out, src.Index(i))
		}
		return out, nil
	case Count:
		var count int64
		for i := 0; i < src.Len(); i++ {
			hit, err := c.Pred(src.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			if hit {
				count++
			}
		}
		return reflect.ValueOf(count), nil
	case Contains, Any:
		for i := 0; i < src.Len(); i++ {
			hit, err := c.Pred(src.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			if hit {
				return reflect.ValueOf(true), nil
			}
		}
		return reflect.ValueOf(false), nil
	case All:
		for i := 0; i < src.Len(); i++ {
			hit, err := c.Pred(src.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			if !hit {
				return reflect.ValueOf(false), nil
			}
		}
		return reflect.ValueOf(true), nil
	case ElementAt:
		if c.N < 0 || c.N >= int64(src.Len()) {
			return reflect.Value{}, fmt.Errorf("%w: %d in a sequence of %d", ErrOutOfRange, c.N, src.Len())
		}
		return src.Index(int(c.N)), nil
	case Min, Max:
		fold := minmax{max: o.kind == Max}
		for i := 0; i < src.Len(); i++ {
			v, err := c.Select(src.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			fold.add(v)
		}
		return fold.result(o.kind)
	case Sum:
		var fold summer
		for i := 0; i < src.Len(); i++ {
			v, err := c.Select(src.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			fold.add(v)
		}
		return fold.sum(o.kind)
	case Average:
		var fold summer
		for i := 0; i < src.Len(); i++ {
			v, err := c.Select(src.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			fold.add(v)
		}
		return fold.average(o.kind)
	}
	return reflect.Value{}, fmt.Errorf("%w: %s", ErrUnsupported, o.kind)
}

func clampN(n int64, length int) int {
	if n < 0 {
		return 0
	}
	if n > int64(length) {
		return length
	}
	return int(n)
}

// Compare orders two values of the same ordered type: any numeric kind,
// any string kind, or time.Time.  It backs Min and Max and the compiler's
// relational operators, so both agree on ordering.
func Compare(a, b reflect.Value) int {
	if a.Type() == timeType {
		return a.Interface().(time.Time).Compare(b.Interface().(time.Time))
	}
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	}
	return strings.Compare(a.String(), b.String())
}

// minmax folds elements to the extreme under compareOrdered.
type minmax struct {
	best reflect.Value
	max  bool
}

func (m *minmax) add(v reflect.Value) {
	if !m.best.IsValid() {
		m.best = v
		return
	}
	c := Compare(v, m.best)
	if m.max && c > 0 || !m.max && c < 0 {
		m.best = v
	}
}

func (m *minmax) result(kind Kind) (reflect.Value, error) {
	if !m.best.IsValid() {
		return reflect.Value{}, fmt.Errorf("%s: %w", kind, ErrEmptySequence)
	}
	return m.best, nil
}

// summer accumulates numeric elements for Sum and Average.  All elements of
// one invocation share a type, so the first element fixes the accumulator.
type summer struct {
	i     int64
	f     float64
	float bool
	n     int64
}

func (s *summer) add(v reflect.Value) {
	s.n++
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		s.float = true
		s.f += v.Float()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s.i += int64(v.Uint())
	default:
		s.i += v.Int()
	}
}

func (s *summer) sum(kind Kind) (reflect.Value, error) {
	if s.n == 0 {
		return reflect.Value{}, fmt.Errorf("%s: %w", kind, ErrEmptySequence)
	}
	if s.float {
		return reflect.ValueOf(s.f), nil
	}
	return reflect.ValueOf(s.i), nil
}

func (s *summer) average(kind Kind) (reflect.Value, error) {
	if s.n == 0 {
		return reflect.Value{}, fmt.Errorf("%s: %w", kind, ErrEmptySequence)
	}
	total := s.f
	if !s.float {
		total = float64(s.i)
	}
	return reflect.ValueOf(total / float64(s.n)), nil
}
