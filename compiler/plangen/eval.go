package plangen

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jsqlang/jsq/runtime/provider"
)

var (
	timeType  = reflect.TypeOf(time.Time{})
	int64Type = reflect.TypeOf(int64(0))
)

// env carries the values live during one plan run.
type env struct {
	source reflect.Value
}

// evaluator computes one scalar expression.  cursor is the element bound
// by the nearest enclosing lambda; it is invalid at the query root.
type evaluator interface {
	Eval(e *env, cursor reflect.Value) (reflect.Value, error)
}

type literalEval struct{ v reflect.Value }

func (l *literalEval) Eval(*env, reflect.Value) (reflect.Value, error) { return l.v, nil }

type sourceEval struct{}

func (sourceEval) Eval(e *env, _ reflect.Value) (reflect.Value, error) { return e.source, nil }

type elementEval struct{}

func (elementEval) Eval(_ *env, cursor reflect.Value) (reflect.Value, error) {
	if !cursor.IsValid() {
		return reflect.Value{}, fmt.Errorf("element reference outside a lambda")
	}
	return cursor, nil
}

type convertEval struct {
	inner evaluator
	to    reflect.Type
}

func (c *convertEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	v, err := c.inner.Eval(e, cursor)
	if err != nil || !v.IsValid() {
		return v, err
	}
	return v.Convert(c.to), nil
}

// convertTo wraps ev so it yields values of type to; exact matches and
// null comparisons pass through unwrapped.
func convertTo(ev evaluator, from, to reflect.Type) evaluator {
	if from == nil || to == nil || from == to {
		return ev
	}
	return &convertEval{inner: ev, to: to}
}

type memberEval struct {
	operand evaluator
	name    string
	index   []int
}

func (m *memberEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	v, err := m.operand.Eval(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil pointer reading field %q", m.name)
		}
		v = v.Elem()
	}
	out, err := v.FieldByIndexErr(m.index)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("reading field %q: %w", m.name, err)
	}
	return out, nil
}

type objectEval struct {
	typ    reflect.Type
	values []evaluator
}

func (o *objectEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	out := reflect.New(o.typ).Elem()
	for i, ev := range o.values {
		v, err := ev.Eval(e, cursor)
		if err != nil {
			return reflect.Value{}, err
		}
		if !v.IsValid() {
			continue // null keeps the field's zero value
		}
		out.Field(i).Set(v)
	}
	return out, nil
}

// arithEval folds its operands, which are pre-converted to the common
// operand type, in that type's base arithmetic.
type arithEval struct {
	token    string
	operands []evaluator
	result   reflect.Type
	float    bool
}

func (a *arithEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	if a.float {
		var acc float64
		for i, ev := range a.operands {
			v, err := ev.Eval(e, cursor)
			if err != nil {
				return reflect.Value{}, err
			}
			x := v.Float()
			if i == 0 {
				acc = x
				continue
			}
			switch a.token {
			case "$add":
				acc += x
			case "$sub":
				acc -= x
			case "$mul":
				acc *= x
			case "$div":
				acc /= x
			}
		}
		return toResult(reflect.ValueOf(acc), a.result), nil
	}
	var acc int64
	for i, ev := range a.operands {
		v, err := ev.Eval(e, cursor)
		if err != nil {
			return reflect.Value{}, err
		}
		x := intOf(v)
		if i == 0 {
			acc = x
			continue
		}
		switch a.token {
		case "$add":
			acc += x
		case "$sub":
			acc -= x
		case "$mul":
			acc *= x
		case "$div", "$mod":
			if x == 0 {
				return reflect.Value{}, fmt.Errorf("division by zero")
			}
			if a.token == "$div" {
				acc /= x
			} else {
				acc %= x
			}
		}
	}
	return toResult(reflect.ValueOf(acc), a.result), nil
}

func intOf(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	}
	return v.Int()
}

func toResult(v reflect.Value, result reflect.Type) reflect.Value {
	if v.Type() == result {
		return v
	}
	return v.Convert(result)
}

// compareEval compares two operands pre-converted to their common type.
// A nil common type marks a null comparison.
type compareEval struct {
	token    string
	lhs, rhs evaluator
	common   reflect.Type
}

func (c *compareEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	l, err := c.lhs.Eval(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	r, err := c.rhs.Eval(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	var out bool
	switch c.token {
	case "$eq":
		out = equalValues(l, r, c.common)
	case "$ne":
		out = !equalValues(l, r, c.common)
	default:
		d := provider.Compare(l, r)
		switch c.token {
		case "$gt":
			out = d > 0
		case "$gte":
			out = d >= 0
		case "$lt":
			out = d < 0
		case "$lte":
			out = d <= 0
		}
	}
	return reflect.ValueOf(out), nil
}

func isNullValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// equalValues compares two values already converted to their common type.
// Null equals only null; timestamps compare by instant.
func equalValues(l, r reflect.Value, common reflect.Type) bool {
	ln, rn := isNullValue(l), isNullValue(r)
	if ln || rn {
		return ln && rn
	}
	if common == timeType {
		return l.Interface().(time.Time).Equal(r.Interface().(time.Time))
	}
	return l.Interface() == r.Interface()
}

type stringRelEval struct {
	token    string
	lhs, rhs evaluator
}

func (s *stringRelEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	l, err := s.lhs.Eval(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	r, err := s.rhs.Eval(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	var out bool
	switch s.token {
	case "$startsWith":
		out = strings.HasPrefix(l.String(), r.String())
	case "$endsWith":
		out = strings.HasSuffix(l.String(), r.String())
	case "$has":
		out = strings.Contains(l.String(), r.String())
	}
	return reflect.ValueOf(out), nil
}

type logicalEval struct {
	token    string
	operands []evaluator
}

func (l *logicalEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	if l.token == "$not" {
		v, err := l.operands[0].Eval(e, cursor)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(!v.Bool()), nil
	}
	and := l.token == "$and"
	for _, ev := range l.operands {
		v, err := ev.Eval(e, cursor)
		if err != nil {
			return reflect.Value{}, err
		}
		if v.Bool() != and {
			return reflect.ValueOf(!and), nil
		}
	}
	return reflect.ValueOf(and), nil
}

// fieldMatch is one property test of a structural pattern: either an
// equality against value or a nested pattern in sub.
type fieldMatch struct {
	name   string
	index  []int
	value  evaluator
	common reflect.Type
	sub    []fieldMatch
}

// matchEval tests a structural pattern against the target value.
type matchEval struct {
	target evaluator
	tests  []fieldMatch
}

func (m *matchEval) Eval(e *env, cursor reflect.Value) (reflect.Value, error) {
	v, err := m.target.Eval(e, cursor)
	if err != nil {
		return reflect.Value{}, err
	}
	ok, err := matchStruct(e, cursor, v, m.tests)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(ok), nil
}

// matchStruct applies pattern tests to v.  A nil target never matches.
func matchStruct(e *env, cursor reflect.Value, v reflect.Value, tests []fieldMatch) (bool, error) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return false, nil
		}
		v = v.Elem()
	}
	for _, test := range tests {
		field, err := v.FieldByIndexErr(test.index)
		if err != nil {
			return false, nil
		}
		if test.sub != nil {
			ok, err := matchStruct(e, cursor, field, test.sub)
			if err != nil || !ok {
				return ok, err
			}
			continue
		}
		want, err := test.value.Eval(e, cursor)
		if err != nil {
			return false, err
		}
		if test.common != nil {
			if field.Type() != test.common {
				field = field.Convert(test.common)
			}
			if want.IsValid() && want.Type() != test.common {
				want = want.Convert(test.common)
			}
		}
		if !equalValues(field, want, test.common) {
			return false, nil
		}
	}
	return true, nil
}
