package semantic

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	timeType   = reflect.TypeOf(time.Time{})
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
	boolType   = reflect.TypeOf(false)
	stringType = reflect.TypeOf("")
	int64Type  = reflect.TypeOf(int64(0))
	floatType  = reflect.TypeOf(float64(0))
)

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumeric(t reflect.Type) bool {
	if t == nil {
		return false
	}
	return isIntKind(t.Kind()) || isFloatKind(t.Kind())
}

// isSequence reports whether t is a queryable sequence.
func isSequence(t reflect.Type) bool {
	if t == nil {
		return false
	}
	k := t.Kind()
	return k == reflect.Slice || k == reflect.Array
}

func isBoolType(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Bool
}

func isIntType(t reflect.Type) bool {
	return t != nil && isIntKind(t.Kind())
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "null"
	}
	return t.String()
}

// CommonType returns the type values of a and b widen to for comparison:
// the type itself when equal, the wider base numeric type for numeric
// pairs.  Plan generation uses it to pick conversion targets the analyzer
// has already validated.
func CommonType(a, b reflect.Type) (reflect.Type, bool) {
	return widenTypes(a, b)
}

// isOrdered reports whether values of t admit the ordering comparisons and
// the min/max aggregations.
func isOrdered(t reflect.Type) bool {
	if t == nil {
		return false
	}
	return isNumeric(t) || t.Kind() == reflect.String || t == timeType
}

// isNullable reports whether t has a null value the null literal can
// compare against.
func isNullable(t reflect.Type) bool {
	if t == nil {
		return true
	}
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// widenTypes returns the common type two operand types widen to: the type
// itself when equal, or the wider base numeric type for numeric pairs.
func widenTypes(a, b reflect.Type) (reflect.Type, bool) {
	if a == b {
		return a, true
	}
	if isNumeric(a) && isNumeric(b) {
		if isFloatKind(a.Kind()) || isFloatKind(b.Kind()) {
			return floatType, true
		}
		return int64Type, true
	}
	return nil, false
}

// widenNumeric folds widenTypes over operand types for n-ary arithmetic.
func widenNumeric(types []reflect.Type) (reflect.Type, bool) {
	common := types[0]
	for _, t := range types[1:] {
		var ok bool
		if common, ok = widenTypes(common, t); !ok {
			return nil, false
		}
	}
	return common, true
}

// fieldLookup finds the field of t (a struct type) named by name: by json
// tag first, then exact field name, then case-insensitive match.  Promoted
// fields of embedded structs participate.
func fieldLookup(t reflect.Type, name string) (reflect.StructField, bool) {
	var exact, folded *reflect.StructField
	for _, f := range reflect.VisibleFields(t) {
		f := f
		if f.PkgPath != "" || f.Anonymous {
			continue
		}
		if tag, ok := f.Tag.Lookup("json"); ok {
			if tagName, _, _ := strings.Cut(tag, ","); tagName == name {
				return f, true
			}
		}
		if f.Name == name && exact == nil {
			exact = &f
		} else if strings.EqualFold(f.Name, name) && folded == nil {
			folded = &f
		}
	}
	if exact != nil {
		return *exact, true
	}
	if folded != nil {
		return *folded, true
	}
	return reflect.StructField{}, false
}

// structOf dereferences pointer types down to a struct, reporting whether
// it found one and whether a pointer was crossed.
func structOf(t reflect.Type) (reflect.Type, bool, bool) {
	indirect := false
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
		indirect = true
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, indirect, false
	}
	return t, indirect, true
}

// buildField synthesizes the struct field for an anonymous object property.
// The field name is the property name with its first rune upper-cased so the
// field is exported; the original name rides in the json and yaml tags so
// encoded rows keep the query's spelling.
func buildField(name string, typ reflect.Type) (reflect.StructField, error) {
	if name == "" {
		return reflect.StructField{}, fmt.Errorf("empty property name")
	}
	if !validFieldName(name) {
		return reflect.StructField{}, fmt.Errorf("property name %q cannot form a field", name)
	}
	if typ == nil {
		typ = anyType
	}
	return reflect.StructField{
		Name: strings.ToUpper(name[:1]) + name[1:],
		Type: typ,
		Tag:  reflect.StructTag(fmt.Sprintf("json:%q yaml:%q", name, name)),
	}, nil
}

func validFieldName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9', c == '_':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
