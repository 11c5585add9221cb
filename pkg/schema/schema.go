// Package schema synthesizes query element types from YAML descriptions.
// A schema names the fields of the queried element so the CLI and the
// end-to-end harness can build the reflect.Type a query compiles against
// without hand-writing Go structs.
//
// A field is a scalar type name, a sequence, or a nested object:
//
//	name: account
//	fields:
//	  nickname: string
//	  balance: float
//	  created: time
//	  address:
//	    optional: true
//	    fields:
//	      city: string
//	  orders:
//	    elem:
//	      fields:
//	        total: float
//	  tags: {elem: string}
//
// Scalar names are string, int, float, bool, and time.  Optional wraps the
// field type in a pointer.  Field order in the document is the field order
// of the synthesized struct.
package schema

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Schema describes one element type.
type Schema struct {
	Name   string
	Fields []Field
}

// Field describes one field of an element or nested object.  Exactly one
// of Type, Fields, or Elem is set.
type Field struct {
	Name     string
	Type     string
	Optional bool
	Fields   []Field
	Elem     *Field
}

var scalarTypes = map[string]reflect.Type{
	"string": reflect.TypeOf(""),
	"int":    reflect.TypeOf(int64(0)),
	"float":  reflect.TypeOf(float64(0)),
	"bool":   reflect.TypeOf(false),
	"time":   reflect.TypeOf(time.Time{}),
}

// Parse decodes a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the schema file at path.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("schema: expected a mapping, got %s", nodeKind(node))
	}
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "name":
			if err := value.Decode(&s.Name); err != nil {
				return err
			}
		case "fields":
			fields, err := decodeFields(value)
			if err != nil {
				return err
			}
			s.Fields = fields
		default:
			return fmt.Errorf("schema: unknown key %q at line %d", key.Value, key.Line)
		}
	}
	if len(s.Fields) == 0 {
		return errors.New("schema: no fields")
	}
	return nil
}

func decodeFields(node *yaml.Node) ([]Field, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("schema: fields at line %d must form a mapping, got %s",
			node.Line, nodeKind(node))
	}
	fields := make([]Field, 0, len(node.Content)/2)
	for i := 0; i < len(node.Content); i += 2 {
		f, err := decodeField(node.Content[i+1])
		if err != nil {
			return nil, err
		}
		f.Name = node.Content[i].Value
		fields = append(fields, f)
	}
	return fields, nil
}

// decodeField accepts the scalar shorthand naming a type or a mapping
// spelling out the field.
func decodeField(node *yaml.Node) (Field, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return Field{Type: node.Value}, nil
	case yaml.MappingNode:
	default:
		return Field{}, fmt.Errorf("schema: field at line %d must be a type name or a mapping, got %s",
			node.Line, nodeKind(node))
	}
	var f Field
	for i := 0; i < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "type":
			if err := value.Decode(&f.Type); err != nil {
				return Field{}, err
			}
		case "optional":
			if err := value.Decode(&f.Optional); err != nil {
				return Field{}, err
			}
		case "fields":
			fields, err := decodeFields(value)
			if err != nil {
				return Field{}, err
			}
			f.Fields = fields
		case "elem":
			elem, err := decodeField(value)
			if err != nil {
				return Field{}, err
			}
			f.Elem = &elem
		default:
			return Field{}, fmt.Errorf("schema: unknown key %q at line %d", key.Value, key.Line)
		}
	}
	set := 0
	for _, ok := range []bool{f.Type != "", len(f.Fields) > 0, f.Elem != nil} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return Field{}, fmt.Errorf("schema: field at line %d mixes type, fields, and elem", node.Line)
	}
	return f, nil
}

// Type synthesizes the element struct type.  Field names are exported the
// way query projections export them, with the schema name riding in the
// json and yaml tags.
func (s *Schema) Type() (reflect.Type, error) {
	return structType(s.Fields, "")
}

func structType(fields []Field, at string) (reflect.Type, error) {
	built := make([]reflect.StructField, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		path := fieldPath(at, f.Name)
		if seen[f.Name] {
			return nil, fmt.Errorf("schema: duplicate field %q", path)
		}
		seen[f.Name] = true
		if !validName(f.Name) {
			return nil, fmt.Errorf("schema: name %q cannot form a struct field", path)
		}
		typ, err := fieldType(f, path)
		if err != nil {
			return nil, err
		}
		built = append(built, reflect.StructField{
			Name: strings.ToUpper(f.Name[:1]) + f.Name[1:],
			Type: typ,
			Tag:  reflect.StructTag(fmt.Sprintf("json:%q yaml:%q", f.Name, f.Name)),
		})
	}
	return reflect.StructOf(built), nil
}

func fieldType(f Field, path string) (reflect.Type, error) {
	var typ reflect.Type
	switch {
	case f.Type != "":
		t, ok := scalarTypes[f.Type]
		if !ok {
			return nil, fmt.Errorf("schema: field %q has unknown type %q (want string, int, float, bool, or time)",
				path, f.Type)
		}
		typ = t
	case f.Elem != nil:
		elem, err := fieldType(*f.Elem, path+"[]")
		if err != nil {
			return nil, err
		}
		typ = reflect.SliceOf(elem)
	case len(f.Fields) > 0:
		t, err := structType(f.Fields, path)
		if err != nil {
			return nil, err
		}
		typ = t
	default:
		return nil, fmt.Errorf("schema: field %q has no type", path)
	}
	if f.Optional {
		typ = reflect.PointerTo(typ)
	}
	return typ, nil
}

// DecodeRows unmarshals a YAML sequence of rows into a slice of elem.
// yaml.v3 reads JSON documents too, so JSON input needs no special case.
func DecodeRows(data []byte, elem reflect.Type) (any, error) {
	slice := reflect.New(reflect.SliceOf(elem))
	if err := yaml.Unmarshal(data, slice.Interface()); err != nil {
		return nil, err
	}
	return slice.Elem().Interface(), nil
}

func fieldPath(at, name string) string {
	if at == "" {
		return name
	}
	return at + "." + name
}

// validName matches the identifier rule of query member paths so schema
// fields stay addressable from queries.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
