package ast

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// UnmarshalQuery decodes the JSON form of a tree produced by an external
// parser.  Every object must carry a "kind" discriminator naming one of the
// Kind* constants.  Literal values are rederived from their type and text,
// and parent links are wired as the tree is built.
func UnmarshalQuery(data []byte) (*Query, error) {
	var shell struct {
		Kind string          `json:"kind"`
		Body json.RawMessage `json:"body"`
		Loc  Loc             `json:"loc"`
	}
	if err := json.Unmarshal(data, &shell); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if shell.Kind != KindQuery {
		return nil, fmt.Errorf("query: root kind is %q, expected %q", shell.Kind, KindQuery)
	}
	if len(shell.Body) == 0 {
		return nil, fmt.Errorf("query: missing body")
	}
	body, err := decodeExpr(shell.Body)
	if err != nil {
		return nil, err
	}
	return NewQuery(body, shell.Loc), nil
}

// MarshalQuery encodes a tree to its JSON form.  Annotations and parent
// links do not travel.
func MarshalQuery(q *Query) ([]byte, error) {
	return json.Marshal(q)
}

func decodeExpr(data []byte) (Expr, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Kind {
	case KindOperation:
		var shell struct {
			Operator string            `json:"operator"`
			Operands []json.RawMessage `json:"operands"`
			Loc      Loc               `json:"loc"`
		}
		if err := json.Unmarshal(data, &shell); err != nil {
			return nil, err
		}
		operands := make([]Expr, 0, len(shell.Operands))
		for _, raw := range shell.Operands {
			operand, err := decodeExpr(raw)
			if err != nil {
				return nil, err
			}
			operands = append(operands, operand)
		}
		return NewOperation(shell.Operator, operands, shell.Loc), nil
	case KindMemberAccess:
		var shell struct {
			Operand json.RawMessage `json:"operand"`
			Name    string          `json:"name"`
			Loc     Loc             `json:"loc"`
		}
		if err := json.Unmarshal(data, &shell); err != nil {
			return nil, err
		}
		operand, err := decodeExpr(shell.Operand)
		if err != nil {
			return nil, err
		}
		return NewMemberAccess(operand, shell.Name, shell.Loc), nil
	case KindReference:
		var shell struct {
			Ident string `json:"ident"`
			Loc   Loc    `json:"loc"`
		}
		if err := json.Unmarshal(data, &shell); err != nil {
			return nil, err
		}
		return NewReference(shell.Ident, shell.Loc), nil
	case KindLiteral:
		var shell struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Loc  Loc    `json:"loc"`
		}
		if err := json.Unmarshal(data, &shell); err != nil {
			return nil, err
		}
		val, err := literalValue(shell.Type, shell.Text)
		if err != nil {
			return nil, err
		}
		return NewLiteral(shell.Type, shell.Text, val, shell.Loc), nil
	case KindAnonymousObject:
		var shell struct {
			Properties []json.RawMessage `json:"properties"`
			Loc        Loc               `json:"loc"`
		}
		if err := json.Unmarshal(data, &shell); err != nil {
			return nil, err
		}
		props := make([]*AnonymousObjectProperty, 0, len(shell.Properties))
		for _, raw := range shell.Properties {
			p, err := decodeProperty(raw)
			if err != nil {
				return nil, err
			}
			props = append(props, p)
		}
		return NewAnonymousObject(props, shell.Loc), nil
	case "":
		return nil, fmt.Errorf("node has no kind")
	}
	return nil, fmt.Errorf("unknown node kind %q", probe.Kind)
}

func decodeProperty(data []byte) (*AnonymousObjectProperty, error) {
	var shell struct {
		Kind  string          `json:"kind"`
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
		Loc   Loc             `json:"loc"`
	}
	if err := json.Unmarshal(data, &shell); err != nil {
		return nil, err
	}
	if shell.Kind != KindAnonymousObjectProperty {
		return nil, fmt.Errorf("object property has kind %q, expected %q",
			shell.Kind, KindAnonymousObjectProperty)
	}
	value, err := decodeExpr(shell.Value)
	if err != nil {
		return nil, err
	}
	return NewAnonymousObjectProperty(shell.Name, value, shell.Loc), nil
}

func literalValue(typ, text string) (any, error) {
	switch typ {
	case LitString:
		return text, nil
	case LitInt:
		return strconv.ParseInt(text, 10, 64)
	case LitFloat:
		return strconv.ParseFloat(text, 64)
	case LitBool:
		return strconv.ParseBool(text)
	case LitNull:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown literal type %q", typ)
}
