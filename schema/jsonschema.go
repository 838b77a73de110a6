package schema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ForType converts t into a JSON Schema. Recursive class references are
// emitted as unconstrained schemas at the point of recursion.
func ForType(t Type) *jsonschema.Schema {
	return forType(t, map[*Class]bool{})
}

// ParamsSchema builds the object schema for a parameter list. Non-optional
// parameters are required.
func ParamsSchema(params []Field) *jsonschema.Schema {
	return objectSchema("", "", params, map[*Class]bool{})
}

// Validate resolves s and validates instance against it. instance must be a
// decoded JSON value (map[string]any, []any, float64, string, bool or nil).
func Validate(s *jsonschema.Schema, instance any) error {
	rs, err := s.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}
	return rs.Validate(instance)
}

// Describe renders the JSON Schema of t as indented JSON for prompts.
func Describe(t Type) (string, error) {
	raw, err := json.MarshalIndent(ForType(t), "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func forType(t Type, visiting map[*Class]bool) *jsonschema.Schema {
	switch t.Kind {
	case KindString:
		return &jsonschema.Schema{Type: "string"}
	case KindInt:
		return &jsonschema.Schema{Type: "integer"}
	case KindFloat:
		return &jsonschema.Schema{Type: "number"}
	case KindBool:
		return &jsonschema.Schema{Type: "boolean"}
	case KindEnum:
		s := &jsonschema.Schema{Type: "string"}
		if t.Enum != nil {
			s.Title = t.Enum.Name
			if !t.Enum.Dynamic {
				for _, v := range t.Enum.Values {
					s.Enum = append(s.Enum, v)
				}
			}
		}
		return s
	case KindList:
		return &jsonschema.Schema{Type: "array", Items: forType(t.elem(), visiting)}
	case KindOptional:
		return &jsonschema.Schema{AnyOf: []*jsonschema.Schema{
			forType(t.elem(), visiting),
			{Type: "null"},
		}}
	case KindClass:
		if t.Class == nil || visiting[t.Class] {
			return &jsonschema.Schema{}
		}
		visiting[t.Class] = true
		defer delete(visiting, t.Class)
		return objectSchema(t.Class.Name, t.Class.Description, t.Class.Fields, visiting)
	default:
		return &jsonschema.Schema{}
	}
}

func objectSchema(title, description string, fields []Field, visiting map[*Class]bool) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:        "object",
		Title:       title,
		Description: description,
		Properties:  make(map[string]*jsonschema.Schema, len(fields)),
	}
	for _, f := range fields {
		prop := forType(f.Type, visiting)
		if f.Description != "" {
			prop.Description = f.Description
		}
		s.Properties[f.Name] = prop
		if f.Type.Kind != KindOptional {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}
