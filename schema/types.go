// Package schema describes the inputs and outputs of engine functions: a
// small type model (primitives, classes, enums, lists, optionals), function
// definitions, a thread-safe function catalog, runtime type augmentation and
// JSON Schema export/validation built on github.com/google/jsonschema-go.
package schema

import "fmt"

// Kind enumerates the supported type constructors.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindClass
	KindEnum
	KindList
	KindOptional
)

// String returns the type constructor name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindClass:
		return "class"
	case KindEnum:
		return "enum"
	case KindList:
		return "list"
	case KindOptional:
		return "optional"
	default:
		return "unknown"
	}
}

// Type is a node of the type model. Class is set for KindClass, Enum for
// KindEnum and Elem for KindList / KindOptional.
type Type struct {
	Kind  Kind
	Class *Class
	Enum  *Enum
	Elem  *Type
}

// Class is a named record type with ordered fields.
type Class struct {
	Name        string
	Description string
	Fields      []Field
	// Dynamic marks an open class: extra keys are accepted and the value is
	// normalized to an ordered map rather than a fixed Go type.
	Dynamic bool
}

// Field is a single property of a Class or a function parameter.
type Field struct {
	Name        string
	Type        Type
	Description string
}

// Enum is a named closed set of string values.
type Enum struct {
	Name    string
	Values  []string
	Dynamic bool
}

// String returns the string type.
func String() Type { return Type{Kind: KindString} }

// Int returns the integer type.
func Int() Type { return Type{Kind: KindInt} }

// Float returns the floating point type.
func Float() Type { return Type{Kind: KindFloat} }

// Bool returns the boolean type.
func Bool() Type { return Type{Kind: KindBool} }

// ClassOf wraps c as a Type.
func ClassOf(c *Class) Type { return Type{Kind: KindClass, Class: c} }

// EnumOf wraps e as a Type.
func EnumOf(e *Enum) Type { return Type{Kind: KindEnum, Enum: e} }

// List returns a list of elem.
func List(elem Type) Type { return Type{Kind: KindList, Elem: &elem} }

// Optional returns an optional elem.
func Optional(elem Type) Type { return Type{Kind: KindOptional, Elem: &elem} }

// String renders a compact type expression, e.g. "Person[]" or "int?".
func (t Type) String() string {
	switch t.Kind {
	case KindClass:
		if t.Class == nil {
			return "class"
		}
		return t.Class.Name
	case KindEnum:
		if t.Enum == nil {
			return "enum"
		}
		return t.Enum.Name
	case KindList:
		return fmt.Sprintf("%s[]", t.elem())
	case KindOptional:
		return fmt.Sprintf("%s?", t.elem())
	default:
		return t.Kind.String()
	}
}

func (t Type) elem() Type {
	if t.Elem == nil {
		return String()
	}
	return *t.Elem
}

// Field returns the named field.
func (c *Class) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Has reports whether v is one of the enum values.
func (e *Enum) Has(v string) bool {
	for _, x := range e.Values {
		if x == v {
			return true
		}
	}
	return false
}
