package core

// Class is the generic class-shaped value emitted by engines: a class name and
// its fields in declaration order. Field values may themselves be Class, Enum,
// []any or primitive values.
type Class struct {
	Name   string
	Fields []Field
}

// Field is a single named value of a Class.
type Field struct {
	Name  string
	Value any
}

// Get returns the value of the named field.
func (c Class) Get(name string) (any, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Enum is the generic enum-shaped value emitted by engines: the enum name and
// the chosen value as a raw string.
type Enum struct {
	Name  string
	Value string
}
