package testutil

import "github.com/hupe1980/fnstream/core"

// ClassBuilder provides a fluent helper for constructing core.Class values in tests.
// Example:
//
//	c := NewClass("Person").Field("name", "ada").Field("age", int64(36)).Build()
//
// Fields keep the order they were added in.
type ClassBuilder struct {
	name   string
	fields []core.Field
}

// NewClass creates a builder for a class with the given name.
func NewClass(name string) *ClassBuilder { return &ClassBuilder{name: name} }

// Field appends a field (chainable).
func (b *ClassBuilder) Field(name string, v any) *ClassBuilder {
	b.fields = append(b.fields, core.Field{Name: name, Value: v})
	return b
}

// Enum appends an enum-valued field (chainable).
func (b *ClassBuilder) Enum(name, enum, value string) *ClassBuilder {
	return b.Field(name, core.Enum{Name: enum, Value: value})
}

// Build returns the assembled class.
func (b *ClassBuilder) Build() core.Class {
	return core.Class{Name: b.name, Fields: append([]core.Field(nil), b.fields...)}
}
