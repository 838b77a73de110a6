package schema

import "sync"

// TypeBuilder augments output types at call time: it adds properties to
// classes, values to enums and can mark classes dynamic. Apply returns an
// augmented copy; the original types are never mutated.
type TypeBuilder struct {
	mu         sync.RWMutex
	properties map[string][]Field
	enumValues map[string][]string
	dynamic    map[string]bool
}

// NewTypeBuilder creates an empty builder.
func NewTypeBuilder() *TypeBuilder {
	return &TypeBuilder{
		properties: map[string][]Field{},
		enumValues: map[string][]string{},
		dynamic:    map[string]bool{},
	}
}

// AddProperty appends a property to class and marks it dynamic.
func (b *TypeBuilder) AddProperty(class, name string, t Type) *TypeBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.properties[class] = append(b.properties[class], Field{Name: name, Type: t})
	b.dynamic[class] = true
	return b
}

// AddEnumValue appends a value to enum.
func (b *TypeBuilder) AddEnumValue(enum, value string) *TypeBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumValues[enum] = append(b.enumValues[enum], value)
	return b
}

// Dynamic marks class as open without adding properties.
func (b *TypeBuilder) Dynamic(class string) *TypeBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dynamic[class] = true
	return b
}

// IsDynamic reports whether class was marked dynamic. A nil builder marks nothing.
func (b *TypeBuilder) IsDynamic(class string) bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dynamic[class]
}

// Apply returns t with all registered augmentations applied. A nil builder
// returns t unchanged.
func (b *TypeBuilder) Apply(t Type) Type {
	if b == nil {
		return t
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.apply(t, map[*Class]*Class{})
}

func (b *TypeBuilder) apply(t Type, seen map[*Class]*Class) Type {
	switch t.Kind {
	case KindClass:
		if t.Class == nil {
			return t
		}
		if c, ok := seen[t.Class]; ok {
			return ClassOf(c)
		}
		c := &Class{
			Name:        t.Class.Name,
			Description: t.Class.Description,
			Dynamic:     t.Class.Dynamic || b.dynamic[t.Class.Name],
		}
		seen[t.Class] = c
		fields := make([]Field, 0, len(t.Class.Fields)+len(b.properties[c.Name]))
		for _, f := range t.Class.Fields {
			f.Type = b.apply(f.Type, seen)
			fields = append(fields, f)
		}
		for _, f := range b.properties[c.Name] {
			if _, exists := t.Class.Field(f.Name); exists {
				continue
			}
			f.Type = b.apply(f.Type, seen)
			fields = append(fields, f)
		}
		c.Fields = fields
		return ClassOf(c)
	case KindEnum:
		extra := b.enumValues[enumName(t)]
		if t.Enum == nil || len(extra) == 0 {
			return t
		}
		e := &Enum{Name: t.Enum.Name, Dynamic: t.Enum.Dynamic}
		e.Values = append(append(e.Values, t.Enum.Values...), extra...)
		return EnumOf(e)
	case KindList:
		return List(b.apply(t.elem(), seen))
	case KindOptional:
		return Optional(b.apply(t.elem(), seen))
	default:
		return t
	}
}

func enumName(t Type) string {
	if t.Enum == nil {
		return ""
	}
	return t.Enum.Name
}
