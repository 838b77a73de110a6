package normalize

import (
	"reflect"
	"sync"
)

// Registry is the closed, compile-time-known set of domain types the
// normalizer may construct. Classes bind a name to a Go struct type; enums
// bind a name to a fixed set of typed string constants. Nothing is ever added
// from runtime input.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]reflect.Type
	enums   map[string]map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: map[string]reflect.Type{},
		enums:   map[string]map[string]any{},
	}
}

// RegisterClass binds the class name to struct type T. Names may be
// qualified with a prefix ("billing.Invoice") to match CallOptions.Prefix.
func RegisterClass[T any](r *Registry, name string) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		panic("normalize: RegisterClass requires a struct type, got " + t.String())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[name] = t
}

// RegisterEnum binds the enum name to a closed set of symbols. Lookups return
// the registered constant itself, preserving its Go type.
func RegisterEnum[T ~string](r *Registry, name string, values ...T) {
	set := make(map[string]any, len(values))
	for _, v := range values {
		set[string(v)] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enums[name] = set
}

func (r *Registry) class(prefix, name string) (reflect.Type, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range candidates(prefix, name) {
		if t, ok := r.classes[key]; ok {
			return t, true
		}
	}
	return nil, false
}

func (r *Registry) enum(prefix, name, value string) (any, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range candidates(prefix, name) {
		if set, ok := r.enums[key]; ok {
			sym, found := set[value]
			return sym, found
		}
	}
	return nil, false
}

func candidates(prefix, name string) []string {
	if prefix == "" {
		return []string{name}
	}
	return []string{prefix + "." + name, name}
}
