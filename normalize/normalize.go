// Package normalize turns the generic tagged shapes produced by engines
// (core.Class, core.Enum, lists and primitives) into caller-facing domain
// values.
//
// Resolution rules:
//
//   - Classes marked dynamic (by a schema.TypeBuilder or the Dynamic option)
//     become *Map, an ordered field-name to value mapping.
//   - Classes with a Go type bound in the Registry (optionally qualified by a
//     naming prefix) are constructed as that struct type, field by field.
//   - Enums resolve to the registered typed constant. Values outside the
//     closed, compile-time symbol set fall back to the raw string.
//   - Lists normalize element-wise; everything else passes through unchanged.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/schema"
)

// ErrMismatch is returned when a value cannot be assigned to the bound Go type.
var ErrMismatch = errors.New("normalize: type mismatch")

// Options configures a Normalizer.
type Options struct {
	// Prefix qualifies class and enum lookups in the Registry.
	Prefix string
	// TypeBuilder marks classes dynamic at call time.
	TypeBuilder *schema.TypeBuilder
	// Dynamic treats every class as open.
	Dynamic bool
}

// Normalizer converts generic engine values into domain values. It is
// stateless apart from its configuration and safe for concurrent use.
type Normalizer struct {
	registry *Registry
	opts     Options
}

// New creates a Normalizer over r. A nil registry resolves no fixed types.
func New(r *Registry, optFns ...func(o *Options)) *Normalizer {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Normalizer{registry: r, opts: opts}
}

// ForCall creates a Normalizer configured from per-call options.
func ForCall(r *Registry, call core.CallOptions) *Normalizer {
	return New(r, func(o *Options) {
		o.Prefix = call.Prefix
		o.TypeBuilder = call.TypeBuilder
	})
}

// Normalize converts v into its domain form.
func (n *Normalizer) Normalize(v any) (any, error) {
	switch x := v.(type) {
	case core.Class:
		return n.class(x)
	case *core.Class:
		if x == nil {
			return nil, nil
		}
		return n.class(*x)
	case core.Enum:
		return n.enum(x), nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			nv, err := n.Normalize(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

func (n *Normalizer) isDynamic(class string) bool {
	return n.opts.Dynamic || n.opts.TypeBuilder.IsDynamic(class)
}

func (n *Normalizer) class(c core.Class) (any, error) {
	if !n.isDynamic(c.Name) {
		if t, ok := n.registry.class(n.opts.Prefix, c.Name); ok {
			out, err := n.construct(t, c)
			if err != nil {
				return nil, err
			}
			return out.Interface(), nil
		}
	}
	return n.toMap(c)
}

func (n *Normalizer) toMap(c core.Class) (*Map, error) {
	m := NewMap()
	for _, f := range c.Fields {
		nv, err := n.Normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
		}
		m.Set(f.Name, nv)
	}
	return m, nil
}

func (n *Normalizer) enum(e core.Enum) any {
	if sym, ok := n.registry.enum(n.opts.Prefix, e.Name, e.Value); ok {
		return sym
	}
	return e.Value
}

func (n *Normalizer) construct(t reflect.Type, c core.Class) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	index := fieldIndex(t)
	for _, f := range c.Fields {
		i, ok := index.lookup(f.Name)
		if !ok {
			continue
		}
		if err := n.assign(out.Field(i), f.Value); err != nil {
			return reflect.Value{}, fmt.Errorf("%s.%s: %w", c.Name, f.Name, err)
		}
	}
	return out, nil
}

// assign stores the raw engine value v into dst, using dst's type to
// construct nested classes so they need not be registered separately.
func (n *Normalizer) assign(dst reflect.Value, v any) error {
	if v == nil {
		return nil
	}
	switch dst.Kind() {
	case reflect.Ptr:
		elem := reflect.New(dst.Type().Elem())
		if err := n.assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	case reflect.Struct:
		if c, ok := asClass(v); ok {
			out, err := n.construct(dst.Type(), c)
			if err != nil {
				return err
			}
			dst.Set(out)
			return nil
		}
	case reflect.Slice:
		if items, ok := v.([]any); ok {
			s := reflect.MakeSlice(dst.Type(), len(items), len(items))
			for i, item := range items {
				if err := n.assign(s.Index(i), item); err != nil {
					return fmt.Errorf("[%d]: %w", i, err)
				}
			}
			dst.Set(s)
			return nil
		}
	case reflect.Map:
		if c, ok := asClass(v); ok && dst.Type().Key().Kind() == reflect.String {
			m := reflect.MakeMapWithSize(dst.Type(), len(c.Fields))
			for _, f := range c.Fields {
				ev := reflect.New(dst.Type().Elem()).Elem()
				if err := n.assign(ev, f.Value); err != nil {
					return fmt.Errorf("%s: %w", f.Name, err)
				}
				m.SetMapIndex(reflect.ValueOf(f.Name).Convert(dst.Type().Key()), ev)
			}
			dst.Set(m)
			return nil
		}
	}

	nv, err := n.Normalize(v)
	if err != nil || nv == nil {
		return err
	}
	return set(dst, nv)
}

func asClass(v any) (core.Class, bool) {
	switch x := v.(type) {
	case core.Class:
		return x, true
	case *core.Class:
		if x != nil {
			return *x, true
		}
	}
	return core.Class{}, false
}

func set(dst reflect.Value, v any) error {
	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case isNumber(src.Kind()) && isNumber(dst.Kind()):
		if err := checkRange(dst, src); err != nil {
			return err
		}
		dst.Set(src.Convert(dst.Type()))
	case src.Kind() == reflect.String && dst.Kind() == reflect.String:
		dst.SetString(src.String())
	default:
		return fmt.Errorf("%w: cannot assign %T to %s", ErrMismatch, v, dst.Type())
	}
	return nil
}

// checkRange reports ErrMismatch when src cannot be converted to dst's type
// without losing its value.
func checkRange(dst, src reflect.Value) error {
	out := func(reason string) error {
		return fmt.Errorf("%w: %v %s for %s", ErrMismatch, src.Interface(), reason, dst.Type())
	}

	switch {
	case isSigned(dst.Kind()):
		switch {
		case isSigned(src.Kind()):
			if dst.OverflowInt(src.Int()) {
				return out("overflows")
			}
		case isUnsigned(src.Kind()):
			if u := src.Uint(); u > math.MaxInt64 || dst.OverflowInt(int64(u)) {
				return out("overflows")
			}
		default:
			f := src.Float()
			if math.Trunc(f) != f {
				return out("is not an integer")
			}
			if f < math.MinInt64 || f >= math.MaxInt64 || dst.OverflowInt(int64(f)) {
				return out("overflows")
			}
		}
	case isUnsigned(dst.Kind()):
		switch {
		case isSigned(src.Kind()):
			x := src.Int()
			if x < 0 {
				return out("is negative")
			}
			if dst.OverflowUint(uint64(x)) {
				return out("overflows")
			}
		case isUnsigned(src.Kind()):
			if dst.OverflowUint(src.Uint()) {
				return out("overflows")
			}
		default:
			f := src.Float()
			if math.Trunc(f) != f {
				return out("is not an integer")
			}
			if f < 0 {
				return out("is negative")
			}
			if f >= math.MaxUint64 || dst.OverflowUint(uint64(f)) {
				return out("overflows")
			}
		}
	default:
		var f float64
		switch {
		case isSigned(src.Kind()):
			f = float64(src.Int())
		case isUnsigned(src.Kind()):
			f = float64(src.Uint())
		default:
			f = src.Float()
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && dst.OverflowFloat(f) {
			return out("overflows")
		}
	}
	return nil
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isInteger(k reflect.Kind) bool { return isSigned(k) || isUnsigned(k) }

func isFloat(k reflect.Kind) bool { return k == reflect.Float32 || k == reflect.Float64 }

func isNumber(k reflect.Kind) bool { return isInteger(k) || isFloat(k) }

type structIndex struct {
	exact map[string]int
	fold  map[string]int
}

func (s structIndex) lookup(name string) (int, bool) {
	if i, ok := s.exact[name]; ok {
		return i, true
	}
	i, ok := s.fold[strings.ToLower(name)]
	return i, ok
}

var indexCache sync.Map // reflect.Type -> structIndex

// fieldIndex maps engine field names to struct fields: json tag names first,
// then case-insensitive Go field names. Unexported and `json:"-"` fields are
// skipped.
func fieldIndex(t reflect.Type) structIndex {
	if cached, ok := indexCache.Load(t); ok {
		return cached.(structIndex)
	}
	idx := structIndex{exact: map[string]int{}, fold: map[string]int{}}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name := field.Name
		if parts := strings.Split(tag, ","); parts[0] != "" {
			name = parts[0]
		}
		idx.exact[name] = i
		idx.fold[strings.ToLower(field.Name)] = i
	}
	indexCache.Store(t, idx)
	return idx
}
