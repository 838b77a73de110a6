package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrFunctionNotFound is returned by Catalog.Check for unregistered names.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrArgs is returned by Catalog.Check when arguments fail validation.
	ErrArgs = errors.New("arguments do not match parameters")
)

// Function describes a callable engine function: its prompt template, typed
// parameters and output type.
//
// Prompt is a text/template rendered with the call arguments; Params and
// Output are exported as JSON Schema for the model and used to validate
// arguments and final outputs.
type Function struct {
	Name        string
	Description string
	Prompt      string
	Params      []Field
	Output      Type
}

// Catalog is a thread-safe registry of functions keyed by name.
type Catalog struct {
	functions map[string]Function
	mu        sync.RWMutex
}

// NewCatalog creates a catalog pre-populated with fns.
func NewCatalog(fns ...Function) *Catalog {
	c := &Catalog{functions: make(map[string]Function, len(fns))}
	for _, fn := range fns {
		c.Register(fn)
	}
	return c
}

// Register adds or replaces a function.
func (c *Catalog) Register(fn Function) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions[fn.Name] = fn
}

// Lookup returns the function registered under name.
func (c *Catalog) Lookup(name string) (Function, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.functions[name]
	return fn, ok
}

// Names returns the registered function names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.functions))
	for name := range c.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check resolves name and validates args against its parameters.
func (c *Catalog) Check(name string, args map[string]any) (Function, error) {
	fn, ok := c.Lookup(name)
	if !ok {
		return Function{}, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	if err := fn.ValidateArgs(args); err != nil {
		return Function{}, err
	}
	return fn, nil
}

// ValidateArgs validates args against the function parameters. Go values are
// first round-tripped through encoding/json so that typed structs and
// integers validate the same way decoded JSON would.
func (fn Function) ValidateArgs(args map[string]any) error {
	if len(fn.Params) == 0 {
		return nil
	}
	instance, err := toJSONValue(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArgs, err)
	}
	if instance == nil {
		instance = map[string]any{}
	}
	if err := Validate(ParamsSchema(fn.Params), instance); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArgs, fn.Name, err)
	}
	return nil
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
