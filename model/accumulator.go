package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/schema"
)

// ErrOutput is returned by Accumulator.Final when the engine output cannot be
// decoded into the expected type.
var ErrOutput = errors.New("model: invalid output")

// Accumulator turns streamed text deltas into generic result shapes
// (core.Class, core.Enum, lists and primitives) for the given output type.
//
// Structured outputs are expected as a JSON document, optionally surrounded
// by prose or code fences. Interim documents are repaired (open strings and
// containers closed, dangling keys, commas and numbers dropped) so every
// partial is a consistent prefix of the final value. Plain string outputs are
// passed through as accumulated text.
//
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	out    schema.Type
	schema *jsonschema.Schema
	text   strings.Builder
	last   string
}

// NewAccumulator creates an accumulator decoding into out.
func NewAccumulator(out schema.Type) *Accumulator {
	return &Accumulator{out: out, schema: schema.ForType(out)}
}

// Text returns everything written so far.
func (a *Accumulator) Text() string { return a.text.String() }

// Write appends delta and returns the decoded interim value when it changed
// since the previous emission.
func (a *Accumulator) Write(delta string) (any, bool) {
	if delta == "" {
		return nil, false
	}
	a.text.WriteString(delta)

	switch a.out.Kind {
	case schema.KindString:
		return a.text.String(), true
	case schema.KindClass, schema.KindList, schema.KindOptional:
	default:
		// scalars are only meaningful once complete
		return nil, false
	}

	doc, _, ok := extractJSON(a.text.String())
	if !ok || doc == a.last || !gjson.Valid(doc) {
		return nil, false
	}
	a.last = doc
	return decode(a.out, gjson.Parse(doc)), true
}

// Final validates the complete output against the output schema and decodes it.
func (a *Accumulator) Final() (any, error) {
	return DecodeOutput(a.out, a.schema, a.text.String())
}

// DecodeOutput decodes a complete engine output text into generic shapes,
// validating structured outputs against s (nil skips validation).
func DecodeOutput(out schema.Type, s *jsonschema.Schema, text string) (any, error) {
	if out.Kind == schema.KindString {
		return text, nil
	}

	var doc string
	switch out.Kind {
	case schema.KindClass, schema.KindList, schema.KindOptional:
		d, complete, ok := extractJSON(text)
		if !ok || !complete {
			if out.Kind == schema.KindOptional && strings.TrimSpace(stripFences(text)) == "null" {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: incomplete JSON document", ErrOutput)
		}
		doc = d
	case schema.KindEnum:
		doc = strings.TrimSpace(stripFences(text))
		if !strings.HasPrefix(doc, `"`) {
			raw, _ := json.Marshal(doc)
			doc = string(raw)
		}
	default:
		doc = strings.TrimSpace(stripFences(text))
	}

	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrOutput)
	}
	if s != nil {
		var instance any
		if err := json.Unmarshal([]byte(doc), &instance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutput, err)
		}
		if err := schema.Validate(s, instance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutput, err)
		}
	}
	return decode(out, gjson.Parse(doc)), nil
}

// decode maps a JSON value onto generic shapes following t. Class fields come
// out in schema order; keys unknown to a dynamic class follow in document
// order.
func decode(t schema.Type, r gjson.Result) any {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	switch t.Kind {
	case schema.KindString:
		return r.String()
	case schema.KindInt:
		return r.Int()
	case schema.KindFloat:
		return r.Float()
	case schema.KindBool:
		return r.Bool()
	case schema.KindEnum:
		name := ""
		if t.Enum != nil {
			name = t.Enum.Name
		}
		return core.Enum{Name: name, Value: r.String()}
	case schema.KindOptional:
		if t.Elem == nil {
			return decodeAny(r)
		}
		return decode(*t.Elem, r)
	case schema.KindList:
		items := r.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			if t.Elem == nil {
				out = append(out, decodeAny(item))
				continue
			}
			out = append(out, decode(*t.Elem, item))
		}
		return out
	case schema.KindClass:
		if t.Class == nil || !r.IsObject() {
			return decodeAny(r)
		}
		return decodeClass(t.Class, r)
	default:
		return decodeAny(r)
	}
}

func decodeClass(c *schema.Class, r gjson.Result) core.Class {
	values := r.Map()
	out := core.Class{Name: c.Name, Fields: make([]core.Field, 0, len(c.Fields))}
	known := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		known[f.Name] = true
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		out.Fields = append(out.Fields, core.Field{Name: f.Name, Value: decode(f.Type, v)})
	}
	if c.Dynamic {
		r.ForEach(func(key, value gjson.Result) bool {
			if !known[key.String()] {
				out.Fields = append(out.Fields, core.Field{Name: key.String(), Value: decodeAny(value)})
			}
			return true
		})
	}
	return out
}

// decodeAny decodes untyped JSON. Objects become anonymous classes so that
// field order survives normalization.
func decodeAny(r gjson.Result) any {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return nil
	case r.IsObject():
		c := core.Class{}
		r.ForEach(func(key, value gjson.Result) bool {
			c.Fields = append(c.Fields, core.Field{Name: key.String(), Value: decodeAny(value)})
			return true
		})
		return c
	case r.IsArray():
		items := r.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, decodeAny(item))
		}
		return out
	case r.Type == gjson.Number:
		if f := r.Float(); f == float64(int64(f)) && !strings.ContainsAny(r.Raw, ".eE") {
			return r.Int()
		}
		return r.Float()
	case r.Type == gjson.True, r.Type == gjson.False:
		return r.Bool()
	default:
		return r.String()
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			return ""
		}
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

// extractJSON locates the first JSON object or array in s and returns it,
// repaired if it is still open. complete reports whether the document was
// closed in s; ok is false when nothing usable has arrived yet.
func extractJSON(s string) (doc string, complete bool, ok bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false, false
	}
	return repairJSON(s[start:])
}

// repairJSON closes a truncated JSON document that starts with '{' or '['.
// Scanning stops once the top-level container closes.
func repairJSON(s string) (string, bool, bool) {
	var (
		stack     []byte
		keyNext   bool
		inString  bool
		isKey     bool
		escaped   bool
		escStart  int
		unicode   int
		safe      = -1
		safeStack string
	)
	mark := func(end int) {
		safe = end
		safeStack = string(stack)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case unicode > 0:
				unicode--
			case escaped:
				escaped = false
				if c == 'u' {
					unicode = 4
				}
			case c == '\\':
				escaped = true
				escStart = i
			case c == '"':
				inString = false
				if !isKey {
					mark(i + 1)
				}
			}
			continue
		}

		switch c {
		case ' ', '\t', '\n', '\r':
		case '{':
			stack = append(stack, '}')
			keyNext = true
			mark(i + 1)
		case '[':
			stack = append(stack, ']')
			mark(i + 1)
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[:i+1], true, true
			}
			mark(i + 1)
		case ',':
			keyNext = stack[len(stack)-1] == '}'
		case ':':
			keyNext = false
		case '"':
			inString = true
			isKey = stack[len(stack)-1] == '}' && keyNext
		default:
			j := i
			for j < len(s) && isScalarByte(s[j]) {
				j++
			}
			if j == i {
				return "", false, false
			}
			tok := s[i:j]
			if j < len(s) || tok == "true" || tok == "false" || tok == "null" {
				mark(j)
			}
			i = j - 1
		}
	}

	if inString && !isKey {
		body := s
		if escaped || unicode > 0 {
			body = s[:escStart]
		}
		return body + `"` + closers(string(stack)), false, true
	}
	if safe < 0 {
		return "", false, false
	}
	return s[:safe] + closers(safeStack), false, true
}

func isScalarByte(c byte) bool {
	return c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func closers(stack string) string {
	b := make([]byte, len(stack))
	for i := range stack {
		b[i] = stack[len(stack)-1-i]
	}
	return string(b)
}
