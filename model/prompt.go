package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/internal/util"
	"github.com/hupe1980/fnstream/schema"
)

// Prompt is a rendered function invocation ready for a chat-style provider.
type Prompt struct {
	System string
	User   string
	// Output is the function's output type with call-time augmentations applied.
	Output schema.Type
}

// Resolve looks req.Function up in c and validates its arguments. Errors wrap
// core.ErrUnknownFunction or core.ErrInvalidArgs.
func Resolve(c *schema.Catalog, req Request) (schema.Function, error) {
	if c == nil {
		return schema.Function{}, fmt.Errorf("%w: %q (no catalog)", core.ErrUnknownFunction, req.Function)
	}
	fn, err := c.Check(req.Function, req.Args)
	switch {
	case errors.Is(err, schema.ErrFunctionNotFound):
		return fn, fmt.Errorf("%w: %w", core.ErrUnknownFunction, err)
	case err != nil:
		return fn, fmt.Errorf("%w: %w", core.ErrInvalidArgs, err)
	}
	return fn, nil
}

// BuildPrompt renders fn for req. The system message carries the output JSON
// Schema (after applying req.Options.TypeBuilder); the user message is the
// function prompt rendered with the call arguments.
func BuildPrompt(fn schema.Function, req Request) (Prompt, error) {
	out := req.Options.TypeBuilder.Apply(fn.Output)

	user, err := util.RenderPrompt(fn.Name, fn.Prompt, req.Args)
	if err != nil {
		return Prompt{}, fmt.Errorf("render prompt %s: %w", fn.Name, err)
	}

	var sys strings.Builder
	if fn.Description != "" {
		sys.WriteString(fn.Description)
		sys.WriteString("\n\n")
	}
	if out.Kind == schema.KindString {
		sys.WriteString("Answer with plain text only.")
	} else {
		desc, err := schema.Describe(out)
		if err != nil {
			return Prompt{}, fmt.Errorf("describe output %s: %w", fn.Name, err)
		}
		sys.WriteString("Answer with a single JSON value that conforms to this JSON Schema and nothing else:\n")
		sys.WriteString(desc)
	}

	return Prompt{System: sys.String(), User: user, Output: out}, nil
}
