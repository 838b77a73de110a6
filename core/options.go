package core

import (
	"time"

	"github.com/hupe1980/fnstream/schema"
)

// CallOptions carries per-call configuration. The coordinator only reads Raw,
// Prefix and TypeBuilder (for normalization); everything else is passed to the
// model untouched.
type CallOptions struct {
	// Path locates the source bundle defining the function. Opaque to fnstream.
	Path string

	// Raw disables result shaping; values are relayed exactly as the model produced them.
	Raw bool

	// Prefix qualifies domain type lookups during normalization (e.g. "billing").
	Prefix string

	// TypeBuilder augments output types at runtime. Classes it marks dynamic
	// normalize to ordered maps instead of fixed Go types.
	TypeBuilder *schema.TypeBuilder

	// Client selects the target engine client or model name, overriding the
	// model's default.
	Client string

	// Collectors receive usage records from the model.
	Collectors []Collector
}

// Usage describes a single engine call for telemetry collectors.
type Usage struct {
	Function     string
	Client       string
	Provider     string
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
	Err          error
}

// Collector receives usage records. Implementations must be safe for
// concurrent use.
type Collector interface {
	Collect(u Usage)
}

// Report sends u to every collector in o.
func (o CallOptions) Report(u Usage) {
	for _, c := range o.Collectors {
		if c != nil {
			c.Collect(u)
		}
	}
}
