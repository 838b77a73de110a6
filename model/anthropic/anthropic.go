// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/model"
	"github.com/hupe1980/fnstream/schema"
)

const provider = "anthropic"

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client  *anthropic.Client
	catalog *schema.Catalog
	opts    Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(catalog *schema.Catalog, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client:  &client,
		catalog: catalog,
		opts:    opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, catalog *schema.Catalog, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client:  client,
		catalog: catalog,
		opts:    opts,
	}
}

// Prepare implements model.Model.
func (m *Model) Prepare(req model.Request) error {
	_, err := model.Resolve(m.catalog, req)
	return err
}

// StreamCall implements model.Model over the Messages streaming API. Text
// deltas are accumulated and decoded; other event types only contribute
// usage accounting.
func (m *Model) StreamCall(tok *core.Token, dest model.Sink, tag string, req model.Request) (res core.Result) {
	start := time.Now()
	usage := core.Usage{Function: req.Function, Client: string(m.modelName(req)), Provider: provider}
	defer func() {
		usage.Duration = time.Since(start)
		usage.Err = res.Err
		req.Options.Report(usage)
	}()

	prompt, err := m.prompt(req)
	if err != nil {
		return core.Failure(err)
	}

	stream := m.client.Messages.NewStreaming(tok.Context(), m.buildParams(req, prompt))
	defer stream.Close()

	acc := model.NewAccumulator(prompt.Output)
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens = ev.Message.Usage.InputTokens
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				if v, ok := acc.Write(delta.Text); ok {
					dest.Send(tag, core.Partial(v))
				}
			}
		case anthropic.MessageDeltaEvent:
			usage.OutputTokens = ev.Usage.OutputTokens
		}
	}

	if tok.Fired() {
		return core.Failure(tok.Cause())
	}
	if err := stream.Err(); err != nil {
		return core.Failure(fmt.Errorf("anthropic streaming error: %w", err))
	}

	v, err := acc.Final()
	if err != nil {
		return core.Failure(err)
	}
	return core.Done(v)
}

// Call implements model.Model using a non-streaming message.
func (m *Model) Call(ctx context.Context, req model.Request) (res core.Result) {
	start := time.Now()
	usage := core.Usage{Function: req.Function, Client: string(m.modelName(req)), Provider: provider}
	defer func() {
		usage.Duration = time.Since(start)
		usage.Err = res.Err
		req.Options.Report(usage)
	}()

	prompt, err := m.prompt(req)
	if err != nil {
		return core.Failure(err)
	}

	resp, err := m.client.Messages.New(ctx, m.buildParams(req, prompt))
	if err != nil {
		return core.Failure(fmt.Errorf("anthropic api error: %w", err))
	}
	usage.InputTokens = resp.Usage.InputTokens
	usage.OutputTokens = resp.Usage.OutputTokens

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	v, err := model.DecodeOutput(prompt.Output, schema.ForType(prompt.Output), text.String())
	if err != nil {
		return core.Failure(err)
	}
	return core.Done(v)
}

func (m *Model) prompt(req model.Request) (model.Prompt, error) {
	fn, err := model.Resolve(m.catalog, req)
	if err != nil {
		return model.Prompt{}, err
	}
	return model.BuildPrompt(fn, req)
}

func (m *Model) buildParams(req model.Request, p model.Prompt) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:       m.modelName(req),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: p.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
}

// modelName honours the per-call client selection.
func (m *Model) modelName(req model.Request) anthropic.Model {
	if req.Options.Client != "" {
		return anthropic.Model(req.Options.Client)
	}
	return m.opts.Model
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: provider,
	}
}
