// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API. Function prompts are rendered from a schema.Catalog,
// the output JSON Schema is embedded in the system message, and streamed
// content is decoded incrementally with model.Accumulator.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/model"
	"github.com/hupe1980/fnstream/schema"
)

const provider = "openai"

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client  *openai.Client
	catalog *schema.Catalog
	opts    Options
}

// NewModel creates a new OpenAI model using the official client. The API key
// is read from the environment by the SDK.
func NewModel(catalog *schema.Catalog, optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, catalog, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, catalog *schema.Catalog, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, catalog: catalog, opts: opts}
}

// Prepare implements model.Model.
func (m *Model) Prepare(req model.Request) error {
	_, err := model.Resolve(m.catalog, req)
	return err
}

// StreamCall implements model.Model. Each content delta is fed to an
// accumulator; a partial is pushed whenever the decoded value changes.
func (m *Model) StreamCall(tok *core.Token, dest model.Sink, tag string, req model.Request) (res core.Result) {
	start := time.Now()
	usage := core.Usage{Function: req.Function, Client: m.modelName(req), Provider: provider}
	defer func() {
		usage.Duration = time.Since(start)
		usage.Err = res.Err
		req.Options.Report(usage)
	}()

	prompt, err := m.prompt(req)
	if err != nil {
		return core.Failure(err)
	}

	params := m.buildParams(req, prompt)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := m.client.Chat.Completions.NewStreaming(tok.Context(), params)
	defer stream.Close()

	acc := model.NewAccumulator(prompt.Output)
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if v, ok := acc.Write(ch.Delta.Content); ok {
				dest.Send(tag, core.Partial(v))
			}
		}
		if ck.Usage.TotalTokens > 0 {
			usage.InputTokens = ck.Usage.PromptTokens
			usage.OutputTokens = ck.Usage.CompletionTokens
		}
	}

	if tok.Fired() {
		return core.Failure(tok.Cause())
	}
	if err := stream.Err(); err != nil {
		return core.Failure(fmt.Errorf("openai streaming error: %w", err))
	}

	v, err := acc.Final()
	if err != nil {
		return core.Failure(err)
	}
	return core.Done(v)
}

// Call implements model.Model using a non-streaming completion.
func (m *Model) Call(ctx context.Context, req model.Request) (res core.Result) {
	start := time.Now()
	usage := core.Usage{Function: req.Function, Client: m.modelName(req), Provider: provider}
	defer func() {
		usage.Duration = time.Since(start)
		usage.Err = res.Err
		req.Options.Report(usage)
	}()

	prompt, err := m.prompt(req)
	if err != nil {
		return core.Failure(err)
	}

	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(req, prompt))
	if err != nil {
		return core.Failure(fmt.Errorf("openai api error: %w", err))
	}
	usage.InputTokens = resp.Usage.PromptTokens
	usage.OutputTokens = resp.Usage.CompletionTokens
	if len(resp.Choices) == 0 {
		return core.Failure(fmt.Errorf("openai: no choices returned"))
	}

	v, err := model.DecodeOutput(prompt.Output, schema.ForType(prompt.Output), resp.Choices[0].Message.Content)
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

// buildParams assembles the OpenAI request parameters.
func (m *Model) buildParams(req model.Request, p model.Prompt) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
		Model:               m.modelName(req),
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
}

// modelName honours the per-call client selection.
func (m *Model) modelName(req model.Request) string {
	if req.Options.Client != "" {
		return req.Options.Client
	}
	return m.opts.Model
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: provider,
	}
}
