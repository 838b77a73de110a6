// Package fnstream provides a high-level façade for running typed model
// functions either as cancellable streams or as synchronous calls. Most
// applications interact with this package by:
//  1. Creating a Client via New() with a model.Model (OpenAI, Anthropic or a mock)
//  2. Registering domain types in a normalize.Registry (optional)
//  3. Starting streams (Stream) and controlling them through the returned
//     stream.Handle, or calling functions synchronously (Call)
//
// Both paths share the same result normalization, so a function yields the
// same domain values whether it is streamed or called.
package fnstream

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/logging"
	"github.com/hupe1980/fnstream/metrics"
	"github.com/hupe1980/fnstream/model"
	"github.com/hupe1980/fnstream/normalize"
	"github.com/hupe1980/fnstream/stream"
)

// ErrTooManyStreams is returned by Stream when MaxConcurrentStreams streams
// are already running.
var ErrTooManyStreams = errors.New("fnstream: too many concurrent streams")

// Options configures the Client instance.
type Options struct {
	// Model executes functions. Required.
	Model model.Model

	// Registry binds engine class and enum names to Go types. Nil normalizes
	// classes to ordered maps and enums to raw strings.
	Registry *normalize.Registry

	// Defaults are the per-call options every call starts from.
	Defaults core.CallOptions

	// MaxConcurrentStreams limits the number of streams that may run at the
	// same time. Set to 0 for unlimited.
	MaxConcurrentStreams int64

	// MailboxSize and InboxSize tune the coordinator buffers (see stream.Options).
	MailboxSize int
	InboxSize   int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Metrics records stream lifecycle metrics. Nil disables them.
	Metrics *metrics.Metrics
}

// Client is the high-level façade over a model and the stream coordinator.
type Client struct {
	opts  Options
	sem   *semaphore.Weighted
	usage core.Collector // nil when logging is disabled
}

// New creates a new Client with optional overrides.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		Logger:      logging.NoOpLogger{},
		MailboxSize: 8,
		InboxSize:   16,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	c := &Client{opts: opts}
	if _, silent := opts.Logger.(logging.NoOpLogger); !silent {
		c.usage = usageLogger{log: logging.NewStreamLogger(opts.Logger).WithComponent("model")}
	}
	if opts.MaxConcurrentStreams > 0 {
		c.sem = semaphore.NewWeighted(opts.MaxConcurrentStreams)
	}
	return c
}

// Stream starts function with args and returns its handle. cb receives every
// partial result and at most one terminal result. Cancelling ctx kills the
// stream.
func (c *Client) Stream(
	ctx context.Context,
	function string,
	args map[string]any,
	cb core.Callback,
	optFns ...func(o *core.CallOptions),
) (*stream.Handle, error) {
	if c.sem != nil && !c.sem.TryAcquire(1) {
		return nil, ErrTooManyStreams
	}

	h, err := stream.Start(ctx, c.opts.Model, function, args, cb, c.callOptions(optFns), func(o *stream.Options) {
		o.Logger = c.opts.Logger
		o.Metrics = c.opts.Metrics
		o.Registry = c.opts.Registry
		o.MailboxSize = c.opts.MailboxSize
		o.InboxSize = c.opts.InboxSize
	})
	if err != nil {
		if c.sem != nil {
			c.sem.Release(1)
		}
		return nil, err
	}

	if c.sem != nil {
		go func() {
			<-h.Done()
			c.sem.Release(1)
		}()
	}
	return h, nil
}

// Call runs function synchronously and returns its normalized value.
func (c *Client) Call(
	ctx context.Context,
	function string,
	args map[string]any,
	optFns ...func(o *core.CallOptions),
) (any, error) {
	if c.opts.Model == nil {
		return nil, core.ErrNilModel
	}

	req := model.Request{Function: function, Args: args, Options: c.callOptions(optFns)}
	if err := c.opts.Model.Prepare(req); err != nil {
		return nil, fmt.Errorf("fnstream: call %s: %w", function, err)
	}

	res := model.CheckTerminal(c.opts.Model.Call(ctx, req))
	if res.Kind == core.KindError {
		return nil, res.Err
	}
	if req.Options.Raw {
		return res.Value, nil
	}

	v, err := normalize.ForCall(c.opts.Registry, req.Options).Normalize(res.Value)
	if err != nil {
		c.opts.Logger.Warn("call.normalize.failed", "function", function, "error", err)
		return nil, fmt.Errorf("fnstream: normalize result: %w", err)
	}
	return v, nil
}

// callOptions copies the defaults and applies per-call overrides.
func (c *Client) callOptions(optFns []func(o *core.CallOptions)) core.CallOptions {
	call := c.opts.Defaults
	call.Collectors = append([]core.Collector(nil), c.opts.Defaults.Collectors...)
	for _, fn := range optFns {
		fn(&call)
	}
	if c.usage != nil {
		call.Collectors = append(call.Collectors, c.usage)
	}
	return call
}

// usageLogger logs every engine call the model reports.
type usageLogger struct {
	log *logging.StreamLogger
}

func (u usageLogger) Collect(x core.Usage) {
	u.log.WithContext("function", x.Function).
		LogModelCall(x.Provider, x.Client, x.InputTokens, x.OutputTokens, x.Duration, x.Err)
}
