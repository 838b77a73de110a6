package stream

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/internal/util"
	"github.com/hupe1980/fnstream/logging"
	"github.com/hupe1980/fnstream/metrics"
	"github.com/hupe1980/fnstream/model"
	"github.com/hupe1980/fnstream/normalize"
)

// mailbox messages
type (
	cancelMsg struct {
		reason string
		reply  chan struct{}
	}

	downMsg struct {
		ref    uuid.UUID
		reason error
	}
)

// coordinator owns one stream. Fields below the mailbox are only touched by
// the coordinator goroutine until done is closed.
type coordinator struct {
	tag      string
	function string
	req      model.Request
	model    model.Model

	tok        *core.Token
	gate       *gate
	normalizer *normalize.Normalizer
	log        *logging.StreamLogger
	metrics    *metrics.Metrics
	inboxSize  int

	mailbox chan any
	exiting chan struct{} // closed when the exit hook starts
	done    chan struct{} // closed when the exit hook has finished
	state   atomic.Int32

	monitor uuid.UUID
	started time.Time
	status  Status
	err     error
}

// Start validates the request, creates the coordinator and begins streaming
// asynchronously. It returns as soon as the coordinator can be addressed.
//
// Cancelling ctx kills the coordinator: the token fires and Await reports
// StatusFailed wrapping ErrKilled. Values carried by ctx are visible to the
// engine through the token's context.
//
// Construction failures (nil model or callback, unknown function, invalid
// arguments) are returned synchronously and leave nothing running.
func Start(
	ctx context.Context,
	m model.Model,
	function string,
	args map[string]any,
	cb core.Callback,
	call core.CallOptions,
	optFns ...func(o *Options),
) (*Handle, error) {
	if m == nil {
		return nil, core.ErrNilModel
	}
	if cb == nil {
		return nil, core.ErrNilCallback
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MailboxSize < 1 {
		opts.MailboxSize = 1
	}
	if opts.InboxSize < 0 {
		opts.InboxSize = 0
	}

	req := model.Request{Function: function, Args: args, Options: call}
	if err := m.Prepare(req); err != nil {
		return nil, fmt.Errorf("stream: start %s: %w", function, err)
	}

	tag := util.NewTag()
	tok := core.NewToken(context.WithoutCancel(ctx))
	log := logging.NewStreamLogger(opts.Logger).WithComponent("stream").WithStream(tag, function)

	c := &coordinator{
		tag:        tag,
		function:   function,
		req:        req,
		model:      m,
		tok:        tok,
		gate:       newGate(tok, cb, log, opts.Metrics),
		normalizer: normalize.ForCall(opts.Registry, call),
		log:        log,
		metrics:    opts.Metrics,
		inboxSize:  opts.InboxSize,
		mailbox:    make(chan any, opts.MailboxSize),
		exiting:    make(chan struct{}),
		done:       make(chan struct{}),
		started:    time.Now(),
	}
	c.state.Store(int32(StateInitializing))

	go c.run(ctx)

	return &Handle{c: c}, nil
}

func (c *coordinator) run(owner context.Context) {
	var (
		status Status
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			pe := core.NewPanicError(r)
			c.log.Error("stream.coordinator.panic", "panic", r, "stack", pe.Stack)
			status, err = StatusFailed, pe
		}
		c.terminate(status, err)
	}()

	c.metrics.StreamStarted()
	c.log.Info("stream.start", "provider", c.model.Info().Provider)

	c.monitor = uuid.New()
	w := newWorker(c, c.monitor)
	go w.run()
	c.state.Store(int32(StateStreaming))

	status, err = c.loop(owner)
}

// loop processes the mailbox until a terminal cause arrives. The first
// worker exit or cancel request to reach the mailbox wins.
func (c *coordinator) loop(owner context.Context) (Status, error) {
	for {
		select {
		case <-owner.Done():
			c.log.Debug("stream.killed", "cause", context.Cause(owner))
			return StatusFailed, fmt.Errorf("%w: %w", ErrKilled, context.Cause(owner))
		case msg := <-c.mailbox:
			switch m := msg.(type) {
			case cancelMsg:
				c.log.Debug("stream.cancel", "reason", m.reason)
				c.state.Store(int32(StateTerminating))
				c.tok.Fire(&core.CancelledError{Reason: m.reason})
				c.demonitor()
				// reply before the termination hook so a callback blocked
				// in Cancel can return and release the delivery gate
				close(m.reply)
				return StatusCancelled, nil
			case downMsg:
				if m.ref != c.monitor {
					c.log.Debug("stream.down.stale", "ref", m.ref)
					continue
				}
				c.monitor = uuid.Nil
				if m.reason != nil {
					return StatusFailed, m.reason
				}
				return StatusCompleted, nil
			default:
				c.log.Debug("stream.message.unexpected", "type", fmt.Sprintf("%T", msg))
			}
		}
	}
}

// terminate is the single exit hook. It runs on every path out of run.
func (c *coordinator) terminate(status Status, err error) {
	c.state.Store(int32(StateTerminating))
	close(c.exiting)

	cause := err
	if cause == nil {
		cause = ErrClosed
	}
	c.tok.Fire(cause)
	c.gate.close()
	c.demonitor()

	dur := time.Since(c.started)
	c.metrics.StreamFinished(status.String(), dur)
	c.log.LogStreamExit(status.String(), dur, c.gate.partials(), err)

	c.status, c.err = status, err
	c.state.Store(int32(StateTerminated))
	close(c.done)
}

func (c *coordinator) demonitor() { c.monitor = uuid.Nil }

// down delivers the worker's exit notification. Once the exit hook has
// started nobody reads the mailbox, so the send gives up.
func (c *coordinator) down(ref uuid.UUID, reason error) {
	select {
	case c.mailbox <- downMsg{ref: ref, reason: reason}:
	case <-c.exiting:
	}
}

// shape applies result normalization. ok is false when a partial must be
// dropped because it could not be normalized.
func (c *coordinator) shape(r core.Result) (out core.Result, ok bool) {
	if c.req.Options.Raw || r.Kind == core.KindError {
		return r, true
	}

	v, err := c.normalize(r.Value)
	if err == nil {
		return core.Result{Kind: r.Kind, Value: v}, true
	}
	if r.Kind == core.KindPartial {
		c.log.Warn("stream.normalize.partial_dropped", "error", err)
		return core.Result{}, false
	}
	c.log.Warn("stream.normalize.failed", "error", err)
	return core.Failure(fmt.Errorf("stream: normalize result: %w", err)), true
}

func (c *coordinator) normalize(v any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NewPanicError(r)
		}
	}()
	return c.normalizer.Normalize(v)
}
