package stream

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/logging"
	"github.com/hupe1980/fnstream/metrics"
)

// gate serializes callback delivery against termination. Nothing is
// delivered once the token has fired, and close waits for an in-flight
// callback, so no callback runs after Await has observed termination.
type gate struct {
	mu     sync.Mutex
	closed bool

	tok     *core.Token
	cb      core.Callback
	log     *logging.StreamLogger
	metrics *metrics.Metrics

	delivered atomic.Int64
}

func newGate(tok *core.Token, cb core.Callback, log *logging.StreamLogger, m *metrics.Metrics) *gate {
	return &gate{tok: tok, cb: cb, log: log, metrics: m}
}

// deliver hands r to the callback unless the gate is closed or the token has
// fired. It reports whether the callback was invoked.
func (g *gate) deliver(r core.Result) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.tok.Fired() {
		g.log.Debug("stream.delivery.suppressed", "kind", r.Kind.String())
		return false
	}
	g.invoke(r)
	return true
}

func (g *gate) invoke(r core.Result) {
	defer func() {
		if v := recover(); v != nil {
			pe := core.NewPanicError(v)
			g.metrics.CallbackPanicked()
			g.log.Warn("stream.callback.panic", "kind", r.Kind.String(), "panic", v, "stack", pe.Stack)
		}
	}()
	if r.Kind == core.KindPartial {
		g.delivered.Add(1)
		g.metrics.PartialDelivered()
	}
	g.cb(r)
}

func (g *gate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

func (g *gate) partials() int64 { return g.delivered.Load() }
