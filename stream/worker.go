package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/model"
)

// envelope is a tagged result travelling through the worker inbox.
type envelope struct {
	tag    string
	result core.Result
}

// worker runs the blocking engine call and relays every result, interim or
// terminal, through one path. It implements model.Sink for the engine.
type worker struct {
	c   *coordinator
	ref uuid.UUID

	inbox  chan envelope
	mu     sync.RWMutex
	closed bool
}

var _ model.Sink = (*worker)(nil)

func newWorker(c *coordinator, ref uuid.UUID) *worker {
	return &worker{c: c, ref: ref, inbox: make(chan envelope, c.inboxSize)}
}

// run performs the call, re-injects its return value into the relay, waits
// for the relay to drain and then reports its exit reason to the coordinator.
func (w *worker) run() {
	relayed := make(chan error, 1)
	go w.relayLoop(relayed)

	res := w.call()
	w.push(envelope{tag: w.c.tag, result: res})
	w.close()

	w.c.down(w.ref, <-relayed)
}

// relayLoop runs relay and sends its exit reason on out. A panic in the relay
// path fires the token and becomes the exit reason; the inbox is still drained
// so the engine and run never block on it.
func (w *worker) relayLoop(out chan<- error) {
	defer func() {
		if r := recover(); r != nil {
			pe := core.NewPanicError(r)
			w.c.tok.Fire(pe)
			out <- pe
			for range w.inbox {
			}
		}
	}()
	out <- w.relay()
}

func (w *worker) call() (res core.Result) {
	defer func() {
		if r := recover(); r != nil {
			pe := core.NewPanicError(r)
			w.c.log.Error("stream.engine.panic", "panic", r, "stack", pe.Stack)
			res = core.Failure(pe)
		}
	}()
	return model.CheckTerminal(w.c.model.StreamCall(w.c.tok, w, w.c.tag, w.c.req))
}

// Send implements model.Sink. Engines may only push partial results; the
// terminal result is the return value of StreamCall.
func (w *worker) Send(tag string, r core.Result) {
	if r.Kind != core.KindPartial {
		w.c.log.Warn("stream.push.terminal_dropped", "kind", r.Kind.String())
		return
	}
	w.push(envelope{tag: tag, result: r})
}

func (w *worker) push(e envelope) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.c.log.Debug("stream.push.after_exit", "kind", e.result.Kind.String())
		return
	}
	w.inbox <- e
}

func (w *worker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	close(w.inbox)
}

// relay drains the inbox in order and returns the exit reason derived from
// the terminal result: nil for done, the error for error results.
func (w *worker) relay() error {
	var (
		reason   error
		terminal bool
	)
	for e := range w.inbox {
		if e.tag != w.c.tag {
			w.c.log.Debug("stream.message.foreign", "foreign_tag", e.tag)
			continue
		}
		if terminal {
			continue
		}

		res, ok := w.c.shape(e.result)
		if !ok {
			continue
		}
		if res.IsTerminal() {
			terminal = true
			reason = res.Err
		}
		w.c.gate.deliver(res)
	}
	return reason
}
