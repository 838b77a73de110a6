package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/fnstream/core"
)

// Recorder is a thread-safe core.Callback sink that remembers every result in
// delivery order.
type Recorder struct {
	mu      sync.Mutex
	results []core.Result
	notify  chan struct{}
	onEach  func(core.Result)
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{notify: make(chan struct{}, 1)} }

// OnEach installs a hook invoked after every recorded result (chainable).
// The hook runs on the delivering goroutine.
func (r *Recorder) OnEach(fn func(core.Result)) *Recorder {
	r.onEach = fn
	return r
}

// Callback returns the function to pass to a stream.
func (r *Recorder) Callback() core.Callback {
	return func(res core.Result) {
		r.mu.Lock()
		r.results = append(r.results, res)
		r.mu.Unlock()
		select {
		case r.notify <- struct{}{}:
		default:
		}
		if r.onEach != nil {
			r.onEach(res)
		}
	}
}

// Results returns a snapshot of the recorded results.
func (r *Recorder) Results() []core.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Result(nil), r.results...)
}

// Len returns the number of recorded results.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

// Values returns the values of all partial results.
func (r *Recorder) Values() []any {
	var out []any
	for _, res := range r.Results() {
		if res.Kind == core.KindPartial {
			out = append(out, res.Value)
		}
	}
	return out
}

// Terminals returns every terminal result recorded.
func (r *Recorder) Terminals() []core.Result {
	var out []core.Result
	for _, res := range r.Results() {
		if res.IsTerminal() {
			out = append(out, res)
		}
	}
	return out
}

// WaitFor blocks until at least n results were recorded or the timeout
// elapses. It reports whether the count was reached.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if r.Len() >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Len() >= n
		}
	}
}
