package model

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/fnstream/core"
)

// Script describes how MockModel answers one function.
type Script struct {
	// Partials are pushed to the sink in order.
	Partials []any
	// Final is returned as the done value unless Err is set.
	Final any
	// Err makes the call return an error result after the partials.
	Err error
	// Delay is waited before each partial and before the terminal result.
	Delay time.Duration
	// BlockUntilCancel makes the call block after the partials until the
	// token fires (or, for Call, the context is done).
	BlockUntilCancel bool
	// Panic, when non-nil, is raised instead of producing any result.
	Panic any
	// Required lists argument keys Prepare insists on.
	Required []string
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Each instance carries its own scripts, so tests never share a global fake.
type MockModel struct {
	info Info

	mu      sync.RWMutex
	scripts map[string]Script

	calls atomic.Int64
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:    Info{Name: name, Provider: "mock"},
		scripts: make(map[string]Script),
	}
}

// On registers the script for function (chainable).
func (m *MockModel) On(function string, s Script) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[function] = s
	return m
}

// Calls returns the number of StreamCall and Call invocations so far.
func (m *MockModel) Calls() int64 { return m.calls.Load() }

func (m *MockModel) script(function string) (Script, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[function]
	return s, ok
}

// Prepare implements Model.
func (m *MockModel) Prepare(req Request) error {
	s, ok := m.script(req.Function)
	if !ok {
		return fmt.Errorf("%w: %q", core.ErrUnknownFunction, req.Function)
	}
	for _, k := range s.Required {
		if _, ok := req.Args[k]; !ok {
			return fmt.Errorf("%w: missing %q", core.ErrInvalidArgs, k)
		}
	}
	return nil
}

// StreamCall implements Model.
func (m *MockModel) StreamCall(tok *core.Token, dest Sink, tag string, req Request) (res core.Result) {
	m.calls.Add(1)
	start := time.Now()
	defer func() {
		req.Options.Report(core.Usage{
			Function:     req.Function,
			Client:       m.client(req),
			Provider:     m.info.Provider,
			OutputTokens: int64(len(m.mustScript(req.Function).Partials) + 1),
			Duration:     time.Since(start),
			Err:          res.Err,
		})
	}()

	s, ok := m.script(req.Function)
	if !ok {
		return core.Failure(fmt.Errorf("%w: %q", core.ErrUnknownFunction, req.Function))
	}
	if s.Panic != nil {
		panic(s.Panic)
	}

	ctx := tok.Context()
	for _, p := range s.Partials {
		if err := wait(ctx, s.Delay); err != nil {
			return core.Failure(err)
		}
		dest.Send(tag, core.Partial(p))
	}
	return m.finish(ctx, s)
}

// Call implements Model.
func (m *MockModel) Call(ctx context.Context, req Request) (res core.Result) {
	m.calls.Add(1)
	start := time.Now()
	defer func() {
		req.Options.Report(core.Usage{
			Function:     req.Function,
			Client:       m.client(req),
			Provider:     m.info.Provider,
			OutputTokens: 1,
			Duration:     time.Since(start),
			Err:          res.Err,
		})
	}()

	s, ok := m.script(req.Function)
	if !ok {
		return core.Failure(fmt.Errorf("%w: %q", core.ErrUnknownFunction, req.Function))
	}
	if s.Panic != nil {
		panic(s.Panic)
	}
	return m.finish(ctx, s)
}

func (m *MockModel) finish(ctx context.Context, s Script) core.Result {
	if s.BlockUntilCancel {
		<-ctx.Done()
		return core.Failure(context.Cause(ctx))
	}
	if err := wait(ctx, s.Delay); err != nil {
		return core.Failure(err)
	}
	if s.Err != nil {
		return core.Failure(s.Err)
	}
	return core.Done(s.Final)
}

func (m *MockModel) mustScript(function string) Script {
	s, _ := m.script(function)
	return s
}

func (m *MockModel) client(req Request) string {
	if req.Options.Client != "" {
		return req.Options.Client
	}
	return m.info.Name
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// wait sleeps for d unless ctx is done first, in which case the context
// cause is returned. A non-positive d still observes an already-done ctx.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
