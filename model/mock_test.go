package model

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hupe1980/fnstream/core"
)

type sinkRecorder struct {
	mu      sync.Mutex
	tags    []string
	results []core.Result
}

func (s *sinkRecorder) Send(tag string, r core.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, tag)
	s.results = append(s.results, r)
}

type mockCollector struct{ mock.Mock }

func (m *mockCollector) Collect(u core.Usage) { m.Called(u) }

func TestMockModel_StreamCall(t *testing.T) {
	m := NewMockModel("test").On("Echo", Script{Partials: []any{"h", "hi"}, Final: "hi"})
	sink := &sinkRecorder{}

	col := &mockCollector{}
	col.On("Collect", mock.MatchedBy(func(u core.Usage) bool {
		return u.Function == "Echo" && u.Provider == "mock" && u.Client == "test" && u.Err == nil
	})).Once()

	res := m.StreamCall(core.NewToken(context.Background()), sink, "tag-1", Request{
		Function: "Echo",
		Options:  core.CallOptions{Collectors: []core.Collector{col}},
	})

	assert.Equal(t, core.Done("hi"), res)
	assert.Equal(t, []string{"tag-1", "tag-1"}, sink.tags)
	assert.Equal(t, []core.Result{core.Partial("h"), core.Partial("hi")}, sink.results)
	assert.EqualValues(t, 1, m.Calls())
	col.AssertExpectations(t)
}

func TestMockModel_Prepare(t *testing.T) {
	m := NewMockModel("test").On("Echo", Script{Required: []string{"text"}})

	assert.NoError(t, m.Prepare(Request{Function: "Echo", Args: map[string]any{"text": "hi"}}))
	assert.ErrorIs(t, m.Prepare(Request{Function: "Echo"}), core.ErrInvalidArgs)
	assert.ErrorIs(t, m.Prepare(Request{Function: "Nope"}), core.ErrUnknownFunction)
}

func TestMockModel_ErrorResult(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockModel("test").On("Fail", Script{Partials: []any{1}, Err: boom})

	res := m.StreamCall(core.NewToken(context.Background()), &sinkRecorder{}, "t", Request{Function: "Fail"})
	assert.Equal(t, core.KindError, res.Kind)
	assert.ErrorIs(t, res.Err, boom)
}

func TestMockModel_StopsWhenTokenFires(t *testing.T) {
	m := NewMockModel("test").On("Slow", Script{Partials: []any{1, 2, 3}, BlockUntilCancel: true})
	tok := core.NewToken(context.Background())
	sink := &sinkRecorder{}

	done := make(chan core.Result, 1)
	go func() { done <- m.StreamCall(tok, sink, "t", Request{Function: "Slow"}) }()

	time.Sleep(20 * time.Millisecond)
	tok.Fire(&core.CancelledError{Reason: "stop"})

	select {
	case res := <-done:
		assert.Equal(t, core.KindError, res.Kind)
		assert.ErrorIs(t, res.Err, core.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("StreamCall did not return after the token fired")
	}
	assert.Len(t, sink.results, 3)
}

func TestMockModel_Call(t *testing.T) {
	m := NewMockModel("test").On("Echo", Script{Final: "hi"})
	assert.Equal(t, core.Done("hi"), m.Call(context.Background(), Request{Function: "Echo"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.On("Block", Script{BlockUntilCancel: true})
	res := m.Call(ctx, Request{Function: "Block"})
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestMockModel_Panic(t *testing.T) {
	m := NewMockModel("test").On("Crash", Script{Panic: "kaboom"})
	assert.PanicsWithValue(t, "kaboom", func() {
		m.StreamCall(core.NewToken(context.Background()), &sinkRecorder{}, "t", Request{Function: "Crash"})
	})
}

func TestCheckTerminal(t *testing.T) {
	assert.Equal(t, core.Done(1), CheckTerminal(core.Done(1)))
	assert.Equal(t, core.KindError, CheckTerminal(core.Partial(1)).Kind)
}

func TestRateLimited_AbortsWhenTokenFires(t *testing.T) {
	m := NewMockModel("test").On("Echo", Script{Final: "hi"})
	// one token, refilled once an hour
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	rl := RateLimited(m, lim)

	tok := core.NewToken(context.Background())
	res := rl.StreamCall(tok, &sinkRecorder{}, "t", Request{Function: "Echo"})
	require.Equal(t, core.Done("hi"), res)

	tok2 := core.NewToken(context.Background())
	done := make(chan core.Result, 1)
	go func() { done <- rl.StreamCall(tok2, &sinkRecorder{}, "t", Request{Function: "Echo"}) }()

	time.Sleep(20 * time.Millisecond)
	tok2.Fire(nil)

	select {
	case res := <-done:
		assert.ErrorIs(t, res.Err, core.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("rate limited call did not abort")
	}
	assert.EqualValues(t, 1, m.Calls())
	assert.Equal(t, m.Info(), rl.Info())
	assert.NoError(t, rl.Prepare(Request{Function: "Echo"}))
}
