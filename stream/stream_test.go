package stream

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/internal/testutil"
	"github.com/hupe1980/fnstream/logging"
	"github.com/hupe1980/fnstream/metrics"
	"github.com/hupe1980/fnstream/model"
	"github.com/hupe1980/fnstream/normalize"
)

const waitFor = 2 * time.Second

// funcModel is an engine whose StreamCall is a plain function.
type funcModel struct {
	fn func(tok *core.Token, dest model.Sink, tag string, req model.Request) core.Result
}

func (f funcModel) Prepare(model.Request) error { return nil }

func (f funcModel) StreamCall(tok *core.Token, dest model.Sink, tag string, req model.Request) core.Result {
	return f.fn(tok, dest, tag, req)
}

func (f funcModel) Call(context.Context, model.Request) core.Result {
	return core.Failure(errors.New("not supported"))
}

func (f funcModel) Info() model.Info { return model.Info{Name: "func", Provider: "test"} }

func echoModel() *model.MockModel {
	return model.NewMockModel("test").On("Echo", model.Script{
		Partials: []any{"h", "hi"},
		Final:    "hi",
		Required: []string{"text"},
	})
}

func blockingModel() *model.MockModel {
	return model.NewMockModel("test").On("Slow", model.Script{
		Partials:         []any{1, 2, 3},
		Delay:            5 * time.Millisecond,
		BlockUntilCancel: true,
	})
}

func start(t *testing.T, m model.Model, function string, cb core.Callback, optFns ...func(o *Options)) *Handle {
	t.Helper()
	h, err := Start(context.Background(), m, function, map[string]any{"text": "hi"}, cb, core.CallOptions{}, optFns...)
	require.NoError(t, err)
	return h
}

func TestStream_CompletesWithPartialsThenDone(t *testing.T) {
	rec := testutil.NewRecorder()
	h := start(t, echoModel(), "Echo", rec.Callback())

	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	assert.Equal(t, []core.Result{
		core.Partial("h"),
		core.Partial("hi"),
		core.Done("hi"),
	}, rec.Results())
	assert.Equal(t, StateTerminated, h.State())
	assert.False(t, h.Alive())
	assert.Equal(t, "Echo", h.Function())
	assert.NotEmpty(t, h.Tag())
}

func TestStream_CancelImmediately(t *testing.T) {
	rec := testutil.NewRecorder()
	h := start(t, blockingModel(), "Slow", rec.Callback())

	require.NoError(t, h.Cancel())

	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)

	n := rec.Len()
	for _, r := range rec.Results() {
		assert.Equal(t, core.KindPartial, r.Kind)
	}

	// nothing is delivered after termination was observed
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, rec.Len())

	var ce *core.CancelledError
	require.ErrorAs(t, h.c.tok.Cause(), &ce)
	assert.Equal(t, DefaultCancelReason, ce.Reason)
}

func TestStream_EngineError(t *testing.T) {
	boom := errors.New("boom")
	m := model.NewMockModel("test").On("Fail", model.Script{Err: boom})
	rec := testutil.NewRecorder()
	h := start(t, m, "Fail", rec.Callback())

	status, err := h.Await(waitFor)
	assert.Equal(t, StatusFailed, status)
	assert.ErrorIs(t, err, boom)

	require.Len(t, rec.Results(), 1)
	assert.Equal(t, core.KindError, rec.Results()[0].Kind)
	assert.ErrorIs(t, rec.Results()[0].Err, boom)
}

func TestStream_CallbackPanicDoesNotStopDelivery(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelWarn, Output: &buf})
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	var calls atomic.Int32
	rec := testutil.NewRecorder().OnEach(func(core.Result) {
		if calls.Add(1) == 1 {
			panic("callback exploded")
		}
	})
	h := start(t, echoModel(), "Echo", rec.Callback(), func(o *Options) {
		o.Logger = logger
		o.Metrics = met
	})

	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)

	assert.Equal(t, []core.Result{core.Partial("h"), core.Partial("hi"), core.Done("hi")}, rec.Results())
	assert.Contains(t, buf.String(), "stream.callback.panic")
	assert.Equal(t, 1.0, gather(t, reg)["fnstream_callback_panics_total"])
}

func TestStream_AwaitZeroTimeoutDoesNotLeak(t *testing.T) {
	h := start(t, blockingModel(), "Slow", testutil.NewRecorder().Callback())

	status, err := h.Await(0)
	assert.Equal(t, StatusPending, status)
	assert.ErrorIs(t, err, ErrTimeout)

	status, err = h.Await(10 * time.Millisecond)
	assert.Equal(t, StatusPending, status)
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, h.Cancel())
	status, err = h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
}

func TestStream_AwaitContext(t *testing.T) {
	h := start(t, blockingModel(), "Slow", testutil.NewRecorder().Callback())
	defer func() { _ = h.Cancel() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	status, err := h.AwaitContext(ctx)
	assert.Equal(t, StatusPending, status)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream_ConcurrentCancelIsIdempotent(t *testing.T) {
	h := start(t, blockingModel(), "Slow", testutil.NewRecorder().Callback())

	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			err := h.Cancel()
			switch {
			case err == nil:
				ok.Add(1)
				return nil
			case errors.Is(err, ErrNotAlive):
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, ok.Load())

	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
	assert.ErrorIs(t, h.Cancel(), ErrNotAlive)
}

func TestStream_OrderingIsPreserved(t *testing.T) {
	partials := make([]any, 100)
	for i := range partials {
		partials[i] = i
	}
	m := model.NewMockModel("test").On("Count", model.Script{Partials: partials, Final: len(partials)})
	rec := testutil.NewRecorder()
	h := start(t, m, "Count", rec.Callback(), func(o *Options) { o.InboxSize = 1 })

	_, err := h.Await(waitFor)
	require.NoError(t, err)

	assert.Equal(t, partials, rec.Values())
	results := rec.Results()
	require.Len(t, results, len(partials)+1)
	assert.Equal(t, core.Done(len(partials)), results[len(results)-1])
}

func TestStream_NoLeakOnAnyExitPath(t *testing.T) {
	tests := []struct {
		name   string
		run    func(t *testing.T) *Handle
		status Status
	}{
		{
			name: "completed",
			run: func(t *testing.T) *Handle {
				return start(t, echoModel(), "Echo", testutil.NewRecorder().Callback())
			},
			status: StatusCompleted,
		},
		{
			name: "cancelled",
			run: func(t *testing.T) *Handle {
				h := start(t, blockingModel(), "Slow", testutil.NewRecorder().Callback())
				require.NoError(t, h.CancelWithReason("user"))
				return h
			},
			status: StatusCancelled,
		},
		{
			name: "killed",
			run: func(t *testing.T) *Handle {
				ctx, cancel := context.WithCancel(context.Background())
				h, err := Start(ctx, blockingModel(), "Slow", nil, testutil.NewRecorder().Callback(), core.CallOptions{})
				require.NoError(t, err)
				cancel()
				return h
			},
			status: StatusFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.run(t)
			status, _ := h.Await(waitFor)
			require.Equal(t, tt.status, status)

			assert.True(t, h.c.tok.Fired())
			assert.Equal(t, uuid.Nil, h.c.monitor)

			cause := h.c.tok.Cause()
			h.c.tok.Fire(errors.New("late"))
			assert.Equal(t, cause, h.c.tok.Cause())

			assert.ErrorIs(t, h.Cancel(), ErrNotAlive)

			again, _ := h.Await(0)
			assert.Equal(t, tt.status, again)
			assert.Equal(t, StateTerminated, h.State())
		})
	}
}

func TestStream_KilledByOwner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := Start(ctx, blockingModel(), "Slow", nil, testutil.NewRecorder().Callback(), core.CallOptions{})
	require.NoError(t, err)

	cancel()

	status, err := h.Await(waitFor)
	assert.Equal(t, StatusFailed, status)
	assert.ErrorIs(t, err, ErrKilled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, h.c.tok.Cause(), ErrKilled)
}

func TestStream_EnginePanicBecomesFailure(t *testing.T) {
	m := model.NewMockModel("test").On("Crash", model.Script{Panic: "kaboom"})
	rec := testutil.NewRecorder()
	h := start(t, m, "Crash", rec.Callback())

	status, err := h.Await(waitFor)
	assert.Equal(t, StatusFailed, status)

	var pe *core.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)

	terminals := rec.Terminals()
	require.Len(t, terminals, 1)
	assert.ErrorAs(t, terminals[0].Err, &pe)
}

func TestStream_DropsForeignTagsAndPushedTerminals(t *testing.T) {
	m := funcModel{fn: func(_ *core.Token, dest model.Sink, tag string, _ model.Request) core.Result {
		dest.Send("someone-else", core.Partial("foreign"))
		dest.Send(tag, core.Done("pushed"))
		dest.Send(tag, core.Failure(errors.New("pushed")))
		dest.Send(tag, core.Partial("mine"))
		return core.Done("final")
	}}
	rec := testutil.NewRecorder()
	h := start(t, m, "Any", rec.Callback())

	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, []core.Result{core.Partial("mine"), core.Done("final")}, rec.Results())
}

// panickyLogger panics when it is asked to log msg.
type panickyLogger struct {
	logging.NoOpLogger
	msg string
}

func (l panickyLogger) Debug(msg string, _ ...any) {
	if msg == l.msg {
		panic("logger down")
	}
}

func TestStream_RelayPanicBecomesFailure(t *testing.T) {
	m := funcModel{fn: func(tok *core.Token, dest model.Sink, tag string, _ model.Request) core.Result {
		dest.Send("someone-else", core.Partial("foreign"))
		for i := 0; i < 10; i++ {
			dest.Send(tag, core.Partial(i))
		}
		return core.Done("final")
	}}
	rec := testutil.NewRecorder()
	h := start(t, m, "Any", rec.Callback(), func(o *Options) {
		o.Logger = panickyLogger{msg: "stream.message.foreign"}
		o.InboxSize = 1
	})

	status, err := h.Await(waitFor)
	assert.Equal(t, StatusFailed, status)
	var pe *core.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "logger down", pe.Value)

	assert.Empty(t, rec.Results())
	assert.True(t, h.c.tok.Fired())
}

func TestStream_CancelAfterFirstPartial(t *testing.T) {
	rec := testutil.NewRecorder()
	h := start(t, blockingModel(), "Slow", rec.Callback())

	require.True(t, rec.WaitFor(1, waitFor))
	assert.Equal(t, StateStreaming, h.State())
	require.NoError(t, h.Cancel())

	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)

	assert.Empty(t, rec.Terminals())
	assert.Equal(t, 1, rec.Values()[0])
}

func TestStream_NonTerminalReturnIsFailure(t *testing.T) {
	m := funcModel{fn: func(*core.Token, model.Sink, string, model.Request) core.Result {
		return core.Partial("oops")
	}}
	h := start(t, m, "Any", testutil.NewRecorder().Callback())

	status, err := h.Await(waitFor)
	assert.Equal(t, StatusFailed, status)
	assert.Error(t, err)
}

func TestStream_PushAfterReturnIsIgnored(t *testing.T) {
	var sink model.Sink
	var tag string
	m := funcModel{fn: func(_ *core.Token, dest model.Sink, tg string, _ model.Request) core.Result {
		sink, tag = dest, tg
		return core.Done("final")
	}}
	rec := testutil.NewRecorder()
	h := start(t, m, "Any", rec.Callback())

	_, err := h.Await(waitFor)
	require.NoError(t, err)

	assert.NotPanics(t, func() { sink.Send(tag, core.Partial("late")) })
	assert.Equal(t, []core.Result{core.Done("final")}, rec.Results())
}

func TestStream_CancelFromInsideCallback(t *testing.T) {
	var h *Handle
	ready := make(chan struct{})
	cancelErr := make(chan error, 1)

	rec := testutil.NewRecorder().OnEach(func(core.Result) {
		<-ready
		select {
		case cancelErr <- h.Cancel():
		default:
		}
	})
	h = start(t, blockingModel(), "Slow", rec.Callback())
	close(ready)

	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, status)
	assert.NoError(t, <-cancelErr)
	assert.Equal(t, 1, rec.Len())
}

func TestStream_CancelRacingCompletion(t *testing.T) {
	for i := 0; i < 50; i++ {
		m := model.NewMockModel("test").On("Quick", model.Script{Partials: []any{1}, Final: 2})
		rec := testutil.NewRecorder()
		h := start(t, m, "Quick", rec.Callback())

		cancelErr := h.Cancel()
		status, err := h.Await(waitFor)
		require.NoError(t, err)

		terminals := rec.Terminals()
		assert.LessOrEqual(t, len(terminals), 1)

		switch status {
		case StatusCompleted:
			assert.ErrorIs(t, cancelErr, ErrNotAlive)
			require.Len(t, terminals, 1)
			assert.Equal(t, core.Done(2), terminals[0])
		case StatusCancelled:
			assert.NoError(t, cancelErr)
		default:
			t.Fatalf("unexpected status %s", status)
		}
	}
}

type Greeting struct {
	Text string `json:"text"`
	Mood Mood   `json:"mood"`
}

type Mood string

const MoodHappy Mood = "HAPPY"

func TestStream_NormalizesResults(t *testing.T) {
	reg := normalize.NewRegistry()
	normalize.RegisterClass[Greeting](reg, "Greeting")
	normalize.RegisterEnum(reg, "Mood", MoodHappy)

	partial := testutil.NewClass("Greeting").Field("text", "he").Build()
	final := testutil.NewClass("Greeting").Field("text", "hello").Enum("mood", "Mood", "HAPPY").Build()
	m := model.NewMockModel("test").On("Greet", model.Script{Partials: []any{partial}, Final: final})

	rec := testutil.NewRecorder()
	h := start(t, m, "Greet", rec.Callback(), func(o *Options) { o.Registry = reg })
	_, err := h.Await(waitFor)
	require.NoError(t, err)

	assert.Equal(t, []core.Result{
		core.Partial(Greeting{Text: "he"}),
		core.Done(Greeting{Text: "hello", Mood: MoodHappy}),
	}, rec.Results())

	// raw mode relays engine shapes untouched
	rec = testutil.NewRecorder()
	h, err = Start(context.Background(), m, "Greet", nil, rec.Callback(), core.CallOptions{Raw: true}, func(o *Options) { o.Registry = reg })
	require.NoError(t, err)
	_, err = h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, []core.Result{core.Partial(partial), core.Done(final)}, rec.Results())
}

func TestStream_NormalizationFailures(t *testing.T) {
	reg := normalize.NewRegistry()
	normalize.RegisterClass[Greeting](reg, "Greeting")

	bad := testutil.NewClass("Greeting").Field("text", 42).Build()
	good := testutil.NewClass("Greeting").Field("text", "ok").Build()
	m := model.NewMockModel("test").
		On("PartialBad", model.Script{Partials: []any{bad, good}, Final: good}).
		On("FinalBad", model.Script{Final: bad})

	rec := testutil.NewRecorder()
	h := start(t, m, "PartialBad", rec.Callback(), func(o *Options) { o.Registry = reg })
	status, err := h.Await(waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, []core.Result{core.Partial(Greeting{Text: "ok"}), core.Done(Greeting{Text: "ok"})}, rec.Results())

	rec = testutil.NewRecorder()
	h = start(t, m, "FinalBad", rec.Callback(), func(o *Options) { o.Registry = reg })
	status, err = h.Await(waitFor)
	assert.Equal(t, StatusFailed, status)
	assert.ErrorIs(t, err, normalize.ErrMismatch)
	require.Len(t, rec.Terminals(), 1)
	assert.ErrorIs(t, rec.Terminals()[0].Err, normalize.ErrMismatch)
}

func TestStart_ConstructionFailures(t *testing.T) {
	cb := testutil.NewRecorder().Callback()
	ctx := context.Background()

	_, err := Start(ctx, nil, "Echo", nil, cb, core.CallOptions{})
	assert.ErrorIs(t, err, core.ErrNilModel)

	_, err = Start(ctx, echoModel(), "Echo", map[string]any{"text": "hi"}, nil, core.CallOptions{})
	assert.ErrorIs(t, err, core.ErrNilCallback)

	_, err = Start(ctx, echoModel(), "Nope", nil, cb, core.CallOptions{})
	assert.ErrorIs(t, err, core.ErrUnknownFunction)

	m := echoModel()
	_, err = Start(ctx, m, "Echo", map[string]any{}, cb, core.CallOptions{})
	assert.ErrorIs(t, err, core.ErrInvalidArgs)
	assert.Zero(t, m.Calls())
}

func TestStream_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	h := start(t, echoModel(), "Echo", testutil.NewRecorder().Callback(), func(o *Options) { o.Metrics = met })
	_, err := h.Await(waitFor)
	require.NoError(t, err)

	h = start(t, blockingModel(), "Slow", testutil.NewRecorder().Callback(), func(o *Options) { o.Metrics = met })
	require.NoError(t, h.Cancel())
	_, err = h.Await(waitFor)
	require.NoError(t, err)

	values := gather(t, reg)
	assert.Equal(t, 2.0, values["fnstream_streams_started_total"])
	assert.Equal(t, 0.0, values["fnstream_streams_active"])
	assert.Equal(t, 1.0, values["fnstream_streams_finished_total/completed"])
	assert.Equal(t, 1.0, values["fnstream_streams_finished_total/cancelled"])
	assert.GreaterOrEqual(t, values["fnstream_partials_delivered_total"], 2.0)
}

// gather flattens counter and gauge values keyed by name and label values.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "/" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}
	return values
}
