package fnstream

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fnstream/core"
	"github.com/hupe1980/fnstream/internal/testutil"
	"github.com/hupe1980/fnstream/logging"
	"github.com/hupe1980/fnstream/model"
	"github.com/hupe1980/fnstream/normalize"
	"github.com/hupe1980/fnstream/stream"
)

type Invoice struct {
	Number string  `json:"number"`
	Total  float64 `json:"total"`
}

type mockCollector struct{ mock.Mock }

func (m *mockCollector) Collect(u core.Usage) { m.Called(u) }

func newClient(m model.Model, optFns ...func(o *Options)) *Client {
	reg := normalize.NewRegistry()
	normalize.RegisterClass[Invoice](reg, "billing.Invoice")
	return New(append([]func(o *Options){func(o *Options) {
		o.Model = m
		o.Registry = reg
		o.Defaults.Prefix = "billing"
	}}, optFns...)...)
}

func invoiceModel() *model.MockModel {
	final := testutil.NewClass("Invoice").Field("number", "A-1").Field("total", 12.5).Build()
	return model.NewMockModel("test").On("Extract", model.Script{
		Partials: []any{testutil.NewClass("Invoice").Field("number", "A-").Build()},
		Final:    final,
	})
}

func TestClient_Stream(t *testing.T) {
	c := newClient(invoiceModel())
	rec := testutil.NewRecorder()

	h, err := c.Stream(context.Background(), "Extract", nil, rec.Callback())
	require.NoError(t, err)

	status, err := h.Await(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, stream.StatusCompleted, status)
	assert.Equal(t, []core.Result{
		core.Partial(Invoice{Number: "A-"}),
		core.Done(Invoice{Number: "A-1", Total: 12.5}),
	}, rec.Results())
}

func TestClient_CallSharesNormalizer(t *testing.T) {
	c := newClient(invoiceModel())

	v, err := c.Call(context.Background(), "Extract", nil)
	require.NoError(t, err)
	assert.Equal(t, Invoice{Number: "A-1", Total: 12.5}, v)

	raw, err := c.Call(context.Background(), "Extract", nil, func(o *core.CallOptions) { o.Raw = true })
	require.NoError(t, err)
	assert.IsType(t, core.Class{}, raw)

	_, err = c.Call(context.Background(), "Missing", nil)
	assert.ErrorIs(t, err, core.ErrUnknownFunction)
}

func TestClient_CallError(t *testing.T) {
	boom := errors.New("boom")
	c := newClient(model.NewMockModel("test").On("Fail", model.Script{Err: boom}))

	_, err := c.Call(context.Background(), "Fail", nil)
	assert.ErrorIs(t, err, boom)

	_, err = New().Call(context.Background(), "Fail", nil)
	assert.ErrorIs(t, err, core.ErrNilModel)
}

func TestClient_DefaultsAndCollectors(t *testing.T) {
	col := &mockCollector{}
	col.On("Collect", mock.MatchedBy(func(u core.Usage) bool {
		return u.Function == "Extract" && u.Client == "fast"
	})).Once()

	c := newClient(invoiceModel(), func(o *Options) { o.Defaults.Client = "default" })

	_, err := c.Call(context.Background(), "Extract", nil, func(o *core.CallOptions) {
		o.Client = "fast"
		o.Collectors = append(o.Collectors, col)
	})
	require.NoError(t, err)
	col.AssertExpectations(t)

	// per-call collectors do not leak into the defaults
	assert.Empty(t, c.opts.Defaults.Collectors)
	assert.Equal(t, "default", c.opts.Defaults.Client)
}

func TestClient_MaxConcurrentStreams(t *testing.T) {
	m := model.NewMockModel("test").On("Slow", model.Script{BlockUntilCancel: true})
	c := newClient(m, func(o *Options) { o.MaxConcurrentStreams = 1 })

	h, err := c.Stream(context.Background(), "Slow", nil, testutil.NewRecorder().Callback())
	require.NoError(t, err)

	_, err = c.Stream(context.Background(), "Slow", nil, testutil.NewRecorder().Callback())
	assert.ErrorIs(t, err, ErrTooManyStreams)

	require.NoError(t, h.Cancel())
	_, err = h.Await(2 * time.Second)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		h2, err := c.Stream(context.Background(), "Slow", nil, testutil.NewRecorder().Callback())
		if err != nil {
			return false
		}
		_ = h2.Cancel()
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_StreamConstructionFailureReleasesSlot(t *testing.T) {
	c := newClient(invoiceModel(), func(o *Options) { o.MaxConcurrentStreams = 1 })

	_, err := c.Stream(context.Background(), "Missing", nil, testutil.NewRecorder().Callback())
	assert.ErrorIs(t, err, core.ErrUnknownFunction)

	_, err = c.Stream(context.Background(), "Extract", nil, nil)
	assert.ErrorIs(t, err, core.ErrNilCallback)

	h, err := c.Stream(context.Background(), "Extract", nil, testutil.NewRecorder().Callback())
	require.NoError(t, err)
	_, err = h.Await(2 * time.Second)
	require.NoError(t, err)
}

func TestClient_LogsModelUsage(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	c := newClient(invoiceModel(), func(o *Options) { o.Logger = logger })

	_, err := c.Call(context.Background(), "Extract", nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"model.call.completed"`)
	assert.Contains(t, out, `"function":"Extract"`)
	assert.Contains(t, out, `"provider":"mock"`)
	assert.Empty(t, c.opts.Defaults.Collectors)
}
