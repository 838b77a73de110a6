package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/fnstream/core"
)

// Collector implements core.Collector by turning usage records into
// Prometheus metrics. Pass it in core.CallOptions.Collectors.
type Collector struct {
	calls    *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ core.Collector = (*Collector)(nil)

// NewCollector registers the model call metrics with reg. A nil reg uses the
// default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fnstream_model_calls_total",
			Help: "Total number of engine calls",
		}, []string{"function", "provider", "outcome"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fnstream_model_tokens_total",
			Help: "Total number of tokens consumed by engine calls",
		}, []string{"function", "direction"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fnstream_model_call_duration_seconds",
			Help:    "Engine call duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"function"}),
	}
}

// Collect implements core.Collector.
func (c *Collector) Collect(u core.Usage) {
	if c == nil {
		return
	}
	outcome := "ok"
	if u.Err != nil {
		outcome = "error"
	}
	c.calls.WithLabelValues(u.Function, u.Provider, outcome).Inc()
	if u.InputTokens > 0 {
		c.tokens.WithLabelValues(u.Function, "input").Add(float64(u.InputTokens))
	}
	if u.OutputTokens > 0 {
		c.tokens.WithLabelValues(u.Function, "output").Add(float64(u.OutputTokens))
	}
	c.duration.WithLabelValues(u.Function).Observe(u.Duration.Seconds())
}
