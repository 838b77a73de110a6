// Package metrics provides Prometheus instrumentation for stream
// coordinators and a core.Collector that turns engine usage records into
// metrics.
//
// All recording methods are safe on a nil receiver so instrumentation can be
// left unconfigured.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records coordinator lifecycle metrics.
type Metrics struct {
	started        prometheus.Counter
	finished       *prometheus.CounterVec
	active         prometheus.Gauge
	duration       *prometheus.HistogramVec
	partials       prometheus.Counter
	callbackPanics prometheus.Counter
}

// New registers the coordinator metrics with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		started: f.NewCounter(prometheus.CounterOpts{
			Name: "fnstream_streams_started_total",
			Help: "Total number of streams started",
		}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fnstream_streams_finished_total",
			Help: "Total number of streams finished by terminal status",
		}, []string{"status"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "fnstream_streams_active",
			Help: "Number of streams currently running",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fnstream_stream_duration_seconds",
			Help:    "Stream duration in seconds by terminal status",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		partials: f.NewCounter(prometheus.CounterOpts{
			Name: "fnstream_partials_delivered_total",
			Help: "Total number of partial results delivered to callbacks",
		}),
		callbackPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "fnstream_callback_panics_total",
			Help: "Total number of recovered callback panics",
		}),
	}
}

// StreamStarted records a new running stream.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.active.Inc()
}

// StreamFinished records a stream's terminal status and lifetime.
func (m *Metrics) StreamFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.finished.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(d.Seconds())
}

// PartialDelivered records one partial handed to a callback.
func (m *Metrics) PartialDelivered() {
	if m == nil {
		return
	}
	m.partials.Inc()
}

// CallbackPanicked records a recovered callback panic.
func (m *Metrics) CallbackPanicked() {
	if m == nil {
		return
	}
	m.callbackPanics.Inc()
}

// Handler returns the Prometheus metrics HTTP handler for g. A nil g serves
// the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
