// Package metrics records service metrics in Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the domain Metrics interface on Prometheus collectors.
type Recorder struct {
	ignoredOps     *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	sessionsClosed *prometheus.CounterVec
	renders        *prometheus.HistogramVec
	ticksIngested  *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	cacheLookups   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers the collectors on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		ignoredOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finchart_ignored_operations_total",
				Help: "Chart operations dropped because the surface was disposed",
			},
			[]string{"op"},
		),
		sessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "finchart_sessions_active",
				Help: "Open chart sessions",
			},
		),
		sessionsClosed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finchart_sessions_closed_total",
				Help: "Closed chart sessions by reason",
			},
			[]string{"reason"},
		),
		renders: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finchart_render_duration_seconds",
				Help:    "Time to rasterize a chart pane",
				Buckets: prometheus.ExponentialBuckets(0.002, 2, 10),
			},
			[]string{"pane"},
		),
		ticksIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finchart_ticks_ingested_total",
				Help: "Ticks consumed from the ingestion topic",
			},
			[]string{"symbol"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finchart_last_price",
				Help: "Last ingested close for a symbol",
			},
			[]string{"symbol"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finchart_series_cache_lookups_total",
				Help: "Aggregated series cache lookups by result",
			},
			[]string{"result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finchart_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finchart_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) IgnoredOperation(op string) {
	r.ignoredOps.WithLabelValues(op).Inc()
}

func (r *Recorder) SessionOpened() { r.sessionsActive.Inc() }

func (r *Recorder) SessionClosed(reason string) {
	r.sessionsActive.Dec()
	r.sessionsClosed.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordRender(pane string, seconds float64) {
	r.renders.WithLabelValues(pane).Observe(seconds)
}

func (r *Recorder) RecordTicksIngested(symbol string, n int) {
	r.ticksIngested.WithLabelValues(symbol).Add(float64(n))
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
