package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay connection states as exported in courier_relay_state.
var relayStates = []string{"disconnected", "connecting", "open"}

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Relay metrics
	RelayState      *prometheus.GaugeVec
	Reconnects      prometheus.Counter
	BackoffSeconds  prometheus.Gauge
	EventsSent      prometheus.Counter
	EventsDropped   *prometheus.CounterVec
	ConnectionsOpen prometheus.Counter

	// Correlation metrics
	CorrelationIDs  *prometheus.CounterVec
	Counter         prometheus.Gauge
	PersistFailures prometheus.Counter

	// Pipeline metrics
	LookupFailures   *prometheus.CounterVec
	Notifications    prometheus.Counter
	Outcomes         *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
}

// NewMetrics creates a metrics collector on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_http_requests_total",
				Help: "Total number of hook API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "courier_http_request_duration_seconds",
				Help:    "Hook API request duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),

		RelayState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "courier_relay_state",
				Help: "Current relay connection state (1 for the active state)",
			},
			[]string{"state"},
		),
		Reconnects: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "courier_relay_reconnects_total",
				Help: "Total number of scheduled relay reconnects",
			},
		),
		BackoffSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "courier_relay_backoff_seconds",
				Help: "Delay of the most recently scheduled reconnect",
			},
		),
		EventsSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "courier_events_sent_total",
				Help: "Total number of context events written to the relay",
			},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_events_dropped_total",
				Help: "Total number of context events not delivered",
			},
			[]string{"reason"},
		),
		ConnectionsOpen: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "courier_relay_connections_total",
				Help: "Total number of successfully opened relay connections",
			},
		),

		CorrelationIDs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_correlation_ids_total",
				Help: "Correlation ids attached to requests by origin",
			},
			[]string{"origin"},
		),
		Counter: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "courier_correlation_counter",
				Help: "Last correlation id issued",
			},
		),
		PersistFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "courier_counter_persist_failures_total",
				Help: "Total number of failed counter writes",
			},
		),

		LookupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_lookup_failures_total",
				Help: "Total number of failed identity, role and counter lookups",
			},
			[]string{"kind"},
		),
		Notifications: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "courier_notifications_total",
				Help: "Total number of misconfiguration notifications raised",
			},
		),
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_pipeline_outcomes_total",
				Help: "Tagging pipeline invocations by outcome",
			},
			[]string{"outcome"},
		),
		PipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "courier_pipeline_duration_seconds",
				Help:    "Time spent deciding whether to tag a request",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5},
			},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one hook API request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetRelayState marks state as the active relay state
func (m *Metrics) SetRelayState(state string) {
	if m == nil {
		return
	}
	for _, s := range relayStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.RelayState.WithLabelValues(s).Set(v)
	}
}

// RecordReconnect records a scheduled reconnect and its delay
func (m *Metrics) RecordReconnect(delay time.Duration) {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
	m.BackoffSeconds.Set(delay.Seconds())
}

// RecordConnectionOpened records a successful relay handshake
func (m *Metrics) RecordConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpen.Inc()
}

// RecordEventSent records a delivered event
func (m *Metrics) RecordEventSent() {
	if m == nil {
		return
	}
	m.EventsSent.Inc()
}

// RecordEventDropped records an event that was not delivered
func (m *Metrics) RecordEventDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

// RecordCorrelationID records where a request's correlation id came from
func (m *Metrics) RecordCorrelationID(origin string) {
	if m == nil {
		return
	}
	m.CorrelationIDs.WithLabelValues(origin).Inc()
}

// SetCounter records the allocator's current value
func (m *Metrics) SetCounter(value int64) {
	if m == nil {
		return
	}
	m.Counter.Set(float64(value))
}

// RecordPersistFailure records a failed counter write
func (m *Metrics) RecordPersistFailure() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// RecordLookupFailure records a failed identity, role or counter lookup
func (m *Metrics) RecordLookupFailure(kind string) {
	if m == nil {
		return
	}
	m.LookupFailures.WithLabelValues(kind).Inc()
}

// RecordNotification records a raised notification
func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.Notifications.Inc()
}

// RecordOutcome records a finished pipeline invocation
func (m *Metrics) RecordOutcome(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
	m.PipelineDuration.Observe(duration.Seconds())
}
