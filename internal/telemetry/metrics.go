// Package telemetry owns the process metrics registry and tracer provider.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nudgeme"

// Metrics groups the counters updated by the stores, the nudge engine, and
// the assistant. Every method is safe to call on a nil *Metrics so that
// components can be built without telemetry in tests.
type Metrics struct {
	registry *prometheus.Registry

	ticks           *prometheus.CounterVec
	rulesFired      *prometheus.CounterVec
	ruleErrors      *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	chatRequests    *prometheus.CounterVec
	chatLatency     prometheus.Histogram
	storageFailures *prometheus.CounterVec
	remoteFallbacks *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	eventClients    prometheus.Gauge
}

// NewMetrics creates a Metrics backed by a private registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nudge_ticks_total",
			Help:      "Rule evaluation passes, by rule family.",
		}, []string{"family"}),
		rulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nudge_rules_fired_total",
			Help:      "Rules whose condition matched and whose action ran.",
		}, []string{"rule"}),
		ruleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nudge_rule_errors_total",
			Help:      "Rule conditions or actions that failed or panicked.",
		}, []string{"rule"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nudge_notifications_total",
			Help:      "Notification lifecycle events, by kind.",
		}, []string{"event"}),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat turns sent to the provider, by outcome.",
		}, []string{"outcome"}),
		chatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "Latency of provider completions.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Failed writes to local storage, by store.",
		}, []string{"store"}),
		remoteFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_remote_fallbacks_total",
			Help:      "Remote memory operations that failed and fell back or were discarded.",
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Gateway requests, by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		eventClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_stream_clients",
			Help:      "Connected websocket event stream clients.",
		}),
	}

	reg.MustRegister(
		m.ticks,
		m.rulesFired,
		m.ruleErrors,
		m.notifications,
		m.chatRequests,
		m.chatLatency,
		m.storageFailures,
		m.remoteFallbacks,
		m.httpRequests,
		m.eventClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TickRan records one evaluation pass of a rule family.
func (m *Metrics) TickRan(family string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(family).Inc()
}

// RuleFired records a triggered rule.
func (m *Metrics) RuleFired(rule string) {
	if m == nil {
		return
	}
	m.rulesFired.WithLabelValues(rule).Inc()
}

// RuleFailed records a rule whose condition or action failed.
func (m *Metrics) RuleFailed(rule string) {
	if m == nil {
		return
	}
	m.ruleErrors.WithLabelValues(rule).Inc()
}

// NotificationEvent records a notification lifecycle transition.
func (m *Metrics) NotificationEvent(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

// ChatCompleted records one chat turn and its provider latency.
func (m *Metrics) ChatCompleted(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
	m.chatLatency.Observe(latency.Seconds())
}

// StorageFailed records a failed local persistence write.
func (m *Metrics) StorageFailed(store string) {
	if m == nil {
		return
	}
	m.storageFailures.WithLabelValues(store).Inc()
}

// RemoteFallback records a failed remote memory operation.
func (m *Metrics) RemoteFallback(op string) {
	if m == nil {
		return
	}
	m.remoteFallbacks.WithLabelValues(op).Inc()
}

// RequestServed records one gateway response.
func (m *Metrics) RequestServed(route, method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// EventClients adjusts the connected event stream client gauge by delta.
func (m *Metrics) EventClients(delta int) {
	if m == nil {
		return
	}
	m.eventClients.Add(float64(delta))
}
