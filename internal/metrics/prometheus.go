// Package metrics provides Prometheus metrics for the diamond service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Manager owns the service collectors. A nil *Manager is valid and records
// nothing, so components can be built without metrics in tests.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	gameFetches     *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	flattenedEvents *prometheus.CounterVec
	pollDuration    prometheus.Histogram
	liveGames       prometheus.Gauge
	rowsWritten     prometheus.Counter
	published       prometheus.Counter
	publishErrors   *prometheus.CounterVec
	wsClients       prometheus.Gauge

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a Manager on its own registry unless WithRegistry is
// given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "diamond",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.gameFetches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "game_fetches_total",
		Help:      "Live feed fetch tasks by outcome",
	}, []string{"outcome"})

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "game_fetch_duration_seconds",
		Help:      "Duration of one fetch and flatten task",
		Buckets:   m.buckets,
	})

	m.flattenedEvents = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "flattened_events_total",
		Help:      "Play events seen while flattening, by classification",
	}, []string{"kind"})

	m.pollDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "poll_cycle_duration_seconds",
		Help:      "Duration of one live polling cycle",
		Buckets:   m.buckets,
	})

	m.liveGames = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "live_games",
		Help:      "Games polled in the last cycle",
	})

	m.rowsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rows_written_total",
		Help:      "Pitch event rows written to the database",
	})

	m.published = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "events_published_total",
		Help:      "Pitch events published to live subscribers",
	})

	m.publishErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "publish_errors_total",
		Help:      "Failed publishes by sink",
	}, []string{"sink"})

	m.wsClients = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "websocket_clients",
		Help:      "Connected websocket clients",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration by route and method",
		Buckets:   m.buckets,
	}, []string{"route", "method"})
}

// Registry returns the registry holding the collectors.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordGameFetch counts one fetch task and, unless skipped, its duration.
func (m *Manager) RecordGameFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gameFetches.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		m.fetchLatency.Observe(d.Seconds())
	}
}

// RecordFlattened counts classified play events.
func (m *Manager) RecordFlattened(pitches, walks, skipped int) {
	if m == nil {
		return
	}
	m.flattenedEvents.WithLabelValues("pitch").Add(float64(pitches))
	m.flattenedEvents.WithLabelValues("walk").Add(float64(walks))
	m.flattenedEvents.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordPollCycle records a polling cycle and how many games it covered.
func (m *Manager) RecordPollCycle(d time.Duration, games int) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
	m.liveGames.Set(float64(games))
}

// RecordRowsWritten counts rows written to the database.
func (m *Manager) RecordRowsWritten(n int) {
	if m == nil {
		return
	}
	m.rowsWritten.Add(float64(n))
}

// RecordPublished counts events delivered to live subscribers.
func (m *Manager) RecordPublished(n int) {
	if m == nil {
		return
	}
	m.published.Add(float64(n))
}

// RecordPublishError counts a failed publish to sink.
func (m *Manager) RecordPublishError(sink string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(sink).Inc()
}

// SetWebsocketClients sets the connected client gauge.
func (m *Manager) SetWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// RecordHTTPRequest records one served request.
func (m *Manager) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
