package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	TransportEvents   *prometheus.CounterVec
	DuplicateMessages *prometheus.CounterVec
	Sends             *prometheus.CounterVec
	RESTDuration      *prometheus.HistogramVec
	Conversations     *prometheus.GaugeVec
}

// New registers the collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		TransportEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_transport_events_total",
			Help: "Total number of live transport events handled",
		}, []string{"event"}),
		DuplicateMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_duplicate_messages_total",
			Help: "Total number of messages dropped because their id was already stored",
		}, []string{"source"}),
		Sends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inbox_sends_total",
			Help: "Total number of optimistic sends by result",
		}, []string{"result"}),
		RESTDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inbox_rest_request_duration_seconds",
			Help:    "Time taken for REST API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		Conversations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inbox_conversations",
			Help: "Current number of conversations per routing bucket",
		}, []string{"bucket"}),
	}
}

// TransportEvent counts one handled transport event.
func (m *Metrics) TransportEvent(event string) {
	if m == nil {
		return
	}
	m.TransportEvents.WithLabelValues(event).Inc()
}

// Duplicate counts one message dropped by deduplication.
func (m *Metrics) Duplicate(source string) {
	if m == nil {
		return
	}
	m.DuplicateMessages.WithLabelValues(source).Inc()
}

// Send counts one send by result ("ok" or "failed").
func (m *Metrics) Send(result string) {
	if m == nil {
		return
	}
	m.Sends.WithLabelValues(result).Inc()
}

// ObserveREST records the duration of a REST request started at start.
func (m *Metrics) ObserveREST(op string, start time.Time) {
	if m == nil {
		return
	}
	m.RESTDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetBucketCounts replaces the per-bucket conversation gauges.
func (m *Metrics) SetBucketCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.Conversations.Reset()
	for bucket, n := range counts {
		m.Conversations.WithLabelValues(bucket).Set(float64(n))
	}
}
