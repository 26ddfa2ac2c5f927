// Package telemetry provides Prometheus metrics for the ingestion writer
// and query planner, in the same shape as internal/middleware's HTTP
// metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricEventsIngestedTotal = "events_ingested_total"
	MetricEventsRejectedTotal = "events_rejected_total"
	MetricQueryDuration       = "query_duration_seconds"
	MetricQueryErrorsTotal    = "query_errors_total"
	MetricStoreErrorsTotal    = "store_errors_total"
	MetricCounterCASRetries   = "counter_cas_retries_total"
)

// Metrics contains Prometheus metrics for the ingestion/query domain. All
// operations are thread-safe.
type Metrics struct {
	eventsIngested  *prometheus.CounterVec
	eventsRejected  prometheus.Counter
	queryDuration   *prometheus.HistogramVec
	queryErrors     *prometheus.CounterVec
	storeErrors     prometheus.Counter
	counterCASRetry prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all
// collectors initialized. The metrics are not registered; call Register to
// register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEventsIngestedTotal,
				Help: "Total number of trip events successfully applied, by event kind",
			},
			[]string{"kind"},
		),
		eventsRejected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricEventsRejectedTotal,
				Help: "Total number of trip events rejected as malformed before any store mutation",
			},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricQueryDuration,
				Help:    "Query planner latency in seconds, by query name",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"query"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricQueryErrorsTotal,
				Help: "Total number of query planner errors, by query name",
			},
			[]string{"query"},
		),
		storeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricStoreErrorsTotal,
				Help: "Total number of store.ErrStoreUnavailable errors surfaced to callers",
			},
		),
		counterCASRetry: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricCounterCASRetries,
				Help: "Total number of optimistic-lock retries on the current_trips_counter CAS transaction",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncEventsIngested increments the ingested-events counter for kind
// ("begin", "update", "end").
func (m *Metrics) IncEventsIngested(kind string) {
	m.eventsIngested.WithLabelValues(kind).Inc()
}

// IncEventsRejected increments the rejected-events counter.
func (m *Metrics) IncEventsRejected() {
	m.eventsRejected.Inc()
}

// ObserveQuery records a query planner call's latency under query (one of
// "current_count", "count_at_instant", "trips_passed_through",
// "trips_start_stop").
func (m *Metrics) ObserveQuery(query string, seconds float64) {
	m.queryDuration.WithLabelValues(query).Observe(seconds)
}

// IncQueryErrors increments the query-errors counter for query.
func (m *Metrics) IncQueryErrors(query string) {
	m.queryErrors.WithLabelValues(query).Inc()
}

// IncStoreErrors increments the store-errors counter.
func (m *Metrics) IncStoreErrors() {
	m.storeErrors.Inc()
}

// IncCounterCASRetry increments the CAS-retry counter once per retried
// attempt on the current_trips_counter transaction.
func (m *Metrics) IncCounterCASRetry() {
	m.counterCASRetry.Inc()
}

// Collectors returns all Prometheus collectors, for registration and
// testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsIngested,
		m.eventsRejected,
		m.queryDuration,
		m.queryErrors,
		m.storeErrors,
		m.counterCASRetry,
	}
}
