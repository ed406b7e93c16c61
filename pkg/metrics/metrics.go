package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdb_queries_total",
			Help: "Total number of composed queries executed (count)",
		},
		[]string{"kind", "status"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incidentdb_query_duration_ms",
			Help:    "Duration of query execution including checkout in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"kind"},
	)

	QueryRowsReturned = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incidentdb_query_rows",
			Help:    "Rows returned per query (count)",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"kind"},
	)

	QueryRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdb_query_retries_total",
			Help: "Total number of automatic read retries on a fresh connection (count)",
		},
		[]string{"kind"},
	)

	PoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "incidentdb_pool_connections",
			Help: "Pooled database connections by state (count)",
		},
		[]string{"state"},
	)

	PoolProbeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "incidentdb_pool_probe_failures_total",
			Help: "Liveness probes that found a broken connection (count)",
		},
	)

	PoolDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdb_pool_discarded_total",
			Help: "Connections discarded by the pool (count)",
		},
		[]string{"reason"},
	)

	AuditRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incidentdb_audit_records_total",
			Help: "Audit records written for exports (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests (count)",
		},
		[]string{"route", "status"},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueriesTotal,
			QueryDuration,
			QueryRowsReturned,
			QueryRetriesTotal,
			PoolConnections,
			PoolProbeFailuresTotal,
			PoolDiscardedTotal,
			AuditRecordsTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
			HTTPRequestsTotal,
		)
	})
}

func IncQuery(kind, status string) {
	QueriesTotal.WithLabelValues(kind, status).Inc()
}

func ObserveQueryDuration(kind string, duration time.Duration) {
	QueryDuration.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
}

func ObserveQueryRows(kind string, rows int) {
	QueryRowsReturned.WithLabelValues(kind).Observe(float64(rows))
}

func IncQueryRetry(kind string) {
	QueryRetriesTotal.WithLabelValues(kind).Inc()
}

func SetPoolConnections(state string, count int) {
	PoolConnections.WithLabelValues(state).Set(float64(count))
}

func IncPoolProbeFailure() {
	PoolProbeFailuresTotal.Inc()
}

func IncPoolDiscarded(reason string) {
	PoolDiscardedTotal.WithLabelValues(reason).Inc()
}

func IncAuditRecord(status string) {
	AuditRecordsTotal.WithLabelValues(status).Inc()
}

func IncHTTPRequest(route, status string) {
	HTTPRequestsTotal.WithLabelValues(route, status).Inc()
}
