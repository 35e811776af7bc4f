package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registerOnce sync.Once
	registry     = prometheus.NewRegistry()

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	workflowTransitionsTotal *prometheus.CounterVec
	workflowConflictsTotal   *prometheus.CounterVec
	workflowTransitionTime   *prometheus.HistogramVec
	auditFailuresTotal       prometheus.Counter
	summaryCacheTotal        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_http_requests_total",
			Help: "Total number of workflow API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_http_latency_seconds",
			Help:    "Latency distribution for workflow API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_http_errors_total",
			Help: "Total number of error responses returned by workflow endpoints.",
		}, []string{"method", "route", "status"})

		workflowTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Transition requests by entity type, action and outcome.",
		}, []string{"entity_type", "action", "outcome"})

		workflowConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_conflicts_total",
			Help: "Conditional writes that lost to a concurrent transition.",
		}, []string{"entity_type"})

		workflowTransitionTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_transition_seconds",
			Help:    "Time spent inside RequestTransition.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"entity_type"})

		auditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_audit_failures_total",
			Help: "Transition records that could not be appended.",
		})

		summaryCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_summary_cache_total",
			Help: "Points summary cache lookups by result.",
		}, []string{"result"})

		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			workflowTransitionsTotal,
			workflowConflictsTotal,
			workflowTransitionTime,
			auditFailuresTotal,
			summaryCacheTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func WorkflowTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowTransitionsTotal
}

func WorkflowConflicts() *prometheus.CounterVec {
	RegisterMetrics()
	return workflowConflictsTotal
}

func WorkflowTransitionLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return workflowTransitionTime
}

func AuditFailures() prometheus.Counter {
	RegisterMetrics()
	return auditFailuresTotal
}

// SummaryCache counts points summary cache hits, misses and errors.
func SummaryCache() *prometheus.CounterVec {
	RegisterMetrics()
	return summaryCacheTotal
}
