// Package metrics registers the Prometheus collectors for the taxassist
// service. Collectors are package-level and registered with the default
// registry through promauto; the API serves them at /metrics.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "taxassist"
)

// LatencyBuckets covers single-digit-millisecond store calls up to slow
// multi-provider generations (seconds).
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1, 2, 3, 5, 8, 10, 15, 20, 30, 60, 120,
}

var (
	// ChatRequests counts Chat calls by route and outcome.
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests by route and status",
		},
		[]string{"route", "status"},
	)

	// StageLatency tracks state-machine node latency.
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Orchestrator stage latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"stage", "status"},
	)

	// ProviderCalls counts generation attempts by backend and outcome.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of generation backend calls",
		},
		[]string{"provider", "status"},
	)

	// ProviderLatency tracks generation latency per backend.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Generation backend latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider"},
	)

	// ProviderFallbacks counts advances from one backend to the next.
	ProviderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Total number of times a failing backend was skipped",
		},
		[]string{"from"},
	)

	// ProviderExhausted counts calls on which every backend failed.
	ProviderExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_exhausted_total",
			Help:      "Total number of calls where every generation backend failed",
		},
	)

	// RouteDecisions counts classifier outcomes.
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Total number of route decisions by route and source",
		},
		[]string{"route", "source"}, // source: model, default
	)

	// StoreErrors counts conversation store failures by operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of conversation store failures",
		},
		[]string{"operation"},
	)

	// LockWait tracks how long requests wait for their thread lock.
	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "thread_lock_wait_seconds",
			Help:      "Time spent waiting for the per-thread lock",
			Buckets:   LatencyBuckets,
		},
	)

	// HTTPRequests counts API requests by path pattern and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"pattern", "status"},
	)
)

// RecordProviderCall records one backend attempt.
func RecordProviderCall(provider string, latency time.Duration, err error) {
	provider = sanitizeLabel(provider)
	ProviderCalls.WithLabelValues(provider, statusLabel(err)).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordStage records one state-machine node execution.
func RecordStage(stage string, latency time.Duration, err error) {
	StageLatency.WithLabelValues(sanitizeLabel(stage), statusLabel(err)).Observe(latency.Seconds())
}

// RecordChat records a finished Chat call.
func RecordChat(route string, degraded bool, err error) {
	status := statusLabel(err)
	if err == nil && degraded {
		status = "degraded"
	}
	ChatRequests.WithLabelValues(sanitizeLabel(route), status).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

const maxLabelLen = 64

// sanitizeLabel keeps label cardinality and charset bounded; backend names
// come from configuration.
func sanitizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(min(len(value), maxLabelLen))
	for _, r := range value {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() >= maxLabelLen {
			break
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}
