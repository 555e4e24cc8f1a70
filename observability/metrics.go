package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coreerrors "supplynet/core/errors"
	"supplynet/native/common"
)

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type ledgerMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// HTTP returns the lazily-initialised metrics registry used by the gateway
// middleware.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "supplynet",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "supplynet",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total HTTP error responses segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "supplynet",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "supplynet",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an HTTP request. The status code should be
// the status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *httpMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Ledger returns the metrics registry recording ledger operations. It
// satisfies core.Observer.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "supplynet",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "supplynet",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations including transaction commit.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			}, []string{"operation"}),
		}
		prometheus.MustRegister(ledgerRegistry.operations, ledgerRegistry.latency)
	})
	return ledgerRegistry
}

// ObserveOperation records a ledger operation outcome.
func (m *ledgerMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, OutcomeLabel(err)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// OutcomeLabel maps an operation error onto a low-cardinality metric label.
func OutcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := coreerrors.Kind(err); kind != nil {
		switch kind {
		case coreerrors.ErrAlreadyRegistered:
			return "already_registered"
		case coreerrors.ErrInvalidInput:
			return "invalid_input"
		case coreerrors.ErrUnauthorized:
			return "unauthorized"
		case coreerrors.ErrNotFound:
			return "not_found"
		case coreerrors.ErrClosed:
			return "closed"
		case coreerrors.ErrUnknownProvider:
			return "unknown_provider"
		case coreerrors.ErrInvalidState:
			return "invalid_state"
		}
	}
	if errors.Is(err, common.ErrModulePaused) {
		return "paused"
	}
	return "internal"
}
