package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ebicssandbox",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebicssandbox",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ebicssandbox",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to 2.56s
		},
		[]string{"method", "path"},
	)

	ebicsRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebicssandbox",
			Subsystem: "ebics",
			Name:      "requests_total",
			Help:      "Total number of ebicsRequest calls handled, by order type and phase.",
		},
		[]string{"order_type", "phase", "return_code"},
	)

	ebicsRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ebicssandbox",
			Subsystem: "ebics",
			Name:      "request_duration_seconds",
			Help:      "Duration of ebicsRequest handling, by order type.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"order_type"},
	)

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebicssandbox",
			Subsystem: "ledger",
			Name:      "booking_attempts_total",
			Help:      "Total number of pain.001 booking attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	bookingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ebicssandbox",
			Subsystem: "ledger",
			Name:      "booking_duration_seconds",
			Help:      "Duration of pain.001 booking attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"outcome"},
	)

	statementTickRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebicssandbox",
			Subsystem: "statementtick",
			Name:      "runs_total",
			Help:      "Total number of statement-tick executions, by outcome.",
		},
		[]string{"outcome"},
	)

	statementTickAccounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ebicssandbox",
			Subsystem: "statementtick",
			Name:      "accounts_closed",
			Help:      "Number of bank accounts closed in the most recent statement tick.",
		},
	)

	withdrawalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebicssandbox",
			Subsystem: "withdrawal",
			Name:      "transitions_total",
			Help:      "Total number of withdrawal FSM transitions, by target state.",
		},
		[]string{"state"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ebicsRequests,
		ebicsRequestDuration,
		bookingAttempts,
		bookingDuration,
		statementTickRuns,
		statementTickAccounts,
		withdrawalTransitions,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordEbicsRequest records metrics for a handled ebicsRequest order.
func RecordEbicsRequest(orderType, phase, returnCode string, duration time.Duration) {
	if orderType == "" {
		orderType = "unknown"
	}
	ebicsRequests.WithLabelValues(orderType, phase, returnCode).Inc()
	ebicsRequestDuration.WithLabelValues(orderType).Observe(duration.Seconds())
}

// RecordBooking records metrics for a pain.001 booking attempt.
func RecordBooking(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	bookingAttempts.WithLabelValues(outcome).Inc()
	bookingDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordStatementTick records the outcome and account count of a statement tick run.
func RecordStatementTick(outcome string, accountsClosed int) {
	if outcome == "" {
		outcome = "unknown"
	}
	statementTickRuns.WithLabelValues(outcome).Inc()
	statementTickAccounts.Set(float64(accountsClosed))
}

// RecordWithdrawalTransition records a withdrawal FSM transition to the given state.
func RecordWithdrawalTransition(state string) {
	if state == "" {
		state = "unknown"
	}
	withdrawalTransitions.WithLabelValues(state).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath bounds the HTTP metrics' path label: the demobank name
// becomes ":demobank" and /admin paths are cut after their first segment.
// Segments after the demobank name (account names, withdrawal IDs) are kept
// as they are.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "demobanks":
		if len(parts) <= 2 {
			return "/demobanks/:demobank"
		}
		return "/demobanks/:demobank/" + strings.Join(parts[2:], "/")
	case "admin":
		if len(parts) == 1 {
			return "/admin"
		}
		return "/admin/" + parts[1]
	default:
		return "/" + parts[0]
	}
}
