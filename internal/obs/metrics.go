package obs

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gate outcomes. Storage failures are kept apart from rejections so outages are visible.
const (
	OutcomeAllowed       = "allowed"
	OutcomeNoCredential  = "no_credential"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeInsufficient  = "insufficient_tier"
	OutcomeInternalError = "internal_error"
)

var (
	registerOnce sync.Once

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_auth_gate_decisions_total",
			Help: "Authorization gate decisions by required tier and outcome.",
		},
		[]string{"requirement", "outcome"},
	)

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_auth_tokens_issued_total",
			Help: "Bearer tokens persisted, by kind.",
		},
		[]string{"kind"},
	)

	loginFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_auth_login_failures_total",
			Help: "Failed login attempts by error code.",
		},
		[]string{"code"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Pickup backend build information.",
		},
		[]string{"version"},
	)
)

// Register adds every collector to reg exactly once per process.
func Register(reg prometheus.Registerer, version string) {
	registerOnce.Do(func() {
		reg.MustRegister(gateDecisions, tokensIssued, loginFailures, httpRequestsTotal, httpRequestDuration, buildInfo)
	})
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func GateDecision(requirement, outcome string) {
	gateDecisions.WithLabelValues(requirement, outcome).Inc()
}

func TokenIssued(kind string) {
	tokensIssued.WithLabelValues(kind).Inc()
}

func LoginFailed(code string) {
	loginFailures.WithLabelValues(code).Inc()
}

func ObserveRequest(method, route, status string, seconds float64) {
	httpRequestDuration.WithLabelValues(method, route, status).Observe(seconds)
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
}
