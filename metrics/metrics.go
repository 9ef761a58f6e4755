// Package metrics exposes prometheus collectors for the HTTP surface, the
// upstream proxy and the credential refresher.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eveauth_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SignatureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eveauth_signature_failures_total",
			Help: "Total number of rejected signed requests",
		},
	)

	// Grants
	GrantsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eveauth_grants_issued_total",
			Help: "Total number of grants issued per protocol",
		},
		[]string{"protocol"},
	)

	// Upstream proxy
	ProxyCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eveauth_proxy_cache_hits_total",
			Help: "Total number of proxy calls served from cache",
		},
	)

	ProxyCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eveauth_proxy_cache_misses_total",
			Help: "Total number of proxy calls forwarded upstream",
		},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eveauth_upstream_request_duration_seconds",
			Help:    "Duration of upstream API calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "outcome"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eveauth_upstream_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Refresher
	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eveauth_credential_refreshes_total",
			Help: "Total number of credential refreshes by result",
		},
		[]string{"result"},
	)

	RefresherBuckets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eveauth_refresher_assigned_credentials",
			Help: "Number of credentials in the current bucket assignment",
		},
	)

	ReapedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eveauth_reaped_rows_total",
			Help: "Total number of expired rows deleted by the reaper",
		},
		[]string{"table"},
	)
)

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

func RecordUpstream(endpoint string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequestDuration.WithLabelValues(endpoint, outcome).Observe(duration.Seconds())
}

func RecordCacheLookup(hit bool) {
	if hit {
		ProxyCacheHits.Inc()
	} else {
		ProxyCacheMisses.Inc()
	}
}

func RecordRefresh(result string) {
	CredentialRefreshes.WithLabelValues(result).Inc()
}
