// Package metrics exposes Prometheus counters for the authorization core.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oauth_resource"

// Label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

// Metrics holds the collectors used by the key resolver, the claims cache
// and the authorizers.
type Metrics struct {
	JWKSFetchesTotal       *prometheus.CounterVec
	ClaimsCacheLookups     *prometheus.CounterVec
	CustomClaimsCallsTotal *prometheus.CounterVec
	AuthorizationsTotal    *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// It panics if registration fails, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JWKSFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jwks_fetches_total",
				Help:      "Number of JWKS downloads by result.",
			},
			[]string{"result"},
		),
		ClaimsCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claims_cache_lookups_total",
				Help:      "Number of claims cache lookups by result.",
			},
			[]string{"result"},
		),
		CustomClaimsCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "custom_claims_calls_total",
				Help:      "Number of custom claims provider invocations by result.",
			},
			[]string{"result"},
		),
		AuthorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authorizations_total",
				Help:      "Number of authorization decisions by authorizer kind and outcome.",
			},
			[]string{"kind", "outcome", "reason"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Number of HTTP requests by method and status.",
			},
			[]string{"method", "status"},
		),
	}

	reg.MustRegister(
		m.JWKSFetchesTotal,
		m.ClaimsCacheLookups,
		m.CustomClaimsCallsTotal,
		m.AuthorizationsTotal,
		m.HTTPRequestsTotal,
	)

	return m
}

// JWKSFetched records a JWKS download.
func (m *Metrics) JWKSFetched(err error) {
	if m == nil {
		return
	}
	m.JWKSFetchesTotal.WithLabelValues(result(err)).Inc()
}

// ClaimsCacheHit records a lookup served from the cache.
func (m *Metrics) ClaimsCacheHit() {
	if m == nil {
		return
	}
	m.ClaimsCacheLookups.WithLabelValues(ResultHit).Inc()
}

// ClaimsCacheMiss records a lookup that required enrichment.
func (m *Metrics) ClaimsCacheMiss() {
	if m == nil {
		return
	}
	m.ClaimsCacheLookups.WithLabelValues(ResultMiss).Inc()
}

// CustomClaimsCalled records a provider invocation.
func (m *Metrics) CustomClaimsCalled(err error) {
	if m == nil {
		return
	}
	m.CustomClaimsCallsTotal.WithLabelValues(result(err)).Inc()
}

// Authorized records an authorization decision. reason is empty on success.
func (m *Metrics) Authorized(kind, outcome, reason string) {
	if m == nil {
		return
	}
	m.AuthorizationsTotal.WithLabelValues(kind, outcome, reason).Inc()
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns the /metrics endpoint for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
