package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected authentication attempts by reason",
		},
		[]string{"reason"},
	)

	rateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter by tier",
		},
		[]string{"tier"},
	)

	tokenRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "token_rotations_total",
			Help:      "Refresh token rotations by result",
		},
		[]string{"result"},
	)

	blacklistSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "blacklist_swept_entries_total",
			Help:      "Expired blacklist entries removed by the sweeper",
		},
	)
)

// Auth failure reasons.
const (
	ReasonMissing     = "missing"
	ReasonExpired     = "expired"
	ReasonInvalid     = "invalid"
	ReasonRevoked     = "revoked"
	ReasonCredentials = "credentials"
	ReasonLocked      = "locked"
	ReasonCSRF        = "csrf"
)

func AuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

func RateLimitRejected(tier string) {
	rateLimitRejectionsTotal.WithLabelValues(tier).Inc()
}

func TokenRotation(result string) {
	tokenRotationsTotal.WithLabelValues(result).Inc()
}

func BlacklistSwept(n int64) {
	if n > 0 {
		blacklistSweptTotal.Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
