package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	internal_errors "github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/middleware/metrics"
	"github.com/itchan-dev/ideamarket/shared/middleware/ratelimiter"
	"github.com/itchan-dev/ideamarket/shared/utils"
)

type RateLimit struct {
	limiter *ratelimiter.Limiter
	now     func() time.Time
}

func NewRateLimit(limiter *ratelimiter.Limiter) *RateLimit {
	return &RateLimit{limiter: limiter, now: time.Now}
}

// Tiered picks the tier from the identity OptionalAuth placed in the context.
func (rl *RateLimit) Tiered() func(http.Handler) http.Handler {
	return rl.Limit(func(r *http.Request) (ratelimiter.Tier, string, error) {
		user := GetUserFromContext(r)
		switch {
		case user == nil:
			ip, err := utils.GetIP(r)
			return ratelimiter.Anonymous, ip, err
		case user.Admin:
			return ratelimiter.Admin, userKey(user.Id), nil
		default:
			return ratelimiter.Authenticated, userKey(user.Id), nil
		}
	})
}

// Strict applies the strict tier keyed by client IP.
func (rl *RateLimit) Strict() func(http.Handler) http.Handler {
	return rl.Limit(func(r *http.Request) (ratelimiter.Tier, string, error) {
		ip, err := utils.GetIP(r)
		return ratelimiter.Strict, ip, err
	})
}

// Limit counts every request against the tier and client key chosen by pick.
func (rl *RateLimit) Limit(pick func(r *http.Request) (ratelimiter.Tier, string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier, clientKey, err := pick(r)
			if err != nil {
				utils.WriteErrorAndStatusCode(w, internal_errors.Internal(err))
				return
			}

			res, err := rl.limiter.Allow(r.Context(), tier, clientKey)
			if err != nil {
				utils.WriteErrorAndStatusCode(w, internal_errors.Internal(err))
				return
			}

			resetIn := secondsUntil(rl.now(), res.ResetAt)
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			h.Set("RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			h.Set("RateLimit-Reset", strconv.FormatInt(resetIn, 10))

			if !res.Allowed {
				metrics.RateLimitRejected(tier.Name)
				logger.Log.Warn("rate limit exceeded", "tier", tier.Name, "client", clientKey, "path", r.URL.Path)
				h.Set("Retry-After", strconv.FormatInt(resetIn, 10))
				utils.WriteErrorAndStatusCode(w, internal_errors.RateLimited("Too many requests, please try again later"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func userKey(id int64) string {
	return fmt.Sprintf("user_%d", id)
}

func secondsUntil(now, t time.Time) int64 {
	d := t.Sub(now).Seconds()
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d))
}
