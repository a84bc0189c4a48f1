package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/middleware/ratelimiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Duration) (ratelimiter.Window, error) {
	return ratelimiter.Window{}, errors.New("store down")
}

func (failingStore) Peek(context.Context, string) (ratelimiter.Window, bool, error) {
	return ratelimiter.Window{}, false, errors.New("store down")
}

func (failingStore) Reset(context.Context, string) error { return errors.New("store down") }

func newTestRateLimit() (*RateLimit, time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rl := NewRateLimit(ratelimiter.New(ratelimiter.NewMemoryStore().WithClock(clock)))
	rl.now = clock
	return rl, now
}

func serve(h http.Handler, user *domain.User, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = remoteAddr
	if user != nil {
		req = req.WithContext(WithUser(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var okNext = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRateLimit_TierSelection(t *testing.T) {
	tests := []struct {
		name  string
		user  *domain.User
		limit string
	}{
		{"anonymous", nil, "100"},
		{"authenticated", &domain.User{Id: 1}, "300"},
		{"admin", &domain.User{Id: 2, Admin: true}, "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, _ := newTestRateLimit()
			rr := serve(rl.Tiered()(okNext), tt.user, "192.0.2.1:1000")
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.limit, rr.Header().Get("RateLimit-Limit"))
		})
	}
}

func TestRateLimit_AnonymousExhaustion(t *testing.T) {
	rl, _ := newTestRateLimit()
	h := rl.Tiered()(okNext)

	for i := 1; i <= 100; i++ {
		rr := serve(h, nil, "192.0.2.1:1000")
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i)
	}

	rr := serve(h, nil, "192.0.2.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "900", rr.Header().Get("RateLimit-Reset"))
	assert.Equal(t, "900", rr.Header().Get("Retry-After"))
	assert.Contains(t, rr.Body.String(), "Too Many Requests")

	rr = serve(h, nil, "192.0.2.2:1000")
	assert.Equal(t, http.StatusOK, rr.Code, "other IP unaffected")

	rr = serve(h, &domain.User{Id: 5}, "192.0.2.1:1000")
	assert.Equal(t, http.StatusOK, rr.Code, "authenticated tier keyed by user")
}

func TestRateLimit_Headers(t *testing.T) {
	rl, _ := newTestRateLimit()
	rr := serve(rl.Tiered()(okNext), &domain.User{Id: 1}, "192.0.2.1:1000")

	assert.Equal(t, "300", rr.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "299", rr.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "900", rr.Header().Get("RateLimit-Reset"))
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestRateLimit_Strict(t *testing.T) {
	rl, _ := newTestRateLimit()
	h := rl.Strict()(okNext)

	for i := 0; i < 5; i++ {
		rr := serve(h, &domain.User{Id: 1, Admin: true}, "192.0.2.1:1000")
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := serve(h, &domain.User{Id: 1, Admin: true}, "192.0.2.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "strict applies regardless of auth state")
	assert.Equal(t, "3600", rr.Header().Get("Retry-After"))
}

func TestRateLimit_Errors(t *testing.T) {
	t.Run("store failure", func(t *testing.T) {
		rl := NewRateLimit(ratelimiter.New(failingStore{}))
		rr := serve(rl.Tiered()(okNext), nil, "192.0.2.1:1000")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("identity failure", func(t *testing.T) {
		rl, _ := newTestRateLimit()
		rr := serve(rl.Tiered()(okNext), nil, "garbage")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
