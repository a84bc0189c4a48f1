package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/users/42", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t)
	assert.Contains(t, body, `ideamarket_http_requests_total{method="GET",route="/v1/users/{id}",status="418"}`)
	assert.NotContains(t, body, `route="/v1/users/42"`)
}

func TestMiddlewareStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/body-only", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/twice", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.WriteHeader(http.StatusInternalServerError)
	})

	tests := []struct {
		name   string
		path   string
		code   int
		series string
	}{
		{
			name:   "write without header is 200",
			path:   "/v1/body-only",
			code:   http.StatusOK,
			series: `ideamarket_http_requests_total{method="GET",route="/v1/body-only",status="200"}`,
		},
		{
			name:   "first header wins",
			path:   "/v1/twice",
			code:   http.StatusAccepted,
			series: `ideamarket_http_requests_total{method="GET",route="/v1/twice",status="202"}`,
		},
		{
			name:   "unmatched path collapses to one label",
			path:   "/wp-admin/setup.php",
			code:   http.StatusNotFound,
			series: `ideamarket_http_requests_total{method="GET",route="unmatched",status="404"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.code, rr.Code)
			assert.Contains(t, scrape(t), tt.series)
		})
	}
	assert.NotContains(t, scrape(t), `route="/wp-admin/setup.php"`)
}

func TestAuthCounters(t *testing.T) {
	AuthFailure(ReasonRevoked)
	RateLimitRejected("strict")
	TokenRotation("ok")
	BlacklistSwept(3)
	BlacklistSwept(0)

	body := scrape(t)
	assert.Contains(t, body, `ideamarket_auth_failures_total{reason="revoked"}`)
	assert.Contains(t, body, `ideamarket_rate_limit_rejections_total{tier="strict"}`)
	assert.Contains(t, body, `ideamarket_token_rotations_total{result="ok"}`)
	assert.Contains(t, body, "ideamarket_blacklist_swept_entries_total 3")
}
