package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/itchan-dev/ideamarket/shared/csrf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRF_SafeMethodMintsToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			var ctxToken string
			h := NewCSRF(true).Protect()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxToken = GetCSRFTokenFromContext(r)
			}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))

			require.Equal(t, http.StatusOK, rr.Code)
			cookies := rr.Result().Cookies()
			require.Len(t, cookies, 1)
			c := cookies[0]
			assert.Equal(t, csrf.CookieName, c.Name)
			assert.Len(t, c.Value, csrf.TokenLength*2)
			assert.False(t, c.HttpOnly, "cookie must stay readable by scripts")
			assert.True(t, c.Secure)
			assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
			assert.Equal(t, 86400, c.MaxAge)
			assert.Equal(t, c.Value, rr.Header().Get(csrf.HeaderName))
			assert.Equal(t, c.Value, ctxToken)
		})
	}
}

func TestCSRF_NewTokenPerSafeRequest(t *testing.T) {
	h := NewCSRF(false).Protect()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr1 := httptest.NewRecorder()
	h.ServeHTTP(rr1, httptest.NewRequest("GET", "/", nil))
	rr2 := httptest.NewRecorder()
	h.ServeHTTP(rr2, httptest.NewRequest("GET", "/", nil))

	assert.NotEqual(t, rr1.Header().Get(csrf.HeaderName), rr2.Header().Get(csrf.HeaderName))
}

func TestCSRF_UnsafeMethods(t *testing.T) {
	token, err := csrf.GenerateToken()
	require.NoError(t, err)
	altered := "0" + token[1:]
	if altered == token {
		altered = "1" + token[1:]
	}

	tests := []struct {
		name           string
		strict         bool
		cookie         string
		header         string
		contentType    string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{name: "no tokens", expectedStatus: http.StatusForbidden},
		{name: "cookie only", cookie: token, expectedStatus: http.StatusForbidden},
		{name: "header only", header: token, expectedStatus: http.StatusForbidden},
		{name: "header match", cookie: token, header: token, expectedStatus: http.StatusOK},
		{name: "same length altered", cookie: token, header: altered, expectedStatus: http.StatusForbidden},
		{name: "shorter token", cookie: token, header: token[:8], expectedStatus: http.StatusForbidden},
		{name: "longer token", cookie: token, header: token + token, expectedStatus: http.StatusForbidden},
		{
			name: "json body fallback", cookie: token,
			contentType: "application/json", body: `{"csrf_token":"` + token + `","x":1}`,
			expectedStatus: http.StatusOK, expectedBody: `{"csrf_token":"` + token + `","x":1}`,
		},
		{
			name: "json body wrong token", cookie: token,
			contentType: "application/json", body: `{"csrf_token":"` + altered + `"}`,
			expectedStatus: http.StatusForbidden,
		},
		{
			name: "json body malformed", cookie: token,
			contentType: "application/json", body: `{"csrf_token":`,
			expectedStatus: http.StatusForbidden,
		},
		{
			name: "form body fallback", cookie: token,
			contentType: "application/x-www-form-urlencoded", body: url.Values{"csrf_token": {token}}.Encode(),
			expectedStatus: http.StatusOK,
		},
		{
			name: "header wins over body", cookie: token, header: altered,
			contentType: "application/json", body: `{"csrf_token":"` + token + `"}`,
			expectedStatus: http.StatusForbidden,
		},
		{name: "strict header match", strict: true, cookie: token, header: token, expectedStatus: http.StatusOK},
		{
			name: "strict refuses body", strict: true, cookie: token,
			contentType: "application/json", body: `{"csrf_token":"` + token + `"}`,
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var handlerBody string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				b, _ := io.ReadAll(r.Body)
				handlerBody = string(b)
				w.WriteHeader(http.StatusOK)
			})
			guard := NewCSRF(false)
			mw := guard.Protect()
			if tt.strict {
				mw = guard.Strict()
			}

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrf.HeaderName, tt.header)
			}

			rr := httptest.NewRecorder()
			assert.NotPanics(t, func() { mw(next).ServeHTTP(rr, req) })
			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedBody, handlerBody, "body must be restored for the handler")
			}
		})
	}
}

func TestCSRF_Issue(t *testing.T) {
	guard := NewCSRF(false)

	t.Run("safe method mints", func(t *testing.T) {
		var ctxToken string
		h := guard.Issue()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxToken = GetCSRFTokenFromContext(r)
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, csrf.CookieName, cookies[0].Name)
		assert.Equal(t, cookies[0].Value, rr.Header().Get(csrf.HeaderName))
		assert.Equal(t, cookies[0].Value, ctxToken)
	})

	t.Run("unsafe method passes unchecked", func(t *testing.T) {
		called := false
		h := guard.Issue()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusUnauthorized)
		}))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/blacklist/sweep", nil))

		assert.True(t, called)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("protect below reuses the issued token", func(t *testing.T) {
		var ctxToken string
		h := guard.Issue()(guard.Protect()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxToken = GetCSRFTokenFromContext(r)
		})))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1, "one token per response")
		assert.Equal(t, cookies[0].Value, ctxToken)
		assert.Equal(t, cookies[0].Value, rr.Header().Get(csrf.HeaderName))
	})
}
