package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/itchan-dev/ideamarket/shared/csrf"
	internal_errors "github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/middleware/metrics"
	"github.com/itchan-dev/ideamarket/shared/utils"
)

// maxCSRFBodyPeek bounds how much of a JSON body is read to find the token.
const maxCSRFBodyPeek = 1 << 20

type csrfContextKey string

const csrfTokenContextKey csrfContextKey = "csrf_token"

// CSRF implements double-submit protection.
type CSRF struct {
	secureCookies bool
}

func NewCSRF(secureCookies bool) *CSRF {
	return &CSRF{secureCookies: secureCookies}
}

// Issue mints a token on safe methods and lets every other request through
// unchecked. Mounted on the whole router so any GET hands the client a cookie.
func (c *CSRF) Issue() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				c.mint(w, r, next)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect mints a token on safe methods and checks it on unsafe ones.
// The request token is read from the X-CSRF-Token header, falling back to
// the csrf_token body field.
func (c *CSRF) Protect() func(http.Handler) http.Handler {
	return c.middleware(true)
}

// Strict only accepts the header. Used for admin routes.
func (c *CSRF) Strict() func(http.Handler) http.Handler {
	return c.middleware(false)
}

func (c *CSRF) middleware(allowBody bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				// Issue further up already minted one for this request.
				if GetCSRFTokenFromContext(r) != "" {
					next.ServeHTTP(w, r)
					return
				}
				c.mint(w, r, next)
				return
			}

			cookie, err := r.Cookie(csrf.CookieName)
			if err != nil || cookie.Value == "" {
				reject(w, r, "CSRF token missing")
				return
			}

			requestToken := r.Header.Get(csrf.HeaderName)
			if requestToken == "" && allowBody {
				requestToken = tokenFromBody(r)
			}
			if requestToken == "" {
				reject(w, r, "CSRF token missing")
				return
			}

			if !csrf.ValidateToken(cookie.Value, requestToken) {
				reject(w, r, "Invalid CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (c *CSRF) mint(w http.ResponseWriter, r *http.Request, next http.Handler) {
	token, err := csrf.GenerateToken()
	if err != nil {
		utils.WriteErrorAndStatusCode(w, internal_errors.Internal(err))
		return
	}
	c.setCookie(w, token)
	w.Header().Set(csrf.HeaderName, token)
	ctx := context.WithValue(r.Context(), csrfTokenContextKey, token)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (c *CSRF) setCookie(w http.ResponseWriter, token string) {
	// Readable by client script so it can be echoed back in the header.
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   c.secureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrf.TokenTTL.Seconds()),
	})
}

func reject(w http.ResponseWriter, r *http.Request, message string) {
	metrics.AuthFailure(metrics.ReasonCSRF)
	logger.Log.Warn("CSRF validation failed", "path", r.URL.Path, "method", r.Method, "reason", message)
	utils.WriteErrorAndStatusCode(w, internal_errors.Authorization(message))
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// tokenFromBody reads csrf_token from a form or JSON body and leaves the
// body readable for the handler.
func tokenFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		return r.PostFormValue(csrf.FormField)
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return ""
		}
		return r.PostFormValue(csrf.FormField)
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		peeked, err := io.ReadAll(io.LimitReader(r.Body, maxCSRFBodyPeek))
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(peeked), r.Body), r.Body}
		if err != nil {
			return ""
		}
		var data struct {
			Token string `json:"csrf_token"`
		}
		if err := json.Unmarshal(peeked, &data); err != nil {
			return ""
		}
		return data.Token
	}
	return ""
}

// GetCSRFTokenFromContext retrieves the token minted for this request.
func GetCSRFTokenFromContext(r *http.Request) string {
	token, _ := r.Context().Value(csrfTokenContextKey).(string)
	return token
}
