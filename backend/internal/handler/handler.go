package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/itchan-dev/ideamarket/backend/internal/service"
	"github.com/itchan-dev/ideamarket/shared/config"
	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/jwt"
	mw "github.com/itchan-dev/ideamarket/shared/middleware"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	auth   service.AuthService
	cfg    *config.Config
	health HealthChecker
}

func New(auth service.AuthService, cfg *config.Config, health HealthChecker) *Handler {
	return &Handler{auth: auth, cfg: cfg, health: health}
}

func (h *Handler) setTokenCookies(w http.ResponseWriter, pair domain.TokenPair) {
	h.setCookie(w, mw.AccessTokenCookie, pair.Access.Value, jwt.AccessTTL)
	h.setCookie(w, mw.RefreshTokenCookie, pair.Refresh.Value, jwt.RefreshTTL)
}

func (h *Handler) clearTokenCookies(w http.ResponseWriter) {
	h.setCookie(w, mw.AccessTokenCookie, "", -1)
	h.setCookie(w, mw.RefreshTokenCookie, "", -1)
}

// setCookie with a negative ttl deletes the cookie.
func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Public.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func refreshTokenFromCookie(r *http.Request) string {
	if c, err := r.Cookie(mw.RefreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
