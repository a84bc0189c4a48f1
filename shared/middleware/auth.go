package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/itchan-dev/ideamarket/shared/blacklist"
	"github.com/itchan-dev/ideamarket/shared/domain"
	internal_errors "github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/jwt"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/middleware/metrics"
	"github.com/itchan-dev/ideamarket/shared/utils"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

type TokenVerifier interface {
	Verify(tokenStr string, expected domain.TokenType) (*jwt.Claims, error)
}

// RevocationChecker returns blacklist.ErrRevoked for revoked tokens.
type RevocationChecker interface {
	Check(ctx context.Context, tokenId domain.TokenId, userId domain.UserId, issuedAt time.Time) error
}

// Key to store the user claims in the request context
type key int

const UserClaimsKey key = 0

// Auth holds dependencies for authentication middleware
type Auth struct {
	verifier    TokenVerifier
	revocations RevocationChecker
}

func NewAuth(verifier TokenVerifier, revocations RevocationChecker) *Auth {
	return &Auth{verifier: verifier, revocations: revocations}
}

var errNoToken = errors.New("no token")

// NeedAuth rejects the request with 401 unless it carries a valid access token.
func (a *Auth) NeedAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// already authenticated by OptionalAuth
			if GetUserFromContext(r) != nil {
				next.ServeHTTP(w, r)
				return
			}

			user, reason, err := a.authenticate(r)
			if err != nil {
				metrics.AuthFailure(reason)
				switch reason {
				case metrics.ReasonMissing:
					utils.WriteErrorAndStatusCode(w, internal_errors.Authentication("Authentication required", err))
				case "":
					utils.WriteErrorAndStatusCode(w, internal_errors.Internal(err))
				default:
					logger.Log.Info("rejected access token", "reason", reason, "path", r.URL.Path, "error", err)
					utils.WriteErrorAndStatusCode(w, internal_errors.Authentication("Invalid or expired token", err))
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// OptionalAuth populates the user context when the token is valid and
// otherwise lets the request through as anonymous.
func (a *Auth) OptionalAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, reason, err := a.authenticate(r)
			if err != nil {
				if reason == "" {
					logger.Log.Warn("optional auth lookup failed", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireAdmin must run after NeedAuth.
func (a *Auth) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				utils.WriteErrorAndStatusCode(w, internal_errors.Authentication("Authentication required", nil))
				return
			}
			if !user.Admin {
				logger.Log.Warn("non-admin on admin route", "user_id", user.Id, "path", r.URL.Path)
				utils.WriteErrorAndStatusCode(w, internal_errors.Authorization("Admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Auth) AdminOnly() func(http.Handler) http.Handler {
	need, admin := a.NeedAuth(), a.RequireAdmin()
	return func(next http.Handler) http.Handler {
		return need(admin(next))
	}
}

// authenticate returns the failure reason along with the error. An empty
// reason with a non-nil error means the revocation store failed.
func (a *Auth) authenticate(r *http.Request) (*domain.User, string, error) {
	tokenString := ExtractAccessToken(r)
	if tokenString == "" {
		return nil, metrics.ReasonMissing, errNoToken
	}

	claims, err := a.verifier.Verify(tokenString, domain.AccessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, metrics.ReasonExpired, err
		}
		return nil, metrics.ReasonInvalid, err
	}
	userId, err := claims.UserId()
	if err != nil {
		return nil, metrics.ReasonInvalid, err
	}

	if err := a.revocations.Check(r.Context(), claims.ID, userId, claims.IssuedAt.Time); err != nil {
		if errors.Is(err, blacklist.ErrRevoked) {
			return nil, metrics.ReasonRevoked, err
		}
		return nil, "", err
	}

	return &domain.User{Id: userId, Admin: claims.IsAdmin}, "", nil
}

// ExtractAccessToken reads the bearer header first and falls back to the
// access cookie.
func ExtractAccessToken(r *http.Request) string {
	if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, UserClaimsKey, user)
}

// GetUserFromContext retrieves the user from the context
func GetUserFromContext(r *http.Request) *domain.User {
	user, ok := r.Context().Value(UserClaimsKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}
