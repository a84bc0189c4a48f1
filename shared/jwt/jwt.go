package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/itchan-dev/ideamarket/shared/domain"
)

// Lifetimes are fixed and measured from issuance.
const (
	AccessTTL  = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("invalid token")
)

type Claims struct {
	IsAdmin bool             `json:"isAdmin,omitempty"`
	Type    domain.TokenType `json:"type"`
	jwt.RegisteredClaims
}

// UserId parses the subject claim.
func (c *Claims) UserId() (domain.UserId, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalid)
	}
	return id, nil
}

type JwtService interface {
	IssueAccess(userId domain.UserId, isAdmin bool) (domain.IssuedToken, error)
	IssueRefresh(userId domain.UserId) (domain.IssuedToken, error)
	Verify(tokenStr string, expected domain.TokenType) (*Claims, error)
}

type Jwt struct {
	accessKey  []byte
	refreshKey []byte
	now        func() time.Time
}

// New creates a token service. Access and refresh tokens are signed with
// different keys so one can never be replayed as the other.
func New(accessKey, refreshKey string) *Jwt {
	return &Jwt{
		accessKey:  []byte(accessKey),
		refreshKey: []byte(refreshKey),
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used in tests.
func (j *Jwt) WithClock(now func() time.Time) *Jwt {
	j.now = now
	return j
}

func (j *Jwt) IssueAccess(userId domain.UserId, isAdmin bool) (domain.IssuedToken, error) {
	return j.issue(userId, isAdmin, domain.AccessToken)
}

func (j *Jwt) IssueRefresh(userId domain.UserId) (domain.IssuedToken, error) {
	return j.issue(userId, false, domain.RefreshToken)
}

func (j *Jwt) issue(userId domain.UserId, isAdmin bool, tokenType domain.TokenType) (domain.IssuedToken, error) {
	key, ttl, err := j.params(tokenType)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	now := j.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		IsAdmin: isAdmin,
		Type:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userId, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("can't sign %s token: %w", tokenType, err)
	}

	// exp is serialized with second precision, keep the same value here
	return domain.IssuedToken{Value: signed, Id: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, expiry and token type. It returns ErrExpired for a
// correctly signed token past its lifetime and ErrInvalid for everything else.
func (j *Jwt) Verify(tokenStr string, expected domain.TokenType) (*Claims, error) {
	key, _, err := j.params(expected)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.Type != expected {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalid, expected, claims.Type)
	}
	if claims.ID == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing jti or iat", ErrInvalid)
	}
	if _, err := claims.UserId(); err != nil {
		return nil, err
	}

	return claims, nil
}

func (j *Jwt) params(tokenType domain.TokenType) ([]byte, time.Duration, error) {
	switch tokenType {
	case domain.AccessToken:
		return j.accessKey, AccessTTL, nil
	case domain.RefreshToken:
		return j.refreshKey, RefreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown token type %q", ErrInvalid, tokenType)
	}
}
