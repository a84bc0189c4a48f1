package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/itchan-dev/ideamarket/shared/blacklist"
	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/jwt"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/middleware/metrics"
)

const invalidTokenMessage = "Invalid or expired token"

type Jwt interface {
	IssueAccess(userId domain.UserId, isAdmin bool) (domain.IssuedToken, error)
	IssueRefresh(userId domain.UserId) (domain.IssuedToken, error)
	Verify(tokenStr string, expected domain.TokenType) (*jwt.Claims, error)
}

type Revocations interface {
	Add(ctx context.Context, tokenId domain.TokenId, tokenType domain.TokenType, userId domain.UserId, expiresAt time.Time) error
	Check(ctx context.Context, tokenId domain.TokenId, userId domain.UserId, issuedAt time.Time) error
	RevokeAllForUser(ctx context.Context, userId domain.UserId) error
	SweepExpired(ctx context.Context) (int64, error)
}

type UserLookup interface {
	UserById(ctx context.Context, id domain.UserId) (domain.User, error)
}

// Tokens issues, rotates and revokes token pairs.
type Tokens struct {
	jwt         Jwt
	revocations Revocations
	users       UserLookup
}

func NewTokens(jwt Jwt, revocations Revocations, users UserLookup) *Tokens {
	return &Tokens{jwt: jwt, revocations: revocations, users: users}
}

func (t *Tokens) IssuePair(user domain.User) (domain.TokenPair, error) {
	access, err := t.jwt.IssueAccess(user.Id, user.Admin)
	if err != nil {
		return domain.TokenPair{}, errors.Internal(err)
	}
	refresh, err := t.jwt.IssueRefresh(user.Id)
	if err != nil {
		return domain.TokenPair{}, errors.Internal(err)
	}
	return domain.TokenPair{Access: access, Refresh: refresh}, nil
}

// Rotate exchanges a refresh token for a new pair. The presented token is
// blacklisted before the successor is minted, so of two concurrent rotations
// of the same token only the one whose insert wins gets a pair.
func (t *Tokens) Rotate(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	claims, err := t.jwt.Verify(refreshToken, domain.RefreshToken)
	if err != nil {
		metrics.TokenRotation("invalid")
		return domain.TokenPair{}, errors.Authentication(invalidTokenMessage, err)
	}
	userId, err := claims.UserId()
	if err != nil {
		metrics.TokenRotation("invalid")
		return domain.TokenPair{}, errors.Authentication(invalidTokenMessage, err)
	}

	if err := t.revocations.Check(ctx, claims.ID, userId, claims.IssuedAt.Time); err != nil {
		return domain.TokenPair{}, t.rotationRejected(err, userId)
	}

	user, err := t.users.UserById(ctx, userId)
	if err != nil {
		if errors.IsNotFound(err) {
			metrics.TokenRotation("invalid")
			return domain.TokenPair{}, errors.Authentication(invalidTokenMessage, err)
		}
		return domain.TokenPair{}, err
	}

	if err := t.revocations.Add(ctx, claims.ID, domain.RefreshToken, userId, claims.ExpiresAt.Time); err != nil {
		if stderrors.Is(err, blacklist.ErrDuplicateEntry) {
			err = blacklist.ErrRevoked
		}
		return domain.TokenPair{}, t.rotationRejected(err, userId)
	}

	pair, err := t.IssuePair(user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	metrics.TokenRotation("ok")
	return pair, nil
}

func (t *Tokens) rotationRejected(err error, userId domain.UserId) error {
	if stderrors.Is(err, blacklist.ErrRevoked) {
		metrics.TokenRotation("revoked")
		logger.Log.Info("revoked refresh token presented", "user_id", userId)
		return errors.Authentication(invalidTokenMessage, err)
	}
	return errors.Internal(err)
}

// Revoke blacklists each presented token until its own expiry. Tokens that
// no longer verify and tokens already blacklisted are skipped.
func (t *Tokens) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	presented := []struct {
		value     string
		tokenType domain.TokenType
	}{
		{accessToken, domain.AccessToken},
		{refreshToken, domain.RefreshToken},
	}
	for _, p := range presented {
		if p.value == "" {
			continue
		}
		claims, err := t.jwt.Verify(p.value, p.tokenType)
		if err != nil {
			continue
		}
		userId, err := claims.UserId()
		if err != nil {
			continue
		}
		err = t.revocations.Add(ctx, claims.ID, p.tokenType, userId, claims.ExpiresAt.Time)
		if err != nil && !stderrors.Is(err, blacklist.ErrDuplicateEntry) {
			return errors.Internal(err)
		}
	}
	return nil
}
