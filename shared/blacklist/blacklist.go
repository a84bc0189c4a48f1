package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/jwt"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/middleware/metrics"
)

var (
	// ErrDuplicateEntry is returned when the token id is already blacklisted.
	ErrDuplicateEntry = errors.New("token already blacklisted")
	ErrRevoked        = errors.New("token revoked")
)

// Storage is the durable side of the blacklist. Implementations must enforce
// uniqueness of TokenHash at write time and return ErrDuplicateEntry.
type Storage interface {
	InsertRevokedToken(ctx context.Context, entry domain.BlacklistEntry) error
	IsTokenRevoked(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	// RevokeUserTokens upserts the per-user cutoff row.
	RevokeUserTokens(ctx context.Context, userId domain.UserId, tokenHash string, revokedAt, expiresAt time.Time) error
	UserTokensRevokedAt(ctx context.Context, userId domain.UserId, now time.Time) (time.Time, bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Blacklist struct {
	storage Storage
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(storage Storage) *Blacklist {
	return &Blacklist{storage: storage, now: time.Now}
}

// WithClock replaces the time source. Used in tests.
func (b *Blacklist) WithClock(now func() time.Time) *Blacklist {
	b.now = now
	return b
}

// HashIdentifier returns the value stored in place of a raw token id.
func HashIdentifier(tokenId domain.TokenId) string {
	sum := sha256.Sum256([]byte(tokenId))
	return hex.EncodeToString(sum[:])
}

func userCutoffIdentifier(userId domain.UserId) string {
	return HashIdentifier("user:" + strconv.FormatInt(userId, 10))
}

// Add blacklists a token until expiresAt. A second Add of the same id fails
// with ErrDuplicateEntry.
func (b *Blacklist) Add(ctx context.Context, tokenId domain.TokenId, tokenType domain.TokenType, userId domain.UserId, expiresAt time.Time) error {
	if tokenId == "" {
		return fmt.Errorf("empty token id")
	}
	entry := domain.BlacklistEntry{
		TokenHash: HashIdentifier(tokenId),
		TokenType: tokenType,
		UserId:    userId,
		ExpiresAt: expiresAt,
		CreatedAt: b.now(),
	}
	if err := b.storage.InsertRevokedToken(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("blacklist insert: %w", err)
	}
	return nil
}

func (b *Blacklist) IsRevoked(ctx context.Context, tokenId domain.TokenId) (bool, error) {
	revoked, err := b.storage.IsTokenRevoked(ctx, HashIdentifier(tokenId), b.now())
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return revoked, nil
}

// RevokeAllForUser rejects every token of the user issued up to now. The
// cutoff lives as long as the longest token could.
func (b *Blacklist) RevokeAllForUser(ctx context.Context, userId domain.UserId) error {
	now := b.now()
	if err := b.storage.RevokeUserTokens(ctx, userId, userCutoffIdentifier(userId), now, now.Add(jwt.RefreshTTL)); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	logger.Log.Info("revoked all tokens for user", "user_id", userId)
	return nil
}

// RevokedBefore reports whether a token issued at issuedAt is covered by a
// user-wide revocation. iat has second precision, so a token minted in the
// same second as the revocation counts as revoked.
func (b *Blacklist) RevokedBefore(ctx context.Context, userId domain.UserId, issuedAt time.Time) (bool, error) {
	cutoff, ok, err := b.storage.UserTokensRevokedAt(ctx, userId, b.now())
	if err != nil {
		return false, fmt.Errorf("user cutoff lookup: %w", err)
	}
	if !ok {
		return false, nil
	}
	return !issuedAt.After(cutoff.Truncate(time.Second)), nil
}

// Check combines the per-token and per-user lookups.
func (b *Blacklist) Check(ctx context.Context, tokenId domain.TokenId, userId domain.UserId, issuedAt time.Time) error {
	revoked, err := b.IsRevoked(ctx, tokenId)
	if err != nil {
		return err
	}
	if revoked {
		return ErrRevoked
	}
	revoked, err = b.RevokedBefore(ctx, userId, issuedAt)
	if err != nil {
		return err
	}
	if revoked {
		return ErrRevoked
	}
	return nil
}

func (b *Blacklist) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := b.storage.DeleteExpired(ctx, b.now())
	if err != nil {
		return 0, fmt.Errorf("blacklist sweep: %w", err)
	}
	metrics.BlacklistSwept(removed)
	return removed, nil
}
