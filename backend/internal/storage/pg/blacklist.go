package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/itchan-dev/ideamarket/shared/blacklist"
	"github.com/itchan-dev/ideamarket/shared/domain"
	sharedpg "github.com/itchan-dev/ideamarket/shared/storage/pg"
)

const blacklistIdentifierConstraint = "token_blacklist_token_identifier_key"

var _ blacklist.Storage = (*Storage)(nil)

// =========================================================================
// Public Methods (satisfy the blacklist.Storage interface)
// =========================================================================

// InsertRevokedToken commits before returning, so a revoked token stays
// revoked across a crash. The unique constraint decides racing inserts.
func (s *Storage) InsertRevokedToken(ctx context.Context, entry domain.BlacklistEntry) error {
	return s.insertRevokedToken(ctx, s.db, entry)
}

func (s *Storage) IsTokenRevoked(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	return s.isTokenRevoked(ctx, s.db, tokenHash, now)
}

func (s *Storage) RevokeUserTokens(ctx context.Context, userId domain.UserId, tokenHash string, revokedAt, expiresAt time.Time) error {
	return s.revokeUserTokens(ctx, s.db, userId, tokenHash, revokedAt, expiresAt)
}

func (s *Storage) UserTokensRevokedAt(ctx context.Context, userId domain.UserId, now time.Time) (time.Time, bool, error) {
	return s.userTokensRevokedAt(ctx, s.db, userId, now)
}

func (s *Storage) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteExpired(ctx, s.db, now)
}

// =========================================================================
// Internal Methods (Core Database Logic)
// =========================================================================

func (s *Storage) insertRevokedToken(ctx context.Context, q Querier, e domain.BlacklistEntry) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO token_blacklist(token_identifier, token_type, user_id, expires_at, created_at)
		 VALUES($1, $2, $3, $4, $5)`,
		e.TokenHash, string(e.TokenType), e.UserId, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		if sharedpg.IsUniqueViolation(err, blacklistIdentifierConstraint) {
			return blacklist.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert blacklist entry: %w", err)
	}
	return nil
}

func (s *Storage) isTokenRevoked(ctx context.Context, q Querier, tokenHash string, now time.Time) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM token_blacklist
			WHERE token_identifier = $1 AND token_type <> 'user' AND expires_at > $2)`,
		tokenHash, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query blacklist: %w", err)
	}
	return exists, nil
}

func (s *Storage) revokeUserTokens(ctx context.Context, q Querier, userId domain.UserId, tokenHash string, revokedAt, expiresAt time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO token_blacklist(token_identifier, token_type, user_id, expires_at, created_at)
		 VALUES($1, 'user', $2, $3, $4)
		 ON CONFLICT (token_identifier)
		 DO UPDATE SET created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		tokenHash, userId, expiresAt, revokedAt)
	if err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

func (s *Storage) userTokensRevokedAt(ctx context.Context, q Querier, userId domain.UserId, now time.Time) (time.Time, bool, error) {
	var revokedAt time.Time
	err := q.QueryRowContext(ctx,
		`SELECT created_at FROM token_blacklist
		 WHERE user_id = $1 AND token_type = 'user' AND expires_at > $2`,
		userId, now).Scan(&revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to query user revocation: %w", err)
	}
	return revokedAt, true, nil
}

func (s *Storage) deleteExpired(ctx context.Context, q Querier, now time.Time) (int64, error) {
	result, err := q.ExecContext(ctx, "DELETE FROM token_blacklist WHERE expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired blacklist entries: %w", err)
	}
	return result.RowsAffected()
}
