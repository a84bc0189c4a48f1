package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/itchan-dev/ideamarket/shared/domain"
	internal_errors "github.com/itchan-dev/ideamarket/shared/errors"
	sharedpg "github.com/itchan-dev/ideamarket/shared/storage/pg"
	"github.com/lib/pq"
)

const usersEmailConstraint = "users_email_key"

// =========================================================================
// Public Methods (satisfy the service.UserStorage interface)
// =========================================================================

// SaveUser inserts a new user. A taken email yields a 409 error.
func (s *Storage) SaveUser(ctx context.Context, user domain.User) (domain.UserId, error) {
	var id domain.UserId
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.saveUser(ctx, tx, user)
		return err
	})
	return id, err
}

func (s *Storage) UserByEmail(ctx context.Context, email domain.Email) (domain.User, error) {
	return s.userBy(ctx, s.db, "email", email)
}

func (s *Storage) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	return s.userBy(ctx, s.db, "id", id)
}

// UpdatePasswordHash replaces the hash and clears the reset flag.
func (s *Storage) UpdatePasswordHash(ctx context.Context, id domain.UserId, hash string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updatePasswordHash(ctx, tx, id, hash)
	})
}

// MarkPasswordResetRequired flags the given accounts and returns how many
// rows changed.
func (s *Storage) MarkPasswordResetRequired(ctx context.Context, ids []domain.UserId) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.markPasswordResetRequired(ctx, tx, ids)
		return err
	})
	return n, err
}

// Users returns every account ordered by id. Used by maintenance commands.
func (s *Storage) Users(ctx context.Context) ([]domain.User, error) {
	return s.users(ctx, s.db)
}

// =========================================================================
// Internal Methods (Core Database Logic)
// These methods accept a Querier and are transaction-agnostic.
// =========================================================================

func (s *Storage) saveUser(ctx context.Context, q Querier, user domain.User) (domain.UserId, error) {
	var id domain.UserId
	err := q.QueryRowContext(ctx,
		`INSERT INTO users(email, password_hash, is_admin, password_reset_required)
		 VALUES($1, $2, $3, $4) RETURNING id`,
		user.Email, user.PassHash, user.Admin, user.PasswordResetRequired).Scan(&id)
	if err != nil {
		if sharedpg.IsUniqueViolation(err, usersEmailConstraint) {
			return 0, internal_errors.Conflict("Email already registered")
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}
	return id, nil
}

// column is never user input.
func (s *Storage) userBy(ctx context.Context, q Querier, column string, value any) (domain.User, error) {
	var user domain.User
	err := q.QueryRowContext(ctx,
		`SELECT id, email, password_hash, is_admin, password_reset_required, created_at
		 FROM users WHERE `+column+` = $1`, value).
		Scan(&user.Id, &user.Email, &user.PassHash, &user.Admin, &user.PasswordResetRequired, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, internal_errors.NotFound("User not found")
		}
		return domain.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *Storage) updatePasswordHash(ctx context.Context, q Querier, id domain.UserId, hash string) error {
	result, err := q.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, password_reset_required = FALSE WHERE id = $2", hash, id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows for password update: %w", err)
	}
	if rowsAffected == 0 {
		return internal_errors.NotFound("User not found for password update")
	}
	return nil
}

func (s *Storage) markPasswordResetRequired(ctx context.Context, q Querier, ids []domain.UserId) (int64, error) {
	result, err := q.ExecContext(ctx,
		"UPDATE users SET password_reset_required = TRUE WHERE id = ANY($1) AND NOT password_reset_required",
		pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to flag password reset: %w", err)
	}
	return result.RowsAffected()
}

func (s *Storage) users(ctx context.Context, q Querier) ([]domain.User, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, email, password_hash, is_admin, password_reset_required, created_at
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Id, &u.Email, &u.PassHash, &u.Admin, &u.PasswordResetRequired, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}
