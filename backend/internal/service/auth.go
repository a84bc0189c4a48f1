package service

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/itchan-dev/ideamarket/shared/credential"
	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/middleware/metrics"
)

const invalidCredentialsMessage = "Invalid email or password"

type AuthService interface {
	Register(ctx context.Context, creds domain.Credentials) (domain.User, domain.TokenPair, error)
	Login(ctx context.Context, creds domain.Credentials) (domain.User, domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Me(ctx context.Context, userId domain.UserId) (domain.User, error)

	// Admin operations
	RevokeUserTokens(ctx context.Context, userId domain.UserId) error
	SweepBlacklist(ctx context.Context) (int64, error)
}

type UserStorage interface {
	SaveUser(ctx context.Context, user domain.User) (domain.UserId, error)
	UserByEmail(ctx context.Context, email domain.Email) (domain.User, error)
	UserById(ctx context.Context, id domain.UserId) (domain.User, error)
	MarkPasswordResetRequired(ctx context.Context, ids []domain.UserId) (int64, error)
	// UpdatePasswordHash also clears the reset-required flag.
	UpdatePasswordHash(ctx context.Context, id domain.UserId, hash string) error
	Users(ctx context.Context) ([]domain.User, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) (needsReset bool, err error)
	BurnTime(password string)
}

type Auth struct {
	storage     UserStorage
	tokens      *Tokens
	revocations Revocations
	hasher      PasswordHasher
	lockout     *Lockout
}

func NewAuth(storage UserStorage, tokens *Tokens, revocations Revocations, hasher PasswordHasher, lockout *Lockout) *Auth {
	return &Auth{
		storage:     storage,
		tokens:      tokens,
		revocations: revocations,
		hasher:      hasher,
		lockout:     lockout,
	}
}

func NormalizeEmail(email domain.Email) domain.Email {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a regular account and signs it in. Admin accounts are
// only created from the CLI.
func (a *Auth) Register(ctx context.Context, creds domain.Credentials) (domain.User, domain.TokenPair, error) {
	user, err := a.createUser(ctx, creds, false)
	if err != nil {
		return domain.User{}, domain.TokenPair{}, err
	}
	pair, err := a.tokens.IssuePair(user)
	if err != nil {
		return domain.User{}, domain.TokenPair{}, err
	}
	logger.Log.Info("user registered", "user_id", user.Id)
	return user, pair, nil
}

// CreateAdmin creates an account with admin rights.
func (a *Auth) CreateAdmin(ctx context.Context, creds domain.Credentials) (domain.User, error) {
	return a.createUser(ctx, creds, true)
}

func (a *Auth) createUser(ctx context.Context, creds domain.Credentials, admin bool) (domain.User, error) {
	email := NormalizeEmail(creds.Email)
	if email == "" {
		return domain.User{}, errors.Validation("Email and password are required")
	}
	if err := ValidatePassword(creds.Password); err != nil {
		return domain.User{}, err
	}

	passHash, err := a.hasher.Hash(creds.Password)
	if err != nil {
		logger.Log.Error("failed to hash password", "error", err)
		return domain.User{}, errors.Internal(err)
	}
	id, err := a.storage.SaveUser(ctx, domain.User{Email: email, PassHash: passHash, Admin: admin})
	if err != nil {
		return domain.User{}, err
	}
	return a.storage.UserById(ctx, id)
}

// Login checks credentials and issues a token pair. Unknown emails and wrong
// passwords get the same answer and count towards the lockout alike.
func (a *Auth) Login(ctx context.Context, creds domain.Credentials) (domain.User, domain.TokenPair, error) {
	email := NormalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return domain.User{}, domain.TokenPair{}, errors.Validation("Email and password are required")
	}

	if err := a.lockout.Locked(ctx, email); err != nil {
		if errors.StatusCode(err) != http.StatusLocked {
			return domain.User{}, domain.TokenPair{}, errors.Internal(err)
		}
		metrics.AuthFailure(metrics.ReasonLocked)
		return domain.User{}, domain.TokenPair{}, err
	}

	user, err := a.storage.UserByEmail(ctx, email)
	if err != nil {
		if !errors.IsNotFound(err) {
			return domain.User{}, domain.TokenPair{}, err
		}
		a.hasher.BurnTime(creds.Password)
		return domain.User{}, domain.TokenPair{}, a.loginFailed(ctx, email, err)
	}

	needsReset, err := a.hasher.Verify(user.PassHash, creds.Password)
	if err != nil {
		if stderrors.Is(err, credential.ErrMismatch) || stderrors.Is(err, credential.ErrUnknownScheme) {
			return domain.User{}, domain.TokenPair{}, a.loginFailed(ctx, email, err)
		}
		return domain.User{}, domain.TokenPair{}, errors.Internal(err)
	}

	if err := a.lockout.Succeed(ctx, email); err != nil {
		return domain.User{}, domain.TokenPair{}, errors.Internal(err)
	}

	if needsReset || user.PasswordResetRequired {
		if !user.PasswordResetRequired {
			if _, err := a.storage.MarkPasswordResetRequired(ctx, []domain.UserId{user.Id}); err != nil {
				logger.Log.Error("failed to flag password reset", "user_id", user.Id, "error", err)
			}
		}
		logger.Log.Info("login refused until password reset", "user_id", user.Id)
		return domain.User{}, domain.TokenPair{}, errors.Authorization("Password reset required")
	}

	pair, err := a.tokens.IssuePair(user)
	if err != nil {
		return domain.User{}, domain.TokenPair{}, err
	}
	return user, pair, nil
}

func (a *Auth) loginFailed(ctx context.Context, email domain.Email, cause error) error {
	if err := a.lockout.Fail(ctx, email); err != nil {
		if errors.StatusCode(err) == http.StatusLocked {
			metrics.AuthFailure(metrics.ReasonLocked)
			return err
		}
		return errors.Internal(err)
	}
	metrics.AuthFailure(metrics.ReasonCredentials)
	return errors.Authentication(invalidCredentialsMessage, cause)
}

func (a *Auth) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	if refreshToken == "" {
		metrics.AuthFailure(metrics.ReasonMissing)
		return domain.TokenPair{}, errors.Authentication("Refresh token not found", nil)
	}
	return a.tokens.Rotate(ctx, refreshToken)
}

func (a *Auth) Logout(ctx context.Context, accessToken, refreshToken string) error {
	return a.tokens.Revoke(ctx, accessToken, refreshToken)
}

func (a *Auth) Me(ctx context.Context, userId domain.UserId) (domain.User, error) {
	return a.storage.UserById(ctx, userId)
}

// RevokeUserTokens invalidates every token the user currently holds.
func (a *Auth) RevokeUserTokens(ctx context.Context, userId domain.UserId) error {
	if _, err := a.storage.UserById(ctx, userId); err != nil {
		return err
	}
	if err := a.revocations.RevokeAllForUser(ctx, userId); err != nil {
		return errors.Internal(err)
	}
	return nil
}

func (a *Auth) SweepBlacklist(ctx context.Context) (int64, error) {
	removed, err := a.revocations.SweepExpired(ctx)
	if err != nil {
		return 0, errors.Internal(err)
	}
	return removed, nil
}

// ResetPassword sets a new password for the account, which clears a pending
// reset requirement, and revokes every token issued to it so far.
func (a *Auth) ResetPassword(ctx context.Context, email domain.Email, newPassword domain.Password) (domain.User, error) {
	email = NormalizeEmail(email)
	if err := ValidatePassword(newPassword); err != nil {
		return domain.User{}, err
	}
	user, err := a.storage.UserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, err
	}

	passHash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return domain.User{}, errors.Internal(err)
	}
	if err := a.storage.UpdatePasswordHash(ctx, user.Id, passHash); err != nil {
		return domain.User{}, err
	}
	if err := a.revocations.RevokeAllForUser(ctx, user.Id); err != nil {
		return domain.User{}, errors.Internal(err)
	}
	if err := a.lockout.Succeed(ctx, email); err != nil {
		logger.Log.Warn("failed to clear lockout counter after reset", "user_id", user.Id, "error", err)
	}
	logger.Log.Info("password reset", "user_id", user.Id)
	return a.storage.UserById(ctx, user.Id)
}

// AuditPasswords finds accounts still stored with a legacy hash and, unless
// dryRun is set, flags them so their next login requires a reset.
func (a *Auth) AuditPasswords(ctx context.Context, dryRun bool) ([]domain.User, int64, error) {
	users, err := a.storage.Users(ctx)
	if err != nil {
		return nil, 0, err
	}
	var legacy []domain.User
	var ids []domain.UserId
	for _, u := range users {
		if credential.IsLegacy(u.PassHash) && !u.PasswordResetRequired {
			legacy = append(legacy, u)
			ids = append(ids, u.Id)
		}
	}
	if dryRun || len(ids) == 0 {
		return legacy, 0, nil
	}
	flagged, err := a.storage.MarkPasswordResetRequired(ctx, ids)
	if err != nil {
		return legacy, 0, err
	}
	return legacy, flagged, nil
}
