package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/itchan-dev/ideamarket/shared/config"
	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/middleware/ratelimiter"
)

const (
	lockoutFailPrefix = "lockout:fail:"
	lockoutLockPrefix = "lockout:lock:"
)

// Lockout counts failed logins per email in the rate limiter store and locks
// the account once the threshold is reached inside the window.
type Lockout struct {
	store ratelimiter.Store
	cfg   config.Lockout
	now   func() time.Time
}

func NewLockout(store ratelimiter.Store, cfg config.Lockout) *Lockout {
	return &Lockout{store: store, cfg: cfg, now: time.Now}
}

// Locked returns a 423 error while the account is locked.
func (l *Lockout) Locked(ctx context.Context, email domain.Email) error {
	w, ok, err := l.store.Peek(ctx, lockoutLockPrefix+email)
	if err != nil {
		return fmt.Errorf("lockout lookup: %w", err)
	}
	if !ok {
		return nil
	}
	return lockedError(w.ResetAt.Sub(l.now()))
}

// Fail records a failed attempt. The attempt that reaches the threshold
// already returns the 423 error.
func (l *Lockout) Fail(ctx context.Context, email domain.Email) error {
	w, err := l.store.Hit(ctx, lockoutFailPrefix+email, l.cfg.Window)
	if err != nil {
		return fmt.Errorf("lockout count: %w", err)
	}
	if w.Count < int64(l.cfg.Threshold) {
		return nil
	}

	lock, err := l.store.Hit(ctx, lockoutLockPrefix+email, l.cfg.Duration)
	if err != nil {
		return fmt.Errorf("lockout lock: %w", err)
	}
	if err := l.store.Reset(ctx, lockoutFailPrefix+email); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	logger.Log.Warn("account locked after failed logins", "email", email, "failures", w.Count, "until", lock.ResetAt)
	return lockedError(lock.ResetAt.Sub(l.now()))
}

// Succeed clears the failure counter.
func (l *Lockout) Succeed(ctx context.Context, email domain.Email) error {
	if err := l.store.Reset(ctx, lockoutFailPrefix+email); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}

func lockedError(remaining time.Duration) error {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return errors.Locked(fmt.Sprintf("Account locked due to too many failed login attempts. Try again in %d minutes", minutes))
}
