package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Tier is a named quota: at most Max requests per Window for one client.
type Tier struct {
	Name   string
	Window time.Duration
	Max    int64
}

var (
	Anonymous     = Tier{Name: "anonymous", Window: 15 * time.Minute, Max: 100}
	Authenticated = Tier{Name: "authenticated", Window: 15 * time.Minute, Max: 300}
	Admin         = Tier{Name: "admin", Window: 15 * time.Minute, Max: 1000}
	// Strict guards credential endpoints regardless of auth state.
	Strict = Tier{Name: "strict", Window: 60 * time.Minute, Max: 5}
)

// Window is the state of one fixed window after a hit.
type Window struct {
	Count   int64
	ResetAt time.Time
}

// Store counts hits in fixed windows. The window starts at the first hit
// for a key and the count resets once it elapses.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
	// Peek returns the current window without counting a hit.
	Peek(ctx context.Context, key string) (Window, bool, error)
	Reset(ctx context.Context, key string) error
}

type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

type Limiter struct {
	store Store
}

func New(store Store) *Limiter {
	return &Limiter{store: store}
}

func (l *Limiter) Store() Store {
	return l.store
}

// Allow counts one request of clientKey against tier.
func (l *Limiter) Allow(ctx context.Context, tier Tier, clientKey string) (Result, error) {
	w, err := l.store.Hit(ctx, Key(tier, clientKey), tier.Window)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", tier.Name, err)
	}
	remaining := tier.Max - w.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   w.Count <= tier.Max,
		Limit:     tier.Max,
		Remaining: remaining,
		ResetAt:   w.ResetAt,
	}, nil
}

// Key namespaces a client key by tier so windows are independent.
func Key(tier Tier, clientKey string) string {
	return tier.Name + ":" + clientKey
}
