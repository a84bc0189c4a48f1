package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/itchan-dev/ideamarket/shared/domain"
)

// MemoryStorage keeps the blacklist in process. Used by tests and by
// single-instance deployments without a database.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]domain.BlacklistEntry
	cutoffs map[domain.UserId]domain.BlacklistEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]domain.BlacklistEntry),
		cutoffs: make(map[domain.UserId]domain.BlacklistEntry),
	}
}

func (m *MemoryStorage) InsertRevokedToken(ctx context.Context, entry domain.BlacklistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[entry.TokenHash]; ok {
		return ErrDuplicateEntry
	}
	m.entries[entry.TokenHash] = entry
	return nil
}

func (m *MemoryStorage) IsTokenRevoked(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[tokenHash]
	return ok && e.ExpiresAt.After(now), nil
}

func (m *MemoryStorage) RevokeUserTokens(ctx context.Context, userId domain.UserId, tokenHash string, revokedAt, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs[userId] = domain.BlacklistEntry{
		TokenHash: tokenHash,
		TokenType: domain.UserCutoff,
		UserId:    userId,
		ExpiresAt: expiresAt,
		CreatedAt: revokedAt,
	}
	return nil
}

func (m *MemoryStorage) UserTokensRevokedAt(ctx context.Context, userId domain.UserId, now time.Time) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cutoffs[userId]
	if !ok || !e.ExpiresAt.After(now) {
		return time.Time{}, false, nil
	}
	return e.CreatedAt, true, nil
}

func (m *MemoryStorage) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for k, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, k)
			removed++
		}
	}
	for k, e := range m.cutoffs {
		if !e.ExpiresAt.After(now) {
			delete(m.cutoffs, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored rows, cutoffs included.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries) + len(m.cutoffs)
}
