package ratelimiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count int64
	reset time.Time
}

// MemoryStore keeps windows in process. Expired keys are dropped lazily.
type MemoryStore struct {
	mu           sync.Mutex
	entries      map[string]*entry
	now          func() time.Time
	lastCleanup  time.Time
	cleanupEvery time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:      map[string]*entry{},
		now:          time.Now,
		lastCleanup:  time.Now(),
		cleanupEvery: time.Minute,
	}
}

// WithClock replaces the time source. Used in tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.lastCleanup = now()
	return s
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.cleanup(now)

	e, ok := s.entries[key]
	if !ok || !now.Before(e.reset) {
		e = &entry{reset: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return Window{Count: e.count, ResetAt: e.reset}, nil
}

func (s *MemoryStore) Peek(_ context.Context, key string) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.reset) {
		return Window{}, false, nil
	}
	return Window{Count: e.count, ResetAt: e.reset}, true, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cleanup must be called with mu held.
func (s *MemoryStore) cleanup(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupEvery {
		return
	}
	for k, e := range s.entries {
		if !now.Before(e.reset) {
			delete(s.entries, k)
		}
	}
	s.lastCleanup = now
}
