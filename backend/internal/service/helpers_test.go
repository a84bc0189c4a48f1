package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/itchan-dev/ideamarket/backend/internal/storage/memory"
	"github.com/itchan-dev/ideamarket/shared/blacklist"
	"github.com/itchan-dev/ideamarket/shared/config"
	"github.com/itchan-dev/ideamarket/shared/credential"
	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/jwt"
	"github.com/itchan-dev/ideamarket/shared/middleware/ratelimiter"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessKey  = "test-access-key-0123456789abcdef0123"
	testRefreshKey = "test-refresh-key-0123456789abcdef012"
	strongPassword = "Str0ng!Passw0rd"
)

var testLockout = config.Lockout{Threshold: 5, Window: 15 * time.Minute, Duration: 15 * time.Minute}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memUsers names the embedded store so it does not shadow the promoted Users method.
type memUsers = memory.Users

// MockUserStorage serves from memory unless a function field overrides a call.
type MockUserStorage struct {
	*memUsers
	UserByIdFunc                  func(ctx context.Context, id domain.UserId) (domain.User, error)
	MarkPasswordResetRequiredFunc func(ctx context.Context, ids []domain.UserId) (int64, error)
	UpdatePasswordHashFunc        func(ctx context.Context, id domain.UserId, hash string) error
}

func (m *MockUserStorage) UpdatePasswordHash(ctx context.Context, id domain.UserId, hash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, hash)
	}
	return m.memUsers.UpdatePasswordHash(ctx, id, hash)
}

func (m *MockUserStorage) UserById(ctx context.Context, id domain.UserId) (domain.User, error) {
	if m.UserByIdFunc != nil {
		return m.UserByIdFunc(ctx, id)
	}
	return m.memUsers.UserById(ctx, id)
}

func (m *MockUserStorage) MarkPasswordResetRequired(ctx context.Context, ids []domain.UserId) (int64, error) {
	if m.MarkPasswordResetRequiredFunc != nil {
		return m.MarkPasswordResetRequiredFunc(ctx, ids)
	}
	return m.memUsers.MarkPasswordResetRequired(ctx, ids)
}

// MockRevocations wraps a real blacklist and lets tests inject failures.
type MockRevocations struct {
	*blacklist.Blacklist
	AddFunc   func(ctx context.Context, tokenId domain.TokenId, tokenType domain.TokenType, userId domain.UserId, expiresAt time.Time) error
	CheckFunc func(ctx context.Context, tokenId domain.TokenId, userId domain.UserId, issuedAt time.Time) error
}

func (m *MockRevocations) Add(ctx context.Context, tokenId domain.TokenId, tokenType domain.TokenType, userId domain.UserId, expiresAt time.Time) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, tokenId, tokenType, userId, expiresAt)
	}
	return m.Blacklist.Add(ctx, tokenId, tokenType, userId, expiresAt)
}

func (m *MockRevocations) Check(ctx context.Context, tokenId domain.TokenId, userId domain.UserId, issuedAt time.Time) error {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, tokenId, userId, issuedAt)
	}
	return m.Blacklist.Check(ctx, tokenId, userId, issuedAt)
}

type testEnv struct {
	auth        *Auth
	tokens      *Tokens
	users       *MockUserStorage
	revocations *MockRevocations
	jwt         *jwt.Jwt
	clock       *clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c := &clock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	users := &MockUserStorage{memUsers: memory.NewUsers()}
	revocations := &MockRevocations{Blacklist: blacklist.New(blacklist.NewMemoryStorage())}
	j := jwt.New(testAccessKey, testRefreshKey)
	hasher, err := credential.NewRegistry(bcrypt.MinCost)
	require.NoError(t, err)

	lockout := NewLockout(ratelimiter.NewMemoryStore().WithClock(c.Now), testLockout)
	lockout.now = c.Now

	tokens := NewTokens(j, revocations, users)
	return &testEnv{
		auth:        NewAuth(users, tokens, revocations, hasher, lockout),
		tokens:      tokens,
		users:       users,
		revocations: revocations,
		jwt:         j,
		clock:       c,
	}
}

func (e *testEnv) register(t *testing.T, email string) (domain.User, domain.TokenPair) {
	t.Helper()
	user, pair, err := e.auth.Register(context.Background(), domain.Credentials{Email: email, Password: strongPassword})
	require.NoError(t, err)
	return user, pair
}
