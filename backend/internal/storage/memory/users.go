// Package memory holds a process-local user store for tests and
// single-process development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/errors"
)

type Users struct {
	mu      sync.RWMutex
	byId    map[domain.UserId]domain.User
	byEmail map[domain.Email]domain.UserId
	nextId  domain.UserId
}

func NewUsers() *Users {
	return &Users{
		byId:    make(map[domain.UserId]domain.User),
		byEmail: make(map[domain.Email]domain.UserId),
	}
}

func (u *Users) SaveUser(_ context.Context, user domain.User) (domain.UserId, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.byEmail[user.Email]; ok {
		return 0, errors.Conflict("Email already registered")
	}
	u.nextId++
	user.Id = u.nextId
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	u.byId[user.Id] = user
	u.byEmail[user.Email] = user.Id
	return user.Id, nil
}

func (u *Users) UserByEmail(_ context.Context, email domain.Email) (domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	id, ok := u.byEmail[email]
	if !ok {
		return domain.User{}, errors.NotFound("User not found")
	}
	return u.byId[id], nil
}

func (u *Users) UserById(_ context.Context, id domain.UserId) (domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byId[id]
	if !ok {
		return domain.User{}, errors.NotFound("User not found")
	}
	return user, nil
}

func (u *Users) UpdatePasswordHash(_ context.Context, id domain.UserId, hash string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.byId[id]
	if !ok {
		return errors.NotFound("User not found for password update")
	}
	user.PassHash = hash
	user.PasswordResetRequired = false
	u.byId[id] = user
	return nil
}

func (u *Users) MarkPasswordResetRequired(_ context.Context, ids []domain.UserId) (int64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var n int64
	for _, id := range ids {
		user, ok := u.byId[id]
		if !ok || user.PasswordResetRequired {
			continue
		}
		user.PasswordResetRequired = true
		u.byId[id] = user
		n++
	}
	return n, nil
}

func (u *Users) Users(_ context.Context) ([]domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	users := make([]domain.User, 0, len(u.byId))
	for _, user := range u.byId {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Id < users[j].Id })
	return users, nil
}

// Ping always succeeds. It lets the store back the readiness check.
func (u *Users) Ping(context.Context) error {
	return nil
}
