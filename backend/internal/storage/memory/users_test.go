package memory

import (
	"context"
	"testing"

	"github.com/itchan-dev/ideamarket/shared/domain"
	internal_errors "github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	store := NewUsers()

	id, err := store.SaveUser(ctx, domain.User{Email: "a@example.com", PassHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, domain.UserId(1), id)

	_, err = store.SaveUser(ctx, domain.User{Email: "a@example.com", PassHash: "h"})
	assert.True(t, internal_errors.IsConflict(err))

	user, err := store.UserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.Id)
	assert.False(t, user.CreatedAt.IsZero())

	_, err = store.UserById(ctx, 99)
	assert.True(t, internal_errors.IsNotFound(err))

	n, err := store.MarkPasswordResetRequired(ctx, []domain.UserId{id, 99})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.UpdatePasswordHash(ctx, id, "new"))
	user, err = store.UserById(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", user.PassHash)
	assert.False(t, user.PasswordResetRequired)

	_, err = store.SaveUser(ctx, domain.User{Email: "b@example.com"})
	require.NoError(t, err)
	all, err := store.Users(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Less(t, all[0].Id, all[1].Id)
}
