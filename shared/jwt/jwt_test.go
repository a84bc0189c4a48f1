package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accessKey  = "testAccessKey"
	refreshKey = "testRefreshKey"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndVerifyAccess(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := New(accessKey, refreshKey).WithClock(fixedClock(now))

	issued, err := svc.IssueAccess(42, true)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Id)
	assert.Equal(t, now.Add(AccessTTL), issued.ExpiresAt)

	claims, err := svc.Verify(issued.Value, domain.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessToken, claims.Type)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, issued.Id, claims.ID)
	assert.Equal(t, now, claims.IssuedAt.Time.UTC())

	uid, err := claims.UserId()
	require.NoError(t, err)
	assert.Equal(t, domain.UserId(42), uid)
}

func TestIssueRefresh(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := New(accessKey, refreshKey).WithClock(fixedClock(now))

	issued, err := svc.IssueRefresh(7)
	require.NoError(t, err)
	assert.Equal(t, now.Add(RefreshTTL), issued.ExpiresAt)

	claims, err := svc.Verify(issued.Value, domain.RefreshToken)
	require.NoError(t, err)
	assert.False(t, claims.IsAdmin)
	assert.Equal(t, domain.RefreshToken, claims.Type)
}

func TestTokenIdsAreUnique(t *testing.T) {
	svc := New(accessKey, refreshKey)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		issued, err := svc.IssueRefresh(1)
		require.NoError(t, err)
		_, dup := seen[issued.Id]
		require.False(t, dup, "duplicate token id %s", issued.Id)
		seen[issued.Id] = struct{}{}
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := New(accessKey, refreshKey).WithClock(fixedClock(now))

	issued, err := svc.IssueAccess(1, false)
	require.NoError(t, err)

	svc.WithClock(fixedClock(now.Add(AccessTTL + time.Second)))
	_, err = svc.Verify(issued.Value, domain.AccessToken)
	assert.ErrorIs(t, err, ErrExpired)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejects(t *testing.T) {
	svc := New(accessKey, refreshKey)
	access, err := svc.IssueAccess(1, false)
	require.NoError(t, err)
	refresh, err := svc.IssueRefresh(1)
	require.NoError(t, err)

	tamperedSig := access.Value[:len(access.Value)-2] + "xx"
	parts := strings.Split(access.Value, ".")
	tamperedPayload := parts[0] + "." + parts[1] + "x." + parts[2]

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Type: domain.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "id",
			Subject:   "1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: domain.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       "id",
			Subject:  "1",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}).SignedString([]byte(accessKey))
	require.NoError(t, err)

	noJti, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: domain.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(accessKey))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Type: domain.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "id",
			Subject:   "abc",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(accessKey))
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		expected domain.TokenType
	}{
		{"empty", "", domain.AccessToken},
		{"garbage", "not.a.token", domain.AccessToken},
		{"tampered signature", tamperedSig, domain.AccessToken},
		{"tampered payload", tamperedPayload, domain.AccessToken},
		{"refresh presented as access", refresh.Value, domain.AccessToken},
		{"access presented as refresh", access.Value, domain.RefreshToken},
		{"alg none", noneToken, domain.AccessToken},
		{"missing exp", noExp, domain.AccessToken},
		{"missing jti", noJti, domain.AccessToken},
		{"non-numeric subject", badSubject, domain.AccessToken},
		{"unknown expected type", access.Value, domain.UserCutoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Verify(tt.token, tt.expected)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestVerifyWrongKey(t *testing.T) {
	issued, err := New(accessKey, refreshKey).IssueAccess(1, false)
	require.NoError(t, err)

	_, err = New("otherKey", refreshKey).Verify(issued.Value, domain.AccessToken)
	assert.ErrorIs(t, err, ErrInvalid)
}
