package domain

import "time"

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
	// UserCutoff marks a blacklist row that revokes every token of a user
	// issued at or before the row's creation time.
	UserCutoff TokenType = "user"
)

// IssuedToken is a signed JWT together with the claims the server needs to
// revoke it later.
type IssuedToken struct {
	Value     string
	Id        TokenId
	ExpiresAt time.Time
}

type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// BlacklistEntry is a revocation record. TokenHash is the SHA-256 hex digest
// of the token id, never the raw bearer token.
type BlacklistEntry struct {
	TokenHash string
	TokenType TokenType
	UserId    UserId
	ExpiresAt time.Time
	CreatedAt time.Time
}
