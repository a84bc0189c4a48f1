package domain

type (
	Email    = string
	Password = string
	UserId   = int64

	// TokenId is the jti claim of an issued JWT.
	TokenId = string
)
