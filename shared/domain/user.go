package domain

import "time"

type User struct {
	Id       UserId
	Email    Email
	PassHash string
	Admin    bool
	// PasswordResetRequired is set for accounts whose stored hash uses the
	// legacy scheme. Such accounts cannot log in until the password is reset.
	PasswordResetRequired bool
	CreatedAt             time.Time
}

type Credentials struct {
	Email    Email
	Password Password
}
