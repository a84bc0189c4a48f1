package api

import (
	"time"

	"github.com/itchan-dev/ideamarket/shared/domain"
)

// Request DTOs

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// RefreshRequest is optional. Browser clients send the refresh cookie instead.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Response DTOs

type User struct {
	Id        domain.UserId `json:"id"`
	Email     domain.Email  `json:"email"`
	IsAdmin   bool          `json:"isAdmin"`
	CreatedAt time.Time     `json:"createdAt"`
}

func NewUser(u domain.User) User {
	return User{Id: u.Id, Email: u.Email, IsAdmin: u.Admin, CreatedAt: u.CreatedAt}
}

// AuthResponse answers register and login. The tokens are also set as
// HttpOnly cookies for browser clients.
type AuthResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type TokensResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type UserResponse struct {
	Success bool `json:"success"`
	User    User `json:"user"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}
