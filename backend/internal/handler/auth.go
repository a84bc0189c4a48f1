package handler

import (
	"net/http"

	"github.com/itchan-dev/ideamarket/shared/api"
	"github.com/itchan-dev/ideamarket/shared/domain"
	"github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/logger"
	mw "github.com/itchan-dev/ideamarket/shared/middleware"
	"github.com/itchan-dev/ideamarket/shared/utils"
)

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body api.RegisterRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	user, pair, err := h.auth.Register(r.Context(), domain.Credentials{Email: body.Email, Password: body.Password})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	utils.WriteJSON(w, http.StatusCreated, api.AuthResponse{
		Success:      true,
		Message:      "User registered successfully",
		User:         api.NewUser(user),
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body api.LoginRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	user, pair, err := h.auth.Login(r.Context(), domain.Credentials{Email: body.Email, Password: body.Password})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	logger.Log.Info("user logged in", "user_id", user.Id)
	h.setTokenCookies(w, pair)
	utils.WriteJSON(w, http.StatusOK, api.AuthResponse{
		Success:      true,
		Message:      "Login successful",
		User:         api.NewUser(user),
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	})
}

// Refresh reads the refresh token from its cookie, falling back to the
// refreshToken JSON field for non-browser clients.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := h.auth.Refresh(r.Context(), refreshTokenFromRequest(r))
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.setTokenCookies(w, pair)
	utils.WriteJSON(w, http.StatusOK, api.TokensResponse{
		Success:      true,
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), mw.ExtractAccessToken(r), refreshTokenFromRequest(r)); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	h.clearTokenCookies(w)
	utils.WriteJSON(w, http.StatusOK, api.MessageResponse{Success: true, Message: "Logout successful"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	current := mw.GetUserFromContext(r)
	if current == nil {
		utils.WriteErrorAndStatusCode(w, errors.Authentication("Authentication required", nil))
		return
	}

	user, err := h.auth.Me(r.Context(), current.Id)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, api.UserResponse{Success: true, User: api.NewUser(user)})
}

// CSRFToken returns the token the CSRF middleware minted for this request.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, api.CSRFTokenResponse{CSRFToken: mw.GetCSRFTokenFromContext(r)})
}

func refreshTokenFromRequest(r *http.Request) string {
	if token := refreshTokenFromCookie(r); token != "" {
		return token
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	var body api.RefreshRequest
	// An empty or non-JSON body just means no token was sent.
	if err := utils.Decode(r.Body, &body); err != nil {
		return ""
	}
	return body.RefreshToken
}
