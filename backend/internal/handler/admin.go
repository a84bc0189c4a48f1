package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/itchan-dev/ideamarket/shared/api"
	"github.com/itchan-dev/ideamarket/shared/errors"
	"github.com/itchan-dev/ideamarket/shared/logger"
	mw "github.com/itchan-dev/ideamarket/shared/middleware"
	"github.com/itchan-dev/ideamarket/shared/utils"
)

// RevokeUserTokens handles POST /admin/users/{userId}/revoke-tokens
func (h *Handler) RevokeUserTokens(w http.ResponseWriter, r *http.Request) {
	userId, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userId <= 0 {
		utils.WriteErrorAndStatusCode(w, errors.Validation("Invalid user ID"))
		return
	}

	if err := h.auth.RevokeUserTokens(r.Context(), userId); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	if admin := mw.GetUserFromContext(r); admin != nil {
		logger.Log.Info("admin revoked user tokens", "admin_id", admin.Id, "user_id", userId)
	}
	utils.WriteJSON(w, http.StatusOK, api.RevokeTokensResponse{
		Success: true,
		Message: "All tokens revoked",
		UserId:  userId,
	})
}

// SweepBlacklist handles POST /admin/blacklist/sweep
func (h *Handler) SweepBlacklist(w http.ResponseWriter, r *http.Request) {
	removed, err := h.auth.SweepBlacklist(r.Context())
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, api.SweepResponse{Success: true, Removed: removed})
}
