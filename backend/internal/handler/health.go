package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/itchan-dev/ideamarket/shared/logger"
	"github.com/itchan-dev/ideamarket/shared/utils"
)

const readyTimeout = 2 * time.Second

type statusResponse struct {
	Status string `json:"status"`
}

// Health reports liveness. It never touches dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Ready answers 503 while the user and blacklist store is unreachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		logger.Log.Warn("readiness check failed", "error", err)
		utils.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}
