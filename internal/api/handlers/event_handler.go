package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/services"
	"github.com/rs/zerolog/log"
)

// EventHandler handles HTTP requests related to account activity.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent handles the request to get the caller's recent activity.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	limitStr := r.URL.Query().Get("limit")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}
	if limit > services.MaxPageSize {
		limit = services.MaxPageSize
	}

	events, err := h.service.GetRecentEvents(r.Context(), user.ID, limit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to retrieve events")
		RespondError(w, r, err, "Event")
		return
	}

	writeJSON(w, http.StatusOK, events)
}
