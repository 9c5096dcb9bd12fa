package handler

import (
	"net/http"
	"strconv"

	"github.com/fujinet/game-alerts/internal/api/respond"
	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store"
)

// ListServers returns every known server state.
// @Summary List game servers
// @Tags feed
// @Produce json
// @Success 200 {array} model.ServerState
// @Router /api/v1/servers [get]
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.store.ListServers(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Could not list servers")
		return
	}
	if servers == nil {
		servers = []model.ServerState{}
	}
	respond.WriteJSON(w, http.StatusOK, servers)
}

// ListEvents returns the most recent event records, newest first.
// @Summary Recent events
// @Tags feed
// @Produce json
// @Param limit query int false "Maximum rows (default 100, max 1000)"
// @Success 200 {array} model.EventRecord
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/events [get]
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer")
			return
		}
		limit = n
	}

	events, err := h.store.ListEvents(r.Context(), store.ClampLimit(limit))
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Could not list events")
		return
	}
	if events == nil {
		events = []model.EventRecord{}
	}
	respond.WriteJSON(w, http.StatusOK, events)
}

// EventStream upgrades to a websocket that receives every new event.
// @Summary Live event stream
// @Description Websocket; each message is one JSON event record.
// @Tags feed
// @Router /api/v1/events/ws [get]
func (h *Handler) EventStream(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeHTTP(w, r)
}

// Stats returns headline row counts.
// @Summary Relay statistics
// @Tags feed
// @Produce json
// @Success 200 {object} store.Stats
// @Router /api/v1/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Could not compute stats")
		return
	}
	respond.WriteJSON(w, http.StatusOK, stats)
}
