package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fujinet/game-alerts/internal/api/respond"
	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/relay"
)

// PostGame ingests a lobby status report.
// @Summary Report game server status
// @Description Classifies the report against the last known state, stores it and schedules notifications.
// @Tags lobby
// @Accept json
// @Produce json
// @Param report body model.Report true "Lobby report"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /game [post]
func (h *Handler) PostGame(w http.ResponseWriter, r *http.Request) {
	var in model.Report
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_JSON", "Request body is not a valid report", err.Error())
		return
	}

	kind, err := h.engine.HandleReport(r.Context(), in)
	if errors.Is(err, relay.ErrInvalidReport) {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_REPORT", "Report rejected", err.Error())
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "An error occurred")
		return
	}

	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Game event processed successfully",
		"event":   kind,
	})
}

// DeleteGame removes a server from the lobby.
// @Summary Remove game server
// @Description Deletes the server's stored state and announces the removal in chat. serverurl is read from the JSON body or the query string.
// @Tags lobby
// @Accept json
// @Produce json
// @Param serverurl query string false "Server URL"
// @Success 200 {object} respond.Message
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /game [delete]
func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServerURL string `json:"serverurl"`
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", err.Error())
		return
	}

	serverURL := strings.TrimSpace(body.ServerURL)
	if serverURL == "" {
		serverURL = strings.TrimSpace(r.URL.Query().Get("serverurl"))
	}
	if serverURL == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_SERVERURL", "serverurl is required")
		return
	}

	existed, err := h.engine.RemoveServer(r.Context(), serverURL)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "An error occurred")
		return
	}
	if !existed {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "No server with serverurl "+serverURL)
		return
	}
	respond.WriteJSON(w, http.StatusOK, respond.Message{
		Message: fmt.Sprintf("'DELETE' event added for serverurl %s", serverURL),
	})
}
