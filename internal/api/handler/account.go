package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fujinet/game-alerts/internal/account"
	"github.com/fujinet/game-alerts/internal/api/respond"
	"github.com/fujinet/game-alerts/internal/model"
)

type registerRequest struct {
	Phone   string `json:"phone"`
	Channel string `json:"channel"`
}

type confirmRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type confirmResponse struct {
	Token      string            `json:"token"`
	Subscriber *model.Subscriber `json:"subscriber"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", err.Error())
		return false
	}
	return true
}

// Register sends a verification code to a phone number.
// @Summary Start dashboard signup
// @Description Normalizes the number, stores an unconfirmed subscriber and sends a 6-digit code on the chosen channel.
// @Tags account
// @Accept json
// @Produce json
// @Param request body registerRequest true "Phone and channel (sms or whatsapp)"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 502 {object} respond.ErrorResponse
// @Router /api/v1/account/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	ch := model.Channel(strings.ToLower(strings.TrimSpace(req.Channel)))
	if ch == "" {
		ch = model.ChannelSMS
	}

	phone, err := h.accounts.Register(r.Context(), req.Phone, ch)
	switch {
	case errors.Is(err, account.ErrInvalidPhone), errors.Is(err, account.ErrInvalidChannel):
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_PHONE", "Phone number or channel rejected", err.Error())
		return
	case err != nil:
		respond.WriteError(w, http.StatusBadGateway, "SEND_FAILED", "Could not send verification code")
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"phone":   phone,
		"channel": ch,
		"message": "Verification code sent",
	})
}

// Confirm checks a verification code and returns a session token.
// @Summary Confirm dashboard signup
// @Tags account
// @Accept json
// @Produce json
// @Param request body confirmRequest true "Phone and code"
// @Success 200 {object} confirmResponse
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/account/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}

	token, sub, err := h.accounts.Confirm(r.Context(), req.Phone, req.Code)
	if errors.Is(err, account.ErrInvalidCode) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_CODE", "Invalid or expired verification code")
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "An error occurred")
		return
	}
	respond.WriteJSON(w, http.StatusOK, confirmResponse{Token: token, Subscriber: sub})
}

// GetAccount returns the signed-in subscriber.
// @Summary Current subscriber
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.Subscriber
// @Failure 401 {object} respond.ErrorResponse
// @Router /api/v1/account [get]
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	sub, err := h.accounts.Get(r.Context(), account.PhoneFrom(r.Context()))
	if err != nil {
		h.accountError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sub)
}

// UpdateAccount changes alert preferences.
// @Summary Update alert preferences
// @Description Partial update; omitted fields keep their value.
// @Tags account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body account.Preferences true "Preferences"
// @Success 200 {object} model.Subscriber
// @Failure 401 {object} respond.ErrorResponse
// @Router /api/v1/account [patch]
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var prefs account.Preferences
	if !decode(w, r, &prefs) {
		return
	}
	sub, err := h.accounts.UpdatePreferences(r.Context(), account.PhoneFrom(r.Context()), prefs)
	if err != nil {
		h.accountError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, sub)
}

// DeleteAccount erases the signed-in subscriber.
// @Summary Delete account data
// @Tags account
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} respond.ErrorResponse
// @Router /api/v1/account [delete]
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), account.PhoneFrom(r.Context())); err != nil {
		h.accountError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) accountError(w http.ResponseWriter, err error) {
	if errors.Is(err, account.ErrUnauthorized) {
		respond.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Account not found or not confirmed")
		return
	}
	respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "An error occurred")
}
