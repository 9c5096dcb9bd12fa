package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/twiml"

	"github.com/fujinet/game-alerts/internal/api/respond"
	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/relay"
)

// InboundSMS handles a subscriber text forwarded by Twilio.
// @Summary Inbound SMS/WhatsApp webhook
// @Description Parses START/STOP style commands and replies with TwiML.
// @Tags sms
// @Accept x-www-form-urlencoded
// @Produce xml
// @Param From formData string true "Sender address"
// @Param Body formData string false "Message text"
// @Success 200 {string} string "TwiML response"
// @Failure 400 {object} respond.ErrorResponse
// @Router /sms [post]
func (h *Handler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_FORM", "Could not parse form body")
		return
	}

	reply, err := h.engine.HandleInbound(r.Context(), r.PostForm.Get("From"), r.PostForm.Get("Body"))
	if errors.Is(err, relay.ErrMissingSender) {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_FROM", "From is required")
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "An error occurred")
		return
	}

	doc, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Could not render reply")
		return
	}
	respond.WriteXML(w, http.StatusOK, doc)
}

// providerError is the subset of Twilio's error webhook payload we keep.
type providerError struct {
	ResourceSID string `json:"resource_sid"`
	ServiceSID  string `json:"service_sid"`
	ErrorCode   any    `json:"error_code"`
	MoreInfo    struct {
		Msg string `json:"Msg"`
	} `json:"more_info"`
	Webhook struct {
		Request struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"request"`
	} `json:"webhook"`
}

// SMSErrors stores a delivery error reported by Twilio.
// @Summary Twilio error webhook
// @Description Records a provider-side delivery failure. Accepts the JSON payload directly or form-encoded with a Payload field.
// @Tags sms
// @Accept json
// @Produce json
// @Success 200 {object} respond.Message
// @Failure 400 {object} respond.ErrorResponse
// @Router /sms/errors [post]
func (h *Handler) SMSErrors(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var raw []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			respond.WriteError(w, http.StatusBadRequest, "BAD_FORM", "Could not parse form body")
			return
		}
		raw = []byte(r.PostForm.Get("Payload"))
	} else {
		var err error
		if raw, err = io.ReadAll(r.Body); err != nil {
			respond.WriteError(w, http.StatusBadRequest, "BAD_BODY", "Could not read request body")
			return
		}
	}

	var p providerError
	if err := json.Unmarshal(raw, &p); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_JSON", "Error payload is not valid JSON", err.Error())
		return
	}

	rec := &model.SmsErrorRecord{
		ResourceSID:   p.ResourceSID,
		ServiceSID:    p.ServiceSID,
		ErrorCode:     errorCode(p.ErrorCode),
		ErrorMessage:  p.MoreInfo.Msg,
		CallbackURL:   p.Webhook.Request.URL,
		RequestMethod: p.Webhook.Request.Method,
		Details:       string(raw),
	}
	if err := h.engine.RecordProviderError(r.Context(), rec); err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "An error occurred")
		return
	}
	respond.WriteJSON(w, http.StatusOK, respond.Message{Message: "Error data stored successfully"})
}

// errorCode accepts Twilio's code as either a JSON number or string.
func errorCode(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%.0f", c)
	default:
		return fmt.Sprint(c)
	}
}
