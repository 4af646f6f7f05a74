package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aide/internal/approval"
	"aide/internal/errors"
	"aide/internal/logging"
)

const whatsappSendTimeout = 15 * time.Second

// WhatsAppHandler delivers approved messages through a WhatsApp Business
// Cloud API gateway.
type WhatsAppHandler struct {
	client  *http.Client
	baseURL string
	token   string
	logger  logging.Logger
}

// NewWhatsAppHandler creates a handler posting to the given gateway URL,
// e.g. "https://graph.facebook.com/v19.0/<phone-number-id>".
func NewWhatsAppHandler(baseURL, token string) *WhatsAppHandler {
	return &WhatsAppHandler{
		client:  &http.Client{Timeout: whatsappSendTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logging.NewComponentLogger("WhatsAppHandler"),
	}
}

func (h *WhatsAppHandler) ActionType() approval.ActionType {
	return approval.ActionSendWhatsApp
}

func (h *WhatsAppHandler) Execute(ctx context.Context, raw map[string]any) error {
	details, err := approval.ParseDetails(approval.ActionSendWhatsApp, raw)
	if err != nil {
		return errors.NewPermanentError(err, "malformed whatsapp details")
	}
	if err := details.Validate(); err != nil {
		return errors.NewPermanentError(err, "malformed whatsapp details")
	}
	msg := details.(approval.WhatsAppDetails)

	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                msg.To,
		"type":              "text",
		"text":              map[string]string{"body": msg.Message},
	})
	if err != nil {
		return errors.NewPermanentError(err, "encode whatsapp payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return errors.NewPermanentError(err, "build whatsapp request")
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.NewTransientError(err, "whatsapp gateway unreachable")
	}
	defer resp.Body.Close()

	if err := classifyResponse(resp, "whatsapp gateway"); err != nil {
		return err
	}

	h.logger.Info("WhatsApp message sent to %s", msg.To)
	return nil
}

// classifyResponse folds a non-2xx gateway response into the error taxonomy:
// rate limits and server faults are worth retrying, client errors are not.
func classifyResponse(resp *http.Response, gateway string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("%s returned HTTP %d: %s", gateway, resp.StatusCode, strings.TrimSpace(string(body)))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return errors.NewTransientError(err, "")
	}
	return errors.NewPermanentError(err, "")
}
