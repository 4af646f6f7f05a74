package actions

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/resend/resend-go/v3"

	"aide/internal/approval"
	"aide/internal/errors"
	"aide/internal/logging"
)

// emailSender is the slice of the Resend client the handler needs. Kept as
// an interface so tests can substitute a fake.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailHandler sends approved emails through Resend.
type EmailHandler struct {
	sender emailSender
	from   string
	logger logging.Logger
}

// NewEmailHandler creates an email handler using the given Resend API key.
// from is the sender address, e.g. "Aide <aide@example.com>".
func NewEmailHandler(apiKey, from string) *EmailHandler {
	client := resend.NewClient(apiKey)
	return &EmailHandler{
		sender: client.Emails,
		from:   from,
		logger: logging.NewComponentLogger("EmailHandler"),
	}
}

func (h *EmailHandler) ActionType() approval.ActionType {
	return approval.ActionSendEmail
}

func (h *EmailHandler) Execute(ctx context.Context, raw map[string]any) error {
	details, err := approval.ParseDetails(approval.ActionSendEmail, raw)
	if err != nil {
		return errors.NewPermanentError(err, "malformed email details")
	}
	if err := details.Validate(); err != nil {
		return errors.NewPermanentError(err, "malformed email details")
	}
	email := details.(approval.EmailDetails)

	params := &resend.SendEmailRequest{
		From:    h.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    renderEmailBody(email.Body),
	}

	sent, err := h.sender.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", email.To, err)
	}

	h.logger.Info("Email %s sent to %s", sent.Id, email.To)
	return nil
}

// renderEmailBody wraps the plain-text body in minimal HTML, preserving
// paragraph breaks.
func renderEmailBody(body string) string {
	var b strings.Builder
	b.WriteString("<div style=\"font-family: sans-serif; line-height: 1.5;\">\n")
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		escaped := html.EscapeString(para)
		escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")
		fmt.Fprintf(&b, "<p>%s</p>\n", escaped)
	}
	b.WriteString("</div>")
	return b.String()
}
