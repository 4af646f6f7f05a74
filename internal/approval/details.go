package approval

import (
	"fmt"
	"strings"
)

// Details is the typed view of a request's action_details. Each action type
// has its own variant with its own validation, so missing fields surface at
// creation time instead of execution time.
type Details interface {
	// Validate checks required fields for the variant.
	Validate() error
	// Recipient returns the external party the action targets, or "" when
	// the action has no single recipient (e.g. a public post).
	Recipient() string
	// Reversible reports whether the side effect can be undone after the
	// fact. Reversible actions score lower risk.
	Reversible() bool
	// Map renders the wire representation stored on the request.
	Map() map[string]any
}

// EmailDetails parameterizes a send_email action.
type EmailDetails struct {
	To      string
	Subject string
	Body    string
}

func (d EmailDetails) Validate() error {
	if strings.TrimSpace(d.To) == "" {
		return fmt.Errorf("send_email: %q field is required", "to")
	}
	if !strings.Contains(d.To, "@") {
		return fmt.Errorf("send_email: %q is not an email address", d.To)
	}
	if strings.TrimSpace(d.Subject) == "" {
		return fmt.Errorf("send_email: %q field is required", "subject")
	}
	return nil
}

func (d EmailDetails) Recipient() string { return strings.ToLower(strings.TrimSpace(d.To)) }
func (d EmailDetails) Reversible() bool  { return false }

func (d EmailDetails) Map() map[string]any {
	return map[string]any{
		"to":      d.To,
		"subject": d.Subject,
		"body":    d.Body,
	}
}

// WhatsAppDetails parameterizes a send_whatsapp action.
type WhatsAppDetails struct {
	To      string // phone number in E.164 form
	Message string
}

func (d WhatsAppDetails) Validate() error {
	if strings.TrimSpace(d.To) == "" {
		return fmt.Errorf("send_whatsapp: %q field is required", "to")
	}
	if strings.TrimSpace(d.Message) == "" {
		return fmt.Errorf("send_whatsapp: %q field is required", "message")
	}
	return nil
}

func (d WhatsAppDetails) Recipient() string { return strings.TrimSpace(d.To) }
func (d WhatsAppDetails) Reversible() bool  { return false }

func (d WhatsAppDetails) Map() map[string]any {
	return map[string]any{
		"to":      d.To,
		"message": d.Message,
	}
}

// LinkedInDetails parameterizes a post_linkedin action.
type LinkedInDetails struct {
	Text       string
	Visibility string // PUBLIC or CONNECTIONS; defaults to PUBLIC
}

func (d LinkedInDetails) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("post_linkedin: %q field is required", "text")
	}
	switch d.Visibility {
	case "", "PUBLIC", "CONNECTIONS":
	default:
		return fmt.Errorf("post_linkedin: invalid visibility %q", d.Visibility)
	}
	return nil
}

func (d LinkedInDetails) Recipient() string { return "" }

// A published post can be deleted, unlike a delivered message.
func (d LinkedInDetails) Reversible() bool { return true }

func (d LinkedInDetails) Map() map[string]any {
	m := map[string]any{"text": d.Text}
	if d.Visibility != "" {
		m["visibility"] = d.Visibility
	}
	return m
}

// ParseDetails decodes the wire map into the typed variant for actionType.
// Unknown action types return an error; unknown keys within a known type are
// ignored so watchers can attach extra context without breaking validation.
func ParseDetails(actionType ActionType, raw map[string]any) (Details, error) {
	switch actionType {
	case ActionSendEmail:
		return EmailDetails{
			To:      stringField(raw, "to"),
			Subject: stringField(raw, "subject"),
			Body:    stringField(raw, "body"),
		}, nil
	case ActionSendWhatsApp:
		return WhatsAppDetails{
			To:      stringField(raw, "to"),
			Message: stringField(raw, "message"),
		}, nil
	case ActionPostLinkedIn:
		return LinkedInDetails{
			Text:       stringField(raw, "text"),
			Visibility: stringField(raw, "visibility"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", actionType)
	}
}

func stringField(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	if v, ok := raw[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}
