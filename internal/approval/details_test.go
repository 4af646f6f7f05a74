package approval

import "testing"

func TestParseDetailsRoundTrip(t *testing.T) {
	raw := map[string]any{"to": "a@b.com", "subject": "hi", "body": "text"}
	details, err := ParseDetails(ActionSendEmail, raw)
	if err != nil {
		t.Fatalf("ParseDetails: %v", err)
	}
	email, ok := details.(EmailDetails)
	if !ok {
		t.Fatalf("got %T, want EmailDetails", details)
	}
	if email.To != "a@b.com" || email.Subject != "hi" || email.Body != "text" {
		t.Errorf("decoded fields = %+v", email)
	}

	back := details.Map()
	for _, key := range []string{"to", "subject", "body"} {
		if back[key] != raw[key] {
			t.Errorf("Map()[%q] = %v, want %v", key, back[key], raw[key])
		}
	}
}

func TestParseDetailsUnknownType(t *testing.T) {
	if _, err := ParseDetails(ActionType("teleport"), nil); err == nil {
		t.Fatal("expected error for unknown action type")
	}
}

func TestDetailsValidation(t *testing.T) {
	cases := []struct {
		name    string
		details Details
		wantErr bool
	}{
		{"valid email", EmailDetails{To: "a@b.com", Subject: "s"}, false},
		{"email missing to", EmailDetails{Subject: "s"}, true},
		{"email not an address", EmailDetails{To: "nobody", Subject: "s"}, true},
		{"email missing subject", EmailDetails{To: "a@b.com"}, true},
		{"valid whatsapp", WhatsAppDetails{To: "+491701234567", Message: "hi"}, false},
		{"whatsapp missing message", WhatsAppDetails{To: "+491701234567"}, true},
		{"whatsapp missing to", WhatsAppDetails{Message: "hi"}, true},
		{"valid linkedin", LinkedInDetails{Text: "post"}, false},
		{"linkedin explicit visibility", LinkedInDetails{Text: "post", Visibility: "CONNECTIONS"}, false},
		{"linkedin empty text", LinkedInDetails{}, true},
		{"linkedin bad visibility", LinkedInDetails{Text: "post", Visibility: "EVERYONE"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.details.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestRecipientNormalization(t *testing.T) {
	email := EmailDetails{To: " Friend@Example.COM ", Subject: "s"}
	if got := email.Recipient(); got != "friend@example.com" {
		t.Errorf("Recipient() = %q", got)
	}
	post := LinkedInDetails{Text: "x"}
	if got := post.Recipient(); got != "" {
		t.Errorf("post Recipient() = %q, want empty", got)
	}
}

func TestStringFieldCoercesNonStrings(t *testing.T) {
	raw := map[string]any{"to": 12345, "message": "hi"}
	details, err := ParseDetails(ActionSendWhatsApp, raw)
	if err != nil {
		t.Fatalf("ParseDetails: %v", err)
	}
	wa := details.(WhatsAppDetails)
	if wa.To != "12345" {
		t.Errorf("To = %q, want coerced string", wa.To)
	}
}
