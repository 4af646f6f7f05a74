package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"aide/internal/approval"
	"aide/internal/errors"
)

func whatsappDetails() map[string]any {
	return map[string]any{
		"to":      "+15550100",
		"message": "Running 10 minutes late.",
	}
}

func TestWhatsAppHandlerSends(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewWhatsAppHandler(srv.URL, "token-1")
	if err := h.Execute(context.Background(), whatsappDetails()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotPath != "/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["to"] != "+15550100" || gotBody["messaging_product"] != "whatsapp" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestWhatsAppHandlerClassifiesGatewayErrors(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"server fault", http.StatusBadGateway, true},
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			h := NewWhatsAppHandler(srv.URL, "token-1")
			err := h.Execute(context.Background(), whatsappDetails())
			if err == nil {
				t.Fatal("Execute succeeded")
			}
			if errors.IsTransient(err) != tc.wantTransient {
				t.Errorf("IsTransient = %v, want %v (err: %v)", errors.IsTransient(err), tc.wantTransient, err)
			}
		})
	}
}

func TestWhatsAppHandlerUnreachableGatewayIsTransient(t *testing.T) {
	h := NewWhatsAppHandler("http://127.0.0.1:1", "token-1")
	err := h.Execute(context.Background(), whatsappDetails())
	if err == nil {
		t.Fatal("Execute succeeded")
	}
	if !errors.IsTransient(err) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestWhatsAppHandlerRejectsMalformedDetails(t *testing.T) {
	h := NewWhatsAppHandler("http://127.0.0.1:1", "token-1")
	err := h.Execute(context.Background(), map[string]any{"to": "+15550100"})
	if err == nil {
		t.Fatal("Execute succeeded")
	}
	if !errors.IsPermanent(err) {
		t.Errorf("err = %v, want permanent", err)
	}
}

func TestWhatsAppHandlerActionType(t *testing.T) {
	if got := NewWhatsAppHandler("", "").ActionType(); got != approval.ActionSendWhatsApp {
		t.Errorf("ActionType() = %s", got)
	}
}
