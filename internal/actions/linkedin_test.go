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

func TestLinkedInHandlerPublishes(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("X-Restli-Protocol-Version") != "2.0.0" {
			t.Errorf("missing restli header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := NewLinkedInHandler("token-1", "urn:li:person:abc")
	h.SetBaseURL(srv.URL)

	err := h.Execute(context.Background(), map[string]any{
		"text": "Shipped a thing today.",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotPath != "/ugcPosts" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["author"] != "urn:li:person:abc" {
		t.Errorf("author = %v", gotBody["author"])
	}
	vis, _ := gotBody["visibility"].(map[string]any)
	if vis["com.linkedin.ugc.MemberNetworkVisibility"] != "PUBLIC" {
		t.Errorf("visibility defaulted to %v", vis)
	}
}

func TestLinkedInHandlerHonorsVisibility(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := NewLinkedInHandler("token-1", "urn:li:person:abc")
	h.SetBaseURL(srv.URL)

	err := h.Execute(context.Background(), map[string]any{
		"text":       "For my network only.",
		"visibility": "CONNECTIONS",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	vis, _ := gotBody["visibility"].(map[string]any)
	if vis["com.linkedin.ugc.MemberNetworkVisibility"] != "CONNECTIONS" {
		t.Errorf("visibility = %v", vis)
	}
}

func TestLinkedInHandlerClassifiesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewLinkedInHandler("expired-token", "urn:li:person:abc")
	h.SetBaseURL(srv.URL)

	err := h.Execute(context.Background(), map[string]any{"text": "hello"})
	if err == nil {
		t.Fatal("Execute succeeded")
	}
	if !errors.IsPermanent(err) {
		t.Errorf("err = %v, want permanent", err)
	}
}

func TestLinkedInHandlerRejectsMalformedDetails(t *testing.T) {
	h := NewLinkedInHandler("token-1", "urn:li:person:abc")

	for name, raw := range map[string]map[string]any{
		"empty text":     {"text": "   "},
		"bad visibility": {"text": "hi", "visibility": "EVERYONE"},
	} {
		t.Run(name, func(t *testing.T) {
			err := h.Execute(context.Background(), raw)
			if err == nil {
				t.Fatal("Execute succeeded")
			}
			if !errors.IsPermanent(err) {
				t.Errorf("err = %v, want permanent", err)
			}
		})
	}
}

func TestLinkedInHandlerActionType(t *testing.T) {
	if got := NewLinkedInHandler("", "").ActionType(); got != approval.ActionPostLinkedIn {
		t.Errorf("ActionType() = %s", got)
	}
}
