package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"aide/internal/approval"
	"aide/internal/errors"
	"aide/internal/logging"
)

const linkedinPostTimeout = 15 * time.Second

// LinkedInHandler publishes approved posts through the LinkedIn UGC posts
// API on behalf of a member.
type LinkedInHandler struct {
	client    *http.Client
	baseURL   string
	token     string
	authorURN string
	logger    logging.Logger
}

// NewLinkedInHandler creates a handler posting as the given author URN,
// e.g. "urn:li:person:abc123".
func NewLinkedInHandler(token, authorURN string) *LinkedInHandler {
	return &LinkedInHandler{
		client:    &http.Client{Timeout: linkedinPostTimeout},
		baseURL:   "https://api.linkedin.com/v2",
		token:     token,
		authorURN: authorURN,
		logger:    logging.NewComponentLogger("LinkedInHandler"),
	}
}

// SetBaseURL points the handler at a different API root. Test hook.
func (h *LinkedInHandler) SetBaseURL(baseURL string) {
	h.baseURL = strings.TrimRight(baseURL, "/")
}

func (h *LinkedInHandler) ActionType() approval.ActionType {
	return approval.ActionPostLinkedIn
}

func (h *LinkedInHandler) Execute(ctx context.Context, raw map[string]any) error {
	details, err := approval.ParseDetails(approval.ActionPostLinkedIn, raw)
	if err != nil {
		return errors.NewPermanentError(err, "malformed linkedin details")
	}
	if err := details.Validate(); err != nil {
		return errors.NewPermanentError(err, "malformed linkedin details")
	}
	post := details.(approval.LinkedInDetails)

	visibility := post.Visibility
	if visibility == "" {
		visibility = "PUBLIC"
	}

	payload, err := json.Marshal(map[string]any{
		"author":         h.authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": post.Text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": visibility,
		},
	})
	if err != nil {
		return errors.NewPermanentError(err, "encode linkedin payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return errors.NewPermanentError(err, "build linkedin request")
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.NewTransientError(err, "linkedin api unreachable")
	}
	defer resp.Body.Close()

	if err := classifyResponse(resp, "linkedin api"); err != nil {
		return err
	}

	h.logger.Info("LinkedIn post published (%s)", visibility)
	return nil
}
