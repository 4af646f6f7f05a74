package approval

import (
	"fmt"
	"time"
)

// ActionType identifies the kind of side effect a request proposes.
type ActionType string

const (
	ActionSendEmail    ActionType = "send_email"
	ActionSendWhatsApp ActionType = "send_whatsapp"
	ActionPostLinkedIn ActionType = "post_linkedin"
)

// Status represents the lifecycle state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

// validStatuses enumerates all accepted status values.
var validStatuses = map[Status]bool{
	StatusPending:  true,
	StatusApproved: true,
	StatusRejected: true,
	StatusExpired:  true,
	StatusExecuted: true,
	StatusFailed:   true,
}

// IsValid returns true if the status is one of the recognized values.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusExpired, StatusExecuted, StatusFailed:
		return true
	}
	return false
}

// allowedTransitions encodes the state machine:
// pending -> {approved, rejected, expired}; approved -> {executed, failed}.
var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusExpired},
	StatusApproved: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is wrapped by errors returned for illegal transitions.
var ErrInvalidTransition = fmt.Errorf("invalid status transition")

// ErrNotFound is wrapped by errors returned when a request lookup fails.
var ErrNotFound = fmt.Errorf("approval request not found")

// ExecutionResult records the outcome of running an approved action.
type ExecutionResult struct {
	Success  bool   `yaml:"success" json:"success"`
	Error    string `yaml:"error,omitempty" json:"error,omitempty"`
	Attempts int    `yaml:"attempts" json:"attempts"`
}

// Request is one proposed sensitive action awaiting or past human review.
//
// The request is owned by the store while pending; the decision belongs to
// the human the moment the request becomes visible. After approval the
// executor treats the request as immutable except for the execution result.
type Request struct {
	ID              string           `yaml:"id" json:"id"`
	ActionType      ActionType       `yaml:"action_type" json:"action_type"`
	Details         map[string]any   `yaml:"action_details" json:"action_details"`
	RiskScore       int              `yaml:"risk_score" json:"risk_score"`
	Status          Status           `yaml:"status" json:"status"`
	CreatedAt       time.Time        `yaml:"created_at" json:"created_at"`
	ExpiresAt       time.Time        `yaml:"expires_at" json:"expires_at"`
	ApprovedAt      *time.Time       `yaml:"approved_at,omitempty" json:"approved_at,omitempty"`
	RejectedAt      *time.Time       `yaml:"rejected_at,omitempty" json:"rejected_at,omitempty"`
	RejectionReason string           `yaml:"rejection_reason,omitempty" json:"rejection_reason,omitempty"`
	Result          *ExecutionResult `yaml:"execution_result,omitempty" json:"execution_result,omitempty"`

	// Body is the free-form markdown shown to the reviewer under the front
	// matter. Not part of the record contract.
	Body string `yaml:"-" json:"-"`

	// AutoApproved marks a request the classifier waved through. Such
	// requests bypass the store entirely and never enter the state machine.
	AutoApproved bool `yaml:"-" json:"-"`
}

// Validate checks that the request has the minimum required fields.
func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("request: id is required")
	}
	if r.ActionType == "" {
		return fmt.Errorf("request: action_type is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("request: invalid status %q", r.Status)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("request: created_at is required")
	}
	return nil
}

// ExpiredAt reports whether the request's review window has passed at the
// given instant. Expiry is lazy; it only takes effect when a poll cycle
// observes it.
func (r *Request) ExpiredAt(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Clone returns a deep copy so store internals never alias caller state.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Details != nil {
		cp.Details = make(map[string]any, len(r.Details))
		for k, v := range r.Details {
			cp.Details[k] = v
		}
	}
	if r.ApprovedAt != nil {
		at := *r.ApprovedAt
		cp.ApprovedAt = &at
	}
	if r.RejectedAt != nil {
		at := *r.RejectedAt
		cp.RejectedAt = &at
	}
	if r.Result != nil {
		res := *r.Result
		cp.Result = &res
	}
	return &cp
}
