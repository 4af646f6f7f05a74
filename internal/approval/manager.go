package approval

import (
	"context"
	"fmt"
	"time"

	"aide/internal/logging"
	"aide/internal/notify"
	"aide/internal/observability"
	id "aide/internal/utils/id"
)

// DefaultTimeout bounds how long a request may wait for review.
const DefaultTimeout = 24 * time.Hour

// Alerter is the notification surface the manager needs. Fire-and-forget;
// implementations must never return errors or panic into the caller.
type Alerter interface {
	Notify(title, body string, priority notify.Priority)
}

// Manager is the entry point for proposing sensitive actions. It validates,
// classifies and, when approval is required, persists a pending request and
// alerts the reviewer.
type Manager struct {
	store      Store
	classifier *Classifier
	alerts     Alerter
	timeout    time.Duration
	logger     logging.Logger
	now        func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout overrides the default 24h review window.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithAlerter attaches the reviewer notification surface.
func WithAlerter(alerts Alerter) ManagerOption {
	return func(m *Manager) { m.alerts = alerts }
}

// WithManagerLogger sets the manager's logger.
func WithManagerLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logging.OrNop(logger) }
}

// WithClock overrides the manager's time source. Test hook.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over the given store and classification policy.
func NewManager(store Store, classifier *Classifier, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		classifier: classifier,
		timeout:    DefaultTimeout,
		logger:     logging.NewComponentLogger("ApprovalManager"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create proposes an action. Malformed details and unknown action types are
// rejected synchronously and never stored. When the classifier waves the
// action through, the returned request carries AutoApproved=true and bypasses
// the store entirely; the caller may execute it directly. Otherwise a pending
// request is persisted and the reviewer is alerted; a persist failure
// propagates so no sensitive action proceeds without a durable record.
func (m *Manager) Create(ctx context.Context, actionType ActionType, raw map[string]any) (*Request, error) {
	details, err := ParseDetails(actionType, raw)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := details.Validate(); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requiresApproval, riskScore := m.classifier.Classify(actionType, raw)

	now := m.now()
	req := &Request{
		ID:         id.NewRequestID(),
		ActionType: actionType,
		Details:    details.Map(),
		RiskScore:  riskScore,
		CreatedAt:  now,
	}

	if !requiresApproval {
		req.Status = StatusApproved
		req.AutoApproved = true
		at := now
		req.ApprovedAt = &at
		m.logger.Info("Auto-approved %s (%s, risk %d)", req.ID, actionType, riskScore)
		return req, nil
	}

	req.Status = StatusPending
	req.ExpiresAt = now.Add(m.timeout)

	if err := m.store.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("persist request %s: %w", req.ID, err)
	}

	observability.Default().RequestsCreated.WithLabelValues(string(actionType)).Inc()
	m.logger.Info("Created pending request %s (%s, risk %d, expires %s)",
		req.ID, actionType, riskScore, req.ExpiresAt.Format(time.RFC3339))

	if m.alerts != nil {
		priority := notify.PriorityNormal
		if riskScore >= 80 {
			priority = notify.PriorityHigh
		}
		m.alerts.Notify(
			"Approval required",
			fmt.Sprintf("%s to %s (risk %d): edit %s in the vault to decide",
				actionType, recipientOrDash(details), riskScore, req.ID),
			priority,
		)
	}

	return req, nil
}

// GetStatus returns the request's current status. Read-only; callers never
// move backing records themselves, the poller owns transitions.
func (m *Manager) GetStatus(ctx context.Context, requestID string) (Status, error) {
	req, err := m.store.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

func recipientOrDash(details Details) string {
	if r := details.Recipient(); r != "" {
		return r
	}
	return "-"
}
