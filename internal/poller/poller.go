package poller

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"aide/internal/approval"
	"aide/internal/async"
	"aide/internal/executor"
	"aide/internal/logging"
	"aide/internal/notify"
	"aide/internal/observability"
)

// DefaultInterval is how often the poller scans for human decisions.
const DefaultInterval = 10 * time.Second

// reminderCacheSize bounds the set of requests the poller has already
// nagged the reviewer about.
const reminderCacheSize = 512

// Poller periodically scans pending approval requests, applies expiry,
// records human decisions as canonical transitions, and hands approved
// requests to the executor. It is the only component that moves requests
// through the state machine.
type Poller struct {
	store    approval.Store
	exec     *executor.Executor
	alerts   approval.Alerter
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time

	// reminded tracks requests the reviewer was already alerted about so a
	// long-lived pending request does not ping on every cycle.
	reminded *lru.Cache[string, struct{}]
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides the default scan interval.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithAlerter attaches the notification surface for decision outcomes.
func WithAlerter(alerts approval.Alerter) Option {
	return func(p *Poller) { p.alerts = alerts }
}

// WithLogger sets the poller's logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Poller) { p.logger = logging.OrNop(logger) }
}

// WithClock overrides the poller's time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New creates a Poller over the given store and executor.
func New(store approval.Store, exec *executor.Executor, opts ...Option) *Poller {
	reminded, _ := lru.New[string, struct{}](reminderCacheSize)
	p := &Poller{
		store:    store,
		exec:     exec,
		interval: DefaultInterval,
		logger:   logging.NewComponentLogger("ApprovalPoller"),
		now:      time.Now,
		reminded: reminded,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is cancelled. The first cycle runs
// immediately.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Poller started (interval %s)", p.interval)
	p.recoverInterrupted(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			p.logger.Error("Poll cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs a single scan cycle. Listing failures return an error; failures
// while processing an individual request are contained so one bad record
// never blocks the rest of the queue.
func (p *Poller) Poll(ctx context.Context) error {
	start := time.Now()
	pending, err := p.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending requests: %w", err)
	}

	for _, req := range pending {
		req := req
		if !async.Guard(p.logger, "process "+req.ID, func() {
			p.process(ctx, req)
		}) {
			p.notify("Approval pipeline error",
				fmt.Sprintf("processing %s panicked, see logs", req.ID), notify.PriorityHigh)
		}
	}

	m := observability.Default()
	m.PollCycles.Inc()
	m.PollCycleDuration.Observe(time.Since(start).Seconds())
	m.PendingRequests.Set(float64(len(pending)))
	return nil
}

// process handles one pending request. Expiry is checked before the human's
// edit so a decision written after the deadline does not count.
func (p *Poller) process(ctx context.Context, req *approval.Request) {
	if req.ExpiredAt(p.now()) {
		p.transition(ctx, req.ID, approval.StatusExpired, "")
		p.notify("Approval request expired",
			fmt.Sprintf("%s (%s) was not reviewed in time", req.ID, req.ActionType), notify.PriorityNormal)
		return
	}

	switch req.Status {
	case approval.StatusApproved:
		p.executeApproved(ctx, req)
	case approval.StatusRejected:
		if p.transition(ctx, req.ID, approval.StatusRejected, req.RejectionReason) {
			p.notify("Action rejected",
				fmt.Sprintf("%s (%s) rejected by reviewer", req.ID, req.ActionType), notify.PriorityNormal)
		}
	case approval.StatusPending:
		p.remind(req)
	default:
		// A reviewer wrote something unrecognized into the status field.
		// Leave the record pending; the edit is theirs to fix.
		p.logger.Warn("Request %s has unrecognized status %q, leaving pending", req.ID, req.Status)
	}
}

// executeApproved re-reads the request, records the approval, and runs the
// action. The re-read catches a reviewer who changed their decision after the
// scan snapshot was taken; the canonical transition is the gate: if it fails
// because another cycle already moved the request, nothing is executed twice.
func (p *Poller) executeApproved(ctx context.Context, req *approval.Request) {
	fresh, err := p.store.Get(ctx, req.ID)
	if err != nil {
		p.logger.Warn("Request %s: re-read before execution failed, skipping: %v", req.ID, err)
		return
	}
	switch fresh.Status {
	case approval.StatusApproved:
	case approval.StatusRejected:
		if p.transition(ctx, req.ID, approval.StatusRejected, fresh.RejectionReason) {
			p.notify("Action rejected",
				fmt.Sprintf("%s (%s) rejected by reviewer", req.ID, req.ActionType), notify.PriorityNormal)
		}
		return
	default:
		p.logger.Info("Request %s no longer approved (now %q), skipping execution", req.ID, fresh.Status)
		return
	}

	approved, err := p.store.Transition(ctx, req.ID, approval.StatusApproved, "")
	if err != nil {
		p.logger.Warn("Request %s not transitioned to approved, skipping execution: %v", req.ID, err)
		return
	}

	result := p.exec.Execute(ctx, approved)
	if _, err := p.store.RecordResult(ctx, req.ID, result); err != nil {
		p.logger.Error("Request %s: failed to record execution result: %v", req.ID, err)
		return
	}

	if result.Success {
		observability.Default().RequestsResolved.WithLabelValues(string(approval.StatusExecuted)).Inc()
		p.notify("Action executed",
			fmt.Sprintf("%s (%s) completed after %d attempt(s)", req.ID, req.ActionType, result.Attempts),
			notify.PriorityNormal)
		return
	}

	observability.Default().RequestsResolved.WithLabelValues(string(approval.StatusFailed)).Inc()
	p.notify("Action failed",
		fmt.Sprintf("%s (%s) failed: %s", req.ID, req.ActionType, result.Error), notify.PriorityHigh)
}

// recoverInterrupted finalizes requests stranded in the approved state by a
// crash between the approval transition and the result recording. Whether the
// action actually went out is unknowable, so the record becomes a failure and
// nothing is re-executed; the alert tells the reviewer to check before
// retrying.
func (p *Poller) recoverInterrupted(ctx context.Context) {
	stranded, err := p.store.ListApproved(ctx)
	if err != nil {
		p.logger.Error("Recovery sweep failed: %v", err)
		return
	}
	for _, req := range stranded {
		result := approval.ExecutionResult{
			Error: "interrupted before the execution outcome was recorded",
		}
		if _, err := p.store.RecordResult(ctx, req.ID, result); err != nil {
			p.logger.Error("Request %s: failed to finalize interrupted execution: %v", req.ID, err)
			continue
		}
		observability.Default().RequestsResolved.WithLabelValues(string(approval.StatusFailed)).Inc()
		p.notify("Action outcome unknown",
			fmt.Sprintf("%s (%s) was approved before a restart; marked failed, verify before retrying",
				req.ID, req.ActionType), notify.PriorityHigh)
	}
}

// transition applies a canonical transition, treating an already-moved
// request as a benign race rather than an error.
func (p *Poller) transition(ctx context.Context, id string, to approval.Status, reason string) bool {
	if _, err := p.store.Transition(ctx, id, to, reason); err != nil {
		p.logger.Warn("Request %s not transitioned to %s: %v", id, to, err)
		return false
	}
	observability.Default().RequestsResolved.WithLabelValues(string(to)).Inc()
	return true
}

// remind alerts the reviewer about a request still awaiting a decision, at
// most once per request.
func (p *Poller) remind(req *approval.Request) {
	if p.alerts == nil {
		return
	}
	if _, seen := p.reminded.Get(req.ID); seen {
		return
	}
	p.reminded.Add(req.ID, struct{}{})
	p.notify("Awaiting review",
		fmt.Sprintf("%s (%s, risk %d) expires %s", req.ID, req.ActionType, req.RiskScore,
			req.ExpiresAt.Format(time.RFC3339)), notify.PriorityLow)
}

func (p *Poller) notify(title, body string, priority notify.Priority) {
	if p.alerts == nil {
		return
	}
	p.alerts.Notify(title, body, priority)
}
