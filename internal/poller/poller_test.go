package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"aide/internal/approval"
	aideerrors "aide/internal/errors"
	"aide/internal/executor"
	"aide/internal/notify"
)

type countingHandler struct {
	actionType approval.ActionType
	calls      int
	panicOn    string
	failWith   error
}

func (h *countingHandler) ActionType() approval.ActionType { return h.actionType }

func (h *countingHandler) Execute(_ context.Context, details map[string]any) error {
	h.calls++
	if h.panicOn != "" && details["to"] == h.panicOn {
		panic("handler blew up")
	}
	return h.failWith
}

type silentAlerter struct {
	titles []string
}

func (a *silentAlerter) Notify(title, _ string, _ notify.Priority) {
	a.titles = append(a.titles, title)
}

func fastExecutor(handlers ...executor.Handler) *executor.Executor {
	cfg := aideerrors.DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	e := executor.New(executor.WithRetryConfig(cfg))
	for _, h := range handlers {
		if err := e.Register(h); err != nil {
			panic(err)
		}
	}
	return e
}

func seedPending(t *testing.T, store *approval.MemoryStore, id, to string, expiresAt time.Time) {
	t.Helper()
	now := expiresAt.Add(-24 * time.Hour)
	err := store.Create(context.Background(), &approval.Request{
		ID:         id,
		ActionType: approval.ActionSendEmail,
		Details:    map[string]any{"to": to, "subject": "s"},
		RiskScore:  70,
		Status:     approval.StatusPending,
		CreatedAt:  now,
		ExpiresAt:  expiresAt,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestPollExecutesApprovedRequest(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{actionType: approval.ActionSendEmail}
	alerts := &silentAlerter{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler),
		WithAlerter(alerts),
		WithClock(func() time.Time { return now }),
	)

	seedPending(t, store, "req-1", "a@b.com", now.Add(time.Hour))
	if err := store.EditStatus("req-1", approval.StatusApproved); err != nil {
		t.Fatalf("EditStatus: %v", err)
	}

	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != approval.StatusExecuted {
		t.Errorf("status = %s, want executed", got.Status)
	}
	if got.Result == nil || !got.Result.Success || got.Result.Attempts != 1 {
		t.Errorf("result = %+v", got.Result)
	}
	if handler.calls != 1 {
		t.Errorf("handler called %d times", handler.calls)
	}
}

func TestPollIsIdempotentOnDecidedRequests(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{actionType: approval.ActionSendEmail}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler), WithClock(func() time.Time { return now }))

	seedPending(t, store, "req-1", "a@b.com", now.Add(time.Hour))
	if err := store.EditStatus("req-1", approval.StatusApproved); err != nil {
		t.Fatalf("EditStatus: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := p.Poll(ctx); err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
	}
	if handler.calls != 1 {
		t.Errorf("handler called %d times across repeated cycles, want 1", handler.calls)
	}
}

func TestPollRecordsRejection(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{actionType: approval.ActionSendEmail}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler), WithClock(func() time.Time { return now }))

	seedPending(t, store, "req-1", "a@b.com", now.Add(time.Hour))
	if err := store.EditStatus("req-1", approval.StatusRejected); err != nil {
		t.Fatalf("EditStatus: %v", err)
	}

	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got, _ := store.Get(ctx, "req-1")
	if got.Status != approval.StatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	if handler.calls != 0 {
		t.Errorf("handler called %d times for a rejected request", handler.calls)
	}
}

func TestPollExpiryBeatsLateApproval(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{actionType: approval.ActionSendEmail}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler), WithClock(func() time.Time { return now }))

	// The review window closed an hour ago; the reviewer's approval came too
	// late to count.
	seedPending(t, store, "req-1", "a@b.com", now.Add(-time.Hour))
	if err := store.EditStatus("req-1", approval.StatusApproved); err != nil {
		t.Fatalf("EditStatus: %v", err)
	}

	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got, _ := store.Get(ctx, "req-1")
	if got.Status != approval.StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
	if handler.calls != 0 {
		t.Errorf("handler called %d times for an expired request", handler.calls)
	}
}

// laggingStore simulates a reviewer changing their decision between the scan
// snapshot and the moment the poller acts on it.
type laggingStore struct {
	*approval.MemoryStore
	flipped bool
}

func (s *laggingStore) ListPending(ctx context.Context) ([]*approval.Request, error) {
	pending, err := s.MemoryStore.ListPending(ctx)
	if err != nil || s.flipped {
		return pending, err
	}
	for _, req := range pending {
		if req.Status == approval.StatusApproved {
			s.flipped = true
			if err := s.EditStatus(req.ID, approval.StatusRejected); err != nil {
				return nil, err
			}
		}
	}
	return pending, nil
}

func TestPollHonorsDecisionChangedAfterScan(t *testing.T) {
	ctx := context.Background()
	store := &laggingStore{MemoryStore: approval.NewMemoryStore()}
	handler := &countingHandler{actionType: approval.ActionSendEmail}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler), WithClock(func() time.Time { return now }))

	seedPending(t, store.MemoryStore, "req-1", "a@b.com", now.Add(time.Hour))
	if err := store.EditStatus("req-1", approval.StatusApproved); err != nil {
		t.Fatalf("EditStatus: %v", err)
	}

	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got, _ := store.Get(ctx, "req-1")
	if got.Status != approval.StatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	if handler.calls != 0 {
		t.Errorf("handler called %d times after the reviewer withdrew approval", handler.calls)
	}
}

func TestRecoverInterruptedFinalizesStrandedApprovals(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{actionType: approval.ActionSendEmail}
	alerts := &silentAlerter{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler),
		WithAlerter(alerts),
		WithClock(func() time.Time { return now }),
	)

	// Approved canonically but never finalized, as after a crash between the
	// approval transition and the result recording.
	seedPending(t, store, "req-1", "a@b.com", now.Add(time.Hour))
	if _, err := store.Transition(ctx, "req-1", approval.StatusApproved, ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	p.recoverInterrupted(ctx)

	got, err := store.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != approval.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Result == nil || got.Result.Success {
		t.Errorf("result = %+v", got.Result)
	}
	if handler.calls != 0 {
		t.Errorf("handler called %d times during recovery", handler.calls)
	}

	var sawAlert bool
	for _, title := range alerts.titles {
		if title == "Action outcome unknown" {
			sawAlert = true
		}
	}
	if !sawAlert {
		t.Errorf("no recovery alert; alerts = %v", alerts.titles)
	}
}

func TestPollFailedExecutionRecordsFailure(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{
		actionType: approval.ActionSendEmail,
		failWith:   aideerrors.NewTransientError(nil, "gateway timeout"),
	}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler), WithClock(func() time.Time { return now }))

	seedPending(t, store, "req-1", "a@b.com", now.Add(time.Hour))
	if err := store.EditStatus("req-1", approval.StatusApproved); err != nil {
		t.Fatalf("EditStatus: %v", err)
	}

	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	got, _ := store.Get(ctx, "req-1")
	if got.Status != approval.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Result == nil || got.Result.Success || got.Result.Attempts != 3 {
		t.Errorf("result = %+v", got.Result)
	}
}

func TestPollUnrecognizedEditLeavesRequestPending(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{actionType: approval.ActionSendEmail}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler), WithClock(func() time.Time { return now }))

	seedPending(t, store, "req-1", "a@b.com", now.Add(time.Hour))
	if err := store.EditStatus("req-1", approval.Status("maybe")); err != nil {
		t.Fatalf("EditStatus: %v", err)
	}

	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	pending, _ := store.ListPending(ctx)
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
	if handler.calls != 0 {
		t.Errorf("handler called %d times", handler.calls)
	}
}

func TestPollIsolatesPanickingRequest(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	handler := &countingHandler{actionType: approval.ActionSendEmail, panicOn: "boom@example.com"}
	alerts := &silentAlerter{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(handler),
		WithAlerter(alerts),
		WithClock(func() time.Time { return now }),
	)

	seedPending(t, store, "req-1", "boom@example.com", now.Add(time.Hour))
	seedPending(t, store, "req-2", "a@b.com", now.Add(time.Hour))
	for _, id := range []string{"req-1", "req-2"} {
		if err := store.EditStatus(id, approval.StatusApproved); err != nil {
			t.Fatalf("EditStatus: %v", err)
		}
	}

	if err := p.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// The panicking request must not take down the cycle.
	got, _ := store.Get(ctx, "req-2")
	if got.Status != approval.StatusExecuted {
		t.Errorf("req-2 status = %s, want executed", got.Status)
	}

	var sawPipelineAlert bool
	for _, title := range alerts.titles {
		if title == "Approval pipeline error" {
			sawPipelineAlert = true
		}
	}
	if !sawPipelineAlert {
		t.Errorf("no pipeline alert for panicking request; alerts = %v", alerts.titles)
	}
}

type brokenStore struct {
	approval.Store
}

func (brokenStore) ListPending(context.Context) ([]*approval.Request, error) {
	return nil, errors.New("vault unreachable")
}

func TestPollSurfacesListingFailure(t *testing.T) {
	p := New(brokenStore{}, fastExecutor())
	if err := p.Poll(context.Background()); err == nil {
		t.Fatal("Poll succeeded with an unreachable store")
	}
}

func TestPollRemindsAboutPendingOnce(t *testing.T) {
	ctx := context.Background()
	store := approval.NewMemoryStore()
	alerts := &silentAlerter{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := New(store, fastExecutor(), WithAlerter(alerts), WithClock(func() time.Time { return now }))

	seedPending(t, store, "req-1", "a@b.com", now.Add(time.Hour))

	for i := 0; i < 3; i++ {
		if err := p.Poll(ctx); err != nil {
			t.Fatalf("Poll %d: %v", i, err)
		}
	}

	var reminders int
	for _, title := range alerts.titles {
		if title == "Awaiting review" {
			reminders++
		}
	}
	if reminders != 1 {
		t.Errorf("reminders = %d, want 1", reminders)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := approval.NewMemoryStore()
	p := New(store, fastExecutor(), WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
