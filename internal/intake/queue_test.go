package intake

import (
	"context"
	"sync"
	"testing"
	"time"

	"aide/internal/approval"
	aideerrors "aide/internal/errors"
	"aide/internal/executor"
	"aide/internal/logging"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	q := NewQueue(2)
	p := Proposal{ActionType: approval.ActionSendEmail, Source: "test"}
	if err := q.Enqueue(p); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d", q.Len())
	}

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.Source != "test" {
		t.Errorf("got %+v", got)
	}
}

func TestQueueFullRejectsWithoutBlocking(t *testing.T) {
	q := NewQueue(1)
	if err := q.Enqueue(Proposal{Source: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(Proposal{Source: "b"}); err == nil {
		t.Fatal("full queue accepted a proposal")
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(2)
	if err := q.Enqueue(Proposal{Source: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Close(); err == nil {
		t.Error("double Close succeeded")
	}
	if err := q.Enqueue(Proposal{Source: "b"}); err == nil {
		t.Error("closed queue accepted a proposal")
	}

	// Buffered proposals drain after close.
	if _, err := q.Dequeue(context.Background()); err != nil {
		t.Errorf("Dequeue after close: %v", err)
	}
	if _, err := q.Dequeue(context.Background()); err == nil {
		t.Error("Dequeue on empty closed queue succeeded")
	}
}

func TestQueueCloseDuringEnqueueNeverPanics(t *testing.T) {
	q := NewQueue(4)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				// Errors are expected once closed; a send on the closed
				// channel would panic instead.
				_ = q.Enqueue(Proposal{Source: "race"})
				if j%10 == 0 {
					_, _ = q.Dequeue(context.Background())
				}
			}
		}()
	}

	close(start)
	time.Sleep(time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()
}

func TestQueueDequeueHonorsContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("Dequeue returned without a proposal")
	}
}

type recordedCall struct {
	actionType approval.ActionType
}

type spyHandler struct {
	calls []recordedCall
}

func (h *spyHandler) ActionType() approval.ActionType { return approval.ActionSendEmail }

func (h *spyHandler) Execute(_ context.Context, _ map[string]any) error {
	h.calls = append(h.calls, recordedCall{approval.ActionSendEmail})
	return nil
}

func TestWorkerRoutesProposals(t *testing.T) {
	store := approval.NewMemoryStore()

	// Known recipients auto-approve at a low base score; strangers go to
	// review.
	policy := approval.DefaultPolicy()
	policy.BaseScores[approval.ActionSendEmail] = 20
	policy.KnownRecipients = []string{"me@example.com"}
	manager := approval.NewManager(store, approval.NewClassifier(policy))

	handler := &spyHandler{}
	cfg := aideerrors.DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	exec := executor.New(executor.WithRetryConfig(cfg))
	if err := exec.Register(handler); err != nil {
		t.Fatalf("Register: %v", err)
	}

	q := NewQueue(8)
	w := NewWorker(q, manager, exec, logging.Nop())

	proposals := []Proposal{
		{ActionType: approval.ActionSendEmail, Details: map[string]any{"to": "me@example.com", "subject": "s"}, Source: "scheduler"},
		{ActionType: approval.ActionSendEmail, Details: map[string]any{"to": "stranger@example.org", "subject": "s"}, Source: "scheduler"},
		{ActionType: approval.ActionType("bogus"), Details: map[string]any{}, Source: "scheduler"},
	}
	for _, p := range proposals {
		if err := q.Enqueue(p); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The known-recipient proposal executed immediately.
	if len(handler.calls) != 1 {
		t.Errorf("handler calls = %d, want 1", len(handler.calls))
	}
	// The stranger proposal waits for review; the bogus one was dropped.
	pending, _ := store.ListPending(context.Background())
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}
