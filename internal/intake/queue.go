package intake

import (
	"context"
	"fmt"
	"sync"

	"aide/internal/approval"
	id "aide/internal/utils/id"
)

// Proposal is one action suggestion waiting to enter the approval pipeline.
// Watchers and scheduled triggers enqueue proposals; the intake worker turns
// them into approval requests.
type Proposal struct {
	// ID is assigned on enqueue and ties log lines to the resulting request.
	ID         string
	ActionType approval.ActionType
	Details    map[string]any
	// Source names the producer for logging, e.g. "scheduler" or "cli".
	Source string
}

// Queue is a bounded, non-blocking proposal buffer. Enqueue never blocks a
// producer; a full queue rejects the proposal instead.
type Queue struct {
	proposals chan Proposal

	// mu orders Enqueue's closed check against Close's channel close so a
	// producer can never send on a closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue holding at most bufferSize proposals.
func NewQueue(bufferSize int) *Queue {
	return &Queue{
		proposals: make(chan Proposal, bufferSize),
	}
}

// Enqueue adds a proposal, assigning its ID. Returns an error when the queue
// is closed or full.
func (q *Queue) Enqueue(p Proposal) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("intake queue is closed")
	}
	if p.ID == "" {
		p.ID = id.NewProposalID()
	}
	select {
	case q.proposals <- p:
		return nil
	default:
		return fmt.Errorf("intake queue is full")
	}
}

// Dequeue blocks until a proposal is available or the context is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (Proposal, error) {
	select {
	case p, ok := <-q.proposals:
		if !ok {
			return Proposal{}, fmt.Errorf("intake queue is closed")
		}
		return p, nil
	case <-ctx.Done():
		return Proposal{}, ctx.Err()
	}
}

// Len returns the number of buffered proposals.
func (q *Queue) Len() int {
	return len(q.proposals)
}

// Close stops the queue. Buffered proposals can still be dequeued.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("already closed")
	}
	q.closed = true
	close(q.proposals)
	return nil
}
