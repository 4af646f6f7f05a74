package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the port through which the pipeline persists and retrieves
// approval requests. The storage mechanism is an implementation detail; the
// state machine contract is not.
//
// ListPending may return requests whose Status field a human has already
// edited to approved or rejected; the canonical state stays pending until a
// Transition call records the decision.
type Store interface {
	// Create persists a new pending request. Persist failures must surface
	// to the caller; a sensitive action without a durable record must not
	// proceed.
	Create(ctx context.Context, req *Request) error
	// Get retrieves the request with the given ID. Returns an error
	// wrapping ErrNotFound if no request exists.
	Get(ctx context.Context, id string) (*Request, error)
	// ListPending returns all requests whose canonical state is pending.
	ListPending(ctx context.Context) ([]*Request, error)
	// ListApproved returns all requests whose canonical state is approved.
	// In normal operation a request is approved and finalized within one
	// poll cycle; anything lingering here was interrupted mid-execution.
	ListApproved(ctx context.Context) ([]*Request, error)
	// Transition moves the request to the given status, enforcing the state
	// graph. Illegal transitions return an error wrapping
	// ErrInvalidTransition and leave state unchanged.
	Transition(ctx context.Context, id string, to Status, reason string) (*Request, error)
	// RecordResult finalizes an approved request with its execution
	// outcome, transitioning to executed or failed.
	RecordResult(ctx context.Context, id string, result ExecutionResult) (*Request, error)
}

// ApplyTransition mutates req for the from->to transition. Callers must have
// already checked CanTransition.
func ApplyTransition(req *Request, to Status, reason string, now time.Time) {
	req.Status = to
	switch to {
	case StatusApproved:
		at := now
		req.ApprovedAt = &at
	case StatusRejected:
		at := now
		req.RejectedAt = &at
		if reason == "" {
			reason = "rejected by reviewer"
		}
		req.RejectionReason = reason
	case StatusExpired:
		at := now
		req.RejectedAt = &at
		if reason == "" {
			reason = "approval window expired"
		}
		req.RejectionReason = reason
	}
}

// MemoryStore is an in-memory Store used by tests and dry runs. It tracks
// the canonical status separately from the request's Status field so tests
// can simulate a human editing the backing record.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	req       *Request
	canonical Status
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the store's time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemoryStore) Create(_ context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[req.ID]; exists {
		return fmt.Errorf("request %s already exists", req.ID)
	}
	s.entries[req.ID] = &memoryEntry{req: req.Clone(), canonical: req.Status}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry.req.Clone(), nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]*Request, error) {
	return s.listCanonical(StatusPending), nil
}

func (s *MemoryStore) ListApproved(_ context.Context) ([]*Request, error) {
	return s.listCanonical(StatusApproved), nil
}

func (s *MemoryStore) listCanonical(status Status) []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*Request
	for _, entry := range s.entries {
		if entry.canonical == status {
			matched = append(matched, entry.req.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

func (s *MemoryStore) Transition(_ context.Context, id string, to Status, reason string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !CanTransition(entry.canonical, to) {
		return nil, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, entry.canonical, to, id)
	}
	ApplyTransition(entry.req, to, reason, s.now())
	entry.canonical = to
	return entry.req.Clone(), nil
}

func (s *MemoryStore) RecordResult(_ context.Context, id string, result ExecutionResult) (*Request, error) {
	to := StatusExecuted
	if !result.Success {
		to = StatusFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !CanTransition(entry.canonical, to) {
		return nil, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, entry.canonical, to, id)
	}
	ApplyTransition(entry.req, to, result.Error, s.now())
	res := result
	entry.req.Result = &res
	entry.canonical = to
	return entry.req.Clone(), nil
}

// EditStatus simulates a human editing the backing record's status field
// without a canonical transition, the way a reviewer edits a request file in
// the vault. Test hook.
func (s *MemoryStore) EditStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry.req.Status = status
	return nil
}
