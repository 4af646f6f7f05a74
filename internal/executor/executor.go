package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"aide/internal/approval"
	"aide/internal/errors"
	"aide/internal/logging"
	"aide/internal/observability"
)

// Handler executes one kind of approved action. Implementations perform the
// actual side effect and classify failures through the errors package so the
// executor can tell transient faults from permanent ones.
type Handler interface {
	// ActionType returns the action type this handler serves.
	ActionType() approval.ActionType
	// Execute performs the action described by details. A nil return means
	// the side effect happened.
	Execute(ctx context.Context, details map[string]any) error
}

// Executor runs approved actions through their registered handlers with
// bounded retries and a per-handler circuit breaker. It never transitions
// requests itself; it reports an ExecutionResult and leaves persistence to
// the caller.
type Executor struct {
	mu       sync.RWMutex
	handlers map[approval.ActionType]Handler
	breakers map[approval.ActionType]*errors.CircuitBreaker

	retry   errors.RetryConfig
	breaker errors.CircuitBreakerConfig
	logger  logging.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryConfig overrides the default 2s/4s backoff schedule.
func WithRetryConfig(cfg errors.RetryConfig) Option {
	return func(e *Executor) { e.retry = cfg }
}

// WithBreakerConfig overrides the per-handler circuit breaker settings.
func WithBreakerConfig(cfg errors.CircuitBreakerConfig) Option {
	return func(e *Executor) { e.breaker = cfg }
}

// WithLogger sets the executor's logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Executor) { e.logger = logging.OrNop(logger) }
}

// New creates an Executor with no handlers registered.
func New(opts ...Option) *Executor {
	e := &Executor{
		handlers: make(map[approval.ActionType]Handler),
		breakers: make(map[approval.ActionType]*errors.CircuitBreaker),
		retry:    errors.DefaultRetryConfig(),
		breaker:  errors.DefaultCircuitBreakerConfig(),
		logger:   logging.NewComponentLogger("Executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	// Retry transient faults only. A permanent or configuration failure will
	// fail identically on every attempt.
	if e.retry.RetryIf == nil {
		e.retry.RetryIf = errors.IsTransient
	}
	return e
}

// Register adds a handler. Registering two handlers for the same action type
// is a wiring bug and fails loudly.
func (e *Executor) Register(h Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	actionType := h.ActionType()
	if _, exists := e.handlers[actionType]; exists {
		return fmt.Errorf("handler already registered for %s", actionType)
	}
	e.handlers[actionType] = h
	e.breakers[actionType] = errors.NewCircuitBreaker(string(actionType), e.breaker)
	return nil
}

// Handlers returns the registered action types, sorted.
func (e *Executor) Handlers() []approval.ActionType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	types := make([]approval.ActionType, 0, len(e.handlers))
	for t := range e.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Execute runs the request's action and reports the outcome. It never
// returns an error: every failure mode, including a missing handler, is
// folded into the result so the caller can record it as a terminal state.
func (e *Executor) Execute(ctx context.Context, req *approval.Request) approval.ExecutionResult {
	e.mu.RLock()
	handler, registered := e.handlers[req.ActionType]
	breaker := e.breakers[req.ActionType]
	e.mu.RUnlock()

	if !registered {
		// An approved request for an unknown type means the classifier and
		// the handler registry disagree. Nothing to retry.
		err := errors.NewConfigurationError(nil,
			fmt.Sprintf("no handler registered for action type %q", req.ActionType))
		e.logger.Error("Request %s: %v", req.ID, err)
		e.recordOutcome(req.ActionType, "config_error", 0)
		return approval.ExecutionResult{Success: false, Error: err.Error(), Attempts: 0}
	}

	if err := breaker.Allow(); err != nil {
		e.logger.Warn("Request %s: circuit open for %s, refusing execution", req.ID, req.ActionType)
		e.recordOutcome(req.ActionType, "circuit_open", 0)
		return approval.ExecutionResult{Success: false, Error: err.Error(), Attempts: 0}
	}

	_, attempts, err := errors.RetryWithResultAndAttempts(ctx, e.retry,
		func(ctx context.Context) (struct{}, error) {
			execErr := handler.Execute(ctx, req.Details)
			breaker.Mark(execErr == nil)
			return struct{}{}, execErr
		}, e.logger)

	if err != nil {
		e.logger.Error("Request %s failed after %d attempts: %v", req.ID, attempts, err)
		e.recordOutcome(req.ActionType, "failed", attempts)
		return approval.ExecutionResult{Success: false, Error: err.Error(), Attempts: attempts}
	}

	e.logger.Info("Request %s executed (%s, %d attempts)", req.ID, req.ActionType, attempts)
	e.recordOutcome(req.ActionType, "executed", attempts)
	return approval.ExecutionResult{Success: true, Attempts: attempts}
}

func (e *Executor) recordOutcome(actionType approval.ActionType, outcome string, attempts int) {
	m := observability.Default()
	m.ExecutionsTotal.WithLabelValues(string(actionType), outcome).Inc()
	if attempts > 0 {
		m.HandlerAttempts.Observe(float64(attempts))
	}
}
