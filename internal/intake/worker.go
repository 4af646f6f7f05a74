package intake

import (
	"context"
	"errors"

	"aide/internal/approval"
	"aide/internal/executor"
	"aide/internal/logging"
)

// Worker drains the intake queue into the approval pipeline. A proposal the
// manager rejects (unknown type, malformed details) is logged and dropped;
// it never stops the worker. Auto-approved proposals bypass the store, so
// the worker executes them directly.
type Worker struct {
	queue   *Queue
	manager *approval.Manager
	exec    *executor.Executor
	logger  logging.Logger
}

// NewWorker creates a worker over the given queue, manager, and executor.
func NewWorker(queue *Queue, manager *approval.Manager, exec *executor.Executor, logger logging.Logger) *Worker {
	return &Worker{
		queue:   queue,
		manager: manager,
		exec:    exec,
		logger:  logging.OrNop(logger),
	}
}

// Run processes proposals until the context is cancelled or the queue is
// closed and drained.
func (w *Worker) Run(ctx context.Context) error {
	for {
		proposal, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return nil
		}
		w.handle(ctx, proposal)
	}
}

func (w *Worker) handle(ctx context.Context, proposal Proposal) {
	req, err := w.manager.Create(ctx, proposal.ActionType, proposal.Details)
	if err != nil {
		w.logger.Warn("Dropping proposal %s from %s: %v", proposal.ID, proposal.Source, err)
		return
	}

	if !req.AutoApproved {
		w.logger.Info("Proposal %s from %s queued for review as %s", proposal.ID, proposal.Source, req.ID)
		return
	}

	result := w.exec.Execute(ctx, req)
	if result.Success {
		w.logger.Info("Proposal %s from %s auto-approved and executed as %s (%d attempt(s))",
			proposal.ID, proposal.Source, req.ID, result.Attempts)
	} else {
		w.logger.Error("Proposal %s from %s auto-approved as %s but failed: %s",
			proposal.ID, proposal.Source, req.ID, result.Error)
	}
}
