package scheduler

import (
	"context"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"aide/internal/intake"
	"aide/internal/logging"
)

// Config holds scheduler configuration.
type Config struct {
	Enabled        bool
	StaticTriggers []Trigger
	// TriggersDir, when set, is scanned for file-defined triggers and
	// re-synced every few minutes.
	TriggersDir       string
	ConcurrencyPolicy string // "skip" (default) or "delay"
}

// fileSyncSchedule is how often file-defined triggers are re-scanned.
const fileSyncSchedule = "*/5 * * * *"

// Scheduler fires recurring action proposals on cron schedules. It only
// produces intake proposals; execution and review stay with the approval
// pipeline.
type Scheduler struct {
	cron     *cron.Cron
	queue    *intake.Queue
	store    *FileTriggerStore
	config   Config
	logger   logging.Logger
	mu       sync.Mutex
	entryIDs map[string]cron.EntryID
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler feeding the given intake queue.
func New(cfg Config, queue *intake.Queue, logger logging.Logger) (*Scheduler, error) {
	logger = logging.OrNop(logger)

	var store *FileTriggerStore
	if cfg.TriggersDir != "" {
		var err error
		store, err = NewFileTriggerStore(cfg.TriggersDir)
		if err != nil {
			return nil, err
		}
	}

	return &Scheduler{
		cron:     newCron(cfg, logger),
		queue:    queue,
		store:    store,
		config:   cfg,
		logger:   logger,
		entryIDs: make(map[string]cron.EntryID),
		stopped:  make(chan struct{}),
	}, nil
}

func newCron(cfg Config, logger logging.Logger) *cron.Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	options := []cron.Option{cron.WithParser(parser)}
	policy := strings.ToLower(strings.TrimSpace(cfg.ConcurrencyPolicy))
	var wrapper cron.JobWrapper
	switch policy {
	case "delay":
		wrapper = cron.DelayIfStillRunning(cron.DefaultLogger)
	case "skip", "":
		wrapper = cron.SkipIfStillRunning(cron.DefaultLogger)
	default:
		logger.Warn("Scheduler: unknown concurrency policy %q, defaulting to skip", policy)
		wrapper = cron.SkipIfStillRunning(cron.DefaultLogger)
	}
	options = append(options, cron.WithChain(wrapper))
	return cron.New(options...)
}

// Start registers all triggers and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler disabled by config")
		s.Stop()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, trigger := range s.config.StaticTriggers {
		if err := s.registerTriggerLocked(trigger); err != nil {
			s.logger.Warn("Scheduler: failed to register static trigger %q: %v", trigger.Name, err)
		}
	}

	s.syncFileTriggersLocked()

	if s.store != nil {
		syncEntryID, err := s.cron.AddFunc(fileSyncSchedule, s.syncFileTriggers)
		if err != nil {
			s.logger.Warn("Scheduler: failed to register trigger sync job: %v", err)
		} else {
			s.entryIDs["_file_sync"] = syncEntryID
		}
	}

	s.cron.Start()
	s.logger.Info("Scheduler started with %d triggers", len(s.entryIDs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Scheduler stopping...")
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		close(s.stopped)
		s.logger.Info("Scheduler stopped")
	})
}

// Done returns a channel closed once the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// registerTriggerLocked adds one trigger to the cron loop. Must be called
// with s.mu held.
func (s *Scheduler) registerTriggerLocked(trigger Trigger) error {
	if _, exists := s.entryIDs[trigger.Name]; exists {
		return nil
	}
	if err := trigger.Validate(); err != nil {
		return err
	}
	if trigger.Disabled {
		return nil
	}

	t := trigger
	entryID, err := s.cron.AddFunc(t.Schedule, func() {
		s.fire(t)
	})
	if err != nil {
		return err
	}

	s.entryIDs[trigger.Name] = entryID
	s.logger.Info("Scheduler: registered trigger %q (schedule=%s)", trigger.Name, trigger.Schedule)
	return nil
}

// fire enqueues the trigger's action as an intake proposal. A full queue
// drops this firing; the next one proposes again.
func (s *Scheduler) fire(trigger Trigger) {
	s.logger.Info("Scheduler: firing trigger %q (%s)", trigger.Name, trigger.ActionType)

	err := s.queue.Enqueue(intake.Proposal{
		ActionType: trigger.ActionType,
		Details:    trigger.Details,
		Source:     "scheduler:" + trigger.Name,
	})
	if err != nil {
		s.logger.Warn("Scheduler: dropping firing of %q: %v", trigger.Name, err)
	}
}

func (s *Scheduler) syncFileTriggers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncFileTriggersLocked()
}

// syncFileTriggersLocked registers new file-defined triggers and prunes
// removed or disabled ones. Must be called with s.mu held.
func (s *Scheduler) syncFileTriggersLocked() {
	if s.store == nil {
		return
	}

	triggers, err := s.store.List()
	if err != nil {
		s.logger.Warn("Scheduler: failed to list file triggers: %v", err)
		return
	}

	active := make(map[string]bool)
	for _, trigger := range triggers {
		if trigger.Disabled {
			continue
		}
		name := "file:" + trigger.Name
		active[name] = true
		if _, exists := s.entryIDs[name]; exists {
			continue
		}
		trigger.Name = name
		if err := s.registerTriggerLocked(trigger); err != nil {
			s.logger.Warn("Scheduler: failed to register file trigger %q: %v", name, err)
		}
	}

	for name, entryID := range s.entryIDs {
		if !strings.HasPrefix(name, "file:") || active[name] {
			continue
		}
		s.cron.Remove(entryID)
		delete(s.entryIDs, name)
		s.logger.Info("Scheduler: pruned trigger %q", name)
	}
}

// TriggerCount returns the number of registered cron entries.
func (s *Scheduler) TriggerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entryIDs)
}

// TriggerNames returns the names of all registered triggers.
func (s *Scheduler) TriggerNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entryIDs))
	for name := range s.entryIDs {
		names = append(names, name)
	}
	return names
}
