package main

import (
	"fmt"

	"aide/internal/actions"
	"aide/internal/approval"
	"aide/internal/approval/filestore"
	"aide/internal/config"
	"aide/internal/executor"
	"aide/internal/intake"
	"aide/internal/logging"
	"aide/internal/notify"
	"aide/internal/poller"
	"aide/internal/scheduler"
)

// pipeline holds the wired components of the approval loop.
type pipeline struct {
	cfg     *config.Config
	store   *filestore.Store
	center  *notify.Center
	manager *approval.Manager
	exec    *executor.Executor
	queue   *intake.Queue
	worker  *intake.Worker
	poller  *poller.Poller
	sched   *scheduler.Scheduler
	logger  logging.Logger
}

func buildPipeline(cfg *config.Config) (*pipeline, error) {
	logger := logging.NewComponentLogger("Aide")

	store, err := filestore.New(cfg.VaultDir)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	center := notify.NewCenter(notify.WithDefaultChannel("log"))
	center.RegisterChannel(notify.NewLogChannel(logger), notify.ChannelConfig{
		Name:    "log",
		Enabled: true,
	})
	if cfg.Notifications.Desktop {
		center.RegisterChannel(notify.NewDesktopChannel(""), notify.ChannelConfig{
			Name:        "desktop",
			Enabled:     true,
			MinPriority: notify.PriorityNormal,
			IsDefault:   true,
		})
	}

	policy := approval.DefaultPolicy()
	policy.KnownRecipients = cfg.Classifier.KnownRecipients
	if cfg.Classifier.ApprovalThreshold > 0 {
		policy.ApprovalThreshold = cfg.Classifier.ApprovalThreshold
	}

	manager := approval.NewManager(store, approval.NewClassifier(policy),
		approval.WithTimeout(cfg.ApprovalTimeout),
		approval.WithAlerter(center),
	)

	exec := executor.New()
	if err := registerHandlers(exec, cfg); err != nil {
		return nil, err
	}

	queue := intake.NewQueue(cfg.QueueSize)

	sched, err := scheduler.New(scheduler.Config{
		Enabled:           cfg.Scheduler.Enabled,
		TriggersDir:       cfg.Scheduler.TriggersDir,
		ConcurrencyPolicy: cfg.Scheduler.ConcurrencyPolicy,
	}, queue, logger)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	return &pipeline{
		cfg:     cfg,
		store:   store,
		center:  center,
		manager: manager,
		exec:    exec,
		queue:   queue,
		worker:  intake.NewWorker(queue, manager, exec, logger),
		poller: poller.New(store, exec,
			poller.WithInterval(cfg.PollInterval),
			poller.WithAlerter(center),
		),
		sched:  sched,
		logger: logger,
	}, nil
}

// registerHandlers wires a handler for every action with configured
// credentials. Actions without credentials stay unregistered; an approved
// request for one fails with a configuration error instead of retrying.
func registerHandlers(exec *executor.Executor, cfg *config.Config) error {
	if cfg.Email.ResendAPIKey != "" {
		if err := exec.Register(actions.NewEmailHandler(cfg.Email.ResendAPIKey, cfg.Email.From)); err != nil {
			return err
		}
	}
	if cfg.WhatsApp.GatewayURL != "" {
		if err := exec.Register(actions.NewWhatsAppHandler(cfg.WhatsApp.GatewayURL, cfg.WhatsApp.Token)); err != nil {
			return err
		}
	}
	if cfg.LinkedIn.Token != "" {
		if err := exec.Register(actions.NewLinkedInHandler(cfg.LinkedIn.Token, cfg.LinkedIn.AuthorURN)); err != nil {
			return err
		}
	}
	return nil
}
