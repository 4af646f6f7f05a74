package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aide/internal/observability"
)

func newRunCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the approval daemon (poller, intake worker, scheduler)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("%s vault: %s\n", bold("aide"), p.store.BaseDir())
			handlers := p.exec.Handlers()
			if len(handlers) == 0 {
				fmt.Println(yellow("Warning: no action credentials configured; approved requests will fail"))
			} else {
				fmt.Printf("handlers: %s\n", gray(fmt.Sprint(handlers)))
			}

			if err := p.sched.Start(ctx); err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return p.poller.Run(ctx) })
			g.Go(func() error { return p.worker.Run(ctx) })
			if cfg.Metrics.Enabled {
				g.Go(func() error {
					return observability.Serve(ctx, observability.MetricsConfig{
						Enabled:        true,
						PrometheusPort: cfg.Metrics.Port,
					}, p.logger)
				})
			}

			err = g.Wait()
			<-p.sched.Done()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
