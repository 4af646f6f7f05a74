package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aide/internal/approval"
)

func newStatusCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status <request-id>",
		Short: "Show a request's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}

			req, err := p.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s  %s  %s\n", bold(req.ID), req.ActionType, colorStatus(req.Status))
			if req.RejectionReason != "" {
				fmt.Printf("  reason: %s\n", req.RejectionReason)
			}
			if req.Result != nil {
				if req.Result.Success {
					fmt.Printf("  executed in %d attempt(s)\n", req.Result.Attempts)
				} else {
					fmt.Printf("  failed after %d attempt(s): %s\n", req.Result.Attempts, req.Result.Error)
				}
			}
			return nil
		},
	}
}

func colorStatus(status approval.Status) string {
	switch status {
	case approval.StatusPending:
		return yellow(string(status))
	case approval.StatusApproved, approval.StatusExecuted:
		return green(string(status))
	case approval.StatusRejected, approval.StatusExpired, approval.StatusFailed:
		return red(string(status))
	default:
		return string(status)
	}
}
