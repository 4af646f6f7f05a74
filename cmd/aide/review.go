package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"aide/internal/approval"
)

func newReviewCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Review pending requests interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}

			colorEnabled := term.IsTerminal(int(os.Stdout.Fd()))
			reviewer := approval.NewInteractiveReviewer(p.store, os.Stdin, os.Stdout, colorEnabled)
			return reviewer.Review(cmd.Context())
		},
	}
}
