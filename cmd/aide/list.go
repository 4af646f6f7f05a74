package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newListCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List requests awaiting review",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}

			pending, err := p.store.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("No requests awaiting review.")
				return nil
			}

			now := time.Now()
			for _, req := range pending {
				risk := fmt.Sprintf("risk %3d", req.RiskScore)
				switch {
				case req.RiskScore >= 80:
					risk = red(risk)
				case req.RiskScore >= 40:
					risk = yellow(risk)
				default:
					risk = green(risk)
				}

				line := fmt.Sprintf("%s  %-14s  %s", bold(req.ID), req.ActionType, risk)
				if req.Status != "pending" {
					line += "  " + cyan("decided: "+string(req.Status))
				} else if !req.ExpiresAt.IsZero() {
					remaining := req.ExpiresAt.Sub(now).Round(time.Minute)
					if remaining < 0 {
						line += "  " + red("expired")
					} else {
						line += "  " + gray(fmt.Sprintf("expires in %s", remaining))
					}
				}
				fmt.Println(line)
			}
			fmt.Printf("\n%d request(s). Decide with %s.\n", len(pending), cyan("aide review"))
			return nil
		},
	}
}
