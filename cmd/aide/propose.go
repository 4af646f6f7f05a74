package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aide/internal/approval"
)

func newProposeCommand(loadConfig configLoader) *cobra.Command {
	var details []string

	cmd := &cobra.Command{
		Use:   "propose <action-type>",
		Short: "Propose an action (send_email, send_whatsapp, post_linkedin)",
		Example: `  aide propose send_email -f to=dana@example.org -f subject="Lunch?" -f body="Noon work?"
  aide propose post_linkedin -f text="Shipped a thing today."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}

			raw := make(map[string]any, len(details))
			for _, field := range details {
				key, value, found := strings.Cut(field, "=")
				if !found {
					return fmt.Errorf("field %q is not key=value", field)
				}
				raw[key] = value
			}

			req, err := p.manager.Create(cmd.Context(), approval.ActionType(args[0]), raw)
			if err != nil {
				return err
			}

			if req.AutoApproved {
				fmt.Printf("%s %s auto-approved (risk %d), executing...\n", green("✓"), req.ID, req.RiskScore)
				result := p.exec.Execute(cmd.Context(), req)
				if !result.Success {
					return fmt.Errorf("execution failed: %s", result.Error)
				}
				fmt.Printf("%s executed in %d attempt(s)\n", green("✓"), result.Attempts)
				return nil
			}

			fmt.Printf("%s %s filed for review (risk %d)\n", yellow("⏳"), req.ID, req.RiskScore)
			fmt.Printf("  decide with %s or edit %s\n", cyan("aide review"), gray(p.store.BaseDir()+"/pending/"+req.ID+".md"))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&details, "field", "f", nil, "Action detail as key=value (repeatable)")
	return cmd
}
