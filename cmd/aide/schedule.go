package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aide/internal/approval"
	"aide/internal/scheduler"
)

func newScheduleCommand(loadConfig configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring action triggers",
	}

	openStore := func() (*scheduler.FileTriggerStore, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return scheduler.NewFileTriggerStore(cfg.Scheduler.TriggersDir)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trigger definitions",
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			triggers, err := store.List()
			if err != nil {
				return err
			}
			if len(triggers) == 0 {
				fmt.Println("No triggers defined.")
				return nil
			}
			for _, t := range triggers {
				state := green("on")
				if t.Disabled {
					state = gray("off")
				}
				fmt.Printf("%s  %-14s  %-16s  %s\n", state, bold(t.Name), t.ActionType, gray(t.Schedule))
			}
			return nil
		},
	})

	var schedule string
	var details []string
	addCmd := &cobra.Command{
		Use:   "add <name> <action-type>",
		Short: "Add or replace a trigger",
		Example: `  aide schedule add weekly-post post_linkedin -s "0 9 * * 1" -f text="Weekly update."`,
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := openStore()
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
			trigger := scheduler.Trigger{
				Name:       args[0],
				Schedule:   schedule,
				ActionType: approval.ActionType(args[1]),
				Details:    raw,
			}
			if err := store.Save(trigger); err != nil {
				return err
			}
			fmt.Printf("%s trigger %s saved\n", green("✓"), bold(trigger.Name))
			return nil
		},
	}
	addCmd.Flags().StringVarP(&schedule, "schedule", "s", "", "Cron expression (5-field)")
	addCmd.Flags().StringArrayVarP(&details, "field", "f", nil, "Action detail as key=value (repeatable)")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s trigger %s removed\n", green("✓"), bold(args[0]))
			return nil
		},
	})

	return cmd
}
