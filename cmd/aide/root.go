package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aide/internal/config"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "aide",
		Short: "Personal action pipeline with human-in-the-loop approval",
		Long: `aide proposes sensitive actions (emails, messages, posts), files them
for review in a vault of markdown files, and executes what you approve.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.aide/aide-config.yaml)")

	loadConfig := func() (*config.Config, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(newRunCommand(loadConfig))
	rootCmd.AddCommand(newProposeCommand(loadConfig))
	rootCmd.AddCommand(newListCommand(loadConfig))
	rootCmd.AddCommand(newReviewCommand(loadConfig))
	rootCmd.AddCommand(newStatusCommand(loadConfig))
	rootCmd.AddCommand(newScheduleCommand(loadConfig))

	return rootCmd
}

type configLoader func() (*config.Config, error)
