package scheduler

import (
	"fmt"

	"aide/internal/approval"
)

// Trigger is a recurring action proposal. On each cron firing the scheduler
// enqueues the action into the intake queue; whether it executes or waits
// for review is the classifier's call, same as any other proposal.
type Trigger struct {
	// Name uniquely identifies the trigger, e.g. "weekly-status-post".
	Name string `yaml:"name"`
	// Schedule is a 5-field cron expression.
	Schedule string `yaml:"schedule"`
	// ActionType names the action to propose.
	ActionType approval.ActionType `yaml:"action_type"`
	// Details holds the action parameters.
	Details map[string]any `yaml:"action_details"`
	// Disabled keeps the definition around without registering it.
	Disabled bool `yaml:"disabled,omitempty"`
}

// Validate checks that the trigger has the minimum required fields.
func (t Trigger) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("trigger: name is required")
	}
	if t.Schedule == "" {
		return fmt.Errorf("trigger %q has no schedule", t.Name)
	}
	if t.ActionType == "" {
		return fmt.Errorf("trigger %q has no action type", t.Name)
	}
	return nil
}
