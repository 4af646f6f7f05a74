package notify

import (
	"context"

	"aide/internal/logging"
)

// LogChannel writes notifications to the debug log. Registered as a backstop
// so critical alerts leave a trace even without a desktop session.
type LogChannel struct {
	logger logging.Logger
}

// NewLogChannel creates a log-backed channel.
func NewLogChannel(logger logging.Logger) *LogChannel {
	return &LogChannel{logger: logging.OrNop(logger)}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Supports(Priority) bool { return true }

func (l *LogChannel) Send(_ context.Context, n Notification) error {
	switch {
	case n.Priority >= PriorityCritical:
		l.logger.Error("[%s] %s: %s", n.Priority, n.Title, n.Body)
	case n.Priority >= PriorityHigh:
		l.logger.Warn("[%s] %s: %s", n.Priority, n.Title, n.Body)
	default:
		l.logger.Info("[%s] %s: %s", n.Priority, n.Title, n.Body)
	}
	return nil
}
