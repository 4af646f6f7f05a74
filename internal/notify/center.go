package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aide/internal/logging"
	"aide/internal/observability"
)

// Priority orders notifications by urgency.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority maps a config string to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Notification is one alert for the human reviewer.
type Notification struct {
	Title    string
	Body     string
	Priority Priority
	Channel  string // empty means the default channel
}

// Channel delivers notifications over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	Supports(p Priority) bool
}

// ChannelConfig controls how a registered channel participates in dispatch.
type ChannelConfig struct {
	Name        string
	Enabled     bool
	MinPriority Priority
	IsDefault   bool
}

// DeliveryStatus is the per-channel outcome of a dispatch.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusSkipped   DeliveryStatus = "skipped"
	StatusFailed    DeliveryStatus = "failed"
)

// DeliveryResult reports what happened on one channel.
type DeliveryResult struct {
	Channel string
	Status  DeliveryStatus
	Error   string
	At      time.Time
}

type registeredChannel struct {
	channel Channel
	config  ChannelConfig
}

// Center routes notifications to registered channels. Critical notifications
// fan out to every supporting channel; everything else goes to the named or
// default channel.
type Center struct {
	mu          sync.Mutex
	channels    map[string]*registeredChannel
	defaultName string
	logger      logging.Logger
	sendTimeout time.Duration
}

// Option configures a Center.
type Option func(*Center)

// WithDefaultChannel sets the fallback channel name.
func WithDefaultChannel(name string) Option {
	return func(c *Center) { c.defaultName = name }
}

// WithLogger sets the Center's logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Center) { c.logger = logger }
}

// NewCenter creates an empty notification center.
func NewCenter(opts ...Option) *Center {
	c := &Center{
		channels:    make(map[string]*registeredChannel),
		logger:      logging.NewComponentLogger("Notify"),
		sendTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterChannel adds a channel under the given config.
func (c *Center) RegisterChannel(ch Channel, cfg ChannelConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg.Name = ch.Name()
	c.channels[ch.Name()] = &registeredChannel{channel: ch, config: cfg}
	if cfg.IsDefault {
		c.defaultName = ch.Name()
	}
}

// UnregisterChannel removes a channel, clearing the default if it matches.
func (c *Center) UnregisterChannel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, name)
	if c.defaultName == name {
		c.defaultName = ""
	}
}

// ListChannels returns the configs of all registered channels.
func (c *Center) ListChannels() []ChannelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	configs := make([]ChannelConfig, 0, len(c.channels))
	for _, rc := range c.channels {
		cfg := rc.config
		cfg.IsDefault = rc.config.Name == c.defaultName || rc.config.IsDefault
		configs = append(configs, cfg)
	}
	return configs
}

// Send dispatches one notification and reports the primary channel's result.
// Critical priority additionally fans out to every other supporting channel.
func (c *Center) Send(ctx context.Context, n Notification) (DeliveryResult, error) {
	targetName := n.Channel
	if targetName == "" {
		c.mu.Lock()
		targetName = c.defaultName
		c.mu.Unlock()
	}
	if targetName == "" {
		return DeliveryResult{}, fmt.Errorf("no channel specified and no default configured")
	}

	primary := c.deliver(ctx, targetName, n)

	if n.Priority >= PriorityCritical {
		c.mu.Lock()
		var others []string
		for name := range c.channels {
			if name != targetName {
				others = append(others, name)
			}
		}
		c.mu.Unlock()
		for _, name := range others {
			c.deliver(ctx, name, n)
		}
	}

	return primary, nil
}

func (c *Center) deliver(ctx context.Context, name string, n Notification) DeliveryResult {
	result := DeliveryResult{Channel: name, At: time.Now()}

	c.mu.Lock()
	rc, ok := c.channels[name]
	c.mu.Unlock()

	if !ok {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("channel %q not found", name)
		observability.Default().NotificationsSent.WithLabelValues(name, string(StatusFailed)).Inc()
		return result
	}
	if !rc.config.Enabled || n.Priority < rc.config.MinPriority || !rc.channel.Supports(n.Priority) {
		result.Status = StatusSkipped
		observability.Default().NotificationsSent.WithLabelValues(name, string(StatusSkipped)).Inc()
		return result
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	if err := rc.channel.Send(sendCtx, n); err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		c.logger.Warn("Notification via %q failed: %v", name, err)
		observability.Default().NotificationsSent.WithLabelValues(name, string(StatusFailed)).Inc()
		return result
	}

	result.Status = StatusDelivered
	observability.Default().NotificationsSent.WithLabelValues(name, string(StatusDelivered)).Inc()
	return result
}

// Notify is the fire-and-forget surface used by the approval pipeline. It
// never returns an error and never panics: a missing desktop environment must
// not block the pipeline, since pending requests stay inspectable in the
// vault regardless.
func (c *Center) Notify(title, body string, priority Priority) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Notification panic swallowed: %v", r)
		}
	}()

	_, err := c.Send(context.Background(), Notification{
		Title:    title,
		Body:     body,
		Priority: priority,
	})
	if err != nil {
		c.logger.Warn("Notification dropped: %v", err)
	}
}
