package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

// DesktopChannel raises OS desktop notifications via the system notification
// service (notify-send on Linux, Notification Center on macOS).
type DesktopChannel struct {
	appIcon string
}

// NewDesktopChannel creates a desktop channel with an optional icon path.
func NewDesktopChannel(appIcon string) *DesktopChannel {
	return &DesktopChannel{appIcon: appIcon}
}

func (d *DesktopChannel) Name() string { return "desktop" }

func (d *DesktopChannel) Supports(Priority) bool { return true }

func (d *DesktopChannel) Send(_ context.Context, n Notification) error {
	if n.Priority >= PriorityHigh {
		return beeep.Alert(n.Title, n.Body, d.appIcon)
	}
	return beeep.Notify(n.Title, n.Body, d.appIcon)
}
