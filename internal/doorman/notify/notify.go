// Package notify delivers operator alerts.  The ntfy implementation posts to a
// topic on an ntfy server; Nop is used when no endpoint is configured.
//
// Delivery is best-effort: Notify never returns an error and never blocks the
// caller on the network.
package notify

import "context"

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Priority is the ntfy priority name for the severity.
func (s Severity) Priority() string {
	switch s {
	case SeverityCritical:
		return "urgent"
	case SeverityError:
		return "high"
	case SeverityWarning:
		return "default"
	default:
		return "low"
	}
}

// Tag is the ntfy tag (rendered as an emoji) leading the tag list.
func (s Severity) Tag() string {
	switch s {
	case SeverityCritical:
		return "rotating_light"
	case SeverityError, SeverityWarning:
		return "warning"
	default:
		return "information_source"
	}
}

type Notification struct {
	Severity Severity
	Title    string
	Message  string
	Tags     []string
}

// Notifier is what the rest of the bot depends on.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}
