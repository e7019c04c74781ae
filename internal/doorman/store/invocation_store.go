package store

import (
	"context"
	"time"
)

// InvocationRecord is one slash-command invocation as persisted in the audit
// store.
type InvocationRecord struct {
	ID        string
	Command   string
	UserID    string
	UserName  string
	ChannelID string
	GuildID   string
	InvokedAt time.Time
	Outcome   string
	Detail    string
}

// InvocationStore persists invocations as an append-only audit log.
type InvocationStore interface {
	RecordInvocation(ctx context.Context, rec InvocationRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]InvocationRecord, error)
}
