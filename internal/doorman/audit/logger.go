package audit

import (
	"context"
	"log/slog"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

// Sink is anything that can persist an invocation record.
// store.InvocationStore implementations satisfy it.
type Sink interface {
	RecordInvocation(ctx context.Context, rec store.InvocationRecord) error
}

type Logger struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger, sinks ...Sink) *Logger {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Logger{sinks: sinks, logger: logger}
}

// Record writes inv to every sink.  Errors are logged, never returned.
func (l *Logger) Record(ctx context.Context, inv types.Invocation) {
	rec := RecordFromInvocation(inv)
	for _, s := range l.sinks {
		if err := s.RecordInvocation(ctx, rec); err != nil {
			l.logger.Error("audit write failed",
				"invocation", inv.ID, "command", string(inv.Command), "err", err)
		}
	}
}

func RecordFromInvocation(inv types.Invocation) store.InvocationRecord {
	return store.InvocationRecord{
		ID:        inv.ID,
		Command:   string(inv.Command),
		UserID:    inv.UserID,
		UserName:  inv.UserName,
		ChannelID: inv.ChannelID,
		GuildID:   inv.GuildID,
		InvokedAt: inv.At,
		Outcome:   string(inv.Outcome),
		Detail:    inv.Detail,
	}
}
