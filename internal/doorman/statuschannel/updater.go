package statuschannel

import (
	"context"
	"log/slog"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

// Renamer renames a chat channel.  The Discord session adapter implements it.
type Renamer interface {
	RenameChannel(ctx context.Context, channelID, name string) error
}

// Updater mirrors the door state into a channel name: <prefix><emoji>.
type Updater struct {
	renamer   Renamer
	channelID string
	prefix    string
	logger    *slog.Logger
}

func NewUpdater(r Renamer, channelID, prefix string, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Updater{renamer: r, channelID: channelID, prefix: prefix, logger: logger}
}

// NameFor is the channel name that reflects state.
func (u *Updater) NameFor(state types.DoorState) string {
	return u.prefix + state.Emoji()
}

// Reflect renames the status channel.  Failures (rate limits included) are
// logged and dropped; no channel configured means nothing to do.
func (u *Updater) Reflect(ctx context.Context, state types.DoorState) {
	if u == nil || u.renamer == nil || u.channelID == "" {
		return
	}
	name := u.NameFor(state)
	if err := u.renamer.RenameChannel(ctx, u.channelID, name); err != nil {
		u.logger.Warn("status channel rename failed", "channel", u.channelID, "name", name, "err", err)
		return
	}
	u.logger.Debug("status channel updated", "channel", u.channelID, "name", name)
}
