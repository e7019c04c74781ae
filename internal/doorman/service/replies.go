package service

import (
	"fmt"
	"strings"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
)

const (
	ReplyLocked         = "🔒 All doors have been locked"
	ReplyUnlocked       = "🔓 All doors have been unlocked"
	ReplyLockFailed     = "Failed to lock doors, please try again"
	ReplyUnlockFailed   = "Failed to unlock doors, please try again"
	ReplyStatusFailed   = "Failed to get door status, please try again"
	ReplyStatusLocked   = "Doors are locked"
	ReplyStatusUnlocked = "Doors are unlocked (evacuation mode active)"
	ReplyDenied         = "⛔ You do not have permission to use this command in this channel"
	ReplyUnknownCommand = "Unknown command"
)

func statusReply(state types.DoorState, doors []types.Door) string {
	headline := ReplyStatusLocked
	if state == types.Unlocked {
		headline = ReplyStatusUnlocked
	}
	if len(doors) == 0 {
		return headline
	}

	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n**Doors:**")
	for _, d := range doors {
		name := d.Name
		if name == "" {
			name = "Unknown"
		}
		label := "Locked"
		if d.State() == types.Unlocked {
			label = "Unlocked"
		}
		fmt.Fprintf(&b, "\n- %s: %s %s", name, d.State().Emoji(), label)
	}
	return b.String()
}
