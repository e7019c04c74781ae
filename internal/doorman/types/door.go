package types

// DoorState is derived from the controller's evacuation flag: evacuation on
// means every door is unlocked.
type DoorState int

const (
	Locked DoorState = iota
	Unlocked
)

func DoorStateFromEvacuation(evacuation bool) DoorState {
	if evacuation {
		return Unlocked
	}
	return Locked
}

func (s DoorState) String() string {
	if s == Unlocked {
		return "unlocked"
	}
	return "locked"
}

// Emoji is the glyph used in the status channel name and replies.
func (s DoorState) Emoji() string {
	if s == Unlocked {
		return "🔓"
	}
	return "🔒"
}

// Door is a single entry from the controller's door listing.
type Door struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	LockRelayStatus string `json:"door_lock_relay_status"` // "lock" | "unlock"
}

func (d Door) State() DoorState {
	if d.LockRelayStatus == "unlock" {
		return Unlocked
	}
	return Locked
}
