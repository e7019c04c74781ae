package types

import "time"

type Command string

const (
	CommandLock   Command = "lock"
	CommandUnlock Command = "unlock"
	CommandStatus Command = "status"
)

// Commands lists every slash command the bot answers, in registration order.
var Commands = []Command{CommandLock, CommandUnlock, CommandStatus}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
)

// Invocation is one slash-command call.  It lives for the duration of the
// handler and is written to the audit sinks on the way out.
type Invocation struct {
	ID        string
	Command   Command
	UserID    string
	UserName  string
	ChannelID string
	GuildID   string
	At        time.Time

	// Set by the dispatcher.
	Outcome Outcome
	Detail  string
}

// Reply is what the dispatcher wants sent back to the invoking user.
type Reply struct {
	Content string
}
