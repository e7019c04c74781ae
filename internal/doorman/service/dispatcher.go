package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/controller"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/notify"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

// DoorController is the slice of the access-controller client the dispatcher
// uses.  *controller.Client satisfies it.
type DoorController interface {
	SetEvacuationMode(ctx context.Context, enabled bool) error
	GetStatus(ctx context.Context) (types.DoorState, error)
	ListDoors(ctx context.Context) ([]types.Door, error)
}

type StatusReflector interface {
	Reflect(ctx context.Context, state types.DoorState)
}

type Auditor interface {
	Record(ctx context.Context, inv types.Invocation)
}

type Policy struct {
	// AllowedChannelIDs restricts where commands may run.  Empty allows all.
	AllowedChannelIDs map[string]struct{}
	// ListDoors appends the per-door listing to /status replies.
	ListDoors bool
}

func NewPolicy(allowed []string, listDoors bool) Policy {
	m := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		id = strings.TrimSpace(id)
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return Policy{AllowedChannelIDs: m, ListDoors: listDoors}
}

func (p Policy) ChannelAllowed(channelID string) bool {
	if len(p.AllowedChannelIDs) == 0 {
		return true
	}
	_, ok := p.AllowedChannelIDs[channelID]
	return ok
}

type Dependencies struct {
	Controller DoorController
	Notifier   notify.Notifier // nil = no notifications
	Status     StatusReflector // nil = no status channel
	Audit      Auditor         // nil = audit logging disabled
	Logger     *slog.Logger
	Policy     Policy
	Now        func() time.Time
}

// Dispatcher turns slash-command invocations into controller calls and
// replies.  Errors never escape Handle; they become a reply, a log line and,
// for controller failures, a notification.
type Dispatcher struct {
	controller DoorController
	notifier   notify.Notifier
	status     StatusReflector
	audit      Auditor
	logger     *slog.Logger
	policy     Policy
	now        func() time.Time

	// stateMu serializes lock/unlock so the channel rename of one command
	// lands before the next command reaches the controller.
	stateMu sync.Mutex
}

func NewDispatcher(d Dependencies) *Dispatcher {
	s := &Dispatcher{
		controller: d.Controller,
		notifier:   d.Notifier,
		status:     d.Status,
		audit:      d.Audit,
		logger:     d.Logger,
		policy:     d.Policy,
		now:        d.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Handle runs one invocation to completion and returns the reply for the
// invoking user.
func (s *Dispatcher) Handle(ctx context.Context, inv types.Invocation) types.Reply {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.At.IsZero() {
		inv.At = s.now()
	}

	reply := s.dispatch(ctx, &inv)

	s.logger.Info("command handled",
		"invocation", inv.ID,
		"command", string(inv.Command),
		"user", inv.UserName,
		"user_id", inv.UserID,
		"channel", inv.ChannelID,
		"outcome", string(inv.Outcome),
	)
	if s.audit != nil {
		s.audit.Record(ctx, inv)
	}
	return types.Reply{Content: reply}
}

func (s *Dispatcher) dispatch(ctx context.Context, inv *types.Invocation) string {
	if !s.policy.ChannelAllowed(inv.ChannelID) {
		inv.Outcome = types.OutcomeDenied
		inv.Detail = "channel not in allow-list"
		return ReplyDenied
	}

	switch inv.Command {
	case types.CommandLock:
		return s.setEvacuation(ctx, inv, false)
	case types.CommandUnlock:
		return s.setEvacuation(ctx, inv, true)
	case types.CommandStatus:
		return s.reportStatus(ctx, inv)
	default:
		inv.Outcome = types.OutcomeFailed
		inv.Detail = "unknown command"
		return ReplyUnknownCommand
	}
}

// setEvacuation handles /lock (enabled=false) and /unlock (enabled=true).
func (s *Dispatcher) setEvacuation(ctx context.Context, inv *types.Invocation, enabled bool) string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	target := types.DoorStateFromEvacuation(enabled)

	if err := s.controller.SetEvacuationMode(ctx, enabled); err != nil {
		s.fail(ctx, inv, err)
		if enabled {
			return ReplyUnlockFailed
		}
		return ReplyLockFailed
	}

	inv.Outcome = types.OutcomeSuccess
	if s.status != nil {
		s.status.Reflect(ctx, target)
	}
	if enabled {
		return ReplyUnlocked
	}
	return ReplyLocked
}

func (s *Dispatcher) reportStatus(ctx context.Context, inv *types.Invocation) string {
	state, err := s.controller.GetStatus(ctx)
	if err != nil {
		s.fail(ctx, inv, err)
		return ReplyStatusFailed
	}

	var doors []types.Door
	if s.policy.ListDoors {
		doors, err = s.controller.ListDoors(ctx)
		if err != nil {
			s.logger.Warn("door listing failed", "invocation", inv.ID, "err", err)
			doors = nil
		}
	}

	inv.Outcome = types.OutcomeSuccess
	if s.status != nil {
		s.status.Reflect(ctx, state)
	}
	return statusReply(state, doors)
}

// fail records a controller failure on inv, logs it, and raises a
// notification whose severity reflects whether the controller looks down.
func (s *Dispatcher) fail(ctx context.Context, inv *types.Invocation, err error) {
	inv.Outcome = types.OutcomeFailed
	inv.Detail = err.Error()

	severity := notify.SeverityError
	if apiErr, ok := controller.IsAPIError(err); ok && apiErr.Outage() {
		severity = notify.SeverityCritical
	}

	s.logger.Error("controller call failed",
		"invocation", inv.ID, "command", string(inv.Command), "severity", severity.String(), "err", err)

	s.notifier.Notify(ctx, notify.Notification{
		Severity: severity,
		Title:    fmt.Sprintf("Door API Error: /%s failed", inv.Command),
		Message: fmt.Sprintf("/%s by %s in channel %s failed: %v",
			inv.Command, displayName(inv), inv.ChannelID, err),
		Tags: []string{"door", string(inv.Command)},
	})
}

func displayName(inv *types.Invocation) string {
	if inv.UserName != "" {
		return inv.UserName
	}
	if inv.UserID != "" {
		return inv.UserID
	}
	return "unknown user"
}
