// Package discordbot connects the command dispatcher to a Discord gateway
// session.
package discordbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/notify"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

// Dispatcher runs one invocation.  *service.Dispatcher satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, inv types.Invocation) types.Reply
}

// HealthSetter receives gateway readiness.  *health.Tracker satisfies it.
type HealthSetter interface {
	SetServing(ok bool)
}

type Options struct {
	Token   string
	GuildID string // empty registers commands globally
	Silent  bool

	Dispatcher Dispatcher
	Health     HealthSetter    // optional
	Notifier   notify.Notifier // optional
	Logger     *slog.Logger

	// HandlerTimeout bounds one invocation.  Discord invalidates the
	// interaction token after 15 minutes.
	HandlerTimeout time.Duration
}

type Bot struct {
	session    *discordgo.Session
	guildID    string
	silent     bool
	dispatcher Dispatcher
	health     HealthSetter
	notifier   notify.Notifier
	logger     *slog.Logger
	timeout    time.Duration

	// closing suppresses the disconnect alert for the Disconnect event that
	// Close itself emits.
	closing atomic.Bool
}

func New(opts Options) (*Bot, error) {
	if opts.Token == "" {
		return nil, errors.New("discordbot: token is required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("discordbot: dispatcher is required")
	}

	s, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("discordbot: new session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session:    s,
		guildID:    opts.GuildID,
		silent:     opts.Silent,
		dispatcher: opts.Dispatcher,
		health:     opts.Health,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		timeout:    opts.HandlerTimeout,
	}
	if b.notifier == nil {
		b.notifier = notify.Nop{}
	}
	if b.logger == nil {
		b.logger = logging.Discard()
	}
	if b.timeout <= 0 {
		b.timeout = 5 * time.Minute
	}

	s.AddHandler(b.onReady)
	s.AddHandler(b.onResumed)
	s.AddHandler(b.onDisconnect)
	s.AddHandler(b.onInteraction)
	return b, nil
}

// Renamer returns a status-channel renamer bound to this session.
func (b *Bot) Renamer() *ChannelRenamer { return NewChannelRenamer(b.session) }

// Open connects to the gateway.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discordbot: open gateway: %w", err)
	}
	return nil
}

func (b *Bot) Close() error {
	b.closing.Store(true)
	b.setServing(false)
	return b.session.Close()
}

func (b *Bot) setServing(ok bool) {
	if b.health != nil {
		b.health.SetServing(ok)
	}
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))

	scope := b.guildID
	if scope == "" {
		scope = "global"
	}
	cmds, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.guildID, Commands())
	if err != nil {
		b.logger.Error("slash command registration failed", "scope", scope, "err", err)
	} else {
		b.logger.Info("slash commands registered", "scope", scope, "count", len(cmds))
	}

	b.setServing(true)
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	b.logger.Info("gateway resumed")
	b.setServing(true)
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.setServing(false)
	if b.closing.Load() {
		b.logger.Info("gateway closed")
		return
	}
	b.logger.Warn("gateway disconnected")
	b.notifier.Notify(context.Background(), notify.Notification{
		Severity: notify.SeverityWarning,
		Title:    "Door bot disconnected",
		Message:  "Lost the Discord gateway connection; reconnecting.",
		Tags:     []string{"door"},
	})
}

func (b *Bot) onInteraction(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}
	inv := InvocationFromInteraction(ic.Interaction)

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if err := s.InteractionRespond(ic.Interaction, deferResponse(b.silent), discordgo.WithContext(ctx)); err != nil {
		b.logger.Error("interaction defer failed", "command", string(inv.Command), "user_id", inv.UserID, "err", err)
		return
	}

	reply := b.dispatcher.Handle(ctx, inv)

	if _, err := s.FollowupMessageCreate(ic.Interaction, false, followup(reply, b.silent), discordgo.WithContext(ctx)); err != nil {
		b.logger.Error("interaction follow-up failed", "command", string(inv.Command), "user_id", inv.UserID, "err", err)
	}
}
