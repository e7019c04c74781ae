package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/n1ghtBl00d/801DoorBot/internal/config"
	"github.com/n1ghtBl00d/801DoorBot/internal/db"
	"github.com/n1ghtBl00d/801DoorBot/internal/discordbot"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/audit"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/controller"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/notify"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/service"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/statuschannel"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/store/sqlite"
	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
	"github.com/n1ghtBl00d/801DoorBot/internal/health"
	"github.com/n1ghtBl00d/801DoorBot/internal/httpapi"
	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "doorbot:", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog := logging.New(logging.Options{
		Debug:  cfg.Debug,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Notifier
	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotifyEnabled() {
		ntfy := notify.NewNtfy(notify.NtfyOptions{
			URL:           cfg.NotifyURL,
			Topic:         cfg.NotifyTopic,
			Token:         cfg.NotifyToken,
			RatePerMinute: cfg.NotifyRatePerMinute,
			Logger:        logger.With("component", "notify"),
		})
		defer ntfy.Close()
		notifier = ntfy
		logger.Info("notifications enabled", "url", cfg.NotifyURL, "topic", cfg.NotifyTopic)
	}

	// Audit sinks
	var (
		sinks       []audit.Sink
		invocations store.InvocationStore
	)
	if cfg.AuditLogEnabled {
		sinks = append(sinks, audit.NewFileSink(cfg.AuditLogDir, cfg.Location))
		logger.Info("audit log enabled", "dir", cfg.AuditLogDir, "timezone", cfg.Timezone)
	}
	if cfg.AuditDBPath != "" {
		conn, err := db.Open(ctx, db.Config{Path: cfg.AuditDBPath, Logger: logger})
		if err != nil {
			return fmt.Errorf("open audit db: %w", err)
		}
		defer closeDB(conn, logger)

		writer := db.NewWorker(conn)
		defer writer.Close()

		sqlStore := sqlite.NewInvocationStore(conn, writer)
		sinks = append(sinks, sqlStore)
		invocations = sqlStore
		logger.Info("audit database enabled", "path", cfg.AuditDBPath)
	}
	var auditor service.Auditor
	if len(sinks) > 0 {
		auditor = audit.NewLogger(logger.With("component", "audit"), sinks...)
	}

	// Controller
	client := controller.New(controller.Options{
		BaseURL:   cfg.ControllerBaseURL(),
		Token:     cfg.UnifiToken,
		VerifyTLS: cfg.UnifiVerifyTLS,
		Timeout:   cfg.UnifiTimeout,
		Logger:    logger.With("component", "controller"),
	})

	tracker := health.NewTracker()

	// The bot is built before the dispatcher so the status updater can use
	// its session; handlers only fire after Open.
	var dispatcher *service.Dispatcher
	bot, err := discordbot.New(discordbot.Options{
		Token:      cfg.DiscordToken,
		GuildID:    cfg.DiscordGuildID,
		Silent:     cfg.Silent,
		Dispatcher: dispatcherFunc(func(ctx context.Context, inv types.Invocation) types.Reply { return dispatcher.Handle(ctx, inv) }),
		Health:     tracker,
		Notifier:   notifier,
		Logger:     logger.With("component", "discord"),
	})
	if err != nil {
		return err
	}

	var status service.StatusReflector
	if cfg.StatusChannelID != "" {
		status = statuschannel.NewUpdater(bot.Renamer(), cfg.StatusChannelID, cfg.StatusChannelPrefix,
			logger.With("component", "statuschannel"))
	}

	dispatcher = service.NewDispatcher(service.Dependencies{
		Controller: client,
		Notifier:   notifier,
		Status:     status,
		Audit:      auditor,
		Logger:     logger.With("component", "dispatcher"),
		Policy:     service.NewPolicy(cfg.AllowedChannelIDs, cfg.StatusListDoors),
	})

	// Health gRPC
	if cfg.HealthGRPCAddr != "" {
		go func() {
			if err := tracker.Serve(ctx, cfg.HealthGRPCAddr, logger); err != nil {
				logger.Error("health gRPC server error", "err", err)
				stop()
			}
		}()
	}

	// HTTP
	var srv *httpapi.Server
	if cfg.HTTPAddr != "" {
		srv = httpapi.NewServer(httpapi.Dependencies{
			Logger:      logger.With("component", "http"),
			Addr:        cfg.HTTPAddr,
			Health:      tracker,
			Invocations: invocations,
		})
		go func() {
			logger.Info("listening", "addr", cfg.HTTPAddr)
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server error", "err", err)
				stop()
			}
		}()
	}

	if err := bot.Open(); err != nil {
		return err
	}
	logger.Info("doorbot started",
		"controller", cfg.ControllerBaseURL(),
		"allowed_channels", len(cfg.AllowedChannelIDs),
		"silent", cfg.Silent)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := bot.Close(); err != nil {
		logger.Warn("gateway close failed", "err", err)
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

type dispatcherFunc func(ctx context.Context, inv types.Invocation) types.Reply

func (f dispatcherFunc) Handle(ctx context.Context, inv types.Invocation) types.Reply {
	return f(ctx, inv)
}

func closeDB(conn *sql.DB, logger *slog.Logger) {
	if err := conn.Close(); err != nil {
		logger.Warn("audit db close failed", "err", err)
	}
}
