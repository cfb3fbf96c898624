// Package main contains the entrypoint for the concierge Telegram bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/conciergebot/concierge/internal/bot"
	tghandlers "github.com/conciergebot/concierge/internal/bot/handlers"
	"github.com/conciergebot/concierge/internal/bot/tasks"
	"github.com/conciergebot/concierge/internal/config"
	"github.com/conciergebot/concierge/internal/database"
	"github.com/conciergebot/concierge/internal/engine"
	"github.com/conciergebot/concierge/internal/gemini"
	"github.com/conciergebot/concierge/internal/handlers"
	"github.com/conciergebot/concierge/internal/intent"
	"github.com/conciergebot/concierge/internal/logger"
	"github.com/conciergebot/concierge/internal/memory"
	"github.com/conciergebot/concierge/internal/router"
	"github.com/conciergebot/concierge/internal/slots"
	"github.com/conciergebot/concierge/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// generation client, routing engine, bot, scheduler), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	mem := memory.New(store, gemClient, memory.Config{
		Mode:              memory.Mode(cfg.Memory.Mode),
		MaxTurns:          cfg.Memory.MaxTurns,
		VerbatimTail:      cfg.Memory.VerbatimTail,
		CompactAfterTurns: cfg.Memory.CompactAfterTurns,
	}, log)

	policy := slots.AmbiguityPolicy(cfg.Routing.TimeAmbiguity)
	registry := handlers.NewRegistry(handlers.Deps{Logger: log, Store: store})
	eng := engine.New(log, store, mem, intent.NewClassifier(policy), registry, gemClient, engine.Config{
		Routing: router.Config{
			ConfidenceThreshold: cfg.Routing.ConfidenceThreshold,
			MaxContextKeywords:  cfg.Routing.MaxContextKeywords,
			AmbiguityPolicy:     policy,
		},
		SessionTTL:          cfg.Routing.SessionTTL,
		PendingMaxTurns:     cfg.Routing.PendingMaxTurns,
		PendingMaxAge:       cfg.Routing.PendingMaxAge,
		GenerationTimeout:   cfg.Gemini.Timeout,
		HistoryWindow:       cfg.Memory.MaxTurns,
		GeneralErrorMessage: cfg.Messages.GeneralError,
		DegradedMessage:     cfg.Messages.Degraded,
	})

	hDeps := tghandlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Engine: eng,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(tghandlers.NewTurnHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cmdHandlers := tghandlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, cfg, db, store, eng, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
