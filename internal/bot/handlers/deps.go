package handlers

import (
	"log/slog"

	"github.com/conciergebot/concierge/internal/config"
	"github.com/conciergebot/concierge/internal/engine"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Engine *engine.Engine
}
