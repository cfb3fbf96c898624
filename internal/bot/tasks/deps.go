// Package tasks implements scheduled maintenance tasks for the concierge
// application, along with their dependencies and registration mechanism.
package tasks

import (
	"log/slog"

	"github.com/conciergebot/concierge/internal/config"
	"github.com/conciergebot/concierge/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}
