// Package config manages application configuration from environment variables,
// config files, and default values.
package config

import (
	"time"
)

// Config defines the application configuration. Values can be set via environment
// variables prefixed with BOT_ (e.g., BOT_TELEGRAM_TOKEN) or through config.yaml.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the Telegram front-end settings.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// GeminiConfig holds settings for the external generation capability.
type GeminiConfig struct {
	APIKey             string        `mapstructure:"api_key"             validate:"required"`
	ModelName          string        `mapstructure:"model_name"          validate:"required"`
	Temperature        float32       `mapstructure:"temperature"         validate:"min=0,max=2"`
	SystemInstruction  string        `mapstructure:"system_instruction"  validate:"required"`
	SummaryInstruction string        `mapstructure:"summary_instruction" validate:"required"`
	Timeout            time.Duration `mapstructure:"timeout"             validate:"required,min=1s,max=10m"`
	MaxRetries         int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds  int           `mapstructure:"retry_delay_seconds" validate:"min=1,max=60"`
}

// RoutingConfig tunes the intent routing and context state policies.
type RoutingConfig struct {
	// ConfidenceThreshold is the minimum classifier confidence for an
	// explicit intent to claim the turn.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"min=0,max=1"`

	// MaxContextKeywords bounds the per-session keyword set; oldest
	// entries are evicted beyond this.
	MaxContextKeywords int `mapstructure:"max_context_keywords" validate:"min=1,max=200"`

	// PendingMaxTurns and PendingMaxAge bound how long an unresolved
	// pending request may capture follow-up turns.
	PendingMaxTurns int           `mapstructure:"pending_max_turns" validate:"min=1,max=50"`
	PendingMaxAge   time.Duration `mapstructure:"pending_max_age"   validate:"required,min=1m"`

	// TimeAmbiguity selects how bare clock values with no meridiem are
	// resolved: next_future, morning, or evening.
	TimeAmbiguity string `mapstructure:"time_ambiguity" validate:"oneof=next_future morning evening"`

	// SessionTTL is the persistence TTL applied to context state records.
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"required,min=1h"`
}

// MemoryConfig controls per-session message retention.
type MemoryConfig struct {
	// Mode selects the retention strategy: buffer keeps verbatim turns,
	// summary keeps a rolling digest plus a verbatim tail.
	Mode              string `mapstructure:"mode"                validate:"oneof=buffer summary"`
	MaxTurns          int    `mapstructure:"max_turns"           validate:"min=2,max=1000"`
	VerbatimTail      int    `mapstructure:"verbatim_tail"       validate:"min=1,max=100"`
	CompactAfterTurns int    `mapstructure:"compact_after_turns" validate:"min=2,max=1000"`
}

// MessagesConfig holds user-facing response templates.
type MessagesConfig struct {
	Welcome      string `mapstructure:"welcome"`
	GeneralError string `mapstructure:"general_error"`
	Degraded     string `mapstructure:"degraded"`
	Forgotten    string `mapstructure:"forgotten"`
}

// SchedulerConfig holds the scheduled maintenance task table.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
