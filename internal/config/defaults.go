package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	defaultGeminiTimeout  = 2 * time.Minute
	defaultPendingMaxAge  = 30 * time.Minute
	defaultSessionTTL     = 7 * 24 * time.Hour
	defaultMaxKeywords    = 20
	defaultPendingTurns   = 5
	defaultMaxTurns       = 200
	defaultVerbatimTail   = 10
	defaultCompactAfter   = 50
	defaultConfidence     = 0.5
	defaultRetryDelaySecs = 2
)

// setDefaults registers default values for optional configuration parameters.
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", true)

	viper.SetDefault("database.path", "concierge.db")

	viper.SetDefault("gemini.model_name", "gemini-2.0-flash")
	viper.SetDefault("gemini.temperature", 1.0)
	viper.SetDefault("gemini.system_instruction",
		"You are a concise personal assistant. Answer in the language the user writes in.")
	viper.SetDefault("gemini.summary_instruction",
		"Summarize the following conversation in a short paragraph, keeping names, dates, and open requests.")
	viper.SetDefault("gemini.timeout", defaultGeminiTimeout)
	viper.SetDefault("gemini.max_retries", 2)
	viper.SetDefault("gemini.retry_delay_seconds", defaultRetryDelaySecs)

	viper.SetDefault("routing.confidence_threshold", defaultConfidence)
	viper.SetDefault("routing.max_context_keywords", defaultMaxKeywords)
	viper.SetDefault("routing.pending_max_turns", defaultPendingTurns)
	viper.SetDefault("routing.pending_max_age", defaultPendingMaxAge)
	viper.SetDefault("routing.time_ambiguity", "next_future")
	viper.SetDefault("routing.session_ttl", defaultSessionTTL)

	viper.SetDefault("memory.mode", "buffer")
	viper.SetDefault("memory.max_turns", defaultMaxTurns)
	viper.SetDefault("memory.verbatim_tail", defaultVerbatimTail)
	viper.SetDefault("memory.compact_after_turns", defaultCompactAfter)

	viper.SetDefault("messages.welcome",
		"👋 Hi! I can set reminders, track your tasks, and queue messages. Just tell me what you need.")
	viper.SetDefault("messages.general_error",
		"❌ Something went wrong handling that. Please try again.")
	viper.SetDefault("messages.degraded",
		"⏱️ I'm having trouble reaching my brain right now, but I've noted your message.")
	viper.SetDefault("messages.forgotten",
		"🗑️ All your conversation data has been deleted.")

	viper.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"purge_expired_records": {Enabled: true, Schedule: "0 */6 * * *"},
		"sql_maintenance":       {Enabled: true, Schedule: "0 4 * * *"},
	})
}
