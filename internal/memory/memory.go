// Package memory implements the per-session conversation log with two
// retention strategies: a verbatim buffer bounded by turn count, and a
// periodically compacted rolling summary plus a verbatim tail.
package memory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/conciergebot/concierge/internal/database"
)

// Mode selects the retention strategy. Switching mode is a configuration
// choice, not automatic.
type Mode string

// Retention modes.
const (
	ModeBuffer  Mode = "buffer"
	ModeSummary Mode = "summary"
)

// Summarizer synthesizes a digest of older turns. Implemented by the
// external generation client.
type Summarizer interface {
	SummarizeConversation(ctx context.Context, messages []database.Message) (string, error)
}

// Config bounds the retention strategies.
type Config struct {
	Mode              Mode
	MaxTurns          int
	VerbatimTail      int
	CompactAfterTurns int
}

// MessageStore is the append-only per-session turn log.
type MessageStore struct {
	log        *slog.Logger
	store      database.Store
	summarizer Summarizer
	cfg        Config
}

// New creates a MessageStore on top of the persistent store.
func New(store database.Store, summarizer Summarizer, cfg Config, logger *slog.Logger) *MessageStore {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MessageStore{
		log:        logger.With("component", "memory"),
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

// Append adds one immutable turn to a session's log. In buffer mode the log
// is bounded by MaxTurns, oldest dropped first.
func (m *MessageStore) Append(ctx context.Context, sessionID, role, text string) error {
	msg := &database.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if m.cfg.Mode == ModeBuffer && m.cfg.MaxTurns > 0 {
		count, err := m.store.CountMessages(ctx, sessionID)
		if err != nil {
			m.log.WarnContext(ctx, "Could not count messages after append", "session_id", sessionID, "error", err)
			return nil
		}
		if count > m.cfg.MaxTurns {
			if err := m.store.TrimMessages(ctx, sessionID, m.cfg.MaxTurns); err != nil {
				m.log.WarnContext(ctx, "Could not trim message buffer", "session_id", sessionID, "error", err)
			}
		}
	}

	return nil
}

// Recent returns the last n messages of a session in insertion order.
func (m *MessageStore) Recent(ctx context.Context, sessionID string, n int) ([]database.Message, error) {
	return m.store.RecentMessages(ctx, sessionID, n)
}

// TurnCount returns the number of logged turns for a session.
func (m *MessageStore) TurnCount(ctx context.Context, sessionID string) (int, error) {
	return m.store.CountMessages(ctx, sessionID)
}

// ShouldCompact reports whether the session's log has grown past the
// compaction threshold. Only meaningful in summary mode.
func (m *MessageStore) ShouldCompact(ctx context.Context, sessionID string) bool {
	if m.cfg.Mode != ModeSummary || m.summarizer == nil {
		return false
	}
	count, err := m.store.CountMessages(ctx, sessionID)
	if err != nil {
		m.log.WarnContext(ctx, "Could not count messages for compaction check", "session_id", sessionID, "error", err)
		return false
	}
	return count > m.cfg.CompactAfterTurns
}

// Compact replaces all turns older than the verbatim tail with one
// synthesized summary message. The previous rolling summary, being part of
// the older turns, is folded into the new digest.
func (m *MessageStore) Compact(ctx context.Context, sessionID string) error {
	if m.summarizer == nil {
		return fmt.Errorf("no summarizer configured for compaction")
	}

	fetch := m.cfg.CompactAfterTurns + m.cfg.VerbatimTail
	if m.cfg.MaxTurns > fetch {
		fetch = m.cfg.MaxTurns
	}
	msgs, err := m.store.RecentMessages(ctx, sessionID, fetch)
	if err != nil {
		return fmt.Errorf("failed to load history for compaction: %w", err)
	}
	if len(msgs) <= m.cfg.VerbatimTail {
		return nil
	}

	tail := msgs[len(msgs)-m.cfg.VerbatimTail:]
	older := msgs[:len(msgs)-m.cfg.VerbatimTail]

	summaryText, err := m.summarizer.SummarizeConversation(ctx, older)
	if err != nil {
		return fmt.Errorf("failed to synthesize summary: %w", err)
	}

	summary := &database.Message{
		Role:    database.RoleAssistant,
		Content: summaryText,
		// Placed just before the verbatim tail so ordering is preserved.
		Timestamp: tail[0].Timestamp.Add(-time.Millisecond),
	}
	if err := m.store.ReplaceOlderWithSummary(ctx, sessionID, tail[0].ID, summary); err != nil {
		return fmt.Errorf("failed to commit compaction: %w", err)
	}

	m.log.InfoContext(ctx, "Session history compacted",
		"session_id", sessionID, "compacted", len(older), "tail", len(tail))
	return nil
}
