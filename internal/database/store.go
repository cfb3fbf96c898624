package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage appends a message to a session's conversation log.
	SaveMessage(ctx context.Context, message *Message) error

	// RecentMessages retrieves the last 'limit' messages of a session in
	// chronological order.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// CountMessages returns the number of logged messages for a session.
	CountMessages(ctx context.Context, sessionID string) (int, error)

	// TrimMessages deletes the oldest messages of a session beyond 'keep'.
	TrimMessages(ctx context.Context, sessionID string, keep int) error

	// ReplaceOlderWithSummary atomically deletes all messages of a session
	// older than olderThanID and inserts the synthesized summary in their place.
	ReplaceOlderWithSummary(ctx context.Context, sessionID string, olderThanID uint, summary *Message) error

	// GetContextRecord returns the payload stored for (session, record type),
	// or nil with no error when the record is absent or TTL-expired.
	GetContextRecord(ctx context.Context, sessionID, recordType string) ([]byte, error)

	// PutContextRecord upserts the payload for (session, record type).
	// A ttl of zero stores the record without expiry.
	PutContextRecord(ctx context.Context, sessionID, recordType string, payload []byte, ttl time.Duration) error

	// DeleteContextRecord removes the record for (session, record type).
	DeleteContextRecord(ctx context.Context, sessionID, recordType string) error

	// PurgeExpired deletes all TTL-expired context records and returns the count.
	PurgeExpired(ctx context.Context) (int64, error)

	// DeleteSessionData removes every record belonging to a session
	// (messages, context records, reminders, tasks, outbox) in one transaction.
	DeleteSessionData(ctx context.Context, sessionID string) error

	// SaveReminder inserts a new reminder.
	SaveReminder(ctx context.Context, reminder *Reminder) error

	// ListReminders returns a session's reminders ordered by due time.
	ListReminders(ctx context.Context, sessionID string) ([]Reminder, error)

	// SaveTask inserts a new task.
	SaveTask(ctx context.Context, task *Task) error

	// ListTasks returns a session's tasks; completed ones only when includeDone is set.
	ListTasks(ctx context.Context, sessionID string, includeDone bool) ([]Task, error)

	// MarkTaskDone marks the first open task whose description contains the
	// given text. Returns false when nothing matched.
	MarkTaskDone(ctx context.Context, sessionID, description string) (bool, error)

	// SaveOutboxMessage queues an outgoing message.
	SaveOutboxMessage(ctx context.Context, msg *OutboxMessage) error

	// ListOutbox returns a session's queued outgoing messages.
	ListOutbox(ctx context.Context, sessionID string) ([]OutboxMessage, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessage appends a message to a session's conversation log.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.SessionID == "" {
		return fmt.Errorf("message must have a non-empty session_id")
	}
	if message.Role != RoleUser && message.Role != RoleAssistant {
		return fmt.Errorf("message has unknown role %q", message.Role)
	}
	if message.Content == "" {
		return fmt.Errorf("message must have non-empty content")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now

	query := `
        INSERT INTO messages (session_id, role, content, summary, timestamp, created_at, updated_at)
        VALUES (:session_id, :role, :content, :summary, :timestamp, :created_at, :updated_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, message)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "session_id", message.SessionID, "error", err)
		return fmt.Errorf("failed to save message for session %s: %w", message.SessionID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		message.ID = uint(id)
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message",
			"session_id", message.SessionID, "error", err)
	}

	s.logger.DebugContext(ctx, "Message saved", "session_id", message.SessionID, "message_id", message.ID)
	return nil
}

// RecentMessages retrieves the last 'limit' messages of a session in chronological order.
func (s *sqlxStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []Message
	query := `
        SELECT id, session_id, role, content, summary, timestamp, created_at, updated_at
        FROM (
            SELECT id, session_id, role, content, summary, timestamp, created_at, updated_at
            FROM messages
            WHERE session_id = ?
            ORDER BY timestamp DESC, id DESC
            LIMIT ?
        )
        ORDER BY timestamp ASC, id ASC;
    `
	err := s.db.SelectContext(ctx, &messages, query, sessionID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for session %s: %w", sessionID, err)
	}

	return messages, nil
}

// CountMessages returns the number of logged messages for a session.
func (s *sqlxStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("session_id cannot be empty")
	}

	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for session %s: %w", sessionID, err)
	}
	return count, nil
}

// TrimMessages deletes the oldest messages of a session beyond 'keep'.
func (s *sqlxStore) TrimMessages(ctx context.Context, sessionID string, keep int) error {
	if sessionID == "" {
		return fmt.Errorf("session_id cannot be empty")
	}
	if keep < 0 {
		keep = 0
	}

	query := `
        DELETE FROM messages
        WHERE session_id = ?
          AND id NOT IN (
            SELECT id FROM messages
            WHERE session_id = ?
            ORDER BY timestamp DESC, id DESC
            LIMIT ?
        );
    `
	result, err := s.db.ExecContext(ctx, query, sessionID, sessionID, keep)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error trimming messages", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to trim messages for session %s: %w", sessionID, err)
	}

	if dropped, err := result.RowsAffected(); err == nil && dropped > 0 {
		s.logger.DebugContext(ctx, "Trimmed oldest messages", "session_id", sessionID, "dropped", dropped)
	}
	return nil
}

// ReplaceOlderWithSummary atomically deletes all messages of a session older
// than olderThanID and inserts the synthesized summary in their place.
func (s *sqlxStore) ReplaceOlderWithSummary(ctx context.Context, sessionID string, olderThanID uint, summary *Message) error {
	if sessionID == "" {
		return fmt.Errorf("session_id cannot be empty")
	}
	if summary == nil {
		return fmt.Errorf("cannot replace history with nil summary")
	}

	now := time.Now().UTC()
	summary.SessionID = sessionID
	summary.Summary = true
	summary.CreatedAt = now
	summary.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND id < ?`, sessionID, olderThanID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting compacted messages", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to delete compacted messages for session %s: %w", sessionID, err)
	}
	compacted, _ := result.RowsAffected()

	_, err = tx.NamedExecContext(ctx, `
        INSERT INTO messages (session_id, role, content, summary, timestamp, created_at, updated_at)
        VALUES (:session_id, :role, :content, :summary, :timestamp, :created_at, :updated_at);
    `, summary)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error inserting summary message", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to insert summary for session %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit compaction transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Compacted session history", "session_id", sessionID, "messages_compacted", compacted)
	return nil
}

// GetContextRecord returns the payload stored for (session, record type),
// or nil with no error when the record is absent or TTL-expired.
func (s *sqlxStore) GetContextRecord(ctx context.Context, sessionID, recordType string) ([]byte, error) {
	if sessionID == "" || recordType == "" {
		return nil, fmt.Errorf("session_id and record_type cannot be empty")
	}

	var record ContextRecord
	query := `
        SELECT session_id, record_type, payload, expires_at, created_at, updated_at
        FROM context_records
        WHERE session_id = ? AND record_type = ?;
    `
	err := s.db.GetContext(ctx, &record, query, sessionID, recordType)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting context record",
			"session_id", sessionID, "record_type", recordType, "error", err)
		return nil, fmt.Errorf("failed to get context record %s/%s: %w", sessionID, recordType, err)
	}

	// Expired records are treated as absent; the purge task removes them later.
	if record.ExpiresAt.Valid && !record.ExpiresAt.Time.After(time.Now().UTC()) {
		s.logger.DebugContext(ctx, "Context record expired, treating as absent",
			"session_id", sessionID, "record_type", recordType)
		return nil, nil
	}

	return record.Payload, nil
}

// PutContextRecord upserts the payload for (session, record type).
func (s *sqlxStore) PutContextRecord(ctx context.Context, sessionID, recordType string, payload []byte, ttl time.Duration) error {
	if sessionID == "" || recordType == "" {
		return fmt.Errorf("session_id and record_type cannot be empty")
	}
	if len(payload) == 0 {
		return fmt.Errorf("cannot store empty context record payload")
	}

	now := time.Now().UTC()
	record := ContextRecord{
		SessionID:  sessionID,
		RecordType: recordType,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if ttl > 0 {
		record.ExpiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	query := `
        INSERT INTO context_records (session_id, record_type, payload, expires_at, created_at, updated_at)
        VALUES (:session_id, :record_type, :payload, :expires_at, :created_at, :updated_at)
        ON CONFLICT (session_id, record_type) DO UPDATE SET
            payload = excluded.payload,
            expires_at = excluded.expires_at,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		s.logger.ErrorContext(ctx, "Error putting context record",
			"session_id", sessionID, "record_type", recordType, "error", err)
		return fmt.Errorf("failed to put context record %s/%s: %w", sessionID, recordType, err)
	}

	return nil
}

// DeleteContextRecord removes the record for (session, record type).
func (s *sqlxStore) DeleteContextRecord(ctx context.Context, sessionID, recordType string) error {
	if sessionID == "" || recordType == "" {
		return fmt.Errorf("session_id and record_type cannot be empty")
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM context_records WHERE session_id = ? AND record_type = ?`, sessionID, recordType)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting context record",
			"session_id", sessionID, "record_type", recordType, "error", err)
		return fmt.Errorf("failed to delete context record %s/%s: %w", sessionID, recordType, err)
	}
	return nil
}

// PurgeExpired deletes all TTL-expired context records and returns the count.
func (s *sqlxStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM context_records WHERE expires_at IS NOT NULL AND expires_at <= ?`, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error purging expired context records", "error", err)
		return 0, fmt.Errorf("failed to purge expired context records: %w", err)
	}

	purged, _ := result.RowsAffected()
	if purged > 0 {
		s.logger.InfoContext(ctx, "Purged expired context records", "count", purged)
	}
	return purged, nil
}

// DeleteSessionData removes every record belonging to a session in one transaction.
func (s *sqlxStore) DeleteSessionData(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session_id cannot be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for session deletion: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	for _, table := range []string{"messages", "context_records", "reminders", "tasks", "outbox"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), sessionID); err != nil {
			s.logger.ErrorContext(ctx, "Error deleting session rows", "table", table, "session_id", sessionID, "error", err)
			return fmt.Errorf("failed to delete %s rows for session %s: %w", table, sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session deletion: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Deleted all session data", "session_id", sessionID)
	return nil
}

// SaveReminder inserts a new reminder.
func (s *sqlxStore) SaveReminder(ctx context.Context, reminder *Reminder) error {
	if reminder == nil {
		return fmt.Errorf("cannot save nil reminder")
	}
	if reminder.SessionID == "" || reminder.Description == "" {
		return fmt.Errorf("reminder must have session_id and description")
	}

	now := time.Now().UTC()
	reminder.CreatedAt = now
	reminder.UpdatedAt = now

	query := `
        INSERT INTO reminders (session_id, description, remind_at, assumed, created_at, updated_at)
        VALUES (:session_id, :description, :remind_at, :assumed, :created_at, :updated_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, reminder)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving reminder", "session_id", reminder.SessionID, "error", err)
		return fmt.Errorf("failed to save reminder for session %s: %w", reminder.SessionID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		reminder.ID = uint(id)
	}
	return nil
}

// ListReminders returns a session's reminders ordered by due time.
func (s *sqlxStore) ListReminders(ctx context.Context, sessionID string) ([]Reminder, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id cannot be empty")
	}

	var reminders []Reminder
	query := `
        SELECT id, session_id, description, remind_at, assumed, created_at, updated_at
        FROM reminders
        WHERE session_id = ?
        ORDER BY remind_at ASC, id ASC;
    `
	if err := s.db.SelectContext(ctx, &reminders, query, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing reminders", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("failed to list reminders for session %s: %w", sessionID, err)
	}
	return reminders, nil
}

// SaveTask inserts a new task.
func (s *sqlxStore) SaveTask(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("cannot save nil task")
	}
	if task.SessionID == "" || task.Description == "" {
		return fmt.Errorf("task must have session_id and description")
	}
	if task.Priority == "" {
		task.Priority = "medium"
	}

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	query := `
        INSERT INTO tasks (session_id, description, priority, done, created_at, updated_at)
        VALUES (:session_id, :description, :priority, :done, :created_at, :updated_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, task)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving task", "session_id", task.SessionID, "error", err)
		return fmt.Errorf("failed to save task for session %s: %w", task.SessionID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		task.ID = uint(id)
	}
	return nil
}

// ListTasks returns a session's tasks; completed ones only when includeDone is set.
func (s *sqlxStore) ListTasks(ctx context.Context, sessionID string, includeDone bool) ([]Task, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id cannot be empty")
	}

	var tasks []Task
	query := `
        SELECT id, session_id, description, priority, done, created_at, updated_at
        FROM tasks
        WHERE session_id = ? AND (done = 0 OR ? = 1)
        ORDER BY done ASC, id ASC;
    `
	if err := s.db.SelectContext(ctx, &tasks, query, sessionID, includeDone); err != nil {
		s.logger.ErrorContext(ctx, "Error listing tasks", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("failed to list tasks for session %s: %w", sessionID, err)
	}
	return tasks, nil
}

// MarkTaskDone marks the first open task whose description contains the given text.
func (s *sqlxStore) MarkTaskDone(ctx context.Context, sessionID, description string) (bool, error) {
	if sessionID == "" || description == "" {
		return false, fmt.Errorf("session_id and description cannot be empty")
	}

	query := `
        UPDATE tasks SET done = 1, updated_at = ?
        WHERE id = (
            SELECT id FROM tasks
            WHERE session_id = ? AND done = 0 AND description LIKE '%' || ? || '%'
            ORDER BY id ASC
            LIMIT 1
        );
    `
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), sessionID, description)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking task done", "session_id", sessionID, "error", err)
		return false, fmt.Errorf("failed to mark task done for session %s: %w", sessionID, err)
	}

	affected, _ := result.RowsAffected()
	return affected == 1, nil
}

// SaveOutboxMessage queues an outgoing message.
func (s *sqlxStore) SaveOutboxMessage(ctx context.Context, msg *OutboxMessage) error {
	if msg == nil {
		return fmt.Errorf("cannot save nil outbox message")
	}
	if msg.SessionID == "" || msg.Recipient == "" {
		return fmt.Errorf("outbox message must have session_id and recipient")
	}

	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	query := `
        INSERT INTO outbox (session_id, recipient, body, sent, created_at, updated_at)
        VALUES (:session_id, :recipient, :body, :sent, :created_at, :updated_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving outbox message", "session_id", msg.SessionID, "error", err)
		return fmt.Errorf("failed to save outbox message for session %s: %w", msg.SessionID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		msg.ID = uint(id)
	}
	return nil
}

// ListOutbox returns a session's queued outgoing messages.
func (s *sqlxStore) ListOutbox(ctx context.Context, sessionID string) ([]OutboxMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id cannot be empty")
	}

	var msgs []OutboxMessage
	query := `
        SELECT id, session_id, recipient, body, sent, created_at, updated_at
        FROM outbox
        WHERE session_id = ?
        ORDER BY id ASC;
    `
	if err := s.db.SelectContext(ctx, &msgs, query, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "Error listing outbox", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("failed to list outbox for session %s: %w", sessionID, err)
	}
	return msgs, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
