package database

import (
	"database/sql"
	"time"
)

// Message roles as stored in the messages table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one turn of a session's conversation log.
// Once appended it is never mutated; Summary marks synthesized digest
// entries produced by compaction.
type Message struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	SessionID string    `db:"session_id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	Summary   bool      `db:"summary"`
	Timestamp time.Time `db:"timestamp"`
}

// ContextRecord is an opaque structured payload persisted per
// (session id, record type) with an optional TTL.
type ContextRecord struct {
	SessionID  string       `db:"session_id"`
	RecordType string       `db:"record_type"`
	Payload    []byte       `db:"payload"`
	ExpiresAt  sql.NullTime `db:"expires_at"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

// Reminder is a scheduled reminder owned by the scheduler handler.
// Assumed records any ambiguity-resolution note applied to the time.
type Reminder struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	SessionID   string    `db:"session_id"`
	Description string    `db:"description"`
	RemindAt    time.Time `db:"remind_at"`
	Assumed     string    `db:"assumed"`
}

// Task is a to-do item owned by the tasks handler.
type Task struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	SessionID   string `db:"session_id"`
	Description string `db:"description"`
	Priority    string `db:"priority"`
	Done        bool   `db:"done"`
}

// OutboxMessage is a queued outgoing message owned by the messenger handler.
type OutboxMessage struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	SessionID string `db:"session_id"`
	Recipient string `db:"recipient"`
	Body      string `db:"body"`
	Sent      bool   `db:"sent"`
}
