package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conciergebot/concierge/internal/database"
	"github.com/conciergebot/concierge/internal/intent"
)

// schedulerHandler creates and lists reminders.
type schedulerHandler struct {
	log   *slog.Logger
	store database.Store
}

// NewSchedulerHandler creates the reminders handler.
func NewSchedulerHandler(deps Deps) Handler {
	return &schedulerHandler{
		log:   deps.Logger.With("handler", HandlerScheduler),
		store: deps.Store,
	}
}

func (h *schedulerHandler) ID() string { return HandlerScheduler }

// Process creates a reminder when the time slot is present, otherwise asks
// the follow-up question for the slot the router recorded as pending.
func (h *schedulerHandler) Process(ctx context.Context, utterance string, turn Turn) (string, error) {
	timeVal, ok := turn.Slots[intent.SlotTime]
	if !ok {
		return "Sure — when should I remind you?", nil
	}

	remindAt, err := time.Parse(time.RFC3339, timeVal)
	if err != nil {
		return "", fmt.Errorf("invalid time slot value %q: %w", timeVal, err)
	}

	description := turn.Slots[intent.SlotTask]
	if description == "" {
		description = utterance
	}

	reminder := &database.Reminder{
		SessionID:   turn.SessionID,
		Description: description,
		RemindAt:    remindAt,
		Assumed:     turn.Slots[intent.SlotTimeNote],
	}
	if err := h.store.SaveReminder(ctx, reminder); err != nil {
		return "", fmt.Errorf("failed to create reminder: %w", err)
	}

	h.log.InfoContext(ctx, "Reminder created",
		"session_id", turn.SessionID, "reminder_id", reminder.ID, "remind_at", remindAt)

	resp := fmt.Sprintf("⏰ Reminder set for %s: %s", remindAt.Format("Mon Jan 2 at 3:04 PM"), description)
	if note := turn.Slots[intent.SlotTimeNote]; note != "" {
		resp += fmt.Sprintf(" (%s)", note)
	}
	return resp, nil
}

// List returns the session's reminders ordered by due time.
func (h *schedulerHandler) List(ctx context.Context, sessionID string) ([]string, error) {
	reminders, err := h.store.ListReminders(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}

	items := make([]string, 0, len(reminders))
	for _, r := range reminders {
		items = append(items, fmt.Sprintf("⏰ %s — %s", r.RemindAt.Format("Mon Jan 2 at 3:04 PM"), r.Description))
	}
	return items, nil
}
