package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conciergebot/concierge/internal/database"
	"github.com/conciergebot/concierge/internal/intent"
)

// messengerHandler queues and lists outgoing messages.
type messengerHandler struct {
	log   *slog.Logger
	store database.Store
}

// NewMessengerHandler creates the correspondence handler.
func NewMessengerHandler(deps Deps) Handler {
	return &messengerHandler{
		log:   deps.Logger.With("handler", HandlerMessenger),
		store: deps.Store,
	}
}

func (h *messengerHandler) ID() string { return HandlerMessenger }

// Process queues an outgoing message when the recipient is known, otherwise
// asks for it.
func (h *messengerHandler) Process(ctx context.Context, utterance string, turn Turn) (string, error) {
	recipient, ok := turn.Slots[intent.SlotRecipient]
	if !ok {
		return "Who should I send that to?", nil
	}

	body := turn.Slots[intent.SlotBody]
	if body == "" {
		body = utterance
	}

	msg := &database.OutboxMessage{
		SessionID: turn.SessionID,
		Recipient: recipient,
		Body:      body,
	}
	if err := h.store.SaveOutboxMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to queue message: %w", err)
	}

	h.log.InfoContext(ctx, "Outgoing message queued",
		"session_id", turn.SessionID, "outbox_id", msg.ID, "recipient", recipient)

	return fmt.Sprintf("✉️ Message to %s queued: %s", recipient, body), nil
}

// List returns the session's queued outgoing messages.
func (h *messengerHandler) List(ctx context.Context, sessionID string) ([]string, error) {
	msgs, err := h.store.ListOutbox(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox: %w", err)
	}

	items := make([]string, 0, len(msgs))
	for _, m := range msgs {
		status := "queued"
		if m.Sent {
			status = "sent"
		}
		items = append(items, fmt.Sprintf("✉️ to %s (%s): %s", m.Recipient, status, m.Body))
	}
	return items, nil
}
