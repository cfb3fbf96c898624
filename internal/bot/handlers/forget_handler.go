package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewForgetHandler returns a handler for the /forget command, which erases all
// stored data for the requesting session.
func NewForgetHandler(deps HandlerDeps) bot.HandlerFunc {
	return forgetHandler{deps}.Handle
}

type forgetHandler struct {
	deps HandlerDeps
}

func (h forgetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "forget")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Forget handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	sessionID := SessionID(chatID)
	log.InfoContext(ctx, "Handling /forget command", "chat_id", chatID, "user_id", update.Message.From.ID)

	text := h.deps.Config.Messages.Forgotten
	if err := h.deps.Engine.DeleteSession(ctx, sessionID); err != nil {
		log.ErrorContext(ctx, "Failed to delete session data", "error", err, "session_id", sessionID)
		text = h.deps.Config.Messages.GeneralError
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send forget confirmation", "error", err, "chat_id", chatID)
	}
}
