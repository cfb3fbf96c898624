// Package handlers implements the Telegram-facing command and message
// handlers. The default handler feeds every plain text message through the
// routing engine; commands are registered explicitly.
package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const sendMessageTimeout = 10 * time.Second

// SessionID derives the opaque session identifier from a Telegram chat.
func SessionID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// NewTurnHandler creates the default handler that routes every incoming text
// message through the conversation engine.
func NewTurnHandler(deps HandlerDeps) bot.HandlerFunc {
	return turnHandler{deps}.Handle
}

type turnHandler struct {
	deps HandlerDeps
}

func (h turnHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "turn")

	msg := update.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		log.DebugContext(ctx, "Ignoring update with nil message, empty text, or nil sender", "update_id", update.ID)
		return
	}

	chatID := msg.Chat.ID
	sessionID := SessionID(chatID)

	_, _ = b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})

	turn, err := h.deps.Engine.HandleTurn(ctx, sessionID, msg.Text)
	if err != nil {
		log.ErrorContext(ctx, "Turn handling failed", "error", err, "session_id", sessionID)
		h.send(ctx, b, chatID, msg.ID, h.deps.Config.Messages.GeneralError)
		return
	}

	log.InfoContext(ctx, "Turn handled",
		"session_id", sessionID,
		"handler_invoked", turn.HandlerInvoked,
		"degraded", turn.Degraded)

	h.send(ctx, b, chatID, msg.ID, turn.ResponseText)
}

func (h turnHandler) send(ctx context.Context, b *bot.Bot, chatID int64, replyTo int, text string) {
	log := h.deps.Logger.With("handler", "turn")
	if text == "" {
		text = h.deps.Config.Messages.GeneralError
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()
	_, err := b.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID:          chatID,
		Text:            text,
		ReplyParameters: &models.ReplyParameters{MessageID: replyTo},
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply message", "error", err, "chat_id", chatID)
	}
}
