// Package engine orchestrates one conversation turn: classify the utterance,
// decide the route, invoke the selected handler, and commit the turn to the
// message store and context state. Routing is pure and deterministic; the
// generation capability is only consulted after routing, for fallback prose.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/conciergebot/concierge/internal/convo"
	"github.com/conciergebot/concierge/internal/database"
	"github.com/conciergebot/concierge/internal/handlers"
	"github.com/conciergebot/concierge/internal/intent"
	"github.com/conciergebot/concierge/internal/memory"
	"github.com/conciergebot/concierge/internal/router"
)

// contextStateRecord is the record type under which the per-session context
// state is persisted.
const contextStateRecord = "context_state"

// Generator is the slice of the generation capability the engine consumes
// for fallback handling.
type Generator interface {
	GenerateReply(ctx context.Context, messages []database.Message) (string, error)
}

// Config holds the engine's policy knobs.
type Config struct {
	Routing           router.Config
	SessionTTL        time.Duration
	PendingMaxTurns   int
	PendingMaxAge     time.Duration
	GenerationTimeout time.Duration
	HistoryWindow     int

	GeneralErrorMessage string
	DegradedMessage     string
}

// Turn is the outcome of one handled turn.
type Turn struct {
	HandlerInvoked string
	ResponseText   string
	Degraded       bool
}

// Engine routes turns and maintains per-session conversation state.
type Engine struct {
	log        *slog.Logger
	store      database.Store
	memory     *memory.MessageStore
	classifier *intent.Classifier
	registry   *handlers.Registry
	generator  Generator
	cfg        Config
}

// New creates a turn engine.
func New(
	logger *slog.Logger,
	store database.Store,
	mem *memory.MessageStore,
	classifier *intent.Classifier,
	registry *handlers.Registry,
	generator Generator,
	cfg Config,
) *Engine {
	return &Engine{
		log:        logger.With("component", "engine"),
		store:      store,
		memory:     mem,
		classifier: classifier,
		registry:   registry,
		generator:  generator,
		cfg:        cfg,
	}
}

// HandleTurn processes one utterance for a session and returns the invoked
// handler (empty for fallback handling) and the response text.
//
// The context state is re-read from the persisted representation at turn
// start and written back once at the end, so concurrent turns for the same
// session settle as last-write-wins without dropping each other's reads.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, utterance string) (*Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if strings.TrimSpace(utterance) == "" {
		return nil, fmt.Errorf("utterance cannot be empty")
	}

	now := time.Now().UTC()
	state, storeUp := e.loadState(ctx, sessionID, now)
	snapshot := state.Clone()

	if expired := state.ExpireStaleRequests(now, e.cfg.PendingMaxTurns, e.cfg.PendingMaxAge); len(expired) > 0 {
		// Normal control flow, not an error.
		e.log.DebugContext(ctx, "Expired stale pending requests",
			"session_id", sessionID, "count", len(expired))
	}
	state.AdvanceTurn(now)

	candidates := e.classifier.Classify(utterance, now)
	decision := router.Route(utterance, candidates, state, e.registry.Available(), now, e.cfg.Routing)

	e.log.DebugContext(ctx, "Routing decision",
		"session_id", sessionID,
		"handler", decision.Handler,
		"action", decision.Action,
		"intent", decision.Intent,
		"clarification", decision.Clarification,
		"resolved_pending", decision.ResolvedPending)

	if storeUp {
		if err := e.memory.Append(ctx, sessionID, database.RoleUser, utterance); err != nil {
			e.log.ErrorContext(ctx, "Failed to log user message, continuing degraded",
				"session_id", sessionID, "error", err)
			storeUp = false
		}
	}

	turn, handlerErr := e.invoke(ctx, sessionID, utterance, decision, storeUp)
	if handlerErr != nil {
		// Handler exceptions are caught at the routing boundary: surface a
		// graceful failure and do not commit this turn's state mutations.
		e.log.ErrorContext(ctx, "Handler failed, rolling back turn state",
			"session_id", sessionID, "handler", decision.Handler, "error", handlerErr)
		if storeUp {
			e.persistState(ctx, sessionID, snapshot)
		}
		return &Turn{
			HandlerInvoked: decision.Handler,
			ResponseText:   e.cfg.GeneralErrorMessage,
			Degraded:       true,
		}, nil
	}

	if storeUp {
		if err := e.memory.Append(ctx, sessionID, database.RoleAssistant, turn.ResponseText); err != nil {
			e.log.ErrorContext(ctx, "Failed to log assistant message",
				"session_id", sessionID, "error", err)
		}
		e.persistState(ctx, sessionID, state)

		if e.memory.ShouldCompact(ctx, sessionID) {
			if err := e.memory.Compact(ctx, sessionID); err != nil {
				e.log.WarnContext(ctx, "History compaction failed",
					"session_id", sessionID, "error", err)
			}
		}
	}

	return turn, nil
}

// DeleteSession removes all data for a session, honoring an explicit
// data-deletion request.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.store.DeleteSessionData(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session data: %w", err)
	}
	return nil
}

// invoke executes the routing decision against the selected handler or the
// generation fallback.
func (e *Engine) invoke(ctx context.Context, sessionID, utterance string, decision router.Decision, logged bool) (*Turn, error) {
	switch decision.Action {
	case router.ActionList:
		h, err := e.registry.Get(decision.Handler)
		if err != nil {
			return nil, err
		}
		items, err := h.List(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return &Turn{HandlerInvoked: decision.Handler, ResponseText: "Nothing there yet."}, nil
		}
		return &Turn{HandlerInvoked: decision.Handler, ResponseText: strings.Join(items, "\n")}, nil

	case router.ActionProcess:
		h, err := e.registry.Get(decision.Handler)
		if err != nil {
			return nil, err
		}
		resp, err := h.Process(ctx, utterance, handlers.Turn{
			SessionID: sessionID,
			Slots:     decision.Slots,
			Missing:   decision.Missing,
		})
		if err != nil {
			return nil, err
		}
		return &Turn{HandlerInvoked: decision.Handler, ResponseText: resp}, nil

	default:
		return e.fallback(ctx, sessionID, utterance, logged), nil
	}
}

// fallback asks the generation capability for a general-purpose answer. A
// timeout or failure degrades the response but never fails the turn; the
// user message and routing decision are still committed by the caller.
// When the user message was already logged, the recent history ends with it;
// the in-memory copy is appended only on the degraded path.
func (e *Engine) fallback(ctx context.Context, sessionID, utterance string, logged bool) *Turn {
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	var history []database.Message
	if logged {
		var err error
		history, err = e.memory.Recent(genCtx, sessionID, e.cfg.HistoryWindow)
		if err != nil {
			e.log.WarnContext(ctx, "Could not load history for generation, using current turn only",
				"session_id", sessionID, "error", err)
			history = nil
			logged = false
		}
	}
	if !logged {
		history = append(history, database.Message{
			SessionID: sessionID,
			Role:      database.RoleUser,
			Content:   utterance,
			Timestamp: time.Now().UTC(),
		})
	}

	resp, err := e.generator.GenerateReply(genCtx, history)
	if err != nil {
		e.log.ErrorContext(ctx, "Generation fallback failed, returning degraded response",
			"session_id", sessionID, "error", err)
		return &Turn{ResponseText: e.cfg.DegradedMessage, Degraded: true}
	}

	return &Turn{ResponseText: resp}
}

// loadState reads the freshest persisted context state. Store unavailability
// degrades to a fresh in-memory state for this turn; the turn never crashes.
func (e *Engine) loadState(ctx context.Context, sessionID string, now time.Time) (*convo.ContextState, bool) {
	payload, err := e.store.GetContextRecord(ctx, sessionID, contextStateRecord)
	if err != nil {
		e.log.ErrorContext(ctx, "Context store unavailable, degrading to in-memory state",
			"session_id", sessionID, "error", err)
		return convo.NewContextState(now), false
	}
	if payload == nil {
		return convo.NewContextState(now), true
	}

	state := &convo.ContextState{}
	if err := json.Unmarshal(payload, state); err != nil {
		e.log.WarnContext(ctx, "Corrupt context state record, starting fresh",
			"session_id", sessionID, "error", err)
		return convo.NewContextState(now), true
	}
	return state, true
}

func (e *Engine) persistState(ctx context.Context, sessionID string, state *convo.ContextState) {
	payload, err := json.Marshal(state)
	if err != nil {
		e.log.ErrorContext(ctx, "Could not marshal context state", "session_id", sessionID, "error", err)
		return
	}
	if err := e.store.PutContextRecord(ctx, sessionID, contextStateRecord, payload, e.cfg.SessionTTL); err != nil {
		e.log.ErrorContext(ctx, "Could not persist context state", "session_id", sessionID, "error", err)
	}
}
