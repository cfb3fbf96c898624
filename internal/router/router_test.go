// Package router_test tests the routing decision engine end to end against
// the classifier and the context state machine.
package router_test

import (
	"testing"
	"time"

	"github.com/conciergebot/concierge/internal/convo"
	"github.com/conciergebot/concierge/internal/handlers"
	"github.com/conciergebot/concierge/internal/intent"
	"github.com/conciergebot/concierge/internal/router"
	"github.com/conciergebot/concierge/internal/slots"
)

var now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

var cfg = router.Config{
	ConfidenceThreshold: 0.5,
	MaxContextKeywords:  20,
	AmbiguityPolicy:     slots.PolicyNextFuture,
}

var allAvailable = map[string]bool{
	handlers.HandlerScheduler: true,
	handlers.HandlerTasks:     true,
	handlers.HandlerMessenger: true,
}

func route(t *testing.T, text string, state *convo.ContextState) router.Decision {
	t.Helper()
	cands := intent.NewClassifier(cfg.AmbiguityPolicy).Classify(text, now)
	return router.Route(text, cands, state, allAvailable, now, cfg)
}

func TestRoute(t *testing.T) {
	t.Parallel()

	t.Run("Explicit complete intent routes directly", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		d := route(t, "remind me to call mom at 6pm", state)

		if d.Handler != handlers.HandlerScheduler || d.Action != router.ActionProcess {
			t.Fatalf("decision = %+v, want scheduler/process", d)
		}
		if len(d.Missing) != 0 {
			t.Errorf("missing = %v, want none", d.Missing)
		}
		if state.ActiveHandler != handlers.HandlerScheduler {
			t.Errorf("active handler = %q, want scheduler", state.ActiveHandler)
		}
		if state.CurrentState != convo.StateHandlerActive {
			t.Errorf("state = %s, want %s", state.CurrentState, convo.StateHandlerActive)
		}
	})

	t.Run("Incomplete intent creates a pending request", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		d := route(t, "set a reminder for tomorrow", state)

		if d.Handler != handlers.HandlerScheduler {
			t.Fatalf("handler = %q, want scheduler", d.Handler)
		}
		if len(d.Missing) != 1 || d.Missing[0] != intent.SlotTime {
			t.Fatalf("missing = %v, want [time]", d.Missing)
		}
		if state.CurrentState != convo.StateAwaitingSlot {
			t.Errorf("state = %s, want %s", state.CurrentState, convo.StateAwaitingSlot)
		}
		if state.PendingFor(handlers.HandlerScheduler) == nil {
			t.Error("expected a pending request for scheduler")
		}
	})

	t.Run("Bare value resolves the pending request", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		route(t, "set a reminder for tomorrow", state)

		d := route(t, "at 6pm", state)
		if d.Handler != handlers.HandlerScheduler || !d.ResolvedPending {
			t.Fatalf("decision = %+v, want scheduler with resolved pending", d)
		}
		if len(d.Missing) != 0 {
			t.Errorf("missing = %v, want none", d.Missing)
		}
		if d.Slots[intent.SlotTime] == "" {
			t.Error("expected the time slot to be filled")
		}
		if state.PendingFor(handlers.HandlerScheduler) != nil {
			t.Error("pending request should have been resolved")
		}
	})

	t.Run("Partial fill keeps the request pending with remaining slots", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		state.AddPendingRequest(string(intent.SendMessage), handlers.HandlerMessenger,
			[]string{intent.SlotRecipient, intent.SlotBody}, nil, now)

		d := route(t, "alice", state)
		if d.Handler != handlers.HandlerMessenger || !d.ResolvedPending {
			t.Fatalf("decision = %+v, want messenger with pending resolution", d)
		}
		if d.Slots[intent.SlotRecipient] != "alice" {
			t.Errorf("recipient = %q, want alice", d.Slots[intent.SlotRecipient])
		}

		pending := state.PendingFor(handlers.HandlerMessenger)
		if pending == nil {
			t.Fatal("request should still be pending for the body slot")
		}
		if pending.PartialContext[intent.SlotRecipient] != "alice" {
			t.Errorf("partial context = %v, want recipient carried over", pending.PartialContext)
		}
	})

	t.Run("Clarification override beats a stale pending request", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		route(t, "set a reminder for tomorrow", state)

		d := route(t, "no, I asked you to add it to my todo list", state)
		if d.Handler != handlers.HandlerTasks || !d.Clarification {
			t.Fatalf("decision = %+v, want tasks via clarification", d)
		}
		if state.PendingFor(handlers.HandlerScheduler) != nil {
			t.Error("stale scheduler request should have been cleared")
		}
		if state.ActiveHandler != handlers.HandlerTasks {
			t.Errorf("active handler = %q, want tasks", state.ActiveHandler)
		}
	})

	t.Run("Explicit intent beats an unrelated pending request", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		route(t, "set a reminder for tomorrow", state)

		d := route(t, "add buy milk to my todo list", state)
		if d.Handler != handlers.HandlerTasks || d.Action != router.ActionProcess {
			t.Fatalf("decision = %+v, want tasks/process", d)
		}
		if d.ResolvedPending {
			t.Error("explicit intent should not count as pending resolution")
		}
	})

	t.Run("Context keywords keep the active handler", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		route(t, "add groceries to my todo list", state)

		d := route(t, "actually make that groceries for the whole week", state)
		if d.Handler != handlers.HandlerTasks || d.Action != router.ActionProcess {
			t.Fatalf("decision = %+v, want tasks continuity", d)
		}
	})

	t.Run("Listing bypass does not mutate state", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		route(t, "set a reminder for tomorrow", state)
		before := state.Clone()

		d := route(t, "show me all my reminders", state)
		if d.Handler != handlers.HandlerScheduler || d.Action != router.ActionList {
			t.Fatalf("decision = %+v, want scheduler/list", d)
		}
		if state.CurrentState != before.CurrentState ||
			len(state.PendingRequests) != len(before.PendingRequests) ||
			state.ActiveHandler != before.ActiveHandler {
			t.Errorf("listing bypass mutated state: before %+v, after %+v", before, state)
		}
	})

	t.Run("No signal falls back", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		d := route(t, "what's the weather like", state)

		if d.Action != router.ActionNone || d.Handler != "" {
			t.Fatalf("decision = %+v, want fallback", d)
		}
		if state.CurrentState != convo.StateIdle {
			t.Errorf("state = %s, want %s", state.CurrentState, convo.StateIdle)
		}
	})

	t.Run("Unavailable handler is skipped", func(t *testing.T) {
		t.Parallel()
		state := convo.NewContextState(now)
		cands := intent.NewClassifier(cfg.AmbiguityPolicy).Classify("remind me to call mom at 6pm", now)
		available := map[string]bool{handlers.HandlerTasks: true}

		d := router.Route("remind me to call mom at 6pm", cands, state, available, now, cfg)
		if d.Action != router.ActionNone {
			t.Fatalf("decision = %+v, want fallback when the handler is unavailable", d)
		}
	})

	t.Run("Deterministic for identical input and state", func(t *testing.T) {
		t.Parallel()
		stateA := convo.NewContextState(now)
		stateB := convo.NewContextState(now)

		dA := route(t, "set a reminder for tomorrow", stateA)
		dB := route(t, "set a reminder for tomorrow", stateB)

		if dA.Handler != dB.Handler || dA.Action != dB.Action || len(dA.Missing) != len(dB.Missing) {
			t.Errorf("decisions differ: %+v vs %+v", dA, dB)
		}
		if stateA.CurrentState != stateB.CurrentState || len(stateA.PendingRequests) != len(stateB.PendingRequests) {
			t.Errorf("state mutations differ: %+v vs %+v", stateA, stateB)
		}
	})
}
