// Package convo models the per-session conversation context: the active
// handler, outstanding pending requests, and the bounded keyword set used for
// continuity routing. All mutations are applied by the routing engine within a
// single read-modify-write per turn.
package convo

import (
	"slices"
	"time"
)

// State is the conversation state machine position.
type State string

// Conversation states.
const (
	// StateIdle means no handler owns the conversation.
	StateIdle State = "idle"
	// StateHandlerActive means a handler owns the conversation.
	StateHandlerActive State = "handler_active"
	// StateAwaitingSlot means at least one pending request is waiting for input.
	StateAwaitingSlot State = "awaiting_slot"
	// StateClarifying is entered transiently when a clarification pattern
	// overrides the otherwise-selected handler.
	StateClarifying State = "clarifying"
)

// PendingRequest is an intent awaiting one or more missing slots before its
// handler can complete it. At most one exists per target handler.
type PendingRequest struct {
	RequestType    string            `json:"request_type"`
	TargetHandler  string            `json:"target_handler"`
	MissingSlots   []string          `json:"missing_slots"`
	PartialContext map[string]string `json:"partial_context"`
	CreatedAt      time.Time         `json:"created_at"`
	TurnsWaited    int               `json:"turns_waited"`
}

// ContextState is the compact per-session conversation state. Exactly one
// exists per session; it is persisted between turns as an opaque record.
type ContextState struct {
	CurrentState      State            `json:"current_state"`
	ActiveHandler     string           `json:"active_handler,omitempty"`
	PendingRequests   []PendingRequest `json:"pending_requests,omitempty"`
	ContextKeywords   []string         `json:"context_keywords,omitempty"`
	ConversationTopic string           `json:"conversation_topic,omitempty"`
	LastActivity      time.Time        `json:"last_activity"`
}

// NewContextState returns a fresh idle state.
func NewContextState(now time.Time) *ContextState {
	return &ContextState{
		CurrentState: StateIdle,
		LastActivity: now,
	}
}

// Clone returns a deep copy, used to keep a pre-turn snapshot for rollback.
func (s *ContextState) Clone() *ContextState {
	out := &ContextState{
		CurrentState:      s.CurrentState,
		ActiveHandler:     s.ActiveHandler,
		ConversationTopic: s.ConversationTopic,
		LastActivity:      s.LastActivity,
		ContextKeywords:   slices.Clone(s.ContextKeywords),
	}
	for _, pr := range s.PendingRequests {
		cp := pr
		cp.MissingSlots = slices.Clone(pr.MissingSlots)
		cp.PartialContext = make(map[string]string, len(pr.PartialContext))
		for k, v := range pr.PartialContext {
			cp.PartialContext[k] = v
		}
		out.PendingRequests = append(out.PendingRequests, cp)
	}
	return out
}

// SetActiveHandler marks a handler as owning the conversation.
func (s *ContextState) SetActiveHandler(id string, now time.Time) {
	s.ActiveHandler = id
	s.recompute()
	s.touch(now)
}

// AddPendingRequest records an intent waiting for missing slots. An existing
// pending request for the same handler is replaced, keeping the invariant of
// at most one per target handler.
func (s *ContextState) AddPendingRequest(reqType, handler string, missing []string, partial map[string]string, now time.Time) {
	s.removePendingFor(handler)
	if partial == nil {
		partial = map[string]string{}
	}
	s.PendingRequests = append(s.PendingRequests, PendingRequest{
		RequestType:    reqType,
		TargetHandler:  handler,
		MissingSlots:   slices.Clone(missing),
		PartialContext: partial,
		CreatedAt:      now,
	})
	s.recompute()
	s.touch(now)
}

// PendingFor returns the pending request targeting handler, or nil.
func (s *ContextState) PendingFor(handler string) *PendingRequest {
	for i := range s.PendingRequests {
		if s.PendingRequests[i].TargetHandler == handler {
			return &s.PendingRequests[i]
		}
	}
	return nil
}

// FirstPending returns the oldest pending request, or nil.
func (s *ContextState) FirstPending() *PendingRequest {
	if len(s.PendingRequests) == 0 {
		return nil
	}
	return &s.PendingRequests[0]
}

// ResolvePendingRequest removes the pending request targeting handler.
// Returns false when none existed.
func (s *ContextState) ResolvePendingRequest(handler string, now time.Time) bool {
	removed := s.removePendingFor(handler)
	if removed {
		s.recompute()
		s.touch(now)
	}
	return removed
}

// ClearPendingExcept drops all pending requests not targeting handler.
// Used by the clarification override so a stale request for one handler
// cannot keep capturing corrections meant for another.
func (s *ContextState) ClearPendingExcept(handler string, now time.Time) int {
	kept := s.PendingRequests[:0]
	cleared := 0
	for _, pr := range s.PendingRequests {
		if pr.TargetHandler == handler {
			kept = append(kept, pr)
		} else {
			cleared++
		}
	}
	s.PendingRequests = kept
	if cleared > 0 {
		s.recompute()
		s.touch(now)
	}
	return cleared
}

// ExpireStaleRequests removes pending requests older than the turn or
// wall-clock horizon and returns the expired ones. Called at the start of
// every turn so a stale half-finished request cannot hijack unrelated turns.
func (s *ContextState) ExpireStaleRequests(now time.Time, maxTurns int, maxAge time.Duration) []PendingRequest {
	var expired []PendingRequest
	kept := s.PendingRequests[:0]
	for _, pr := range s.PendingRequests {
		if pr.TurnsWaited >= maxTurns || now.Sub(pr.CreatedAt) >= maxAge {
			expired = append(expired, pr)
		} else {
			kept = append(kept, pr)
		}
	}
	s.PendingRequests = kept
	if len(expired) > 0 {
		s.recompute()
		s.touch(now)
	}
	return expired
}

// AdvanceTurn counts one conversation turn against all pending requests.
func (s *ContextState) AdvanceTurn(now time.Time) {
	for i := range s.PendingRequests {
		s.PendingRequests[i].TurnsWaited++
	}
	s.touch(now)
}

// AddContextKeywords merges keywords into the bounded keyword set. Duplicates
// are refreshed to most-recent; beyond max the oldest entries are evicted.
func (s *ContextState) AddContextKeywords(keywords []string, max int, now time.Time) {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if i := slices.Index(s.ContextKeywords, kw); i >= 0 {
			s.ContextKeywords = slices.Delete(s.ContextKeywords, i, i+1)
		}
		s.ContextKeywords = append(s.ContextKeywords, kw)
	}
	if max > 0 && len(s.ContextKeywords) > max {
		s.ContextKeywords = slices.Clone(s.ContextKeywords[len(s.ContextKeywords)-max:])
	}
	s.touch(now)
}

// HasAnyKeyword reports whether any of the given tokens is in the keyword set.
func (s *ContextState) HasAnyKeyword(tokens []string) bool {
	for _, tok := range tokens {
		if slices.Contains(s.ContextKeywords, tok) {
			return true
		}
	}
	return false
}

// SetTopic records the current conversation topic.
func (s *ContextState) SetTopic(topic string, now time.Time) {
	s.ConversationTopic = topic
	s.touch(now)
}

// MarkClarifying enters the transient clarification state.
func (s *ContextState) MarkClarifying(now time.Time) {
	s.CurrentState = StateClarifying
	s.touch(now)
}

// Settle leaves any transient state, recomputing the stable position.
func (s *ContextState) Settle(now time.Time) {
	s.recompute()
	s.touch(now)
}

func (s *ContextState) removePendingFor(handler string) bool {
	for i := range s.PendingRequests {
		if s.PendingRequests[i].TargetHandler == handler {
			s.PendingRequests = slices.Delete(s.PendingRequests, i, i+1)
			return true
		}
	}
	return false
}

// recompute derives the stable state from the pending set and active handler.
func (s *ContextState) recompute() {
	switch {
	case len(s.PendingRequests) > 0:
		s.CurrentState = StateAwaitingSlot
	case s.ActiveHandler != "":
		s.CurrentState = StateHandlerActive
	default:
		s.CurrentState = StateIdle
	}
}

func (s *ContextState) touch(now time.Time) {
	s.LastActivity = now
}
