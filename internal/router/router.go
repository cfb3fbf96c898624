// Package router implements the per-turn routing decision: given the
// classifier output and the session's context state, pick the handler that
// receives the message. The decision logic is deterministic and evaluated
// top-down; the first matching rule wins.
package router

import (
	"regexp"
	"strings"
	"time"

	"github.com/conciergebot/concierge/internal/convo"
	"github.com/conciergebot/concierge/internal/handlers"
	"github.com/conciergebot/concierge/internal/intent"
	"github.com/conciergebot/concierge/internal/slots"
)

// Config holds the routing policy knobs.
type Config struct {
	ConfidenceThreshold float64
	MaxContextKeywords  int
	AmbiguityPolicy     slots.AmbiguityPolicy
}

// Action says what the selected handler should do with the turn.
type Action string

// Routing actions.
const (
	// ActionProcess invokes the handler's Process operation.
	ActionProcess Action = "process"
	// ActionList invokes the handler's deterministic List operation directly,
	// bypassing conversational handling and the generation capability.
	ActionList Action = "list"
	// ActionNone signals general-purpose fallback handling.
	ActionNone Action = "none"
)

// Decision is the routing outcome for one turn.
type Decision struct {
	Handler string
	Action  Action
	Intent  intent.Intent
	Slots   map[string]string
	Missing []string

	// Clarification is set when the clarification override fired.
	Clarification bool
	// ResolvedPending is set when the turn supplied slots to a pending request.
	ResolvedPending bool
}

var clarificationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bi (?:already )?asked (?:you )?(?:to|for)\b`),
	regexp.MustCompile(`(?i)\bno[, ]+i (?:said|meant|asked|wanted)\b`),
	regexp.MustCompile(`(?i)\bthat'?s not what i\b`),
}

// clarificationVocab maps correction vocabulary to its handler, most specific
// first so task vocabulary beats generic alert vocabulary.
var clarificationVocab = []struct {
	re      *regexp.Regexp
	handler string
}{
	{regexp.MustCompile(`(?i)\b(?:to-?do|task|checklist|list)\b`), handlers.HandlerTasks},
	{regexp.MustCompile(`(?i)\b(?:message|text|send)\b`), handlers.HandlerMessenger},
	{regexp.MustCompile(`(?i)\b(?:remind|reminder|alarm|alert)\b`), handlers.HandlerScheduler},
}

// Route decides which handler receives the turn. It applies the priority
// policy top-down and applies the resulting context-state transitions to
// state. Identical inputs always produce identical decisions and mutations.
func Route(text string, candidates []intent.Candidate, state *convo.ContextState, available map[string]bool, now time.Time, cfg Config) Decision {
	// 1. Clarification override: an explicit correction beats everything,
	// including a stale pending request for a different handler.
	if d, ok := routeClarification(text, candidates, state, available, now, cfg); ok {
		return d
	}

	// 2. Explicit classified intent above threshold.
	for _, cand := range candidates {
		if cand.Intent == intent.None || cand.Confidence < cfg.ConfidenceThreshold {
			continue
		}
		handler := handlerForIntent(cand.Intent, cand.Slots)
		if handler == "" || !available[handler] {
			continue
		}

		// Direct-listing bypass: deterministic, no conversational state taken over.
		if cand.Intent == intent.ListItems {
			return Decision{Handler: handler, Action: ActionList, Intent: cand.Intent, Slots: cand.Slots}
		}

		if cand.HasRequiredInfo() {
			state.ResolvePendingRequest(handler, now)
		} else {
			state.AddPendingRequest(string(cand.Intent), handler, cand.Missing, cand.Slots, now)
		}
		state.SetActiveHandler(handler, now)
		state.AddContextKeywords(keywordTokens(text), cfg.MaxContextKeywords, now)
		state.SetTopic(string(cand.Intent), now)

		return Decision{
			Handler: handler,
			Action:  ActionProcess,
			Intent:  cand.Intent,
			Slots:   cand.Slots,
			Missing: cand.Missing,
		}
	}

	// 3. Pending-request resolution: a bare value that plausibly supplies a
	// missing slot routes to the waiting handler.
	if pending := state.FirstPending(); pending != nil && available[pending.TargetHandler] {
		if d, ok := routePendingResolution(text, pending, state, now, cfg); ok {
			return d
		}
	}

	// 4. Active-handler continuity via accumulated context keywords.
	if state.ActiveHandler != "" && available[state.ActiveHandler] &&
		state.HasAnyKeyword(keywordTokens(text)) {
		state.Settle(now)
		return Decision{
			Handler: state.ActiveHandler,
			Action:  ActionProcess,
			Intent:  intent.None,
			Slots:   map[string]string{},
		}
	}

	// 5. Fallback: general-purpose handling.
	return Decision{Action: ActionNone, Intent: intent.None}
}

// routeClarification handles explicit user corrections ("i asked you to add
// the todo"). Without this, a stale pending request for handler A keeps
// capturing corrections meant for handler B.
func routeClarification(text string, candidates []intent.Candidate, state *convo.ContextState, available map[string]bool, now time.Time, cfg Config) (Decision, bool) {
	matched := false
	for _, re := range clarificationRes {
		if re.MatchString(text) {
			matched = true
			break
		}
	}
	if !matched {
		return Decision{}, false
	}

	var handler string
	for _, cv := range clarificationVocab {
		if cv.re.MatchString(text) && available[cv.handler] {
			handler = cv.handler
			break
		}
	}
	if handler == "" {
		return Decision{}, false
	}

	state.MarkClarifying(now)
	state.ClearPendingExcept(handler, now)
	state.SetActiveHandler(handler, now)
	state.AddContextKeywords(keywordTokens(text), cfg.MaxContextKeywords, now)

	decisionSlots := map[string]string{}
	var missing []string
	for _, cand := range candidates {
		if handlerForIntent(cand.Intent, cand.Slots) == handler {
			decisionSlots = cand.Slots
			missing = cand.Missing
			break
		}
	}

	return Decision{
		Handler:       handler,
		Action:        ActionProcess,
		Intent:        intentForHandler(handler),
		Slots:         decisionSlots,
		Missing:       missing,
		Clarification: true,
	}, true
}

// routePendingResolution checks whether the turn supplies any of the pending
// request's missing slots and, if so, routes to its handler.
func routePendingResolution(text string, pending *convo.PendingRequest, state *convo.ContextState, now time.Time, cfg Config) (Decision, bool) {
	filled := map[string]string{}
	var stillMissing []string
	bareUsed := false
	for _, slot := range pending.MissingSlots {
		value, note, bare, ok := fillSlot(slot, text, now, cfg.AmbiguityPolicy)
		if !ok || (bare && bareUsed) {
			stillMissing = append(stillMissing, slot)
			continue
		}
		if bare {
			bareUsed = true
		}
		filled[slot] = value
		if note != "" {
			filled[intent.SlotTimeNote] = note
		}
	}
	if len(filled) == 0 {
		return Decision{}, false
	}

	merged := make(map[string]string, len(pending.PartialContext)+len(filled))
	for k, v := range pending.PartialContext {
		merged[k] = v
	}
	for k, v := range filled {
		merged[k] = v
	}

	handler := pending.TargetHandler
	reqType := pending.RequestType
	if len(stillMissing) == 0 {
		state.ResolvePendingRequest(handler, now)
		state.SetActiveHandler(handler, now)
	} else {
		state.AddPendingRequest(reqType, handler, stillMissing, merged, now)
	}

	return Decision{
		Handler:         handler,
		Action:          ActionProcess,
		Intent:          intent.Intent(reqType),
		Slots:           merged,
		Missing:         stillMissing,
		ResolvedPending: true,
	}, true
}

// fillSlot attempts to read a slot value out of the turn's text. The bare
// result marks free-text slots filled from the whole phrase, so one phrase
// cannot fill more than one of them in the same turn.
func fillSlot(slot, text string, now time.Time, policy slots.AmbiguityPolicy) (value, note string, bare, ok bool) {
	switch slot {
	case intent.SlotTime:
		if expr, exOK := slots.ExtractTime(text, now, policy); exOK {
			return expr.At.Format(time.RFC3339), expr.Assumed, false, true
		}
	case intent.SlotPriority:
		if prio, exOK := slots.ExtractPriority(text); exOK {
			return string(prio), "", false, true
		}
	case intent.SlotTask, intent.SlotRecipient, intent.SlotBody:
		// A short free-standing phrase is taken as the bare slot value.
		trimmed := strings.TrimSpace(text)
		if trimmed != "" && len(strings.Fields(trimmed)) <= 6 {
			return trimmed, "", true, true
		}
	}
	return "", "", false, false
}

// handlerForIntent maps a classified intent (plus slots) to its owning handler.
func handlerForIntent(in intent.Intent, slotValues map[string]string) string {
	switch in {
	case intent.ScheduleReminder:
		return handlers.HandlerScheduler
	case intent.ManageTask:
		return handlers.HandlerTasks
	case intent.SendMessage:
		return handlers.HandlerMessenger
	case intent.ListItems:
		switch slotValues[intent.SlotSubject] {
		case "reminders":
			return handlers.HandlerScheduler
		case "tasks":
			return handlers.HandlerTasks
		case "messages":
			return handlers.HandlerMessenger
		}
	}
	return ""
}

func intentForHandler(handler string) intent.Intent {
	switch handler {
	case handlers.HandlerScheduler:
		return intent.ScheduleReminder
	case handlers.HandlerTasks:
		return intent.ManageTask
	case handlers.HandlerMessenger:
		return intent.SendMessage
	}
	return intent.None
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "your": true,
	"that": true, "this": true, "with": true, "about": true, "please": true,
	"can": true, "could": true, "would": true, "should": true, "all": true,
	"have": true, "what": true, "when": true, "where": true, "them": true,
}

var tokenRe = regexp.MustCompile(`[a-z]+`)

// keywordTokens extracts the content words of an utterance for the bounded
// context keyword set.
func keywordTokens(text string) []string {
	var out []string
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}
