// Package intent classifies free-text utterances into a closed set of domain
// intents with extracted slots. Matching is keyword/pattern based and fully
// deterministic; no pattern matching is not an error but a valid "none" result.
package intent

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/conciergebot/concierge/internal/slots"
)

// Intent is a closed-set classification of an utterance's purpose.
type Intent string

// The closed intent set.
const (
	ScheduleReminder Intent = "schedule_reminder"
	ManageTask       Intent = "manage_task"
	SendMessage      Intent = "send_message"
	ListItems        Intent = "list_items"
	None             Intent = "none"
)

// Slot names shared between the classifier, router, and handlers.
const (
	SlotTime      = "time"
	SlotTimeNote  = "time_note"
	SlotTask      = "task"
	SlotPriority  = "priority"
	SlotRecipient = "recipient"
	SlotBody      = "body"
	SlotSubject   = "subject"
	SlotAction    = "action"
)

// Candidate is one classified intent with its confidence and extracted slots.
type Candidate struct {
	Intent     Intent
	Confidence float64
	Slots      map[string]string
	Missing    []string
}

// HasRequiredInfo reports whether all mandatory slots for the intent are present.
func (c Candidate) HasRequiredInfo() bool {
	return len(c.Missing) == 0
}

// patternGroup is one ordered keyword/pattern group. Specificity breaks ties:
// a message matching both task and reminder vocabulary is a task message,
// since generic alert vocabulary also fires on any time expression.
type patternGroup struct {
	intent      Intent
	specificity int
	keywords    []string
	required    []string
}

var groups = []patternGroup{
	{
		intent:      ListItems,
		specificity: 3,
		keywords:    []string{"show me", "show all", "list my", "list all", "what are my", "what's on my"},
		required:    []string{SlotSubject},
	},
	{
		intent:      ManageTask,
		specificity: 2,
		keywords:    []string{"todo", "to-do", "task", "checklist", "my list"},
		required:    []string{SlotTask},
	},
	{
		intent:      SendMessage,
		specificity: 2,
		keywords:    []string{"send a message", "send message", "text ", "tell ", "write to", "ping "},
		required:    []string{SlotRecipient},
	},
	{
		intent:      ScheduleReminder,
		specificity: 1,
		keywords:    []string{"remind", "reminder", "alert", "alarm", "wake me"},
		required:    []string{SlotTime},
	},
}

var (
	listSubjectRe = regexp.MustCompile(`\b(reminders?|alarms?|tasks?|to-?dos?|messages?)\b`)
	recipientRe   = regexp.MustCompile(`\b(?:message|text|tell|ping|write) (?:to )?([a-z]+)\b`)
	bodyRe        = regexp.MustCompile(`\b(?:saying|that says|that) (.+)$`)
	completeRe    = regexp.MustCompile(`\b(done|complete|completed|finish|finished|check off)\b`)
)

// bodyIntroducers are words that start the message body, never a recipient
// ("send a message saying hi" has no recipient).
var bodyIntroducers = map[string]bool{"saying": true, "that": true}

// Classifier maps utterances to intent candidates using the ordered pattern
// table and the slot extractors.
type Classifier struct {
	policy slots.AmbiguityPolicy
}

// NewClassifier creates a classifier resolving ambiguous time expressions per policy.
func NewClassifier(policy slots.AmbiguityPolicy) *Classifier {
	return &Classifier{policy: policy}
}

// Classify returns all intent candidates for text, best first. The result is
// deterministic for identical inputs. When nothing matches, the single
// candidate is the None intent.
func (c *Classifier) Classify(text string, now time.Time) []Candidate {
	lower := strings.ToLower(text)

	var candidates []Candidate
	for _, g := range groups {
		hits := 0
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		cand := Candidate{
			Intent:     g.intent,
			Confidence: confidence(hits),
			Slots:      c.extractSlots(g.intent, text, lower, now),
		}
		for _, slot := range g.required {
			if _, ok := cand.Slots[slot]; !ok {
				cand.Missing = append(cand.Missing, slot)
			}
		}

		// A listing phrase with no recognizable subject is not a listing request.
		if g.intent == ListItems && !cand.HasRequiredInfo() {
			continue
		}

		candidates = append(candidates, cand)
	}

	if len(candidates) == 0 {
		return []Candidate{{Intent: None, Confidence: 1, Slots: map[string]string{}}}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := specificityOf(candidates[i].Intent), specificityOf(candidates[j].Intent)
		if si != sj {
			return si > sj
		}
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Intent < candidates[j].Intent
	})

	return candidates
}

func confidence(hits int) float64 {
	conf := 0.6 + 0.15*float64(hits-1)
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

func specificityOf(in Intent) int {
	for _, g := range groups {
		if g.intent == in {
			return g.specificity
		}
	}
	return 0
}

// extractSlots populates the slots relevant to one intent via the extractors.
func (c *Classifier) extractSlots(in Intent, text, lower string, now time.Time) map[string]string {
	out := map[string]string{}

	switch in {
	case ScheduleReminder:
		if expr, ok := slots.ExtractTime(text, now, c.policy); ok {
			out[SlotTime] = expr.At.Format(time.RFC3339)
			if expr.Assumed != "" {
				out[SlotTimeNote] = expr.Assumed
			}
		}
		if task, ok := slots.ExtractTask(text); ok {
			out[SlotTask] = task
		}

	case ManageTask:
		if task, ok := slots.ExtractTask(text); ok {
			out[SlotTask] = task
		}
		if prio, ok := slots.ExtractPriority(text); ok {
			out[SlotPriority] = string(prio)
		}
		if completeRe.MatchString(lower) {
			out[SlotAction] = "complete"
		} else {
			out[SlotAction] = "add"
		}

	case SendMessage:
		if m := recipientRe.FindStringSubmatch(lower); m != nil && !bodyIntroducers[m[1]] {
			out[SlotRecipient] = m[1]
		}
		if m := bodyRe.FindStringSubmatch(text); m != nil {
			out[SlotBody] = strings.TrimSpace(m[1])
		}

	case ListItems:
		if m := listSubjectRe.FindStringSubmatch(lower); m != nil {
			out[SlotSubject] = normalizeSubject(m[1])
		}
	}

	return out
}

// normalizeSubject folds listing subjects to their canonical plural form.
func normalizeSubject(subject string) string {
	switch {
	case strings.HasPrefix(subject, "reminder"), strings.HasPrefix(subject, "alarm"):
		return "reminders"
	case strings.HasPrefix(subject, "task"), strings.HasPrefix(subject, "todo"), strings.HasPrefix(subject, "to-do"):
		return "tasks"
	case strings.HasPrefix(subject, "message"):
		return "messages"
	}
	return subject
}
