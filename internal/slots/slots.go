// Package slots provides deterministic best-effort extraction of time
// expressions, task descriptions, and priority levels from free text.
// Extractors return an absent result rather than an error when nothing matches.
package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Priority is a closed set of task priority levels.
type Priority string

// Priority levels.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AmbiguityPolicy selects how clock values with no meridiem are resolved.
type AmbiguityPolicy string

// Supported ambiguity policies.
const (
	// PolicyNextFuture picks the next occurrence of the clock value within 24h.
	PolicyNextFuture AmbiguityPolicy = "next_future"
	// PolicyMorning always reads a bare hour as AM.
	PolicyMorning AmbiguityPolicy = "morning"
	// PolicyEvening always reads a bare hour as PM.
	PolicyEvening AmbiguityPolicy = "evening"
)

// TimeExpr is a resolved time expression. Assumed carries a human-readable
// note whenever an ambiguity policy was applied, so the assumption stays
// visible to the caller.
type TimeExpr struct {
	Raw     string
	At      time.Time
	Assumed string
}

var (
	relativeRe = regexp.MustCompile(`\bin (\d{1,3}) (minute|minutes|min|mins|hour|hours|hr|hrs)\b`)
	meridiemRe = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Re  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	bareHourRe = regexp.MustCompile(`(?:\bat |^)(\d{1,2})\b(?:\s*(?:o'?clock)?)`)
	bareOnlyRe = regexp.MustCompile(`^\s*(\d{1,2})(?::([0-5]\d))?\s*$`)
)

// ExtractTime finds a time expression in text and resolves it against now.
// A bare day word ("tomorrow") without a clock component is not a complete
// time and yields no match. Policy governs clock values with no meridiem.
func ExtractTime(text string, now time.Time, policy AmbiguityPolicy) (TimeExpr, bool) {
	lower := strings.ToLower(text)
	dayOffset := 0
	if strings.Contains(lower, "tomorrow") {
		dayOffset = 1
	}

	// "in 20 minutes" / "in 2 hours"
	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			d := time.Duration(n) * time.Minute
			if strings.HasPrefix(m[2], "h") {
				d = time.Duration(n) * time.Hour
			}
			return TimeExpr{Raw: m[0], At: now.Add(d)}, true
		}
	}

	// "6am", "6:30 pm"
	if m := meridiemRe.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour >= 1 && hour <= 12 {
			hour = hour % 12
			if m[3] == "pm" {
				hour += 12
			}
			at := resolveClock(now, hour, minute, dayOffset)
			return TimeExpr{Raw: m[0], At: at}, true
		}
	}

	// "18:30" - unambiguous 24h clock
	if m := clock24Re.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		at := resolveClock(now, hour, minute, dayOffset)
		return TimeExpr{Raw: m[0], At: at}, true
	}

	if strings.Contains(lower, "noon") {
		return TimeExpr{Raw: "noon", At: resolveClock(now, 12, 0, dayOffset)}, true
	}
	if strings.Contains(lower, "midnight") {
		return TimeExpr{Raw: "midnight", At: resolveClock(now, 0, 0, dayOffset)}, true
	}

	// "at 6" or a bare "6" - ambiguous, resolved per policy
	var m []string
	if bm := bareOnlyRe.FindStringSubmatch(lower); bm != nil {
		m = bm
	} else if bm := bareHourRe.FindStringSubmatch(lower); bm != nil {
		m = append(bm, "")
	}
	if m != nil {
		hour, err := strconv.Atoi(m[1])
		if err == nil && hour >= 1 && hour <= 12 {
			minute := 0
			if len(m) > 2 && m[2] != "" {
				minute, _ = strconv.Atoi(m[2])
			}
			at, assumed := resolveAmbiguousHour(now, hour, minute, dayOffset, policy)
			return TimeExpr{Raw: strings.TrimSpace(m[0]), At: at, Assumed: assumed}, true
		}
	}

	return TimeExpr{}, false
}

// resolveClock places an unambiguous clock value on today (plus dayOffset),
// rolling forward a day when the result is already past.
func resolveClock(now time.Time, hour, minute, dayOffset int) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	at = at.AddDate(0, 0, dayOffset)
	if dayOffset == 0 && !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// resolveAmbiguousHour applies the configured policy to a 1-12 clock value
// with no meridiem and reports the assumption made.
func resolveAmbiguousHour(now time.Time, hour, minute, dayOffset int, policy AmbiguityPolicy) (time.Time, string) {
	switch policy {
	case PolicyMorning:
		at := resolveClock(now, hour%12, minute, dayOffset)
		return at, fmt.Sprintf("assumed %d:%02d means %s", hour, minute, at.Format("3:04 PM"))
	case PolicyEvening:
		at := resolveClock(now, hour%12+12, minute, dayOffset)
		return at, fmt.Sprintf("assumed %d:%02d means %s", hour, minute, at.Format("3:04 PM"))
	default: // PolicyNextFuture
		am := time.Date(now.Year(), now.Month(), now.Day(), hour%12, minute, 0, 0, now.Location()).AddDate(0, 0, dayOffset)
		pm := time.Date(now.Year(), now.Month(), now.Day(), hour%12+12, minute, 0, 0, now.Location()).AddDate(0, 0, dayOffset)
		at := am
		switch {
		case dayOffset > 0:
			// Tomorrow: earliest reading of the day.
		case am.After(now):
		case pm.After(now):
			at = pm
		default:
			at = am.AddDate(0, 0, 1)
		}
		return at, fmt.Sprintf("assumed %d:%02d means the next %s", hour, minute, at.Format("3:04 PM"))
	}
}

var taskRes = []*regexp.Regexp{
	regexp.MustCompile(`add (.+?) to (?:my |the )?(?:to-?do|task|shopping) list`),
	regexp.MustCompile(`remind me to (.+?)(?: at \d| in \d| tomorrow| tonight|$)`),
	regexp.MustCompile(`(?:^|\s)(?:task|todo):\s*(.+)$`),
	regexp.MustCompile(`i need to (.+?)(?: at \d| in \d| tomorrow| tonight|$)`),
}

// ExtractTask finds a task description in text.
func ExtractTask(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, re := range taskRes {
		if loc := re.FindStringSubmatchIndex(lower); loc != nil {
			// Slice the original text so the description keeps its casing.
			task := strings.TrimSpace(text[loc[2]:loc[3]])
			if task != "" {
				return task, true
			}
		}
	}
	return "", false
}

var priorityKeywords = []struct {
	keyword  string
	priority Priority
}{
	{"urgent", PriorityUrgent},
	{"asap", PriorityUrgent},
	{"critical", PriorityUrgent},
	{"high priority", PriorityHigh},
	{"important", PriorityHigh},
	{"low priority", PriorityLow},
	{"no rush", PriorityLow},
	{"whenever", PriorityLow},
	{"medium priority", PriorityMedium},
	{"normal priority", PriorityMedium},
}

// ExtractPriority finds a priority level in text.
func ExtractPriority(text string) (Priority, bool) {
	lower := strings.ToLower(text)
	for _, pk := range priorityKeywords {
		if strings.Contains(lower, pk.keyword) {
			return pk.priority, true
		}
	}
	return "", false
}
