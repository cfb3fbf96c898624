// Package slots_test tests the slot extractors.
package slots_test

import (
	"testing"
	"time"

	"github.com/conciergebot/concierge/internal/slots"
)

// now is a fixed Monday morning reference point for all time extraction tests.
var now = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func TestExtractTime(t *testing.T) {
	t.Parallel()

	type timeTestCase struct {
		name        string
		input       string
		policy      slots.AmbiguityPolicy
		want        time.Time
		wantAssumed bool
		wantMatch   bool
	}

	testGroups := map[string][]timeTestCase{
		"Relative": {
			{
				name:      "Minutes from now",
				input:     "remind me in 20 minutes",
				policy:    slots.PolicyNextFuture,
				want:      now.Add(20 * time.Minute),
				wantMatch: true,
			},
			{
				name:      "Hours from now",
				input:     "ping me in 2 hours please",
				policy:    slots.PolicyNextFuture,
				want:      now.Add(2 * time.Hour),
				wantMatch: true,
			},
		},
		"Explicit Clock": {
			{
				name:      "PM with minutes",
				input:     "call mom at 6:30 pm",
				policy:    slots.PolicyNextFuture,
				want:      time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC),
				wantMatch: true,
			},
			{
				name:      "AM already past rolls to next day",
				input:     "wake me at 6am",
				policy:    slots.PolicyNextFuture,
				want:      time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC),
				wantMatch: true,
			},
			{
				name:      "24 hour clock",
				input:     "the meeting is at 18:30",
				policy:    slots.PolicyNextFuture,
				want:      time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC),
				wantMatch: true,
			},
			{
				name:      "Tomorrow with clock",
				input:     "tomorrow at 9am",
				policy:    slots.PolicyNextFuture,
				want:      time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
				wantMatch: true,
			},
			{
				name:      "Noon",
				input:     "lunch at noon",
				policy:    slots.PolicyNextFuture,
				want:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
				wantMatch: true,
			},
		},
		"Ambiguous Hour": {
			{
				name:        "Next future picks evening when morning is past",
				input:       "remind me at 6",
				policy:      slots.PolicyNextFuture,
				want:        time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
				wantAssumed: true,
				wantMatch:   true,
			},
			{
				name:        "Morning policy forces AM",
				input:       "remind me at 6",
				policy:      slots.PolicyMorning,
				want:        time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC),
				wantAssumed: true,
				wantMatch:   true,
			},
			{
				name:        "Evening policy forces PM",
				input:       "6",
				policy:      slots.PolicyEvening,
				want:        time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
				wantAssumed: true,
				wantMatch:   true,
			},
			{
				name:        "Tomorrow with bare hour takes earliest reading",
				input:       "wake me at 7 tomorrow",
				policy:      slots.PolicyNextFuture,
				want:        time.Date(2025, 3, 11, 7, 0, 0, 0, time.UTC),
				wantAssumed: true,
				wantMatch:   true,
			},
		},
		"No Match": {
			{
				name:      "Day word without clock is incomplete",
				input:     "set a reminder for tomorrow",
				policy:    slots.PolicyNextFuture,
				wantMatch: false,
			},
			{
				name:      "Plain text",
				input:     "call mom",
				policy:    slots.PolicyNextFuture,
				wantMatch: false,
			},
		},
	}

	for groupName, cases := range testGroups {
		t.Run(groupName, func(t *testing.T) {
			t.Parallel()
			for _, tc := range cases {
				t.Run(tc.name, func(t *testing.T) {
					t.Parallel()
					expr, ok := slots.ExtractTime(tc.input, now, tc.policy)
					if ok != tc.wantMatch {
						t.Fatalf("ExtractTime(%q) match = %v, want %v", tc.input, ok, tc.wantMatch)
					}
					if !tc.wantMatch {
						return
					}
					if !expr.At.Equal(tc.want) {
						t.Errorf("ExtractTime(%q) = %v, want %v", tc.input, expr.At, tc.want)
					}
					if tc.wantAssumed && expr.Assumed == "" {
						t.Errorf("ExtractTime(%q) expected an assumption note, got none", tc.input)
					}
					if !tc.wantAssumed && expr.Assumed != "" {
						t.Errorf("ExtractTime(%q) unexpected assumption note %q", tc.input, expr.Assumed)
					}
				})
			}
		})
	}
}

func TestExtractTask(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		input     string
		want      string
		wantMatch bool
	}{
		{
			name:      "Add to shopping list",
			input:     "add milk to my shopping list",
			want:      "milk",
			wantMatch: true,
		},
		{
			name:      "Casing preserved from original text",
			input:     "Add Buy Flowers to my todo list",
			want:      "Buy Flowers",
			wantMatch: true,
		},
		{
			name:      "Remind me to with trailing time",
			input:     "remind me to call mom at 5pm",
			want:      "call mom",
			wantMatch: true,
		},
		{
			name:      "Todo prefix",
			input:     "todo: fix the gutter",
			want:      "fix the gutter",
			wantMatch: true,
		},
		{
			name:      "Need to phrasing",
			input:     "i need to renew my passport",
			want:      "renew my passport",
			wantMatch: true,
		},
		{
			name:      "No task",
			input:     "hello there",
			wantMatch: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			task, ok := slots.ExtractTask(tc.input)
			if ok != tc.wantMatch {
				t.Fatalf("ExtractTask(%q) match = %v, want %v", tc.input, ok, tc.wantMatch)
			}
			if tc.wantMatch && task != tc.want {
				t.Errorf("ExtractTask(%q) = %q, want %q", tc.input, task, tc.want)
			}
		})
	}
}

func TestExtractPriority(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		input     string
		want      slots.Priority
		wantMatch bool
	}{
		{name: "Urgent", input: "this is URGENT", want: slots.PriorityUrgent, wantMatch: true},
		{name: "Asap", input: "do it asap", want: slots.PriorityUrgent, wantMatch: true},
		{name: "Important", input: "it's important to finish this", want: slots.PriorityHigh, wantMatch: true},
		{name: "No rush", input: "no rush on this one", want: slots.PriorityLow, wantMatch: true},
		{name: "Unspecified", input: "buy milk", wantMatch: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			prio, ok := slots.ExtractPriority(tc.input)
			if ok != tc.wantMatch {
				t.Fatalf("ExtractPriority(%q) match = %v, want %v", tc.input, ok, tc.wantMatch)
			}
			if tc.wantMatch && prio != tc.want {
				t.Errorf("ExtractPriority(%q) = %q, want %q", tc.input, prio, tc.want)
			}
		})
	}
}
