// Package memory_test tests the conversation log retention strategies.
package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/conciergebot/concierge/internal/database"
	"github.com/conciergebot/concierge/internal/memory"
)

// fakeStore records the message-log calls the retention strategies make.
// Unused Store methods panic via the embedded nil interface.
type fakeStore struct {
	database.Store

	messages []database.Message
	nextID   uint

	trimmedTo  int
	replacedAt uint
	summary    *database.Message
}

func (f *fakeStore) SaveMessage(_ context.Context, m *database.Message) error {
	f.nextID++
	m.ID = f.nextID
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeStore) RecentMessages(_ context.Context, _ string, limit int) ([]database.Message, error) {
	if limit >= len(f.messages) {
		return append([]database.Message(nil), f.messages...), nil
	}
	return append([]database.Message(nil), f.messages[len(f.messages)-limit:]...), nil
}

func (f *fakeStore) CountMessages(context.Context, string) (int, error) {
	return len(f.messages), nil
}

func (f *fakeStore) TrimMessages(_ context.Context, _ string, keep int) error {
	f.trimmedTo = keep
	if len(f.messages) > keep {
		f.messages = f.messages[len(f.messages)-keep:]
	}
	return nil
}

func (f *fakeStore) ReplaceOlderWithSummary(_ context.Context, _ string, olderThanID uint, summary *database.Message) error {
	f.replacedAt = olderThanID
	f.summary = summary
	return nil
}

// fakeSummarizer returns a canned digest and records its input.
type fakeSummarizer struct {
	seen []database.Message
	err  error
}

func (f *fakeSummarizer) SummarizeConversation(_ context.Context, msgs []database.Message) (string, error) {
	f.seen = msgs
	return "digest of earlier turns", f.err
}

func fill(t *testing.T, store *memory.MessageStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := database.RoleUser
		if i%2 == 1 {
			role = database.RoleAssistant
		}
		if err := store.Append(context.Background(), "s1", role, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestBufferMode(t *testing.T) {
	t.Parallel()

	fake := &fakeStore{}
	store := memory.New(fake, nil, memory.Config{Mode: memory.ModeBuffer, MaxTurns: 4}, nil)

	fill(t, store, 5)

	if len(fake.messages) != 4 {
		t.Errorf("buffer length = %d, want 4", len(fake.messages))
	}
	if fake.trimmedTo != 4 {
		t.Errorf("trim keep = %d, want 4", fake.trimmedTo)
	}
	if fake.messages[0].Content != "message 1" {
		t.Errorf("oldest surviving message = %q, want the second appended", fake.messages[0].Content)
	}

	if store.ShouldCompact(context.Background(), "s1") {
		t.Error("buffer mode must never request compaction")
	}
}

func TestSummaryMode(t *testing.T) {
	t.Parallel()

	t.Run("Compaction threshold", func(t *testing.T) {
		t.Parallel()
		fake := &fakeStore{}
		summarizer := &fakeSummarizer{}
		store := memory.New(fake, summarizer, memory.Config{
			Mode: memory.ModeSummary, VerbatimTail: 2, CompactAfterTurns: 6,
		}, nil)

		fill(t, store, 6)
		if store.ShouldCompact(context.Background(), "s1") {
			t.Error("should not compact at the threshold")
		}

		fill(t, store, 1)
		if !store.ShouldCompact(context.Background(), "s1") {
			t.Error("should compact past the threshold")
		}
	})

	t.Run("Compact keeps the verbatim tail", func(t *testing.T) {
		t.Parallel()
		fake := &fakeStore{}
		summarizer := &fakeSummarizer{}
		store := memory.New(fake, summarizer, memory.Config{
			Mode: memory.ModeSummary, VerbatimTail: 2, CompactAfterTurns: 6,
		}, nil)

		fill(t, store, 7)
		if err := store.Compact(context.Background(), "s1"); err != nil {
			t.Fatalf("Compact: %v", err)
		}

		if len(summarizer.seen) != 5 {
			t.Errorf("summarized %d messages, want 5", len(summarizer.seen))
		}
		if fake.replacedAt != fake.messages[len(fake.messages)-2].ID {
			t.Errorf("replacement boundary = %d, want the first tail message id %d",
				fake.replacedAt, fake.messages[len(fake.messages)-2].ID)
		}
		if fake.summary == nil || fake.summary.Content != "digest of earlier turns" {
			t.Fatalf("summary = %+v, want the synthesized digest", fake.summary)
		}

		tailStart := fake.messages[len(fake.messages)-2].Timestamp
		if !fake.summary.Timestamp.Before(tailStart) {
			t.Errorf("summary timestamp %v must sort before the tail start %v",
				fake.summary.Timestamp, tailStart)
		}
	})

	t.Run("Summarizer failure leaves the log untouched", func(t *testing.T) {
		t.Parallel()
		fake := &fakeStore{}
		summarizer := &fakeSummarizer{err: fmt.Errorf("backend unavailable")}
		store := memory.New(fake, summarizer, memory.Config{
			Mode: memory.ModeSummary, VerbatimTail: 2, CompactAfterTurns: 4,
		}, nil)

		fill(t, store, 5)
		if err := store.Compact(context.Background(), "s1"); err == nil {
			t.Fatal("expected Compact to surface the summarizer error")
		}
		if fake.summary != nil {
			t.Error("no replacement should happen on summarizer failure")
		}
		if len(fake.messages) != 5 {
			t.Errorf("log length = %d, want untouched 5", len(fake.messages))
		}
	})
}
