// Package handlers_test tests the domain handlers against an in-memory store.
package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/conciergebot/concierge/internal/database"
	"github.com/conciergebot/concierge/internal/handlers"
	"github.com/conciergebot/concierge/internal/intent"
)

// fakeStore covers the handler-facing Store calls; unused methods panic via
// the embedded nil interface.
type fakeStore struct {
	database.Store

	reminders []database.Reminder
	tasks     []database.Task
	outbox    []database.OutboxMessage
}

func (f *fakeStore) SaveReminder(_ context.Context, r *database.Reminder) error {
	f.reminders = append(f.reminders, *r)
	return nil
}

func (f *fakeStore) ListReminders(context.Context, string) ([]database.Reminder, error) {
	return append([]database.Reminder(nil), f.reminders...), nil
}

func (f *fakeStore) SaveTask(_ context.Context, t *database.Task) error {
	f.tasks = append(f.tasks, *t)
	return nil
}

func (f *fakeStore) ListTasks(_ context.Context, _ string, includeDone bool) ([]database.Task, error) {
	var out []database.Task
	for _, t := range f.tasks {
		if t.Done && !includeDone {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) MarkTaskDone(_ context.Context, _ string, description string) (bool, error) {
	for i := range f.tasks {
		if !f.tasks[i].Done && strings.Contains(strings.ToLower(f.tasks[i].Description), strings.ToLower(description)) {
			f.tasks[i].Done = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SaveOutboxMessage(_ context.Context, m *database.OutboxMessage) error {
	f.outbox = append(f.outbox, *m)
	return nil
}

func (f *fakeStore) ListOutbox(context.Context, string) ([]database.OutboxMessage, error) {
	return append([]database.OutboxMessage(nil), f.outbox...), nil
}

func newRegistry(store *fakeStore) *handlers.Registry {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return handlers.NewRegistry(handlers.Deps{Logger: log, Store: store})
}

func get(t *testing.T, r *handlers.Registry, id string) handlers.Handler {
	t.Helper()
	h, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return h
}

func TestSchedulerHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Asks for the time when it is missing", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{}
		h := get(t, newRegistry(store), handlers.HandlerScheduler)

		resp, err := h.Process(ctx, "set a reminder for tomorrow", handlers.Turn{
			SessionID: "s1",
			Slots:     map[string]string{},
			Missing:   []string{intent.SlotTime},
		})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if !strings.Contains(resp, "when") {
			t.Errorf("response = %q, want a follow-up question for the time", resp)
		}
		if len(store.reminders) != 0 {
			t.Errorf("reminders = %+v, want none before the time arrives", store.reminders)
		}
	})

	t.Run("Creates the reminder and echoes assumptions", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{}
		h := get(t, newRegistry(store), handlers.HandlerScheduler)

		at := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
		resp, err := h.Process(ctx, "remind me at 6", handlers.Turn{
			SessionID: "s1",
			Slots: map[string]string{
				intent.SlotTime:     at.Format(time.RFC3339),
				intent.SlotTask:     "call mom",
				intent.SlotTimeNote: "assumed 6:00 means the next 6:00 PM",
			},
		})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if len(store.reminders) != 1 || !store.reminders[0].RemindAt.Equal(at) {
			t.Fatalf("reminders = %+v, want one at %v", store.reminders, at)
		}
		if !strings.Contains(resp, "assumed") {
			t.Errorf("response = %q, want the time assumption echoed", resp)
		}
	})
}

func TestTasksHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Adds with priority", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{}
		h := get(t, newRegistry(store), handlers.HandlerTasks)

		resp, err := h.Process(ctx, "add buy milk to my list, it's urgent", handlers.Turn{
			SessionID: "s1",
			Slots: map[string]string{
				intent.SlotTask:     "buy milk",
				intent.SlotPriority: "urgent",
				intent.SlotAction:   "add",
			},
		})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if len(store.tasks) != 1 || store.tasks[0].Priority != "urgent" {
			t.Fatalf("tasks = %+v, want one urgent task", store.tasks)
		}
		if !strings.Contains(resp, "urgent") {
			t.Errorf("response = %q, want the priority mentioned", resp)
		}
	})

	t.Run("Completes a matching open task", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{tasks: []database.Task{{SessionID: "s1", Description: "do the laundry"}}}
		h := get(t, newRegistry(store), handlers.HandlerTasks)

		_, err := h.Process(ctx, "mark the laundry as done", handlers.Turn{
			SessionID: "s1",
			Slots: map[string]string{
				intent.SlotTask:   "laundry",
				intent.SlotAction: "complete",
			},
		})
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if !store.tasks[0].Done {
			t.Error("task should have been marked done")
		}

		items, err := h.List(ctx, "s1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(items) != 0 {
			t.Errorf("open tasks = %v, want none after completion", items)
		}
	})
}

func TestMessengerHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := &fakeStore{}
	h := get(t, newRegistry(store), handlers.HandlerMessenger)

	resp, err := h.Process(ctx, "tell alice I'll be late", handlers.Turn{
		SessionID: "s1",
		Slots: map[string]string{
			intent.SlotRecipient: "alice",
			intent.SlotBody:      "I'll be late",
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(store.outbox) != 1 || store.outbox[0].Recipient != "alice" {
		t.Fatalf("outbox = %+v, want one message to alice", store.outbox)
	}
	if !strings.Contains(resp, "alice") {
		t.Errorf("response = %q, want the recipient confirmed", resp)
	}

	items, err := h.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || !strings.Contains(items[0], "queued") {
		t.Errorf("list = %v, want the queued message", items)
	}
}
