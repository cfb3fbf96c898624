package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conciergebot/concierge/internal/database"
	"github.com/conciergebot/concierge/internal/intent"
)

// tasksHandler adds, completes, and lists to-do items.
type tasksHandler struct {
	log   *slog.Logger
	store database.Store
}

// NewTasksHandler creates the task-tracking handler.
func NewTasksHandler(deps Deps) Handler {
	return &tasksHandler{
		log:   deps.Logger.With("handler", HandlerTasks),
		store: deps.Store,
	}
}

func (h *tasksHandler) ID() string { return HandlerTasks }

// Process adds or completes a task depending on the classified action slot.
func (h *tasksHandler) Process(ctx context.Context, utterance string, turn Turn) (string, error) {
	task, ok := turn.Slots[intent.SlotTask]
	if !ok {
		return "What should I add to your list?", nil
	}

	if turn.Slots[intent.SlotAction] == "complete" {
		done, err := h.store.MarkTaskDone(ctx, turn.SessionID, task)
		if err != nil {
			return "", fmt.Errorf("failed to complete task: %w", err)
		}
		if !done {
			return fmt.Sprintf("I couldn't find an open task matching %q.", task), nil
		}
		return fmt.Sprintf("✅ Done: %s", task), nil
	}

	record := &database.Task{
		SessionID:   turn.SessionID,
		Description: task,
		Priority:    turn.Slots[intent.SlotPriority],
	}
	if err := h.store.SaveTask(ctx, record); err != nil {
		return "", fmt.Errorf("failed to add task: %w", err)
	}

	h.log.InfoContext(ctx, "Task added",
		"session_id", turn.SessionID, "task_id", record.ID, "priority", record.Priority)

	if record.Priority != "medium" && record.Priority != "" {
		return fmt.Sprintf("📝 Added to your list (%s priority): %s", record.Priority, task), nil
	}
	return fmt.Sprintf("📝 Added to your list: %s", task), nil
}

// List returns the session's open tasks.
func (h *tasksHandler) List(ctx context.Context, sessionID string) ([]string, error) {
	tasks, err := h.store.ListTasks(ctx, sessionID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	items := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Priority != "" && t.Priority != "medium" {
			items = append(items, fmt.Sprintf("📝 %s [%s]", t.Description, t.Priority))
		} else {
			items = append(items, fmt.Sprintf("📝 %s", t.Description))
		}
	}
	return items, nil
}
