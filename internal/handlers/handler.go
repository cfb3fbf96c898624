// Package handlers implements the domain request handlers the routing engine
// dispatches to: reminders, task tracking, and outgoing messages. Each handler
// owns its own storage and exposes a deterministic List operation for the
// direct-listing bypass.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conciergebot/concierge/internal/database"
)

// Known handler ids.
const (
	HandlerScheduler = "scheduler"
	HandlerTasks     = "tasks"
	HandlerMessenger = "messenger"
)

// Turn carries the routing outcome a handler needs to process one utterance.
type Turn struct {
	SessionID string
	Slots     map[string]string
	// Missing lists mandatory slots the classifier could not extract; the
	// handler is responsible for asking the follow-up question.
	Missing []string
}

// Handler is a domain-specific processor selected by the routing engine.
type Handler interface {
	// ID returns the handler's routing id.
	ID() string

	// Process handles one routed utterance and returns the response text.
	Process(ctx context.Context, utterance string, turn Turn) (string, error)

	// List returns the handler's items for a session, already formatted one
	// per entry. Deterministic; never calls the generation capability.
	List(ctx context.Context, sessionID string) ([]string, error)
}

// Deps provides the shared dependencies of all domain handlers.
type Deps struct {
	Logger *slog.Logger
	Store  database.Store
}

// Registry holds the available handlers keyed by id.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds the registry with all known handlers.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range []Handler{
		NewSchedulerHandler(deps),
		NewTasksHandler(deps),
		NewMessengerHandler(deps),
	} {
		r.handlers[h.ID()] = h
	}
	return r
}

// Get returns the handler with the given id.
func (r *Registry) Get(id string) (Handler, error) {
	h, ok := r.handlers[id]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q", id)
	}
	return h, nil
}

// Available returns the set of registered handler ids.
func (r *Registry) Available() map[string]bool {
	out := make(map[string]bool, len(r.handlers))
	for id := range r.handlers {
		out[id] = true
	}
	return out
}
