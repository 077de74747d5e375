// Package actions implements the action hub: a name-to-handler registry
// with schema validation in front of every dispatch.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowbotio/flowbot/pkg/models"
	"github.com/flowbotio/flowbot/pkg/tasks"
)

// fireAndForgetQueue carries detached action dispatches.
const fireAndForgetQueue = "actions"

// Handler executes one validated action call.
type Handler func(ctx context.Context, data map[string]any) models.Envelope

// Action couples an input schema with its handler.
type Action struct {
	Schema  *Schema
	Handler Handler
}

// Hub is the action registry. Dispatch validates input against the action's
// schema, then calls the handler; handler panics become INTERNAL_ERROR
// envelopes instead of crossing the module boundary.
type Hub struct {
	log   *slog.Logger
	tasks *tasks.Manager

	mu      sync.RWMutex
	actions map[string]Action
}

func NewHub(taskMgr *tasks.Manager, log *slog.Logger) *Hub {
	return &Hub{
		log:     log.With("component", "action_hub"),
		tasks:   taskMgr,
		actions: map[string]Action{},
	}
}

// Register binds a "service.action" name to an action. Re-registering a
// name replaces the previous binding.
func (h *Hub) Register(name string, a Action) error {
	if _, _, ok := splitName(name); !ok {
		return fmt.Errorf("action name %q must be of the form service.action", name)
	}
	if a.Handler == nil {
		return fmt.Errorf("action %q has no handler", name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions[name] = a
	return nil
}

// Names returns the registered action names.
func (h *Hub) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.actions))
	for name := range h.actions {
		out = append(out, name)
	}
	return out
}

// ExecuteAction validates and runs one action synchronously.
func (h *Hub) ExecuteAction(ctx context.Context, name string, data map[string]any) (env models.Envelope) {
	if _, _, ok := splitName(name); !ok {
		return models.Failure(models.CodeValidationError,
			fmt.Sprintf("action name %q must be of the form service.action", name), nil)
	}

	h.mu.RLock()
	a, found := h.actions[name]
	h.mu.RUnlock()
	if !found {
		return models.Failure(models.CodeNotFound,
			fmt.Sprintf("unknown action %q", name), nil)
	}

	normalized, err := ValidateInput(a.Schema, data, h.log)
	if err != nil {
		return models.Failure(models.CodeValidationError, err.Error(),
			map[string]any{"action": name})
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("action handler panicked", "action", name, "panic", r)
			env = models.Failure(models.CodeInternalError,
				fmt.Sprintf("action %s panicked", name), fmt.Sprintf("%v", r))
		}
	}()
	return a.Handler(ctx, normalized)
}

// ExecuteFireAndForget queues the action and returns immediately. Failures
// are logged by the queue worker; no result reaches the caller.
func (h *Hub) ExecuteFireAndForget(ctx context.Context, name string, data map[string]any) error {
	if h.tasks == nil {
		return fmt.Errorf("no task manager configured")
	}
	_, err := h.tasks.Submit(tasks.Submission{
		Queue:         fireAndForgetQueue,
		FireAndForget: true,
		Work: func(wctx context.Context) (any, error) {
			env := h.ExecuteAction(wctx, name, data)
			if env.IsError() {
				return nil, fmt.Errorf("action %s: %s", name, env.Error.Message)
			}
			return env, nil
		},
	})
	if err != nil {
		return fmt.Errorf("queue action %s: %w", name, err)
	}
	return nil
}
