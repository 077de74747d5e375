// Package scenario matches inbound events against per-tenant declarative
// scenarios and drives their step loops.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowbotio/flowbot/pkg/condition"
	"github.com/flowbotio/flowbot/pkg/models"
	"github.com/flowbotio/flowbot/pkg/placeholder"
	"github.com/flowbotio/flowbot/pkg/tasks"
)

// maxStepHops bounds transition-driven jumps so a cyclic transition graph
// cannot spin an execution forever.
const maxStepHops = 1000

// asyncQueue carries async step dispatches.
const asyncQueue = "actions"

// ActionExecutor dispatches one named action with validated input.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, name string, data map[string]any) models.Envelope
}

// Engine resolves the tenant index, matches the event, and runs the matched
// scenario's step loop.
type Engine struct {
	log        *slog.Logger
	indexes    *IndexManager
	expander   *placeholder.Expander
	conditions *condition.Evaluator
	actions    ActionExecutor
	tasks      *tasks.Manager
	states     UserStateLookup
}

func NewEngine(indexes *IndexManager, actions ActionExecutor, taskMgr *tasks.Manager, states UserStateLookup, log *slog.Logger) *Engine {
	return &Engine{
		log:        log.With("component", "scenario_engine"),
		indexes:    indexes,
		expander:   placeholder.NewExpander(),
		conditions: condition.NewEvaluator(),
		actions:    actions,
		tasks:      taskMgr,
		states:     states,
	}
}

// ProcessEvent routes one event through matching and execution. Events with
// no tenant scenario set or no matching trigger are ignored, not failed.
func (e *Engine) ProcessEvent(ctx context.Context, ev models.Event) models.Envelope {
	tenantID := ev.TenantID()
	if tenantID == "" {
		return models.Failure(models.CodeValidationError, "event missing system.tenant_id", nil)
	}

	idx, err := e.indexes.Index(tenantID)
	if err != nil {
		if errors.Is(err, ErrNoScenarios) {
			return models.Ignored()
		}
		e.log.Error("scenario index load failed", "tenant_id", tenantID, "error", err)
		return models.Failure(models.CodeParseError, "scenario set could not be loaded", err.Error())
	}

	name, ok := idx.Match(ctx, ev, e.states)
	if !ok {
		return models.Ignored()
	}
	sc, ok := idx.Scenario(name)
	if !ok {
		e.log.Warn("trigger points at unknown scenario", "tenant_id", tenantID, "scenario", name)
		return models.Ignored()
	}

	e.log.Info("scenario matched",
		"tenant_id", tenantID, "scenario", sc.Name, "event_type", ev.EventType())
	return e.Run(ctx, sc, ev)
}

// Run executes a scenario's steps against an event. Step failures are
// recorded as last_error and execution continues unless a transition routes
// away; the engine never panics across this boundary.
func (e *Engine) Run(ctx context.Context, sc *models.Scenario, ev models.Event) models.Envelope {
	stepCtx := ev.Context()
	e.attachUserState(ctx, ev, stepCtx)

	byOrder := make(map[int]int, len(sc.Steps))
	for i, s := range sc.Steps {
		byOrder[s.Order] = i
	}

	last := models.OK(nil)
	hops := 0
	for i := 0; i < len(sc.Steps); {
		if hops++; hops > maxStepHops {
			e.log.Error("transition loop aborted", "scenario", sc.Name, "hops", hops)
			return models.Failure(models.CodeInternalError, "scenario transition loop", sc.Name)
		}
		step := sc.Steps[i]

		if step.Condition != "" {
			pass, err := e.conditions.Evaluate(step.Condition, stepCtx)
			if err != nil {
				e.log.Warn("step condition failed to evaluate, skipping step",
					"scenario", sc.Name, "step", step.Order, "error", err)
				i++
				continue
			}
			if !pass {
				i++
				continue
			}
		}

		env := e.runStep(ctx, sc, step, stepCtx)
		e.recordResult(stepCtx, step, env)
		last = env

		if next, ok := nextOrder(step.Transition, env.Result); ok {
			j, exists := byOrder[next]
			if !exists {
				e.log.Warn("transition to unknown step order",
					"scenario", sc.Name, "step", step.Order, "next", next)
				break
			}
			i = j
			continue
		}
		i++
	}

	if last.IsError() {
		return last
	}
	return models.OK(last.ResponseData)
}

func (e *Engine) runStep(ctx context.Context, sc *models.Scenario, step models.Step, stepCtx map[string]any) models.Envelope {
	name := step.ResolvedAction()
	if name == "" {
		return models.Failure(models.CodeValidationError,
			fmt.Sprintf("step %d of %s has no action", step.Order, sc.Name), nil)
	}

	params, _ := e.expander.Expand(step.Params, stepCtx).(map[string]any)

	if !step.Async {
		return e.actions.ExecuteAction(ctx, name, params)
	}

	work := func(wctx context.Context) (any, error) {
		env := e.actions.ExecuteAction(wctx, name, params)
		if env.IsError() {
			return env, fmt.Errorf("action %s: %s", name, env.Error.Message)
		}
		return env, nil
	}

	if step.ActionID != "" {
		// Awaitable: the handle lands in the context under action_id so
		// later steps can poll it with ready/not_ready.
		h, err := e.tasks.Submit(tasks.Submission{Queue: asyncQueue, Work: work})
		if err != nil {
			return models.Failure(models.CodeInternalError, "async step submission failed", err.Error())
		}
		stepCtx[step.ActionID] = h
		return models.OK(nil)
	}

	if _, err := e.tasks.Submit(tasks.Submission{Queue: asyncQueue, Work: work, FireAndForget: true}); err != nil {
		return models.Failure(models.CodeInternalError, "async step submission failed", err.Error())
	}
	return models.OK(nil)
}

// recordResult binds the step outcome into the execution context: sync step
// results land under action_id, failures under last_error.
func (e *Engine) recordResult(stepCtx map[string]any, step models.Step, env models.Envelope) {
	if env.Error != nil {
		stepCtx["last_error"] = map[string]any{
			"code":    string(env.Error.Code),
			"message": env.Error.Message,
			"details": env.Error.Details,
		}
	}
	if !step.Async && step.ActionID != "" {
		stepCtx[step.ActionID] = env.ResponseData
	}
}

func (e *Engine) attachUserState(ctx context.Context, ev models.Event, stepCtx map[string]any) {
	if e.states == nil {
		return
	}
	st, ok := e.states.Get(ctx, ev.TenantID(), ev.UserID())
	if !ok || st.Expired(time.Now()) {
		return
	}
	stepCtx["state"] = st.StateType
	if st.StateData != nil {
		stepCtx["state_data"] = st.StateData
	}
}

// nextOrder returns the first transition entry matching the step result.
func nextOrder(transitions []models.Transition, result string) (int, bool) {
	for _, t := range transitions {
		if t.Result == result {
			return t.Next, true
		}
	}
	return 0, false
}
