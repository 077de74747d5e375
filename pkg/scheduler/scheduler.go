// Package scheduler fires scenarios that declare a cron schedule. Each tick
// synthesizes a scheduled event and runs the scenario directly, bypassing
// trigger matching.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowbotio/flowbot/pkg/models"
	"github.com/flowbotio/flowbot/pkg/scenario"
)

// tickTimeout bounds one scheduled scenario execution.
const tickTimeout = 5 * time.Minute

// Runner executes one scenario against a synthetic event.
type Runner interface {
	Run(ctx context.Context, sc *models.Scenario, ev models.Event) models.Envelope
}

// Scheduler owns the cron loop. Entries are registered per tenant from the
// scenario index.
type Scheduler struct {
	log    *slog.Logger
	cron   *cron.Cron
	index  *scenario.IndexManager
	runner Runner
}

func New(index *scenario.IndexManager, runner Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:    log.With("component", "scheduler"),
		cron:   cron.New(),
		index:  index,
		runner: runner,
	}
}

// RegisterTenant adds cron entries for every scheduled scenario of the
// tenant. Invalid cron expressions are logged and skipped.
func (s *Scheduler) RegisterTenant(tenantID string) error {
	idx, err := s.index.Index(tenantID)
	if err != nil {
		return fmt.Errorf("register tenant %s: %w", tenantID, err)
	}

	registered := 0
	for _, name := range idx.Names() {
		sc, ok := idx.Scenario(name)
		if !ok || sc.Schedule == "" {
			continue
		}
		_, err := s.cron.AddFunc(sc.Schedule, func() { s.tick(sc) })
		if err != nil {
			s.log.Error("invalid schedule expression, skipping",
				"tenant_id", tenantID, "scenario", sc.Name, "schedule", sc.Schedule, "error", err)
			continue
		}
		registered++
	}
	s.log.Info("scheduled scenarios registered", "tenant_id", tenantID, "count", registered)
	return nil
}

// Start begins firing registered entries.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for running ticks to finish.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with ticks still running")
	}
}

func (s *Scheduler) tick(sc *models.Scenario) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	ev := models.Event{
		"system": map[string]any{
			"tenant_id": sc.TenantID,
			"source":    models.SourceScheduled,
		},
		"event_type":   models.EventTypeScheduled,
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	}

	env := s.runner.Run(ctx, sc, ev)
	if env.IsError() {
		s.log.Error("scheduled scenario failed",
			"scenario", sc.Name, "code", env.Error.Code, "message", env.Error.Message)
		return
	}
	s.log.Info("scheduled scenario completed", "scenario", sc.Name, "result", env.Result)
}
