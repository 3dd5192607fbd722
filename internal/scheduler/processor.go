// Package scheduler implements the two periodic sweeps: starting
// schedule-triggered workflows that are due, and resuming runs parked by
// delay steps. Both are designed to be invoked on a fixed cadence by an
// external ticker and to be safe under multiple concurrent worker processes.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/calderio/automaton/internal/engine"
	"github.com/calderio/automaton/internal/logging"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

const (
	// resumeBatchSize caps how many due scheduled steps one sweep consumes.
	resumeBatchSize = 100

	// dueWindow is how close to the target time a schedule must be to fire.
	dueWindow = 5 * time.Minute

	defaultScheduleTime = "09:00"
	defaultDayOfWeek    = 1 // Monday
	defaultDayOfMonth   = 1
)

// Processor runs the scheduled-trigger and delayed-resume sweeps.
type Processor struct {
	store  store.Store
	engine *engine.Engine
	logger *slog.Logger
	now    func() time.Time

	cronWarn sync.Once
}

// NewProcessor creates a Processor.
func NewProcessor(s store.Store, eng *engine.Engine, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:  s,
		engine: eng,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the processor clock. Used by tests.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// ProcessScheduledWorkflows starts every active schedule-triggered workflow
// whose schedule is due at the current time. Returns the number of runs
// started; individual run failures are logged, never returned.
func (p *Processor) ProcessScheduledWorkflows(ctx context.Context) (int, error) {
	triggerType := schema.TriggerTypeSchedule
	active := true
	workflows, err := p.store.ListWorkflows(ctx, store.WorkflowFilter{
		TriggerType: &triggerType,
		Active:      &active,
	})
	if err != nil {
		return 0, err
	}

	now := p.now()
	started := 0
	for _, wf := range workflows {
		cfg, err := schema.ParseScheduleTriggerConfig(wf.TriggerConfig)
		if err != nil {
			p.logger.WarnContext(ctx, "skipping workflow with invalid schedule config",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !p.shouldRunNow(ctx, cfg, now) {
			continue
		}

		wfCtx := logging.WithIDs(ctx, wf.ID, "", wf.OrganizationID)
		steps, err := p.store.ListWorkflowSteps(wfCtx, wf.ID)
		if err != nil {
			p.logger.ErrorContext(wfCtx, "failed to load workflow steps",
				slog.String("error", err.Error()))
			continue
		}

		triggerData := map[string]any{
			"schedule_type": string(cfg.ScheduleType),
			"scheduled_at":  now.UTC().Format(time.RFC3339),
		}
		run, err := p.engine.ExecuteWorkflow(wfCtx, wf, steps, triggerData)
		if err != nil {
			p.logger.ErrorContext(wfCtx, "failed to start scheduled workflow",
				slog.String("error", err.Error()))
			continue
		}
		if run.Status == schema.RunStatusFailed {
			p.logger.WarnContext(wfCtx, "scheduled workflow run failed",
				slog.String("run_id", run.ID),
				slog.String("error", run.ErrorMessage))
		}
		started++
	}
	return started, nil
}

// shouldRunNow reports whether a schedule is due: the current time must be
// within the 5-minute window of the configured target (accounting for
// midnight wraparound), and the schedule-type gate must pass.
func (p *Processor) shouldRunNow(ctx context.Context, cfg *schema.ScheduleTriggerConfig, now time.Time) bool {
	target := cfg.Time
	if target == "" {
		target = defaultScheduleTime
	}
	parsed, err := time.Parse("15:04", target)
	if err != nil {
		return false
	}

	nowMin := now.Hour()*60 + now.Minute()
	targetMin := parsed.Hour()*60 + parsed.Minute()
	diff := nowMin - targetMin
	if diff < 0 {
		diff = -diff
	}
	if diff > 720 {
		diff = 1440 - diff
	}
	if time.Duration(diff)*time.Minute > dueWindow {
		return false
	}

	switch cfg.ScheduleType {
	case schema.ScheduleDaily:
		return true
	case schema.ScheduleWeekly:
		dow := defaultDayOfWeek
		if cfg.DayOfWeek != nil {
			dow = *cfg.DayOfWeek
		}
		return int(now.Weekday()) == dow
	case schema.ScheduleMonthly:
		dom := defaultDayOfMonth
		if cfg.DayOfMonth != nil {
			dom = *cfg.DayOfMonth
		}
		return now.Day() == dom
	case schema.ScheduleCron:
		// Cron expressions are not evaluated; such workflows never fire.
		p.cronWarn.Do(func() {
			p.logger.WarnContext(ctx, "cron schedule_type is not supported; workflow will not run")
		})
		return false
	default:
		return false
	}
}

// ResumeDelayedWorkflows claims due scheduled steps and resumes their runs.
// The pending→executed transition is an atomic compare-and-set at the store;
// losing the claim to another worker is a skip, not an error. A resumption
// error cancels that scheduled step rather than retrying it.
func (p *Processor) ResumeDelayedWorkflows(ctx context.Context) (resumed, skipped, failed int) {
	due, err := p.store.ListDueScheduledSteps(ctx, p.now().UTC(), resumeBatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to list due scheduled steps",
			slog.String("error", err.Error()))
		return 0, 0, 1
	}

	for _, ss := range due {
		claimed, err := p.store.ClaimScheduledStep(ctx, ss.ID)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to claim scheduled step",
				slog.String("scheduled_step_id", ss.ID),
				slog.String("error", err.Error()))
			failed++
			continue
		}
		if !claimed {
			// Another worker got there first.
			skipped++
			continue
		}

		var frozen *schema.WorkflowContext
		if len(ss.Context) > 0 {
			frozen = &schema.WorkflowContext{}
			if err := json.Unmarshal(ss.Context, frozen); err != nil {
				p.logger.WarnContext(ctx, "scheduled step has unreadable context",
					slog.String("scheduled_step_id", ss.ID),
					slog.String("error", err.Error()))
				frozen = nil
			}
		}

		run, err := p.engine.ResumeWorkflow(ctx, ss.RunID, frozen)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to resume run",
				slog.String("run_id", ss.RunID),
				slog.String("error", err.Error()))
			if cancelErr := p.store.CancelScheduledStep(ctx, ss.ID); cancelErr != nil {
				p.logger.ErrorContext(ctx, "failed to cancel scheduled step",
					slog.String("scheduled_step_id", ss.ID),
					slog.String("error", cancelErr.Error()))
			}
			failed++
			continue
		}
		if run == nil {
			p.logger.WarnContext(ctx, "scheduled step points at a run that cannot resume",
				slog.String("run_id", ss.RunID))
			skipped++
			continue
		}
		resumed++
	}

	if resumed+skipped+failed > 0 {
		p.logger.InfoContext(ctx, "delayed resume sweep finished",
			slog.Int("resumed", resumed),
			slog.Int("skipped", skipped),
			slog.Int("failed", failed))
	}
	return resumed, skipped, failed
}
