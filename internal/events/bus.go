// Package events routes fired domain events to matching event-triggered
// workflows. Matching workflows are executed without awaiting: emitters are
// never blocked by, and never see errors from, the automations they trigger.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/calderio/automaton/internal/engine"
	"github.com/calderio/automaton/internal/logging"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

// Bus dispatches domain events to the engine.
type Bus struct {
	store  store.Store
	engine *engine.Engine
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewBus creates an event bus.
func NewBus(s store.Store, eng *engine.Engine, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{store: s, engine: eng, logger: logger}
}

// EmitWorkflowEvent loads the organization's active event-triggered workflows
// and starts every one whose trigger matches the event. It returns the number
// of workflows invoked; execution failures are logged, never raised to the
// emitter.
func (b *Bus) EmitWorkflowEvent(ctx context.Context, eventType, entityType, entityID string, entityData map[string]any, organizationID, userID string) int {
	triggerType := schema.TriggerTypeEvent
	active := true
	workflows, err := b.store.ListWorkflows(ctx, store.WorkflowFilter{
		OrganizationID: organizationID,
		TriggerType:    &triggerType,
		Active:         &active,
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to load event workflows",
			slog.String("organization_id", organizationID),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return 0
	}

	invoked := 0
	for _, wf := range workflows {
		cfg, err := schema.ParseEventTriggerConfig(wf.TriggerConfig)
		if err != nil {
			b.logger.WarnContext(ctx, "skipping workflow with invalid trigger config",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()))
			continue
		}
		if !matchesTrigger(cfg, eventType, entityType, entityData) {
			continue
		}

		triggerData := map[string]any{
			"event_type":  eventType,
			"entity_type": entityType,
			"entity_id":   entityID,
		}
		if userID != "" {
			triggerData["user_id"] = userID
		}
		if entityType != "" && entityData != nil {
			triggerData[entityType] = entityData
		}

		b.invoke(wf, triggerData)
		invoked++
	}
	return invoked
}

// invoke starts one workflow run in the background.
func (b *Bus) invoke(wf *schema.Workflow, triggerData map[string]any) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		// Detached from the emitter's context: the emitting request may
		// finish long before the run does.
		runCtx := logging.WithIDs(context.Background(), wf.ID, "", wf.OrganizationID)

		steps, err := b.store.ListWorkflowSteps(runCtx, wf.ID)
		if err != nil {
			b.logger.ErrorContext(runCtx, "failed to load workflow steps",
				slog.String("error", err.Error()))
			return
		}

		run, err := b.engine.ExecuteWorkflow(runCtx, wf, steps, triggerData)
		if err != nil {
			b.logger.ErrorContext(runCtx, "failed to start workflow run",
				slog.String("error", err.Error()))
			return
		}
		if run.Status == schema.RunStatusFailed {
			b.logger.WarnContext(runCtx, "triggered workflow run failed",
				slog.String("run_id", run.ID),
				slog.String("error", run.ErrorMessage))
		}
	}()
}

// Wait blocks until all in-flight triggered executions finish. Used during
// shutdown and by tests.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// matchesTrigger applies the three gates in order: event-type list (empty
// matches all), entity type, then structured filters.
func matchesTrigger(cfg *schema.EventTriggerConfig, eventType, entityType string, entityData map[string]any) bool {
	if len(cfg.EventTypes) > 0 {
		found := false
		for _, et := range cfg.EventTypes {
			if et == eventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if cfg.EntityType != "" && cfg.EntityType != entityType {
		return false
	}

	return matchFilters(cfg.Filters, entityData)
}
