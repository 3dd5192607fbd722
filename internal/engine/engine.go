// Package engine drives step-by-step workflow execution: it persists progress
// after every step, parks runs at delay steps through scheduled-step rows, and
// resumes them from the frozen context captured at suspension time.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/calderio/automaton/internal/actions"
	"github.com/calderio/automaton/internal/conditions"
	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/internal/logging"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/internal/validation"
	"github.com/calderio/automaton/pkg/schema"
)

const defaultMaxLoopIterations = 100

// Engine orchestrates workflow runs. It holds no long-lived state of its own;
// every run is fully described by its persisted row plus any scheduled step,
// so multiple engine processes can operate on the same store.
type Engine struct {
	store   store.Store
	actions *actions.Registry
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Engine.
func New(s store.Store, reg *actions.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   s,
		actions: reg,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the engine clock. Used by tests and the scheduler.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// stepResult is the outcome of one step execution.
type stepResult struct {
	status        schema.StepStatus
	output        map[string]any
	nextStepOrder *int
	paused        bool
	errMessage    string
}

// ExecuteWorkflow creates a run and drives it until completion, failure, or a
// delay suspension. It always returns the run record as the terminal signal:
// execution problems are written into the run, not returned as errors. A
// non-nil error means no run was created, either because the step set failed
// validation or because the run row could not be written.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *schema.Workflow, steps []schema.WorkflowStep, triggerData map[string]any) (*store.WorkflowRun, error) {
	if err := validation.ValidateSteps(steps); err != nil {
		return nil, err
	}

	wctx := buildInitialContext(wf, triggerData, e.now().UTC())

	triggerRaw, _ := json.Marshal(triggerData)
	ctxRaw, _ := json.Marshal(wctx)
	now := e.now().UTC()
	run := &store.WorkflowRun{
		ID:             uuid.New().String(),
		WorkflowID:     wf.ID,
		OrganizationID: wf.OrganizationID,
		TriggerData:    triggerRaw,
		Status:         schema.RunStatusRunning,
		CurrentStep:    0,
		Context:        ctxRaw,
		StartedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "failed to create workflow run").WithCause(err)
	}

	ctx = logging.WithIDs(ctx, wf.ID, run.ID, wf.OrganizationID)
	e.logger.InfoContext(ctx, "workflow run started", slog.String("workflow_name", wf.Name))

	sorted := sortSteps(steps)
	e.runLoop(ctx, run, sorted, 0, wctx)
	return run, nil
}

// ResumeWorkflow continues a paused run from the given frozen context, the
// one captured at suspension time. It returns (nil, nil) when the run, its
// workflow, or the step to resume at no longer exists; that is "could not
// resume", distinct from "resumed and failed".
func (e *Engine) ResumeWorkflow(ctx context.Context, runID string, frozen *schema.WorkflowContext) (*store.WorkflowRun, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, nil
	}

	wf, err := e.store.GetWorkflow(ctx, run.WorkflowID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	ctx = logging.WithIDs(ctx, wf.ID, run.ID, run.OrganizationID)

	steps, err := e.store.ListWorkflowSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	sorted := sortSteps(steps)
	if len(sorted) == 0 {
		e.logger.WarnContext(ctx, "cannot resume run: workflow has no steps")
		return nil, nil
	}

	if frozen == nil {
		frozen = &schema.WorkflowContext{}
		if len(run.Context) > 0 {
			_ = json.Unmarshal(run.Context, frozen)
		}
	}

	// current_step holds the step_order execution continues at. Matching the
	// first step at or past it tolerates sparse numbering and workflows
	// edited while the run was parked.
	idx := -1
	for i, s := range sorted {
		if s.StepOrder >= run.CurrentStep {
			idx = i
			break
		}
	}
	if idx == -1 {
		// The suspension point was after the last step; nothing left to run.
		e.completeRun(ctx, run, frozen)
		return run, nil
	}

	status := schema.RunStatusRunning
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{Status: &status}); err != nil {
		return nil, err
	}
	run.Status = status

	e.logger.InfoContext(ctx, "workflow run resumed", slog.Int("step_order", run.CurrentStep))
	e.runLoop(ctx, run, sorted, idx, frozen)
	return run, nil
}

// CancelRun marks a non-terminal run cancelled and cancels its pending
// scheduled steps. Cancelling an already-terminal run is a no-op.
func (e *Engine) CancelRun(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}

	status := schema.RunStatusCancelled
	completed := e.now().UTC()
	if err := e.store.UpdateRun(ctx, runID, store.RunUpdate{
		Status:      &status,
		CompletedAt: &completed,
	}); err != nil {
		return err
	}

	n, err := e.store.CancelScheduledStepsForRun(ctx, runID)
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "workflow run cancelled",
		slog.String("run_id", runID), slog.Int("scheduled_steps_cancelled", n))
	return nil
}

// runLoop executes steps starting at idx, persisting a checkpoint before
// each step. Anything escaping the loop is caught here and written into the
// run as failed; callers never see a panic or error from step execution.
func (e *Engine) runLoop(ctx context.Context, run *store.WorkflowRun, steps []schema.WorkflowStep, idx int, wctx *schema.WorkflowContext) {
	defer func() {
		if r := recover(); r != nil {
			e.failRun(ctx, run, fmt.Sprintf("internal error: %v", r))
		}
	}()

	i := idx
	for i < len(steps) {
		step := steps[i]
		nextOrder := nextOrderAfter(steps, i)

		// Crash-safety checkpoint: position and context go down before the
		// step runs.
		if err := e.checkpoint(ctx, run, step.StepOrder, wctx); err != nil {
			e.failRun(ctx, run, fmt.Sprintf("checkpoint failed: %v", err))
			return
		}

		res := e.executeStep(ctx, run, step, wctx, nextOrder)
		if res.status == schema.StepStatusFailed {
			e.failRun(ctx, run, res.errMessage)
			return
		}

		wctx = wctx.WithStepOutput(step.StepOrder, res.output)

		if res.paused {
			e.pauseRun(ctx, run, nextOrder, wctx)
			return
		}

		if res.nextStepOrder != nil {
			next := -1
			for j, s := range steps {
				if s.StepOrder == *res.nextStepOrder {
					next = j
					break
				}
			}
			if next == -1 {
				// Jump target past the end of the workflow: terminate.
				break
			}
			i = next
			continue
		}

		i++
	}

	e.completeRun(ctx, run, wctx)
}

// executeStep runs one step, bracketed by the append-only log row. Errors
// and panics are swallowed into a failed result; the caller decides run fate.
func (e *Engine) executeStep(ctx context.Context, run *store.WorkflowRun, step schema.WorkflowStep, wctx *schema.WorkflowContext, nextOrder int) (res stepResult) {
	startedAt := e.now().UTC()
	logRow := &store.WorkflowRunStep{
		ID:        uuid.New().String(),
		RunID:     run.ID,
		StepID:    step.ID,
		StepOrder: step.StepOrder,
		StepType:  step.StepType,
		Status:    schema.StepStatusRunning,
		StartedAt: startedAt,
	}
	if inputRaw, err := json.Marshal(step.Config); err == nil {
		logRow.Input = inputRaw
	}
	if err := e.store.CreateRunStep(ctx, logRow); err != nil {
		e.logger.WarnContext(ctx, "failed to write step log row", slog.String("error", err.Error()))
	}

	defer func() {
		if r := recover(); r != nil {
			res = stepResult{
				status:     schema.StepStatusFailed,
				errMessage: fmt.Sprintf("step panicked: %v", r),
			}
		}
		e.finalizeStepLog(ctx, logRow.ID, res)
	}()

	switch step.StepType {
	case schema.StepTypeAction:
		res = e.runActionStep(ctx, step, wctx)
	case schema.StepTypeCondition:
		res = e.runConditionStep(step, wctx)
	case schema.StepTypeDelay:
		res = e.runDelayStep(ctx, run, step, wctx, nextOrder)
	case schema.StepTypeLoop:
		res = e.runLoopStep(step, wctx)
	default:
		res = stepResult{
			status:     schema.StepStatusFailed,
			errMessage: fmt.Sprintf("unknown step type %q", step.StepType),
		}
	}
	return res
}

func (e *Engine) runActionStep(ctx context.Context, step schema.WorkflowStep, wctx *schema.WorkflowContext) stepResult {
	if step.ActionType == "" {
		return stepResult{
			status:     schema.StepStatusFailed,
			errMessage: "action step has no action_type",
		}
	}

	output, err := e.actions.Dispatch(ctx, step.ActionType, step.Config, wctx)
	if err != nil {
		return stepResult{
			status:     schema.StepStatusFailed,
			errMessage: fmt.Sprintf("action %s failed: %v", step.ActionType, err),
		}
	}
	if actions.Skipped(output) {
		e.logger.InfoContext(ctx, "action skipped",
			slog.String("action_type", string(step.ActionType)),
			slog.Any("reason", output["reason"]))
	}
	return stepResult{status: schema.StepStatusSuccess, output: output}
}

func (e *Engine) runConditionStep(step schema.WorkflowStep, wctx *schema.WorkflowContext) stepResult {
	field := stringConfig(step.Config, "field")
	operator := stringConfig(step.Config, "operator")
	expected := step.Config["value"]

	met := conditions.Evaluate(field, operator, expected, wctx.AsMap())

	next := step.StepOrder + 1
	if !met && step.ElseGotoStep != nil {
		next = *step.ElseGotoStep
	}

	return stepResult{
		status: schema.StepStatusSuccess,
		output: map[string]any{
			"condition_met": met,
			"next_step":     next,
		},
		nextStepOrder: &next,
	}
}

func (e *Engine) runDelayStep(ctx context.Context, run *store.WorkflowRun, step schema.WorkflowStep, wctx *schema.WorkflowContext, nextOrder int) stepResult {
	delayType := stringConfig(step.Config, "delay_type")
	delayValue := numberConfig(step.Config, "delay_value")

	var unit time.Duration
	switch delayType {
	case "minutes":
		unit = time.Minute
	case "hours":
		unit = time.Hour
	case "days":
		unit = 24 * time.Hour
	default:
		return stepResult{
			status:     schema.StepStatusFailed,
			errMessage: fmt.Sprintf("invalid delay_type %q", delayType),
		}
	}
	if delayValue < 0 {
		return stepResult{
			status:     schema.StepStatusFailed,
			errMessage: fmt.Sprintf("invalid delay_value %v", delayValue),
		}
	}

	executeAt := e.now().UTC().Add(time.Duration(delayValue * float64(unit)))
	output := map[string]any{
		"scheduled_for": executeAt.Format(time.RFC3339),
		"delay_type":    delayType,
		"delay_value":   delayValue,
	}

	// The frozen context includes this step's own output so the resumed
	// run ends with outputs for every executed step.
	frozen := wctx.WithStepOutput(step.StepOrder, output)
	frozenRaw, err := json.Marshal(frozen)
	if err != nil {
		return stepResult{
			status:     schema.StepStatusFailed,
			errMessage: fmt.Sprintf("failed to freeze context: %v", err),
		}
	}

	ss := &store.WorkflowScheduledStep{
		ID:        uuid.New().String(),
		RunID:     run.ID,
		StepOrder: nextOrder,
		ExecuteAt: executeAt,
		Context:   frozenRaw,
		Status:    schema.ScheduledStepPending,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.CreateScheduledStep(ctx, ss); err != nil {
		return stepResult{
			status:     schema.StepStatusFailed,
			errMessage: fmt.Sprintf("failed to schedule delay: %v", err),
		}
	}

	return stepResult{
		status: schema.StepStatusSuccess,
		output: output,
		paused: true,
	}
}

// runLoopStep iterates over a context collection, recording one entry per
// consumed item. It does not execute nested child steps per iteration; loop
// bodies are not part of this engine's model.
func (e *Engine) runLoopStep(step schema.WorkflowStep, wctx *schema.WorkflowContext) stepResult {
	collectionField := stringConfig(step.Config, "collection_field")

	raw, ok := expressions.ResolvePath(wctx.AsMap(), collectionField)
	if !ok {
		return stepResult{
			status: schema.StepStatusSuccess,
			output: map[string]any{"skipped": true, "reason": "collection not found", "iterations": 0},
		}
	}
	items, ok := raw.([]any)
	if !ok {
		return stepResult{
			status: schema.StepStatusSuccess,
			output: map[string]any{"skipped": true, "reason": "collection is not an array", "iterations": 0},
		}
	}

	maxIterations := defaultMaxLoopIterations
	if n := numberConfig(step.Config, "max_iterations"); n > 0 {
		maxIterations = int(n)
	}
	itemVariable := stringConfig(step.Config, "item_variable")
	if itemVariable == "" {
		itemVariable = "item"
	}

	count := min(len(items), maxIterations)
	entries := make([]any, 0, count)
	for i := 0; i < count; i++ {
		entries = append(entries, map[string]any{
			"index":      i,
			itemVariable: items[i],
		})
	}

	return stepResult{
		status: schema.StepStatusSuccess,
		output: map[string]any{
			"iterations": count,
			"items":      entries,
		},
	}
}

// --- run state transitions ---

func (e *Engine) checkpoint(ctx context.Context, run *store.WorkflowRun, order int, wctx *schema.WorkflowContext) error {
	ctxRaw, err := json.Marshal(wctx)
	if err != nil {
		return err
	}
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		CurrentStep: &order,
		Context:     ctxRaw,
	}); err != nil {
		return err
	}
	run.CurrentStep = order
	run.Context = ctxRaw
	return nil
}

// pauseRun parks the run with current_step set to the step_order execution
// continues at, the same value recorded on the scheduled-step row.
func (e *Engine) pauseRun(ctx context.Context, run *store.WorkflowRun, nextOrder int, wctx *schema.WorkflowContext) {
	ctxRaw, _ := json.Marshal(wctx)
	status := schema.RunStatusPaused
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:      &status,
		CurrentStep: &nextOrder,
		Context:     ctxRaw,
	}); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist paused run", slog.String("error", err.Error()))
	}
	run.Status = status
	run.CurrentStep = nextOrder
	run.Context = ctxRaw
	e.logger.InfoContext(ctx, "workflow run paused", slog.Int("current_step", nextOrder))
}

func (e *Engine) completeRun(ctx context.Context, run *store.WorkflowRun, wctx *schema.WorkflowContext) {
	ctxRaw, _ := json.Marshal(wctx)
	status := schema.RunStatusCompleted
	completed := e.now().UTC()
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:      &status,
		Context:     ctxRaw,
		CompletedAt: &completed,
	}); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist completed run", slog.String("error", err.Error()))
	}
	run.Status = status
	run.Context = ctxRaw
	run.CompletedAt = &completed
	e.logger.InfoContext(ctx, "workflow run completed")
}

func (e *Engine) failRun(ctx context.Context, run *store.WorkflowRun, message string) {
	status := schema.RunStatusFailed
	completed := e.now().UTC()
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:       &status,
		ErrorMessage: &message,
		CompletedAt:  &completed,
	}); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist failed run", slog.String("error", err.Error()))
	}
	run.Status = status
	run.ErrorMessage = message
	run.CompletedAt = &completed
	e.logger.ErrorContext(ctx, "workflow run failed", slog.String("error", message))
}

func (e *Engine) finalizeStepLog(ctx context.Context, logID string, res stepResult) {
	status := res.status
	if res.paused {
		status = schema.StepStatusPending
	}
	update := store.RunStepUpdate{Status: &status}
	if res.output != nil {
		if outRaw, err := json.Marshal(res.output); err == nil {
			update.Output = outRaw
		}
	}
	if res.errMessage != "" {
		update.ErrorMessage = &res.errMessage
	}
	completed := e.now().UTC()
	update.CompletedAt = &completed

	if err := e.store.UpdateRunStep(ctx, logID, update); err != nil {
		e.logger.WarnContext(ctx, "failed to finalize step log row", slog.String("error", err.Error()))
	}
}

// --- helpers ---

func buildInitialContext(wf *schema.Workflow, triggerData map[string]any, now time.Time) *schema.WorkflowContext {
	wctx := &schema.WorkflowContext{
		Trigger:        triggerData,
		Steps:          map[string]any{},
		OrganizationID: wf.OrganizationID,
		TriggeredAt:    now,
	}
	if triggerData == nil {
		return wctx
	}
	if userID, ok := triggerData["user_id"].(string); ok {
		wctx.TriggeredByUserID = userID
	}
	if m, ok := triggerData["contact"].(map[string]any); ok {
		wctx.Contact = m
	}
	if m, ok := triggerData["opportunity"].(map[string]any); ok {
		wctx.Opportunity = m
	}
	if m, ok := triggerData["task"].(map[string]any); ok {
		wctx.Task = m
	}
	if m, ok := triggerData["project"].(map[string]any); ok {
		wctx.Project = m
	}
	if m, ok := triggerData["company"].(map[string]any); ok {
		wctx.Company = m
	}
	return wctx
}

// nextOrderAfter is the step_order execution continues at once steps[i]
// finishes sequentially: the next sorted step's order, or one past the final
// order when steps[i] is last.
func nextOrderAfter(steps []schema.WorkflowStep, i int) int {
	if i+1 < len(steps) {
		return steps[i+1].StepOrder
	}
	return steps[i].StepOrder + 1
}

func sortSteps(steps []schema.WorkflowStep) []schema.WorkflowStep {
	sorted := make([]schema.WorkflowStep, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StepOrder < sorted[j].StepOrder
	})
	return sorted
}

func stringConfig(cfg schema.StepConfig, key string) string {
	v, _ := cfg[key].(string)
	return v
}

func numberConfig(cfg schema.StepConfig, key string) float64 {
	switch n := cfg[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func isNotFound(err error) bool {
	var ee *schema.EngineError
	return errors.As(err, &ee) && ee.Code == schema.ErrCodeNotFound
}
