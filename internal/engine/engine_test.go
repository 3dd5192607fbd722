package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderio/automaton/internal/actions"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

type stubEmail struct{ sent int }

func (s *stubEmail) SendEmail(context.Context, string, string, string, string, string, string, string) (*actions.EmailResult, error) {
	s.sent++
	return &actions.EmailResult{Success: true}, nil
}

type stubNotifier struct{ notified int }

func (s *stubNotifier) CreateNotification(_ context.Context, userID string, _, _, _ string, _ map[string]any) (*actions.Notification, error) {
	s.notified++
	return &actions.Notification{ID: "n-1", UserID: userID}, nil
}

func (s *stubNotifier) SendPushNotification(context.Context, string, string, string, map[string]any) (bool, error) {
	s.notified++
	return true, nil
}

type stubSlack struct{}

func (stubSlack) GetOrganizationIntegration(context.Context, string) (*actions.SlackIntegration, error) {
	return nil, nil
}

func (stubSlack) PostMessage(context.Context, string, string, string, map[string]any) (*actions.SlackMessage, error) {
	return nil, errors.New("not configured")
}

func (stubSlack) CreateChannel(context.Context, string, string) (string, error) {
	return "", errors.New("not configured")
}

func (stubSlack) InviteUsersToChannel(context.Context, string, string, []string) error {
	return errors.New("not configured")
}

type stubAI struct{}

func (stubAI) Generate(context.Context, string) (string, error)             { return "text", nil }
func (stubAI) Categorize(context.Context, string, []string) (string, error) { return "other", nil }
func (stubAI) Summarize(context.Context, string) (string, error)            { return "summary", nil }

type testHarness struct {
	store    *store.MemoryStore
	engine   *Engine
	email    *stubEmail
	notifier *stubNotifier
	now      time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	s := store.NewMemoryStore()
	email := &stubEmail{}
	notifier := &stubNotifier{}
	reg, err := actions.NewDefaultRegistry(actions.Providers{
		Store:    s,
		Email:    email,
		Notifier: notifier,
		Slack:    stubSlack{},
		AI:       stubAI{},
	})
	require.NoError(t, err)

	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	eng := New(s, reg, slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(func() time.Time { return now })
	return &testHarness{store: s, engine: eng, email: email, notifier: notifier, now: now}
}

func intPtr(v int) *int { return &v }

// scenarioSteps is the five-step workflow used by the suspend/resume tests:
// create a contact, check a counter, email, wait a day, then notify.
func scenarioSteps(wfID string) []schema.WorkflowStep {
	return []schema.WorkflowStep{
		{ID: "s0", WorkflowID: wfID, StepOrder: 0, StepType: schema.StepTypeAction,
			ActionType: schema.ActionCreateContact,
			Config:     schema.StepConfig{"company_id_field": "company.id", "name": "{{contact.name}}"}},
		{ID: "s1", WorkflowID: wfID, StepOrder: 1, StepType: schema.StepTypeCondition,
			Config: schema.StepConfig{"field": "contacts_count", "operator": "gt", "value": float64(10)}},
		{ID: "s2", WorkflowID: wfID, StepOrder: 2, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendEmail,
			Config:     schema.StepConfig{"to": "{{contact.email}}", "subject": "Hi {{contact.name}}"}},
		{ID: "s3", WorkflowID: wfID, StepOrder: 3, StepType: schema.StepTypeDelay,
			Config: schema.StepConfig{"delay_type": "days", "delay_value": float64(1)}},
		{ID: "s4", WorkflowID: wfID, StepOrder: 4, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendNotification,
			Config:     schema.StepConfig{"title": "Done"}},
	}
}

func scenarioWorkflow(h *testHarness, t *testing.T) (*schema.Workflow, []schema.WorkflowStep) {
	t.Helper()
	wf := &schema.Workflow{
		ID:             "wf-1",
		OrganizationID: "org1",
		Name:           "welcome sequence",
		TriggerType:    schema.TriggerTypeEvent,
		IsActive:       true,
	}
	steps := scenarioSteps(wf.ID)
	require.NoError(t, h.store.CreateWorkflow(context.Background(), wf))
	for i := range steps {
		require.NoError(t, h.store.CreateWorkflowStep(context.Background(), &steps[i]))
	}
	return wf, steps
}

func triggerData() map[string]any {
	return map[string]any{
		"event_type": "opportunity.won",
		"user_id":    "u-1",
		"contact":    map[string]any{"id": "c-1", "name": "Jane", "email": "jane@example.com"},
		"company":    map[string]any{"id": "co-1"},
	}
}

func TestExecuteWorkflowPausesAtDelay(t *testing.T) {
	h := newHarness(t)
	wf, steps := scenarioWorkflow(h, t)
	ctx := context.Background()

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)
	require.NotNil(t, run)

	// The false condition (no contacts_count in context) falls through to
	// the email step, and the delay parks the run before the notification.
	assert.Equal(t, schema.RunStatusPaused, run.Status)
	assert.Equal(t, 4, run.CurrentStep)
	assert.Equal(t, 1, h.email.sent)
	assert.Equal(t, 0, h.notifier.notified)

	var wctx schema.WorkflowContext
	require.NoError(t, json.Unmarshal(run.Context, &wctx))
	condOut, ok := wctx.StepOutput(1)
	require.True(t, ok)
	assert.Equal(t, false, condOut.(map[string]any)["condition_met"])

	due, err := h.store.ListDueScheduledSteps(ctx, h.now.Add(25*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, run.ID, due[0].RunID)
	assert.Equal(t, 4, due[0].StepOrder)
	assert.Equal(t, h.now.Add(24*time.Hour), due[0].ExecuteAt)
}

func TestResumeWorkflowCompletesRun(t *testing.T) {
	h := newHarness(t)
	wf, steps := scenarioWorkflow(h, t)
	ctx := context.Background()

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusPaused, run.Status)

	due, err := h.store.ListDueScheduledSteps(ctx, h.now.Add(25*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	frozen := &schema.WorkflowContext{}
	require.NoError(t, json.Unmarshal(due[0].Context, frozen))

	resumed, err := h.engine.ResumeWorkflow(ctx, run.ID, frozen)
	require.NoError(t, err)
	require.NotNil(t, resumed)

	assert.Equal(t, schema.RunStatusCompleted, resumed.Status)
	assert.Equal(t, 1, h.notifier.notified)
	assert.Equal(t, 1, h.email.sent) // the pre-delay steps did not re-run

	var wctx schema.WorkflowContext
	require.NoError(t, json.Unmarshal(resumed.Context, &wctx))
	for _, order := range []int{0, 1, 2, 3, 4} {
		_, ok := wctx.StepOutput(order)
		assert.True(t, ok, "missing output for step %d", order)
	}
}

func TestResumeWorkflowMissingRunIsNil(t *testing.T) {
	h := newHarness(t)

	run, err := h.engine.ResumeWorkflow(context.Background(), "no-such-run", nil)
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestResumeWorkflowPastLastStepCompletes(t *testing.T) {
	h := newHarness(t)
	wf, steps := scenarioWorkflow(h, t)
	ctx := context.Background()

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusPaused, run.Status)

	// Simulate an out-of-band workflow edit that removed everything at or
	// past the resume point: nothing is left to run, so the run completes.
	bogus := 99
	require.NoError(t, h.store.UpdateRun(ctx, run.ID, store.RunUpdate{CurrentStep: &bogus}))

	resumed, err := h.engine.ResumeWorkflow(ctx, run.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, schema.RunStatusCompleted, resumed.Status)
	assert.Equal(t, 0, h.notifier.notified)
}

// oneBasedSteps is the scenario workflow renumbered 1..5; resume must land on
// the post-delay step no matter where the numbering starts.
func oneBasedSteps(wfID string) []schema.WorkflowStep {
	steps := scenarioSteps(wfID)
	for i := range steps {
		steps[i].StepOrder = i + 1
	}
	return steps
}

func TestResumeWorkflowWithOneBasedOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-1b", OrganizationID: "org1", Name: "welcome sequence",
		TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := oneBasedSteps(wf.ID)
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))
	for i := range steps {
		require.NoError(t, h.store.CreateWorkflowStep(ctx, &steps[i]))
	}

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusPaused, run.Status)
	assert.Equal(t, 5, run.CurrentStep)

	due, err := h.store.ListDueScheduledSteps(ctx, h.now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, run.CurrentStep, due[0].StepOrder)

	frozen := &schema.WorkflowContext{}
	require.NoError(t, json.Unmarshal(due[0].Context, frozen))

	resumed, err := h.engine.ResumeWorkflow(ctx, run.ID, frozen)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, schema.RunStatusCompleted, resumed.Status)
	assert.Equal(t, 1, h.notifier.notified)
	assert.Equal(t, 1, h.email.sent)

	// The resumed run did not re-execute the delay and schedule again.
	all, err := h.store.ListDueScheduledSteps(ctx, h.now.Add(96*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	var wctx schema.WorkflowContext
	require.NoError(t, json.Unmarshal(resumed.Context, &wctx))
	for _, order := range []int{1, 2, 3, 4, 5} {
		_, ok := wctx.StepOutput(order)
		assert.True(t, ok, "missing output for step %d", order)
	}
}

func TestResumeWorkflowWithSparseOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-sp", OrganizationID: "org1", Name: "sparse",
		TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "p10", WorkflowID: wf.ID, StepOrder: 10, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendEmail,
			Config:     schema.StepConfig{"to": "{{contact.email}}", "subject": "hi"}},
		{ID: "p20", WorkflowID: wf.ID, StepOrder: 20, StepType: schema.StepTypeDelay,
			Config: schema.StepConfig{"delay_type": "hours", "delay_value": float64(1)}},
		{ID: "p30", WorkflowID: wf.ID, StepOrder: 30, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendNotification,
			Config:     schema.StepConfig{"title": "done"}},
	}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))
	for i := range steps {
		require.NoError(t, h.store.CreateWorkflowStep(ctx, &steps[i]))
	}

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusPaused, run.Status)
	assert.Equal(t, 30, run.CurrentStep)

	resumed, err := h.engine.ResumeWorkflow(ctx, run.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, schema.RunStatusCompleted, resumed.Status)
	assert.Equal(t, 1, h.notifier.notified)
	assert.Equal(t, 1, h.email.sent)
}

func TestResumeWorkflowDelayAsLastStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-tail", OrganizationID: "org1", Name: "trailing delay",
		TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "t0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendEmail,
			Config:     schema.StepConfig{"to": "{{contact.email}}"}},
		{ID: "t1", WorkflowID: wf.ID, StepOrder: 1, StepType: schema.StepTypeDelay,
			Config: schema.StepConfig{"delay_type": "minutes", "delay_value": float64(5)}},
	}
	require.NoError(t, h.store.CreateWorkflow(ctx, wf))
	for i := range steps {
		require.NoError(t, h.store.CreateWorkflowStep(ctx, &steps[i]))
	}

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusPaused, run.Status)

	resumed, err := h.engine.ResumeWorkflow(ctx, run.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, schema.RunStatusCompleted, resumed.Status)
	assert.Equal(t, 1, h.email.sent)
}

func TestConditionElseGotoJumps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-2", OrganizationID: "org1", Name: "branching", TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "b0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeCondition,
			Config:       schema.StepConfig{"field": "contact.vip", "operator": "equals", "value": true},
			ElseGotoStep: intPtr(2)},
		{ID: "b1", WorkflowID: wf.ID, StepOrder: 1, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendEmail,
			Config:     schema.StepConfig{"to": "{{contact.email}}", "subject": "VIP"}},
		{ID: "b2", WorkflowID: wf.ID, StepOrder: 2, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendNotification,
			Config:     schema.StepConfig{"title": "standard"}},
	}

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, h.email.sent) // the false branch skipped the email
	assert.Equal(t, 1, h.notifier.notified)
}

func TestConditionJumpPastEndCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-3", OrganizationID: "org1", Name: "early exit", TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "e0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeCondition,
			Config:       schema.StepConfig{"field": "contact.vip", "operator": "equals", "value": true},
			ElseGotoStep: intPtr(99)},
		{ID: "e1", WorkflowID: wf.ID, StepOrder: 1, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendEmail,
			Config:     schema.StepConfig{"to": "{{contact.email}}"}},
	}

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, 0, h.email.sent)
}

func TestDelayMath(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		value float64
		want  time.Duration
	}{
		{"two hours", "hours", 2, 2 * time.Hour},
		{"thirty minutes", "minutes", 30, 30 * time.Minute},
		{"one day", "days", 1, 24 * time.Hour},
		{"zero fires immediately", "hours", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			wf := &schema.Workflow{ID: "wf-d", OrganizationID: "org1", Name: "delay", TriggerType: schema.TriggerTypeEvent, IsActive: true}
			steps := []schema.WorkflowStep{
				{ID: "d0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeDelay,
					Config: schema.StepConfig{"delay_type": tt.typ, "delay_value": tt.value}},
			}

			run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
			require.NoError(t, err)
			require.Equal(t, schema.RunStatusPaused, run.Status)

			due, err := h.store.ListDueScheduledSteps(ctx, h.now.Add(48*time.Hour), 10)
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.Equal(t, h.now.Add(tt.want), due[0].ExecuteAt)
		})
	}
}

func TestContextAccumulatesWithoutMutation(t *testing.T) {
	base := &schema.WorkflowContext{
		OrganizationID: "org1",
		Steps:          map[string]any{"0": map[string]any{"done": true}},
	}

	next := base.WithStepOutput(1, map[string]any{"sent": true})

	assert.Len(t, base.Steps, 1)
	assert.Len(t, next.Steps, 2)
	assert.Equal(t, base.Steps["0"], next.Steps["0"])

	_, ok := next.StepOutput(1)
	assert.True(t, ok)
	_, ok = base.StepOutput(1)
	assert.False(t, ok)
}

func TestActionFailureFailsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-f", OrganizationID: "org1", Name: "failing", TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		// create_contact without a resolvable company id is a hard failure.
		{ID: "f0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeAction,
			ActionType: schema.ActionCreateContact, Config: schema.StepConfig{"name": "x"}},
		{ID: "f1", WorkflowID: wf.ID, StepOrder: 1, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendEmail, Config: schema.StepConfig{"to": "jane@example.com"}},
	}

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "create_contact")
	assert.Equal(t, 0, h.email.sent)

	logRows, err := h.store.ListRunSteps(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logRows, 1)
	assert.Equal(t, schema.StepStatusFailed, logRows[0].Status)
}

func TestActionStepWithoutTypeRejected(t *testing.T) {
	h := newHarness(t)

	wf := &schema.Workflow{ID: "wf-n", OrganizationID: "org1", Name: "broken", TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "n0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeAction},
	}

	run, err := h.engine.ExecuteWorkflow(context.Background(), wf, steps, map[string]any{})
	require.Error(t, err)
	assert.Nil(t, run)

	var ee *schema.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, schema.ErrCodeValidation, ee.Code)
	assert.Contains(t, ee.Message, "action_type")
}

func TestDuplicateStepOrderRejected(t *testing.T) {
	h := newHarness(t)

	wf := &schema.Workflow{ID: "wf-dup", OrganizationID: "org1", Name: "ambiguous", TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "d0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendEmail, Config: schema.StepConfig{"to": "jane@example.com"}},
		{ID: "d1", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeAction,
			ActionType: schema.ActionSendNotification, Config: schema.StepConfig{"title": "t"}},
	}

	run, err := h.engine.ExecuteWorkflow(context.Background(), wf, steps, triggerData())
	require.Error(t, err)
	assert.Nil(t, run)

	var ee *schema.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, schema.ErrCodeValidation, ee.Code)
	assert.Contains(t, ee.Message, "duplicate step_order")
	assert.Equal(t, 0, h.email.sent)
	assert.Equal(t, 0, h.notifier.notified)
}

func TestLoopStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-l", OrganizationID: "org1", Name: "loop", TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "l0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeLoop,
			Config: schema.StepConfig{
				"collection_field": "trigger.items",
				"item_variable":    "entry",
				"max_iterations":   float64(2),
			}},
	}

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, map[string]any{
		"items": []any{"a", "b", "c"},
	})
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusCompleted, run.Status)

	var wctx schema.WorkflowContext
	require.NoError(t, json.Unmarshal(run.Context, &wctx))
	out, ok := wctx.StepOutput(0)
	require.True(t, ok)

	m := out.(map[string]any)
	assert.Equal(t, float64(2), m["iterations"]) // capped below collection size
	items := m["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "a", first["entry"])
	assert.Equal(t, float64(0), first["index"])
}

func TestLoopMissingCollectionIsSkippedSuccess(t *testing.T) {
	h := newHarness(t)

	wf := &schema.Workflow{ID: "wf-l2", OrganizationID: "org1", Name: "loop", TriggerType: schema.TriggerTypeEvent, IsActive: true}
	steps := []schema.WorkflowStep{
		{ID: "l0", WorkflowID: wf.ID, StepOrder: 0, StepType: schema.StepTypeLoop,
			Config: schema.StepConfig{"collection_field": "trigger.absent"}},
	}

	run, err := h.engine.ExecuteWorkflow(context.Background(), wf, steps, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)

	var wctx schema.WorkflowContext
	require.NoError(t, json.Unmarshal(run.Context, &wctx))
	out, _ := wctx.StepOutput(0)
	assert.Equal(t, true, out.(map[string]any)["skipped"])
}

func TestCancelRun(t *testing.T) {
	h := newHarness(t)
	wf, steps := scenarioWorkflow(h, t)
	ctx := context.Background()

	run, err := h.engine.ExecuteWorkflow(ctx, wf, steps, triggerData())
	require.NoError(t, err)
	require.Equal(t, schema.RunStatusPaused, run.Status)

	require.NoError(t, h.engine.CancelRun(ctx, run.ID))

	got, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCancelled, got.Status)

	due, err := h.store.ListDueScheduledSteps(ctx, h.now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Cancelling a terminal run is a no-op.
	require.NoError(t, h.engine.CancelRun(ctx, run.ID))
}
