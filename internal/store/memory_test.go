package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderio/automaton/pkg/schema"
)

func pendingStep(id, runID string, executeAt time.Time) *WorkflowScheduledStep {
	return &WorkflowScheduledStep{
		ID:        id,
		RunID:     runID,
		StepOrder: 1,
		ExecuteAt: executeAt,
		Status:    schema.ScheduledStepPending,
		CreatedAt: executeAt.Add(-time.Hour),
	}
}

func TestClaimScheduledStepIsExclusive(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, m.CreateScheduledStep(ctx, pendingStep("ss-1", "run-1", now)))

	const workers = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			claimed, err := m.ClaimScheduledStep(ctx, "ss-1")
			assert.NoError(t, err)
			if claimed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	ss, err := m.GetScheduledStep(ctx, "ss-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ScheduledStepExecuted, ss.Status)
}

func TestClaimScheduledStepOnlyTakesPendingRows(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	claimed, err := m.ClaimScheduledStep(ctx, "ss-missing")
	require.NoError(t, err)
	assert.False(t, claimed)

	ss := pendingStep("ss-1", "run-1", now)
	ss.Status = schema.ScheduledStepCancelled
	require.NoError(t, m.CreateScheduledStep(ctx, ss))

	claimed, err = m.ClaimScheduledStep(ctx, "ss-1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestListDueScheduledSteps(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.CreateScheduledStep(ctx, pendingStep("ss-late", "run-1", now.Add(-time.Minute))))
	require.NoError(t, m.CreateScheduledStep(ctx, pendingStep("ss-early", "run-2", now.Add(-time.Hour))))
	require.NoError(t, m.CreateScheduledStep(ctx, pendingStep("ss-future", "run-3", now.Add(time.Hour))))
	executed := pendingStep("ss-executed", "run-4", now.Add(-time.Hour))
	executed.Status = schema.ScheduledStepExecuted
	require.NoError(t, m.CreateScheduledStep(ctx, executed))

	due, err := m.ListDueScheduledSteps(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "ss-early", due[0].ID)
	assert.Equal(t, "ss-late", due[1].ID)

	due, err = m.ListDueScheduledSteps(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ss-early", due[0].ID)
}

func TestCancelScheduledStepsForRun(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.CreateScheduledStep(ctx, pendingStep(fmt.Sprintf("ss-%d", i), "run-1", now)))
	}
	require.NoError(t, m.CreateScheduledStep(ctx, pendingStep("ss-other", "run-2", now)))
	claimed, err := m.ClaimScheduledStep(ctx, "ss-0")
	require.NoError(t, err)
	require.True(t, claimed)

	n, err := m.CancelScheduledStepsForRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n) // the claimed row stays executed

	for id, want := range map[string]schema.ScheduledStepStatus{
		"ss-0":     schema.ScheduledStepExecuted,
		"ss-1":     schema.ScheduledStepCancelled,
		"ss-2":     schema.ScheduledStepCancelled,
		"ss-other": schema.ScheduledStepPending,
	} {
		ss, err := m.GetScheduledStep(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ss.Status, id)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	wf := &schema.Workflow{ID: "wf-1", OrganizationID: "org1", Name: "original"}
	require.NoError(t, m.CreateWorkflow(ctx, wf))
	wf.Name = "mutated after create"

	got, err := m.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "original", got.Name)

	got.Name = "mutated after get"
	again, err := m.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Name)
}

func TestNotFoundErrorsCarryCode(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.GetRun(ctx, "run-missing")
	require.Error(t, err)
	var ee *schema.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, schema.ErrCodeNotFound, ee.Code)

	err = m.UpdateContact(ctx, "c-missing", map[string]any{"stage": "x"})
	require.Error(t, err)
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, schema.ErrCodeNotFound, ee.Code)
}
