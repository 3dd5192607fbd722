package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderio/automaton/internal/actions"
	"github.com/calderio/automaton/internal/engine"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

// countingNotifier is incremented from concurrent run goroutines.
type countingNotifier struct {
	mu      sync.Mutex
	created int
}

func (n *countingNotifier) CreateNotification(_ context.Context, userID string, _, _, _ string, _ map[string]any) (*actions.Notification, error) {
	n.mu.Lock()
	n.created++
	n.mu.Unlock()
	return &actions.Notification{ID: "n-1", UserID: userID}, nil
}

func (n *countingNotifier) SendPushNotification(context.Context, string, string, string, map[string]any) (bool, error) {
	n.mu.Lock()
	n.created++
	n.mu.Unlock()
	return true, nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.created
}

type nilEmail struct{}

func (nilEmail) SendEmail(context.Context, string, string, string, string, string, string, string) (*actions.EmailResult, error) {
	return &actions.EmailResult{Success: true}, nil
}

type nilSlack struct{}

func (nilSlack) GetOrganizationIntegration(context.Context, string) (*actions.SlackIntegration, error) {
	return nil, nil
}

func (nilSlack) PostMessage(context.Context, string, string, string, map[string]any) (*actions.SlackMessage, error) {
	return nil, errors.New("not configured")
}

func (nilSlack) CreateChannel(context.Context, string, string) (string, error) {
	return "", errors.New("not configured")
}

func (nilSlack) InviteUsersToChannel(context.Context, string, string, []string) error {
	return errors.New("not configured")
}

type nilAI struct{}

func (nilAI) Generate(context.Context, string) (string, error)             { return "", nil }
func (nilAI) Categorize(context.Context, string, []string) (string, error) { return "", nil }
func (nilAI) Summarize(context.Context, string) (string, error)            { return "", nil }

func newTestBus(t *testing.T) (*Bus, *store.MemoryStore, *countingNotifier) {
	t.Helper()
	s := store.NewMemoryStore()
	notifier := &countingNotifier{}
	reg, err := actions.NewDefaultRegistry(actions.Providers{
		Store:    s,
		Email:    nilEmail{},
		Notifier: notifier,
		Slack:    nilSlack{},
		AI:       nilAI{},
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(s, reg, logger)
	return NewBus(s, eng, logger), s, notifier
}

func seedEventWorkflow(t *testing.T, s *store.MemoryStore, id string, cfg schema.EventTriggerConfig) {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, s.CreateWorkflow(context.Background(), &schema.Workflow{
		ID:             id,
		OrganizationID: "org1",
		Name:           id,
		TriggerType:    schema.TriggerTypeEvent,
		TriggerConfig:  raw,
		IsActive:       true,
	}))
	require.NoError(t, s.CreateWorkflowStep(context.Background(), &schema.WorkflowStep{
		ID:         id + "-s0",
		WorkflowID: id,
		StepOrder:  0,
		StepType:   schema.StepTypeAction,
		ActionType: schema.ActionSendNotification,
		Config:     schema.StepConfig{"title": "triggered"},
	}))
}

func TestEmitWithNoWorkflowsIsQuietNoop(t *testing.T) {
	bus, _, notifier := newTestBus(t)

	invoked := bus.EmitWorkflowEvent(context.Background(),
		"opportunity.won", "opportunity", "op-1",
		map[string]any{"stage": "won"}, "org1", "u-1")
	bus.Wait()

	assert.Equal(t, 0, invoked)
	assert.Equal(t, 0, notifier.count())
}

func TestEmitInvokesOnlyMatchingWorkflows(t *testing.T) {
	bus, s, notifier := newTestBus(t)

	seedEventWorkflow(t, s, "wf-match", schema.EventTriggerConfig{
		EventTypes: []string{"opportunity.won"},
		EntityType: "opportunity",
		Filters:    map[string]any{"amount": map[string]any{"$gt": float64(1000)}},
	})
	seedEventWorkflow(t, s, "wf-other-event", schema.EventTriggerConfig{
		EventTypes: []string{"contact.created"},
	})
	seedEventWorkflow(t, s, "wf-other-entity", schema.EventTriggerConfig{
		EventTypes: []string{"opportunity.won"},
		EntityType: "task",
	})
	seedEventWorkflow(t, s, "wf-filter-miss", schema.EventTriggerConfig{
		EventTypes: []string{"opportunity.won"},
		Filters:    map[string]any{"amount": map[string]any{"$gt": float64(99999)}},
	})
	// An empty event-type list matches every event.
	seedEventWorkflow(t, s, "wf-catch-all", schema.EventTriggerConfig{})

	invoked := bus.EmitWorkflowEvent(context.Background(),
		"opportunity.won", "opportunity", "op-1",
		map[string]any{"amount": float64(5000), "stage": "won"}, "org1", "u-1")
	bus.Wait()

	assert.Equal(t, 2, invoked) // wf-match and wf-catch-all
	assert.Equal(t, 2, notifier.count())
}

func TestEmitIgnoresOtherOrganizations(t *testing.T) {
	bus, s, notifier := newTestBus(t)
	seedEventWorkflow(t, s, "wf-org1", schema.EventTriggerConfig{})

	invoked := bus.EmitWorkflowEvent(context.Background(),
		"contact.created", "contact", "c-1", map[string]any{}, "org2", "")
	bus.Wait()

	assert.Equal(t, 0, invoked)
	assert.Equal(t, 0, notifier.count())
}

func TestMatchFilters(t *testing.T) {
	data := map[string]any{
		"stage":  "Won",
		"amount": float64(5000),
		"owner":  map[string]any{"id": "u-1"},
		"tags":   []any{"vip"},
	}

	tests := []struct {
		name    string
		filters map[string]any
		want    bool
	}{
		{"empty filters match", nil, true},
		{"plain equality case-insensitive", map[string]any{"stage": "won"}, true},
		{"plain equality miss", map[string]any{"stage": "lost"}, false},
		{"nested path", map[string]any{"owner.id": "u-1"}, true},
		{"$in hit", map[string]any{"stage": map[string]any{"$in": []any{"won", "open"}}}, true},
		{"$in miss", map[string]any{"stage": map[string]any{"$in": []any{"lost"}}}, false},
		{"$ne", map[string]any{"stage": map[string]any{"$ne": "lost"}}, true},
		{"$gt", map[string]any{"amount": map[string]any{"$gt": float64(1000)}}, true},
		{"$gte boundary", map[string]any{"amount": map[string]any{"$gte": float64(5000)}}, true},
		{"$lt miss", map[string]any{"amount": map[string]any{"$lt": float64(1000)}}, false},
		{"$lte", map[string]any{"amount": map[string]any{"$lte": "5000"}}, true},
		{"$contains array", map[string]any{"tags": map[string]any{"$contains": "vip"}}, true},
		{"$exists true", map[string]any{"owner": map[string]any{"$exists": true}}, true},
		{"$exists false on present", map[string]any{"owner": map[string]any{"$exists": false}}, false},
		{"$exists false on absent", map[string]any{"missing": map[string]any{"$exists": false}}, true},
		{"unknown operator fails closed", map[string]any{"stage": map[string]any{"$regex": "w.*"}}, false},
		{"two predicates both hold", map[string]any{"stage": "won", "amount": map[string]any{"$gt": float64(1)}}, true},
		{"two predicates one misses", map[string]any{"stage": "won", "amount": map[string]any{"$gt": float64(9999999)}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchFilters(tt.filters, data))
		})
	}
}
