package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/calderio/automaton/pkg/schema"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development. Safe for concurrent use; the scheduled-step claim is guarded
// by the same mutex that guards the row, so it is atomic like the SQL
// implementations.
type MemoryStore struct {
	mu             sync.Mutex
	workflows      map[string]*schema.Workflow
	steps          map[string][]schema.WorkflowStep // workflow ID -> steps
	runs           map[string]*WorkflowRun
	runSteps       map[string]*WorkflowRunStep
	scheduled      map[string]*WorkflowScheduledStep
	contacts       map[string]*Contact
	opportunities  map[string]*Opportunity
	tags           map[string]map[string]struct{} // entityType/entityID -> tag set
	projects       map[string]*Project
	templates      map[string]*ProjectTemplate
	activities     []*Activity
	activitiesDown bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:     make(map[string]*schema.Workflow),
		steps:         make(map[string][]schema.WorkflowStep),
		runs:          make(map[string]*WorkflowRun),
		runSteps:      make(map[string]*WorkflowRunStep),
		scheduled:     make(map[string]*WorkflowScheduledStep),
		contacts:      make(map[string]*Contact),
		opportunities: make(map[string]*Opportunity),
		tags:          make(map[string]map[string]struct{}),
		projects:      make(map[string]*Project),
		templates:     make(map[string]*ProjectTemplate),
	}
}

// SeedOpportunity registers an opportunity row (test helper).
func (m *MemoryStore) SeedOpportunity(o *Opportunity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.opportunities[o.ID] = &cp
}

// SeedTemplate registers a project template row (test helper).
func (m *MemoryStore) SeedTemplate(t *ProjectTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.templates[t.ID] = &cp
}

// DisableActivityLog makes CreateActivity fail with ErrActivityLogUnavailable,
// simulating a database without the activity feed table.
func (m *MemoryStore) DisableActivityLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activitiesDown = true
}

// Activities returns a copy of the recorded activity feed (test helper).
func (m *MemoryStore) Activities() []*Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Activity, len(m.activities))
	copy(out, m.activities)
	return out
}

// Projects returns a copy of the stored projects (test helper).
func (m *MemoryStore) Projects() []*Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Project
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// --- Workflows ---

func (m *MemoryStore) CreateWorkflow(_ context.Context, wf *schema.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	cp := *wf
	return &cp, nil
}

func (m *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*schema.Workflow
	for _, wf := range m.workflows {
		if filter.OrganizationID != "" && wf.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.TriggerType != nil && wf.TriggerType != *filter.TriggerType {
			continue
		}
		if filter.Active != nil && wf.IsActive != *filter.Active {
			continue
		}
		cp := *wf
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MemoryStore) CreateWorkflowStep(_ context.Context, step *schema.WorkflowStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[step.WorkflowID] = append(m.steps[step.WorkflowID], *step)
	return nil
}

func (m *MemoryStore) ListWorkflowSteps(_ context.Context, workflowID string) ([]schema.WorkflowStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := make([]schema.WorkflowStep, len(m.steps[workflowID]))
	copy(steps, m.steps[workflowID])
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	return steps, nil
}

// --- Runs ---

func (m *MemoryStore) CreateRun(_ context.Context, run *WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, storeNotFound("workflow run", id)
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) UpdateRun(_ context.Context, id string, update RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return storeNotFound("workflow run", id)
	}
	if update.Status != nil {
		run.Status = *update.Status
	}
	if update.CurrentStep != nil {
		run.CurrentStep = *update.CurrentStep
	}
	if update.Context != nil {
		run.Context = update.Context
	}
	if update.ErrorMessage != nil {
		run.ErrorMessage = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		run.CompletedAt = update.CompletedAt
	}
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Run step log ---

func (m *MemoryStore) CreateRunStep(_ context.Context, rs *WorkflowRunStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rs
	m.runSteps[rs.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateRunStep(_ context.Context, id string, update RunStepUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.runSteps[id]
	if !ok {
		return storeNotFound("workflow run step", id)
	}
	if update.Status != nil {
		rs.Status = *update.Status
	}
	if update.Output != nil {
		rs.Output = update.Output
	}
	if update.ErrorMessage != nil {
		rs.ErrorMessage = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		rs.CompletedAt = update.CompletedAt
	}
	return nil
}

func (m *MemoryStore) ListRunSteps(_ context.Context, runID string) ([]*WorkflowRunStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*WorkflowRunStep
	for _, rs := range m.runSteps {
		if rs.RunID != runID {
			continue
		}
		cp := *rs
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.Before(result[j].StartedAt) })
	return result, nil
}

// --- Scheduled steps ---

func (m *MemoryStore) CreateScheduledStep(_ context.Context, ss *WorkflowScheduledStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ss
	m.scheduled[ss.ID] = &cp
	return nil
}

func (m *MemoryStore) GetScheduledStep(_ context.Context, id string) (*WorkflowScheduledStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := m.scheduled[id]
	if !ok {
		return nil, storeNotFound("scheduled step", id)
	}
	cp := *ss
	return &cp, nil
}

func (m *MemoryStore) ListDueScheduledSteps(_ context.Context, now time.Time, limit int) ([]*WorkflowScheduledStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var due []*WorkflowScheduledStep
	for _, ss := range m.scheduled {
		if ss.Status != schema.ScheduledStepPending || ss.ExecuteAt.After(now) {
			continue
		}
		cp := *ss
		due = append(due, &cp)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExecuteAt.Before(due[j].ExecuteAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryStore) ClaimScheduledStep(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := m.scheduled[id]
	if !ok || ss.Status != schema.ScheduledStepPending {
		return false, nil
	}
	ss.Status = schema.ScheduledStepExecuted
	return true, nil
}

func (m *MemoryStore) CancelScheduledStep(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss, ok := m.scheduled[id]
	if !ok {
		return storeNotFound("scheduled step", id)
	}
	ss.Status = schema.ScheduledStepCancelled
	return nil
}

func (m *MemoryStore) CancelScheduledStepsForRun(_ context.Context, runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ss := range m.scheduled {
		if ss.RunID == runID && ss.Status == schema.ScheduledStepPending {
			ss.Status = schema.ScheduledStepCancelled
			n++
		}
	}
	return n, nil
}

// --- CRM records ---

func (m *MemoryStore) CreateContact(_ context.Context, c *Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetContact(_ context.Context, id string) (*Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, storeNotFound("contact", id)
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) UpdateContact(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok {
		return storeNotFound("contact", id)
	}
	if c.Fields == nil {
		c.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		c.Fields[k] = v
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) UpdateOpportunity(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opportunities[id]
	if !ok {
		return storeNotFound("opportunity", id)
	}
	if o.Fields == nil {
		o.Fields = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		o.Fields[k] = v
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) AddTag(_ context.Context, entityType, entityID, tag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entityType + "/" + entityID
	set, ok := m.tags[key]
	if !ok {
		set = make(map[string]struct{})
		m.tags[key] = set
	}
	if _, exists := set[tag]; exists {
		return false, nil
	}
	set[tag] = struct{}{}
	return true, nil
}

func (m *MemoryStore) RemoveTag(_ context.Context, entityType, entityID, tag string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entityType + "/" + entityID
	set, ok := m.tags[key]
	if !ok {
		return false, nil
	}
	if _, exists := set[tag]; !exists {
		return false, nil
	}
	delete(set, tag)
	return true, nil
}

func (m *MemoryStore) ListTags(_ context.Context, entityType, entityID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tags []string
	for t := range m.tags[entityType+"/"+entityID] {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags, nil
}

func (m *MemoryStore) CreateProject(_ context.Context, p *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetProjectTemplate(_ context.Context, id string) (*ProjectTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, storeNotFound("project template", id)
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) CreateActivity(_ context.Context, a *Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activitiesDown {
		return ErrActivityLogUnavailable
	}
	cp := *a
	m.activities = append(m.activities, &cp)
	return nil
}

// --- Maintenance ---

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
