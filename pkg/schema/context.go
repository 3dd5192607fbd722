package schema

import (
	"strconv"
	"time"
)

// WorkflowContext is the accumulating data bag threaded through a run.
// It is never mutated in place: each step produces a new context value that
// is the prior context plus one new steps entry, which is what makes
// persisted resume safe across process restarts.
type WorkflowContext struct {
	Trigger           map[string]any `json:"trigger,omitempty"`
	Steps             map[string]any `json:"steps,omitempty"`
	OrganizationID    string         `json:"organization_id,omitempty"`
	TriggeredByUserID string         `json:"triggered_by_user_id,omitempty"`
	TriggeredAt       time.Time      `json:"triggered_at,omitempty"`

	// Entity snapshots copied in at trigger time.
	Contact     map[string]any `json:"contact,omitempty"`
	Opportunity map[string]any `json:"opportunity,omitempty"`
	Task        map[string]any `json:"task,omitempty"`
	Project     map[string]any `json:"project,omitempty"`
	Company     map[string]any `json:"company,omitempty"`
}

// StepKey converts a step_order into its context key.
func StepKey(order int) string {
	return strconv.Itoa(order)
}

// WithStepOutput returns a copy of the context with exactly one new entry at
// steps[order]. The receiver is left untouched.
func (c *WorkflowContext) WithStepOutput(order int, output any) *WorkflowContext {
	next := *c
	next.Steps = make(map[string]any, len(c.Steps)+1)
	for k, v := range c.Steps {
		next.Steps[k] = v
	}
	next.Steps[StepKey(order)] = output
	return &next
}

// StepOutput returns the recorded output of the step with the given order.
func (c *WorkflowContext) StepOutput(order int) (any, bool) {
	if c.Steps == nil {
		return nil, false
	}
	out, ok := c.Steps[StepKey(order)]
	return out, ok
}

// AsMap flattens the context into a plain map for path resolution by the
// interpolator, the condition evaluator, and loop collection lookup.
func (c *WorkflowContext) AsMap() map[string]any {
	m := map[string]any{
		"organization_id":      c.OrganizationID,
		"triggered_by_user_id": c.TriggeredByUserID,
	}
	if !c.TriggeredAt.IsZero() {
		m["triggered_at"] = c.TriggeredAt.Format(time.RFC3339)
	}
	if c.Trigger != nil {
		m["trigger"] = c.Trigger
	}
	if c.Steps != nil {
		m["steps"] = c.Steps
	}
	if c.Contact != nil {
		m["contact"] = c.Contact
	}
	if c.Opportunity != nil {
		m["opportunity"] = c.Opportunity
	}
	if c.Task != nil {
		m["task"] = c.Task
	}
	if c.Project != nil {
		m["project"] = c.Project
	}
	if c.Company != nil {
		m["company"] = c.Company
	}
	return m
}
