package store

import (
	"encoding/json"
	"time"

	"github.com/calderio/automaton/pkg/schema"
)

// WorkflowRun is one execution attempt of a workflow. It is the unit of
// durability: all resumable state lives in this row plus the scheduled step.
type WorkflowRun struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	OrganizationID string           `json:"organization_id"`
	TriggerData    json.RawMessage  `json:"trigger_data,omitempty"`
	Status         schema.RunStatus `json:"status"`
	CurrentStep    int              `json:"current_step"`
	Context        json.RawMessage  `json:"context,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// WorkflowRunStep is one row of the append-only step attempt log.
// A row is written as running before dispatch and finalized once; prior
// attempts are never touched.
type WorkflowRunStep struct {
	ID           string            `json:"id"`
	RunID        string            `json:"run_id"`
	StepID       string            `json:"step_id,omitempty"`
	StepOrder    int               `json:"step_order"`
	StepType     schema.StepType   `json:"step_type"`
	Status       schema.StepStatus `json:"status"`
	Input        json.RawMessage   `json:"input,omitempty"`
	Output       json.RawMessage   `json:"output,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// WorkflowScheduledStep parks a run at a delay step. It is the sole
// suspension mechanism across process boundaries; no in-memory timers exist.
type WorkflowScheduledStep struct {
	ID        string                     `json:"id"`
	RunID     string                     `json:"run_id"`
	StepOrder int                        `json:"step_order"`
	ExecuteAt time.Time                  `json:"execute_at"`
	Context   json.RawMessage            `json:"context,omitempty"`
	Status    schema.ScheduledStepStatus `json:"status"`
	CreatedAt time.Time                  `json:"created_at"`
}

// Contact is a CRM contact record.
type Contact struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	CompanyID      string         `json:"company_id,omitempty"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	Fields         map[string]any `json:"fields,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Opportunity is a CRM opportunity record. Only the fields the engine
// mutates are modeled; everything else rides in Fields.
type Opportunity struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Fields         map[string]any `json:"fields,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Project is a CRM project record.
type Project struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name"`
	TemplateID     string         `json:"template_id,omitempty"`
	Fields         map[string]any `json:"fields,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ProjectTemplate is a reusable project blueprint.
type ProjectTemplate struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name"`
	Defaults       map[string]any `json:"defaults,omitempty"`
}

// Activity is an entry in the company activity feed.
type Activity struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	CompanyID      string         `json:"company_id"`
	ActivityType   string         `json:"activity_type"`
	Title          string         `json:"title,omitempty"`
	Description    string         `json:"description,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	OrganizationID string              `json:"organization_id,omitempty"`
	TriggerType    *schema.TriggerType `json:"trigger_type,omitempty"`
	Active         *bool               `json:"active,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
}

// RunUpdate specifies mutable fields of a workflow run.
type RunUpdate struct {
	Status       *schema.RunStatus `json:"status,omitempty"`
	CurrentStep  *int              `json:"current_step,omitempty"`
	Context      json.RawMessage   `json:"context,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// RunStepUpdate finalizes a run step log row.
type RunStepUpdate struct {
	Status       *schema.StepStatus `json:"status,omitempty"`
	Output       json.RawMessage    `json:"output,omitempty"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}
