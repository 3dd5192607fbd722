package store

import (
	"context"
	"errors"
	"time"

	"github.com/calderio/automaton/pkg/schema"
)

// ErrActivityLogUnavailable is returned by CreateActivity when the activity
// feed table does not exist in the backing database. Handlers treat it as a
// soft skip rather than a run failure.
var ErrActivityLogUnavailable = errors.New("activity log unavailable")

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use; ClaimScheduledStep
// must be an atomic compare-and-set, never a read-then-write pair.
type Store interface {
	// Workflow definitions (written by the management surfaces, read here)
	CreateWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error)
	CreateWorkflowStep(ctx context.Context, step *schema.WorkflowStep) error
	ListWorkflowSteps(ctx context.Context, workflowID string) ([]schema.WorkflowStep, error)

	// Runs
	CreateRun(ctx context.Context, run *WorkflowRun) error
	GetRun(ctx context.Context, id string) (*WorkflowRun, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error

	// Run step log (append-only)
	CreateRunStep(ctx context.Context, rs *WorkflowRunStep) error
	UpdateRunStep(ctx context.Context, id string, update RunStepUpdate) error
	ListRunSteps(ctx context.Context, runID string) ([]*WorkflowRunStep, error)

	// Scheduled steps (delay suspension)
	CreateScheduledStep(ctx context.Context, ss *WorkflowScheduledStep) error
	GetScheduledStep(ctx context.Context, id string) (*WorkflowScheduledStep, error)
	ListDueScheduledSteps(ctx context.Context, now time.Time, limit int) ([]*WorkflowScheduledStep, error)
	// ClaimScheduledStep transitions pending→executed atomically and reports
	// whether this caller won the claim.
	ClaimScheduledStep(ctx context.Context, id string) (bool, error)
	CancelScheduledStep(ctx context.Context, id string) error
	CancelScheduledStepsForRun(ctx context.Context, runID string) (int, error)

	// CRM records referenced by action handlers
	CreateContact(ctx context.Context, c *Contact) error
	GetContact(ctx context.Context, id string) (*Contact, error)
	UpdateContact(ctx context.Context, id string, fields map[string]any) error
	UpdateOpportunity(ctx context.Context, id string, fields map[string]any) error
	// AddTag reports whether a new row was stored (false = tag already present).
	AddTag(ctx context.Context, entityType, entityID, tag string) (bool, error)
	// RemoveTag reports whether a row was deleted (false = tag was absent).
	RemoveTag(ctx context.Context, entityType, entityID, tag string) (bool, error)
	ListTags(ctx context.Context, entityType, entityID string) ([]string, error)
	CreateProject(ctx context.Context, p *Project) error
	GetProjectTemplate(ctx context.Context, id string) (*ProjectTemplate, error)
	CreateActivity(ctx context.Context, a *Activity) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
