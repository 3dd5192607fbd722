package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calderio/automaton/pkg/schema"
)

// postgresSchema is the initial schema for the Postgres backend.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS workflows (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    name TEXT NOT NULL,
    trigger_type TEXT NOT NULL,
    trigger_config JSONB,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_workflows_org_trigger
    ON workflows(organization_id, trigger_type, is_active);

CREATE TABLE IF NOT EXISTS workflow_steps (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    step_order INTEGER NOT NULL,
    step_type TEXT NOT NULL,
    action_type TEXT,
    config JSONB,
    else_goto_step INTEGER
);

CREATE INDEX IF NOT EXISTS idx_workflow_steps_workflow
    ON workflow_steps(workflow_id, step_order);

CREATE TABLE IF NOT EXISTS workflow_runs (
    id TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    trigger_data JSONB,
    status TEXT NOT NULL,
    current_step INTEGER NOT NULL DEFAULT 0,
    context JSONB,
    error_message TEXT,
    started_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow ON workflow_runs(workflow_id);

CREATE TABLE IF NOT EXISTS workflow_run_steps (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    step_id TEXT,
    step_order INTEGER NOT NULL,
    step_type TEXT NOT NULL,
    status TEXT NOT NULL,
    input JSONB,
    output JSONB,
    error_message TEXT,
    started_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_workflow_run_steps_run ON workflow_run_steps(run_id, started_at);

CREATE TABLE IF NOT EXISTS workflow_scheduled_steps (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    step_order INTEGER NOT NULL,
    execute_at TIMESTAMPTZ NOT NULL,
    context JSONB,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scheduled_steps_due
    ON workflow_scheduled_steps(status, execute_at);

CREATE TABLE IF NOT EXISTS contacts (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    company_id TEXT,
    name TEXT,
    email TEXT,
    fields JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS opportunities (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    fields JSONB,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_tags (
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    tag TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (entity_type, entity_id, tag)
);

CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    name TEXT NOT NULL,
    template_id TEXT,
    fields JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_templates (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    name TEXT NOT NULL,
    defaults JSONB
);

CREATE TABLE IF NOT EXISTS activities (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    title TEXT,
    description TEXT,
    metadata JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements the Store interface on PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres with the given DSN and returns a Store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the schema. Statements are idempotent (IF NOT EXISTS).
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(postgresSchema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema: %w", err)
		}
	}
	return nil
}

// --- Workflows ---

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflows (id, organization_id, name, trigger_type, trigger_config, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wf.ID, wf.OrganizationID, wf.Name, string(wf.TriggerType), pgRaw(wf.TriggerConfig),
		wf.IsActive, timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	return err
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var triggerType string
	var triggerConfig []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, trigger_type, trigger_config, is_active, created_at, updated_at
		 FROM workflows WHERE id = $1`, id,
	).Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &triggerType, &triggerConfig, &wf.IsActive, &wf.CreatedAt, &wf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.TriggerType = schema.TriggerType(triggerType)
	wf.TriggerConfig = json.RawMessage(triggerConfig)
	return wf, nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	var where []string
	var args []any

	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.TriggerType != nil {
		args = append(args, string(*filter.TriggerType))
		where = append(where, fmt.Sprintf("trigger_type = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}

	query := `SELECT id, organization_id, name, trigger_type, trigger_config, is_active, created_at, updated_at FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		wf := &schema.Workflow{}
		var triggerType string
		var triggerConfig []byte
		if err := rows.Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &triggerType, &triggerConfig, &wf.IsActive, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		wf.TriggerType = schema.TriggerType(triggerType)
		wf.TriggerConfig = json.RawMessage(triggerConfig)
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *PostgresStore) CreateWorkflowStep(ctx context.Context, step *schema.WorkflowStep) error {
	cfg, err := marshalMapOrDefault(step.Config)
	if err != nil {
		return fmt.Errorf("marshal step config: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflow_steps (id, workflow_id, step_order, step_type, action_type, config, else_goto_step)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		step.ID, step.WorkflowID, step.StepOrder, string(step.StepType),
		nullStr(string(step.ActionType)), []byte(cfg), step.ElseGotoStep,
	)
	return err
}

func (s *PostgresStore) ListWorkflowSteps(ctx context.Context, workflowID string) ([]schema.WorkflowStep, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, workflow_id, step_order, step_type, action_type, config, else_goto_step
		 FROM workflow_steps WHERE workflow_id = $1 ORDER BY step_order`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []schema.WorkflowStep
	for rows.Next() {
		var st schema.WorkflowStep
		var stepType string
		var actionType *string
		var cfgJSON []byte
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.StepOrder, &stepType, &actionType, &cfgJSON, &st.ElseGotoStep); err != nil {
			return nil, err
		}
		st.StepType = schema.StepType(stepType)
		if actionType != nil {
			st.ActionType = schema.ActionType(*actionType)
		}
		if len(cfgJSON) > 0 {
			if err := json.Unmarshal(cfgJSON, &st.Config); err != nil {
				return nil, fmt.Errorf("unmarshal step config: %w", err)
			}
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *WorkflowRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, organization_id, trigger_data, status, current_step, context, error_message, started_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.WorkflowID, run.OrganizationID, pgRaw(run.TriggerData),
		string(run.Status), run.CurrentStep, pgRaw(run.Context), nullStr(run.ErrorMessage),
		timeOrNow(run.StartedAt), run.CompletedAt, timeOrNow(run.CreatedAt), timeOrNow(run.UpdatedAt),
	)
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*WorkflowRun, error) {
	run := &WorkflowRun{}
	var status string
	var triggerData, contextJSON []byte
	var errMsg *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, workflow_id, organization_id, trigger_data, status, current_step, context, error_message, started_at, completed_at, created_at, updated_at
		 FROM workflow_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.WorkflowID, &run.OrganizationID, &triggerData, &status, &run.CurrentStep,
		&contextJSON, &errMsg, &run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("workflow run", id)
	}
	if err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.TriggerData = json.RawMessage(triggerData)
	run.Context = json.RawMessage(contextJSON)
	if errMsg != nil {
		run.ErrorMessage = *errMsg
	}
	return run, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		args = append(args, string(*update.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.CurrentStep != nil {
		args = append(args, *update.CurrentStep)
		sets = append(sets, fmt.Sprintf("current_step = $%d", len(args)))
	}
	if update.Context != nil {
		args = append(args, []byte(update.Context))
		sets = append(sets, fmt.Sprintf("context = $%d", len(args)))
	}
	if update.ErrorMessage != nil {
		args = append(args, *update.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if update.CompletedAt != nil {
		args = append(args, *update.CompletedAt)
		sets = append(sets, fmt.Sprintf("completed_at = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_runs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storeNotFound("workflow run", id)
	}
	return nil
}

// --- Run step log ---

func (s *PostgresStore) CreateRunStep(ctx context.Context, rs *WorkflowRunStep) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_run_steps (id, run_id, step_id, step_order, step_type, status, input, output, error_message, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rs.ID, rs.RunID, nullStr(rs.StepID), rs.StepOrder, string(rs.StepType), string(rs.Status),
		pgRaw(rs.Input), pgRaw(rs.Output), nullStr(rs.ErrorMessage),
		timeOrNow(rs.StartedAt), rs.CompletedAt,
	)
	return err
}

func (s *PostgresStore) UpdateRunStep(ctx context.Context, id string, update RunStepUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		args = append(args, string(*update.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.Output != nil {
		args = append(args, []byte(update.Output))
		sets = append(sets, fmt.Sprintf("output = $%d", len(args)))
	}
	if update.ErrorMessage != nil {
		args = append(args, *update.ErrorMessage)
		sets = append(sets, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if update.CompletedAt != nil {
		args = append(args, *update.CompletedAt)
		sets = append(sets, fmt.Sprintf("completed_at = $%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_run_steps SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storeNotFound("workflow run step", id)
	}
	return nil
}

func (s *PostgresStore) ListRunSteps(ctx context.Context, runID string) ([]*WorkflowRunStep, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, step_id, step_order, step_type, status, input, output, error_message, started_at, completed_at
		 FROM workflow_run_steps WHERE run_id = $1 ORDER BY started_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*WorkflowRunStep
	for rows.Next() {
		rs := &WorkflowRunStep{}
		var stepID, errMsg *string
		var stepType, status string
		var input, output []byte
		if err := rows.Scan(&rs.ID, &rs.RunID, &stepID, &rs.StepOrder, &stepType, &status,
			&input, &output, &errMsg, &rs.StartedAt, &rs.CompletedAt); err != nil {
			return nil, err
		}
		if stepID != nil {
			rs.StepID = *stepID
		}
		rs.StepType = schema.StepType(stepType)
		rs.Status = schema.StepStatus(status)
		rs.Input = json.RawMessage(input)
		rs.Output = json.RawMessage(output)
		if errMsg != nil {
			rs.ErrorMessage = *errMsg
		}
		steps = append(steps, rs)
	}
	return steps, rows.Err()
}

// --- Scheduled steps ---

func (s *PostgresStore) CreateScheduledStep(ctx context.Context, ss *WorkflowScheduledStep) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_scheduled_steps (id, run_id, step_order, execute_at, context, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ss.ID, ss.RunID, ss.StepOrder, ss.ExecuteAt, pgRaw(ss.Context),
		string(ss.Status), timeOrNow(ss.CreatedAt),
	)
	return err
}

func (s *PostgresStore) GetScheduledStep(ctx context.Context, id string) (*WorkflowScheduledStep, error) {
	ss := &WorkflowScheduledStep{}
	var status string
	var contextJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, run_id, step_order, execute_at, context, status, created_at
		 FROM workflow_scheduled_steps WHERE id = $1`, id,
	).Scan(&ss.ID, &ss.RunID, &ss.StepOrder, &ss.ExecuteAt, &contextJSON, &status, &ss.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("scheduled step", id)
	}
	if err != nil {
		return nil, err
	}
	ss.Status = schema.ScheduledStepStatus(status)
	ss.Context = json.RawMessage(contextJSON)
	return ss, nil
}

func (s *PostgresStore) ListDueScheduledSteps(ctx context.Context, now time.Time, limit int) ([]*WorkflowScheduledStep, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, step_order, execute_at, context, status, created_at
		 FROM workflow_scheduled_steps
		 WHERE status = 'pending' AND execute_at <= $1
		 ORDER BY execute_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*WorkflowScheduledStep
	for rows.Next() {
		ss := &WorkflowScheduledStep{}
		var status string
		var contextJSON []byte
		if err := rows.Scan(&ss.ID, &ss.RunID, &ss.StepOrder, &ss.ExecuteAt, &contextJSON, &status, &ss.CreatedAt); err != nil {
			return nil, err
		}
		ss.Status = schema.ScheduledStepStatus(status)
		ss.Context = json.RawMessage(contextJSON)
		due = append(due, ss)
	}
	return due, rows.Err()
}

// ClaimScheduledStep performs the atomic pending→executed compare-and-set.
func (s *PostgresStore) ClaimScheduledStep(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_scheduled_steps SET status = 'executed' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CancelScheduledStep(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_scheduled_steps SET status = 'cancelled' WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storeNotFound("scheduled step", id)
	}
	return nil
}

func (s *PostgresStore) CancelScheduledStepsForRun(ctx context.Context, runID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_scheduled_steps SET status = 'cancelled' WHERE run_id = $1 AND status = 'pending'`, runID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// --- CRM records ---

func (s *PostgresStore) CreateContact(ctx context.Context, c *Contact) error {
	fields, err := marshalMapOrDefault(c.Fields)
	if err != nil {
		return fmt.Errorf("marshal contact fields: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO contacts (id, organization_id, company_id, name, email, fields, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.OrganizationID, nullStr(c.CompanyID), nullStr(c.Name), nullStr(c.Email),
		[]byte(fields), timeOrNow(c.CreatedAt), timeOrNow(c.UpdatedAt),
	)
	return err
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (*Contact, error) {
	c := &Contact{}
	var companyID, name, email *string
	var fields []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, company_id, name, email, fields, created_at, updated_at
		 FROM contacts WHERE id = $1`, id,
	).Scan(&c.ID, &c.OrganizationID, &companyID, &name, &email, &fields, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("contact", id)
	}
	if err != nil {
		return nil, err
	}
	if companyID != nil {
		c.CompanyID = *companyID
	}
	if name != nil {
		c.Name = *name
	}
	if email != nil {
		c.Email = *email
	}
	if len(fields) > 0 {
		_ = json.Unmarshal(fields, &c.Fields)
	}
	return c, nil
}

func (s *PostgresStore) UpdateContact(ctx context.Context, id string, fields map[string]any) error {
	return s.mergeEntityFields(ctx, "contacts", "contact", id, fields)
}

func (s *PostgresStore) UpdateOpportunity(ctx context.Context, id string, fields map[string]any) error {
	return s.mergeEntityFields(ctx, "opportunities", "opportunity", id, fields)
}

// mergeEntityFields merges the given fields into the row's JSONB bag using
// Postgres-native concatenation, so the update is a single statement.
func (s *PostgresStore) mergeEntityFields(ctx context.Context, table, resource, id string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s fields: %w", resource, err)
	}
	query := fmt.Sprintf(
		`UPDATE %s SET fields = COALESCE(fields, '{}'::jsonb) || $1::jsonb, updated_at = now() WHERE id = $2`, table)
	tag, err := s.pool.Exec(ctx, query, data, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func (s *PostgresStore) AddTag(ctx context.Context, entityType, entityID, tag string) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`INSERT INTO entity_tags (entity_type, entity_id, tag) VALUES ($1, $2, $3)
		 ON CONFLICT (entity_type, entity_id, tag) DO NOTHING`,
		entityType, entityID, tag)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) RemoveTag(ctx context.Context, entityType, entityID, tag string) (bool, error) {
	res, err := s.pool.Exec(ctx,
		`DELETE FROM entity_tags WHERE entity_type = $1 AND entity_id = $2 AND tag = $3`,
		entityType, entityID, tag)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListTags(ctx context.Context, entityType, entityID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tag FROM entity_tags WHERE entity_type = $1 AND entity_id = $2 ORDER BY tag`,
		entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	fields, err := marshalMapOrDefault(p.Fields)
	if err != nil {
		return fmt.Errorf("marshal project fields: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, organization_id, name, template_id, fields, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.OrganizationID, p.Name, nullStr(p.TemplateID), []byte(fields), timeOrNow(p.CreatedAt),
	)
	return err
}

func (s *PostgresStore) GetProjectTemplate(ctx context.Context, id string) (*ProjectTemplate, error) {
	t := &ProjectTemplate{}
	var defaults []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, name, defaults FROM project_templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.OrganizationID, &t.Name, &defaults)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("project template", id)
	}
	if err != nil {
		return nil, err
	}
	if len(defaults) > 0 {
		_ = json.Unmarshal(defaults, &t.Defaults)
	}
	return t, nil
}

func (s *PostgresStore) CreateActivity(ctx context.Context, a *Activity) error {
	metadata, err := marshalMapOrDefault(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO activities (id, organization_id, company_id, activity_type, title, description, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OrganizationID, a.CompanyID, a.ActivityType, nullStr(a.Title), nullStr(a.Description),
		[]byte(metadata), timeOrNow(a.CreatedAt),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" { // undefined_table
		return ErrActivityLogUnavailable
	}
	return err
}

// pgRaw converts a raw JSON blob into a value pgx can bind to a JSONB column.
func pgRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return []byte(r)
}
