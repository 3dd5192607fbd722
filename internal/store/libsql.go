package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/calderio/automaton/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, organization_id, name, trigger_type, trigger_config, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.OrganizationID, wf.Name, string(wf.TriggerType), nullRaw(wf.TriggerConfig),
		boolToInt(wf.IsActive), timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var triggerType string
	var triggerConfig sql.NullString
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, trigger_type, trigger_config, is_active, created_at, updated_at
		 FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &triggerType, &triggerConfig, &active, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.TriggerType = schema.TriggerType(triggerType)
	wf.TriggerConfig = rawOrNil(triggerConfig)
	wf.IsActive = active != 0
	return wf, nil
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	var where []string
	var args []any

	if filter.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		args = append(args, filter.OrganizationID)
	}
	if filter.TriggerType != nil {
		where = append(where, "trigger_type = ?")
		args = append(args, string(*filter.TriggerType))
	}
	if filter.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*filter.Active))
	}

	query := `SELECT id, organization_id, name, trigger_type, trigger_config, is_active, created_at, updated_at FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		wf := &schema.Workflow{}
		var triggerType string
		var triggerConfig sql.NullString
		var active int
		if err := rows.Scan(&wf.ID, &wf.OrganizationID, &wf.Name, &triggerType, &triggerConfig, &active, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, err
		}
		wf.TriggerType = schema.TriggerType(triggerType)
		wf.TriggerConfig = rawOrNil(triggerConfig)
		wf.IsActive = active != 0
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) CreateWorkflowStep(ctx context.Context, step *schema.WorkflowStep) error {
	cfg, err := marshalMapOrDefault(step.Config)
	if err != nil {
		return fmt.Errorf("marshal step config: %w", err)
	}
	var elseGoto any
	if step.ElseGotoStep != nil {
		elseGoto = *step.ElseGotoStep
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (id, workflow_id, step_order, step_type, action_type, config, else_goto_step)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.WorkflowID, step.StepOrder, string(step.StepType),
		nullStr(string(step.ActionType)), string(cfg), elseGoto,
	)
	return err
}

func (s *LibSQLStore) ListWorkflowSteps(ctx context.Context, workflowID string) ([]schema.WorkflowStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, step_order, step_type, action_type, config, else_goto_step
		 FROM workflow_steps WHERE workflow_id = ? ORDER BY step_order`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []schema.WorkflowStep
	for rows.Next() {
		var st schema.WorkflowStep
		var stepType string
		var actionType, cfgJSON sql.NullString
		var elseGoto sql.NullInt64
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.StepOrder, &stepType, &actionType, &cfgJSON, &elseGoto); err != nil {
			return nil, err
		}
		st.StepType = schema.StepType(stepType)
		st.ActionType = schema.ActionType(actionType.String)
		if cfgJSON.Valid && cfgJSON.String != "" {
			if err := json.Unmarshal([]byte(cfgJSON.String), &st.Config); err != nil {
				return nil, fmt.Errorf("unmarshal step config: %w", err)
			}
		}
		if elseGoto.Valid {
			v := int(elseGoto.Int64)
			st.ElseGotoStep = &v
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *WorkflowRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, organization_id, trigger_data, status, current_step, context, error_message, started_at, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, run.OrganizationID, nullRaw(run.TriggerData),
		string(run.Status), run.CurrentStep, nullRaw(run.Context), nullStr(run.ErrorMessage),
		timeOrNow(run.StartedAt), nullTime(run.CompletedAt), timeOrNow(run.CreatedAt), timeOrNow(run.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*WorkflowRun, error) {
	run := &WorkflowRun{}
	var status string
	var triggerData, contextJSON, errMsg sql.NullString
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, organization_id, trigger_data, status, current_step, context, error_message, started_at, completed_at, created_at, updated_at
		 FROM workflow_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.WorkflowID, &run.OrganizationID, &triggerData, &status, &run.CurrentStep,
		&contextJSON, &errMsg, &run.StartedAt, &completedAt, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow run", id)
	}
	if err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.TriggerData = rawOrNil(triggerData)
	run.Context = rawOrNil(contextJSON)
	run.ErrorMessage = errMsg.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *update.CurrentStep)
	}
	if update.Context != nil {
		sets = append(sets, "context = ?")
		args = append(args, string(update.Context))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow run", id)
}

// --- Run step log ---

func (s *LibSQLStore) CreateRunStep(ctx context.Context, rs *WorkflowRunStep) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_run_steps (id, run_id, step_id, step_order, step_type, status, input, output, error_message, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.RunID, nullStr(rs.StepID), rs.StepOrder, string(rs.StepType), string(rs.Status),
		nullRaw(rs.Input), nullRaw(rs.Output), nullStr(rs.ErrorMessage),
		timeOrNow(rs.StartedAt), nullTime(rs.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) UpdateRunStep(ctx context.Context, id string, update RunStepUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(update.Output))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_run_steps SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow run step", id)
}

func (s *LibSQLStore) ListRunSteps(ctx context.Context, runID string) ([]*WorkflowRunStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, step_id, step_order, step_type, status, input, output, error_message, started_at, completed_at
		 FROM workflow_run_steps WHERE run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*WorkflowRunStep
	for rows.Next() {
		rs := &WorkflowRunStep{}
		var stepID, input, output, errMsg sql.NullString
		var stepType, status string
		var completedAt sql.NullTime
		if err := rows.Scan(&rs.ID, &rs.RunID, &stepID, &rs.StepOrder, &stepType, &status,
			&input, &output, &errMsg, &rs.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		rs.StepID = stepID.String
		rs.StepType = schema.StepType(stepType)
		rs.Status = schema.StepStatus(status)
		rs.Input = rawOrNil(input)
		rs.Output = rawOrNil(output)
		rs.ErrorMessage = errMsg.String
		if completedAt.Valid {
			rs.CompletedAt = &completedAt.Time
		}
		steps = append(steps, rs)
	}
	return steps, rows.Err()
}

// --- Scheduled steps ---

func (s *LibSQLStore) CreateScheduledStep(ctx context.Context, ss *WorkflowScheduledStep) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_scheduled_steps (id, run_id, step_order, execute_at, context, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ss.ID, ss.RunID, ss.StepOrder, ss.ExecuteAt, nullRaw(ss.Context),
		string(ss.Status), timeOrNow(ss.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledStep(ctx context.Context, id string) (*WorkflowScheduledStep, error) {
	ss := &WorkflowScheduledStep{}
	var status string
	var contextJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, step_order, execute_at, context, status, created_at
		 FROM workflow_scheduled_steps WHERE id = ?`, id,
	).Scan(&ss.ID, &ss.RunID, &ss.StepOrder, &ss.ExecuteAt, &contextJSON, &status, &ss.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled step", id)
	}
	if err != nil {
		return nil, err
	}
	ss.Status = schema.ScheduledStepStatus(status)
	ss.Context = rawOrNil(contextJSON)
	return ss, nil
}

func (s *LibSQLStore) ListDueScheduledSteps(ctx context.Context, now time.Time, limit int) ([]*WorkflowScheduledStep, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, step_order, execute_at, context, status, created_at
		 FROM workflow_scheduled_steps
		 WHERE status = 'pending' AND execute_at <= ?
		 ORDER BY execute_at ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*WorkflowScheduledStep
	for rows.Next() {
		ss := &WorkflowScheduledStep{}
		var status string
		var contextJSON sql.NullString
		if err := rows.Scan(&ss.ID, &ss.RunID, &ss.StepOrder, &ss.ExecuteAt, &contextJSON, &status, &ss.CreatedAt); err != nil {
			return nil, err
		}
		ss.Status = schema.ScheduledStepStatus(status)
		ss.Context = rawOrNil(contextJSON)
		due = append(due, ss)
	}
	return due, rows.Err()
}

// ClaimScheduledStep is the concurrency-safety mechanism for resumption:
// the conditional WHERE clause makes the pending→executed transition a
// single atomic compare-and-set. Zero rows affected means another worker
// already claimed the row.
func (s *LibSQLStore) ClaimScheduledStep(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_scheduled_steps SET status = 'executed' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LibSQLStore) CancelScheduledStep(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_scheduled_steps SET status = 'cancelled' WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled step", id)
}

func (s *LibSQLStore) CancelScheduledStepsForRun(ctx context.Context, runID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_scheduled_steps SET status = 'cancelled' WHERE run_id = ? AND status = 'pending'`, runID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- CRM records ---

func (s *LibSQLStore) CreateContact(ctx context.Context, c *Contact) error {
	fields, err := marshalMapOrDefault(c.Fields)
	if err != nil {
		return fmt.Errorf("marshal contact fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, organization_id, company_id, name, email, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OrganizationID, nullStr(c.CompanyID), nullStr(c.Name), nullStr(c.Email),
		string(fields), timeOrNow(c.CreatedAt), timeOrNow(c.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetContact(ctx context.Context, id string) (*Contact, error) {
	c := &Contact{}
	var companyID, name, email, fields sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, company_id, name, email, fields, created_at, updated_at
		 FROM contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.OrganizationID, &companyID, &name, &email, &fields, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("contact", id)
	}
	if err != nil {
		return nil, err
	}
	c.CompanyID = companyID.String
	c.Name = name.String
	c.Email = email.String
	if fields.Valid && fields.String != "" {
		_ = json.Unmarshal([]byte(fields.String), &c.Fields)
	}
	return c, nil
}

func (s *LibSQLStore) UpdateContact(ctx context.Context, id string, fields map[string]any) error {
	return s.updateEntityFields(ctx, "contacts", "contact", id, fields)
}

func (s *LibSQLStore) UpdateOpportunity(ctx context.Context, id string, fields map[string]any) error {
	return s.updateEntityFields(ctx, "opportunities", "opportunity", id, fields)
}

// updateEntityFields merges the given fields into the row's JSON fields bag.
func (s *LibSQLStore) updateEntityFields(ctx context.Context, table, resource, id string, fields map[string]any) error {
	var existing sql.NullString
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT fields FROM %s WHERE id = ?`, table), id,
	).Scan(&existing)
	if err == sql.ErrNoRows {
		return storeNotFound(resource, id)
	}
	if err != nil {
		return err
	}

	merged := map[string]any{}
	if existing.Valid && existing.String != "" {
		_ = json.Unmarshal([]byte(existing.String), &merged)
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal %s fields: %w", resource, err)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET fields = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, table),
		string(data), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, resource, id)
}

func (s *LibSQLStore) AddTag(ctx context.Context, entityType, entityID, tag string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entity_tags (entity_type, entity_id, tag) VALUES (?, ?, ?)
		 ON CONFLICT(entity_type, entity_id, tag) DO NOTHING`,
		entityType, entityID, tag)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LibSQLStore) RemoveTag(ctx context.Context, entityType, entityID, tag string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_tags WHERE entity_type = ? AND entity_id = ? AND tag = ?`,
		entityType, entityID, tag)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *LibSQLStore) ListTags(ctx context.Context, entityType, entityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag FROM entity_tags WHERE entity_type = ? AND entity_id = ? ORDER BY tag`,
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

func (s *LibSQLStore) CreateProject(ctx context.Context, p *Project) error {
	fields, err := marshalMapOrDefault(p.Fields)
	if err != nil {
		return fmt.Errorf("marshal project fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, organization_id, name, template_id, fields, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrganizationID, p.Name, nullStr(p.TemplateID), string(fields), timeOrNow(p.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetProjectTemplate(ctx context.Context, id string) (*ProjectTemplate, error) {
	t := &ProjectTemplate{}
	var defaults sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, defaults FROM project_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.OrganizationID, &t.Name, &defaults)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("project template", id)
	}
	if err != nil {
		return nil, err
	}
	if defaults.Valid && defaults.String != "" {
		_ = json.Unmarshal([]byte(defaults.String), &t.Defaults)
	}
	return t, nil
}

func (s *LibSQLStore) CreateActivity(ctx context.Context, a *Activity) error {
	metadata, err := marshalMapOrDefault(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activities (id, organization_id, company_id, activity_type, title, description, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrganizationID, a.CompanyID, a.ActivityType, nullStr(a.Title), nullStr(a.Description),
		string(metadata), timeOrNow(a.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return ErrActivityLogUnavailable
	}
	return err
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}
