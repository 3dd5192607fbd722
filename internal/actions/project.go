package actions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

// CreateProjectAction inserts a project with an interpolated name.
type CreateProjectAction struct {
	store store.Store
}

// NewCreateProjectAction creates the create_project handler.
func NewCreateProjectAction(s store.Store) *CreateProjectAction {
	return &CreateProjectAction{store: s}
}

func (a *CreateProjectAction) Type() schema.ActionType { return schema.ActionCreateProject }

func (a *CreateProjectAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	name := expressions.Interpolate(stringParam(cfg, "name", ""), data)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "create_project: missing project name")
	}

	project := &store.Project{
		ID:             uuid.New().String(),
		OrganizationID: wctx.OrganizationID,
		Name:           name,
		Fields:         expressions.InterpolateConfig(mapParam(cfg, "fields"), data),
		CreatedAt:      time.Now().UTC(),
	}

	if err := a.store.CreateProject(ctx, project); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create_project: insert failed").WithCause(err)
	}

	return map[string]any{
		"project_id": project.ID,
		"name":       name,
	}, nil
}

// CreateProjectFromTemplateAction inserts a project seeded from a stored
// template. An unknown template id is a hard failure.
type CreateProjectFromTemplateAction struct {
	store store.Store
}

// NewCreateProjectFromTemplateAction creates the create_project_from_template handler.
func NewCreateProjectFromTemplateAction(s store.Store) *CreateProjectFromTemplateAction {
	return &CreateProjectFromTemplateAction{store: s}
}

func (a *CreateProjectFromTemplateAction) Type() schema.ActionType {
	return schema.ActionCreateProjectFromTemplate
}

func (a *CreateProjectFromTemplateAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	templateID := resolveRef(cfg, data, "template_id")
	if templateID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "create_project_from_template: missing template id")
	}

	tmpl, err := a.store.GetProjectTemplate(ctx, templateID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "create_project_from_template: unknown template %q", templateID).WithCause(err)
	}

	name := expressions.Interpolate(stringParam(cfg, "name", ""), data)
	if name == "" {
		name = tmpl.Name
	}

	// Template defaults first, explicit config fields override.
	fields := make(map[string]any, len(tmpl.Defaults))
	for k, v := range tmpl.Defaults {
		fields[k] = v
	}
	for k, v := range expressions.InterpolateConfig(mapParam(cfg, "fields"), data) {
		fields[k] = v
	}

	project := &store.Project{
		ID:             uuid.New().String(),
		OrganizationID: wctx.OrganizationID,
		Name:           name,
		TemplateID:     templateID,
		Fields:         fields,
		CreatedAt:      time.Now().UTC(),
	}

	if err := a.store.CreateProject(ctx, project); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create_project_from_template: insert failed").WithCause(err)
	}

	return map[string]any{
		"project_id":  project.ID,
		"template_id": templateID,
		"name":        name,
	}, nil
}
