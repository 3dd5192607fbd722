package actions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

// CreateContactAction inserts a CRM contact. A missing company id is a hard
// failure, not a skip.
type CreateContactAction struct {
	store store.Store
}

// NewCreateContactAction creates the create_contact handler.
func NewCreateContactAction(s store.Store) *CreateContactAction {
	return &CreateContactAction{store: s}
}

func (a *CreateContactAction) Type() schema.ActionType { return schema.ActionCreateContact }

func (a *CreateContactAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	companyID := resolveRef(cfg, data, "company_id")
	if companyID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "create_contact: missing company id")
	}

	now := time.Now().UTC()
	contact := &store.Contact{
		ID:             uuid.New().String(),
		OrganizationID: wctx.OrganizationID,
		CompanyID:      companyID,
		Name:           expressions.Interpolate(stringParam(cfg, "name", ""), data),
		Email:          expressions.Interpolate(stringParam(cfg, "email", ""), data),
		Fields:         expressions.InterpolateConfig(mapParam(cfg, "fields"), data),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := a.store.CreateContact(ctx, contact); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create_contact: insert failed").WithCause(err)
	}

	return map[string]any{
		"contact_id": contact.ID,
		"company_id": companyID,
	}, nil
}

// UpdateContactAction mutates fields on an existing contact. A payload with
// nothing to update is a soft skip; a missing target id is a hard failure.
type UpdateContactAction struct {
	store store.Store
}

// NewUpdateContactAction creates the update_contact handler.
func NewUpdateContactAction(s store.Store) *UpdateContactAction {
	return &UpdateContactAction{store: s}
}

func (a *UpdateContactAction) Type() schema.ActionType { return schema.ActionUpdateContact }

func (a *UpdateContactAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	contactID := resolveRef(cfg, data, "contact_id")
	if contactID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "update_contact: missing contact id")
	}

	fields := expressions.InterpolateConfig(mapParam(cfg, "fields"), data)
	if len(fields) == 0 {
		return Skip("no fields to update"), nil
	}

	if err := a.store.UpdateContact(ctx, contactID, fields); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "update_contact: update failed").WithCause(err)
	}

	updated := make([]any, 0, len(fields))
	for k := range fields {
		updated = append(updated, k)
	}
	return map[string]any{
		"contact_id":     contactID,
		"updated_fields": updated,
	}, nil
}
