package actions

import (
	"context"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

// UpdateOpportunityAction mutates fields on an existing opportunity.
// Same policy as update_contact: empty payload skips, missing id fails.
type UpdateOpportunityAction struct {
	store store.Store
}

// NewUpdateOpportunityAction creates the update_opportunity handler.
func NewUpdateOpportunityAction(s store.Store) *UpdateOpportunityAction {
	return &UpdateOpportunityAction{store: s}
}

func (a *UpdateOpportunityAction) Type() schema.ActionType { return schema.ActionUpdateOpportunity }

func (a *UpdateOpportunityAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	opportunityID := resolveRef(cfg, data, "opportunity_id")
	if opportunityID == "" {
		if id, ok := expressions.ResolvePath(data, "opportunity.id"); ok {
			opportunityID = expressions.Stringify(id)
		}
	}
	if opportunityID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "update_opportunity: missing opportunity id")
	}

	fields := expressions.InterpolateConfig(mapParam(cfg, "fields"), data)
	if len(fields) == 0 {
		return Skip("no fields to update"), nil
	}

	if err := a.store.UpdateOpportunity(ctx, opportunityID, fields); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "update_opportunity: update failed").WithCause(err)
	}

	updated := make([]any, 0, len(fields))
	for k := range fields {
		updated = append(updated, k)
	}
	return map[string]any{
		"opportunity_id": opportunityID,
		"updated_fields": updated,
	}, nil
}
