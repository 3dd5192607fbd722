package actions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

// CreateActivityAction appends an entry to the company activity feed.
// Both an unresolvable company id and an absent activity log table are soft
// skips; any other store error fails the step.
type CreateActivityAction struct {
	store store.Store
}

// NewCreateActivityAction creates the create_activity handler.
func NewCreateActivityAction(s store.Store) *CreateActivityAction {
	return &CreateActivityAction{store: s}
}

func (a *CreateActivityAction) Type() schema.ActionType { return schema.ActionCreateActivity }

func (a *CreateActivityAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	companyID := resolveRef(cfg, data, "company_id")
	if companyID == "" {
		if id, ok := expressions.ResolvePath(data, "company.id"); ok {
			companyID = expressions.Stringify(id)
		}
	}
	if companyID == "" {
		return Skip("no company id resolvable"), nil
	}

	activity := &store.Activity{
		ID:             uuid.New().String(),
		OrganizationID: wctx.OrganizationID,
		CompanyID:      companyID,
		ActivityType:   stringParam(cfg, "activity_type", "workflow"),
		Title:          expressions.Interpolate(stringParam(cfg, "title", ""), data),
		Description:    expressions.Interpolate(stringParam(cfg, "description", ""), data),
		Metadata:       expressions.InterpolateConfig(mapParam(cfg, "metadata"), data),
		CreatedAt:      time.Now().UTC(),
	}

	if err := a.store.CreateActivity(ctx, activity); err != nil {
		if errors.Is(err, store.ErrActivityLogUnavailable) {
			return Skip("activity log unavailable"), nil
		}
		return nil, schema.NewError(schema.ErrCodeStore, "create_activity: insert failed").WithCause(err)
	}

	return map[string]any{
		"activity_id": activity.ID,
		"company_id":  companyID,
	}, nil
}
