package actions

import (
	"context"
	"strings"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

// tagTarget resolves the common add_tag/remove_tag inputs.
func tagTarget(cfg schema.StepConfig, data map[string]any) (entityType, entityID, tag string, err error) {
	entityType = stringParam(cfg, "entity_type", "contact")
	entityID = resolveRef(cfg, data, "entity_id")
	if entityID == "" {
		return "", "", "", schema.NewError(schema.ErrCodeValidation, "tag action: missing entity id")
	}
	tag = strings.TrimSpace(expressions.Interpolate(stringParam(cfg, "tag", ""), data))
	if tag == "" {
		return "", "", "", schema.NewError(schema.ErrCodeValidation, "tag action: missing tag name")
	}
	return entityType, entityID, tag, nil
}

// AddTagAction attaches a tag to an entity. Adding an already-present tag is
// a soft skip, keeping the action idempotent.
type AddTagAction struct {
	store store.Store
}

// NewAddTagAction creates the add_tag handler.
func NewAddTagAction(s store.Store) *AddTagAction {
	return &AddTagAction{store: s}
}

func (a *AddTagAction) Type() schema.ActionType { return schema.ActionAddTag }

func (a *AddTagAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	entityType, entityID, tag, err := tagTarget(cfg, wctx.AsMap())
	if err != nil {
		return nil, err
	}

	added, err := a.store.AddTag(ctx, entityType, entityID, tag)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "add_tag: store error").WithCause(err)
	}
	if !added {
		return Skip("tag already present"), nil
	}

	return map[string]any{
		"entity_id": entityID,
		"tag":       tag,
		"added":     true,
	}, nil
}

// RemoveTagAction detaches a tag from an entity. Removing an absent tag is a
// soft skip.
type RemoveTagAction struct {
	store store.Store
}

// NewRemoveTagAction creates the remove_tag handler.
func NewRemoveTagAction(s store.Store) *RemoveTagAction {
	return &RemoveTagAction{store: s}
}

func (a *RemoveTagAction) Type() schema.ActionType { return schema.ActionRemoveTag }

func (a *RemoveTagAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	entityType, entityID, tag, err := tagTarget(cfg, wctx.AsMap())
	if err != nil {
		return nil, err
	}

	removed, err := a.store.RemoveTag(ctx, entityType, entityID, tag)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "remove_tag: store error").WithCause(err)
	}
	if !removed {
		return Skip("tag not present"), nil
	}

	return map[string]any{
		"entity_id": entityID,
		"tag":       tag,
		"removed":   true,
	}, nil
}
