package actions

import (
	"context"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/pkg/schema"
)

// SendNotificationAction creates an in-app notification for a user.
// An unresolvable user id or a declining provider is a soft skip.
type SendNotificationAction struct {
	notifier Notifier
}

// NewSendNotificationAction creates the send_notification handler.
func NewSendNotificationAction(notifier Notifier) *SendNotificationAction {
	return &SendNotificationAction{notifier: notifier}
}

func (a *SendNotificationAction) Type() schema.ActionType { return schema.ActionSendNotification }

func (a *SendNotificationAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	userID := resolveRef(cfg, data, "user_id")
	if userID == "" {
		userID = wctx.TriggeredByUserID
	}
	if userID == "" {
		return Skip("no user id resolvable"), nil
	}

	title := expressions.Interpolate(stringParam(cfg, "title", ""), data)
	message := expressions.Interpolate(stringParam(cfg, "message", ""), data)
	notifType := stringParam(cfg, "notification_type", "workflow")

	n, err := a.notifier.CreateNotification(ctx, userID, notifType, title, message, mapParam(cfg, "metadata"))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "send_notification: provider error").WithCause(err)
	}
	if n == nil {
		return Skip("notification provider declined"), nil
	}

	return map[string]any{
		"notification_id": n.ID,
		"user_id":         userID,
	}, nil
}

// SendPushAction sends a push notification to a user's devices.
// Shares the soft-skip policy of SendNotificationAction.
type SendPushAction struct {
	notifier Notifier
}

// NewSendPushAction creates the send_push handler.
func NewSendPushAction(notifier Notifier) *SendPushAction {
	return &SendPushAction{notifier: notifier}
}

func (a *SendPushAction) Type() schema.ActionType { return schema.ActionSendPush }

func (a *SendPushAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	userID := resolveRef(cfg, data, "user_id")
	if userID == "" {
		userID = wctx.TriggeredByUserID
	}
	if userID == "" {
		return Skip("no user id resolvable"), nil
	}

	title := expressions.Interpolate(stringParam(cfg, "title", ""), data)
	message := expressions.Interpolate(stringParam(cfg, "message", ""), data)

	delivered, err := a.notifier.SendPushNotification(ctx, userID, title, message, mapParam(cfg, "metadata"))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "send_push: provider error").WithCause(err)
	}
	if !delivered {
		return Skip("push provider declined"), nil
	}

	return map[string]any{
		"delivered": true,
		"user_id":   userID,
	}, nil
}
