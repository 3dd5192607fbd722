package actions

import (
	"context"
	"strings"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/pkg/schema"
)

// SendSlackAction posts a message through the organization's Slack
// integration. No integration, or an empty channel/message after
// interpolation, is a soft skip; an API error fails the step.
type SendSlackAction struct {
	slack SlackClient
}

// NewSendSlackAction creates the send_slack handler.
func NewSendSlackAction(slack SlackClient) *SendSlackAction {
	return &SendSlackAction{slack: slack}
}

func (a *SendSlackAction) Type() schema.ActionType { return schema.ActionSendSlack }

func (a *SendSlackAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	integration, err := a.slack.GetOrganizationIntegration(ctx, wctx.OrganizationID)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeProvider, "send_slack: integration lookup failed").WithCause(err)
	}
	if integration == nil || integration.AccessToken == "" {
		return Skip("no slack integration configured"), nil
	}

	data := wctx.AsMap()
	channel := strings.TrimSpace(expressions.Interpolate(stringParam(cfg, "channel", ""), data))
	message := strings.TrimSpace(expressions.Interpolate(stringParam(cfg, "message", ""), data))
	if channel == "" || message == "" {
		return Skip("empty channel or message"), nil
	}

	posted, err := a.slack.PostMessage(ctx, integration.AccessToken, channel, message, mapParam(cfg, "options"))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeProvider, "send_slack: post failed").WithCause(err)
	}
	if posted == nil {
		return nil, schema.NewError(schema.ErrCodeProvider, "send_slack: slack api returned no message")
	}

	return map[string]any{
		"channel": posted.Channel,
		"ts":      posted.Timestamp,
	}, nil
}
