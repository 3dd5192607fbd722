package actions

import (
	"context"
	"net/mail"
	"strings"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/pkg/schema"
)

// SendEmailAction delivers an email through the configured provider.
// An invalid or empty recipient is a soft skip; a provider failure is not.
type SendEmailAction struct {
	email EmailSender
}

// NewSendEmailAction creates the send_email handler.
func NewSendEmailAction(email EmailSender) *SendEmailAction {
	return &SendEmailAction{email: email}
}

func (a *SendEmailAction) Type() schema.ActionType { return schema.ActionSendEmail }

func (a *SendEmailAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	to := strings.TrimSpace(resolveRef(cfg, data, "to"))
	if to == "" {
		return Skip("invalid or empty recipient address"), nil
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return Skip("invalid or empty recipient address"), nil
	}
	to = addr.Address

	subject := expressions.Interpolate(stringParam(cfg, "subject", ""), data)
	htmlBody := expressions.Interpolate(stringParam(cfg, "body", ""), data)
	textBody := expressions.Interpolate(stringParam(cfg, "text_body", ""), data)
	fromAddress := stringParam(cfg, "from_address", "")
	fromName := stringParam(cfg, "from_name", "")

	result, err := a.email.SendEmail(ctx, to, subject, htmlBody, textBody, fromAddress, fromName, wctx.OrganizationID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "send_email: delivery failed").WithCause(err)
	}
	if result != nil && !result.Success {
		return nil, schema.NewErrorf(schema.ErrCodeProvider, "send_email: provider rejected message: %s", result.Error)
	}

	return map[string]any{
		"sent":    true,
		"to":      to,
		"subject": subject,
	}, nil
}
