// Package providers carries the default collaborator implementations wired
// into the binary when no real integrations are configured. Email and
// notifications are logged, Slack reports no integration (actions skip), and
// AI actions fail until a provider is plugged in.
package providers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/calderio/automaton/internal/actions"
)

// LogEmailSender logs outgoing email instead of delivering it.
type LogEmailSender struct {
	Logger *slog.Logger
}

func (s *LogEmailSender) SendEmail(ctx context.Context, to, subject, htmlBody, textBody, fromAddress, fromName, organizationID string) (*actions.EmailResult, error) {
	s.Logger.InfoContext(ctx, "email (not delivered: no provider configured)",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("organization_id", organizationID))
	return &actions.EmailResult{Success: true}, nil
}

// LogNotifier logs notifications and reports them as delivered.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) CreateNotification(ctx context.Context, userID, notifType, title, message string, metadata map[string]any) (*actions.Notification, error) {
	notification := &actions.Notification{
		ID:      uuid.New().String(),
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
	}
	n.Logger.InfoContext(ctx, "notification (no provider configured)",
		slog.String("user_id", userID),
		slog.String("title", title))
	return notification, nil
}

func (n *LogNotifier) SendPushNotification(ctx context.Context, userID, title, message string, metadata map[string]any) (bool, error) {
	n.Logger.InfoContext(ctx, "push notification (no provider configured)",
		slog.String("user_id", userID),
		slog.String("title", title))
	return true, nil
}

// NoSlackClient reports no integration for every organization, so send_slack
// steps soft-skip.
type NoSlackClient struct{}

func (NoSlackClient) GetOrganizationIntegration(ctx context.Context, organizationID string) (*actions.SlackIntegration, error) {
	return nil, nil
}

func (NoSlackClient) PostMessage(ctx context.Context, token, channel, message string, options map[string]any) (*actions.SlackMessage, error) {
	return nil, errors.New("slack client not configured")
}

func (NoSlackClient) CreateChannel(ctx context.Context, token, name string) (string, error) {
	return "", errors.New("slack client not configured")
}

func (NoSlackClient) InviteUsersToChannel(ctx context.Context, token, channelID string, userIDs []string) error {
	return errors.New("slack client not configured")
}

// NoAIProvider fails every AI action until a real provider is wired in.
type NoAIProvider struct{}

var errNoAIProvider = errors.New("ai provider not configured")

func (NoAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errNoAIProvider
}

func (NoAIProvider) Categorize(ctx context.Context, content string, categories []string) (string, error) {
	return "", errNoAIProvider
}

func (NoAIProvider) Summarize(ctx context.Context, content string) (string, error) {
	return "", errNoAIProvider
}
