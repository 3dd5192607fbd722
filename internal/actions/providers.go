package actions

import "context"

// External collaborators behind the action handlers. The engine depends on
// these only through the call contracts below; concrete integrations live
// outside this module.

// EmailResult reports the outcome of a delivery attempt.
type EmailResult struct {
	Success bool
	Error   string
}

// EmailSender delivers transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody, textBody, fromAddress, fromName, organizationID string) (*EmailResult, error)
}

// Notification is an in-app notification record created by the provider.
type Notification struct {
	ID      string
	UserID  string
	Type    string
	Title   string
	Message string
}

// Notifier creates in-app notifications and sends push notifications.
// CreateNotification returns nil (no error) when the provider declines,
// e.g. the user has notifications disabled. SendPushNotification reports
// delivery via its boolean.
type Notifier interface {
	CreateNotification(ctx context.Context, userID, notifType, title, message string, metadata map[string]any) (*Notification, error)
	SendPushNotification(ctx context.Context, userID, title, message string, metadata map[string]any) (bool, error)
}

// SlackIntegration is an organization's stored Slack connection.
type SlackIntegration struct {
	AccessToken string
}

// SlackMessage identifies a posted message.
type SlackMessage struct {
	Channel   string
	Timestamp string
}

// SlackClient talks to the Slack API. GetOrganizationIntegration returns
// nil (no error) when the organization has no integration configured.
type SlackClient interface {
	GetOrganizationIntegration(ctx context.Context, organizationID string) (*SlackIntegration, error)
	PostMessage(ctx context.Context, token, channel, message string, options map[string]any) (*SlackMessage, error)
	CreateChannel(ctx context.Context, token, name string) (string, error)
	InviteUsersToChannel(ctx context.Context, token, channelID string, userIDs []string) error
}

// AIProvider performs text generation tasks.
type AIProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Categorize(ctx context.Context, content string, categories []string) (string, error)
	Summarize(ctx context.Context, content string) (string, error)
}
