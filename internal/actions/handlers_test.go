package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderio/automaton/internal/store"
	"github.com/calderio/automaton/pkg/schema"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, htmlBody, textBody, fromAddress, fromName, organizationID string) (*EmailResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, to)
	return &EmailResult{Success: true}, nil
}

type fakeNotifier struct {
	declined bool
	created  []string
}

func (f *fakeNotifier) CreateNotification(_ context.Context, userID, notifType, title, message string, _ map[string]any) (*Notification, error) {
	if f.declined {
		return nil, nil
	}
	f.created = append(f.created, userID)
	return &Notification{ID: "n-1", UserID: userID, Type: notifType, Title: title, Message: message}, nil
}

func (f *fakeNotifier) SendPushNotification(_ context.Context, userID, _, _ string, _ map[string]any) (bool, error) {
	if f.declined {
		return false, nil
	}
	f.created = append(f.created, userID)
	return true, nil
}

type fakeSlack struct {
	integration *SlackIntegration
	posted      []string
}

func (f *fakeSlack) GetOrganizationIntegration(context.Context, string) (*SlackIntegration, error) {
	return f.integration, nil
}

func (f *fakeSlack) PostMessage(_ context.Context, _, channel, message string, _ map[string]any) (*SlackMessage, error) {
	f.posted = append(f.posted, channel+": "+message)
	return &SlackMessage{Channel: channel, Timestamp: "1700000000.000100"}, nil
}

func (f *fakeSlack) CreateChannel(context.Context, string, string) (string, error) {
	return "C123", nil
}

func (f *fakeSlack) InviteUsersToChannel(context.Context, string, string, []string) error {
	return nil
}

type fakeAI struct{ err error }

func (f *fakeAI) Generate(_ context.Context, prompt string) (string, error) {
	return "generated: " + prompt, f.err
}

func (f *fakeAI) Categorize(_ context.Context, _ string, categories []string) (string, error) {
	if len(categories) > 0 {
		return categories[0], f.err
	}
	return "other", f.err
}

func (f *fakeAI) Summarize(_ context.Context, content string) (string, error) {
	return "summary of " + content, f.err
}

func baseContext() *schema.WorkflowContext {
	return &schema.WorkflowContext{
		OrganizationID: "org1",
		Contact:        map[string]any{"id": "c-1", "email": "jane@example.com", "name": "Jane"},
		Company:        map[string]any{"id": "co-1"},
	}
}

func TestSendEmailSkipsInvalidRecipient(t *testing.T) {
	email := &fakeEmail{}
	action := NewSendEmailAction(email)
	ctx := context.Background()

	for _, to := range []string{"", "   ", "not-an-address", "jane@", "@example.com", "{{contact.phone}}"} {
		out, err := action.Execute(ctx, schema.StepConfig{"to": to, "subject": "hi"}, baseContext())
		require.NoError(t, err, to)
		assert.True(t, Skipped(out), to)
	}
	assert.Empty(t, email.sent)

	out, err := action.Execute(ctx, schema.StepConfig{
		"to":      "{{contact.email}}",
		"subject": "Welcome {{contact.name}}",
		"body":    "<p>Hello</p>",
	}, baseContext())
	require.NoError(t, err)
	assert.False(t, Skipped(out))
	assert.Equal(t, "Welcome Jane", out["subject"])

	// A display-name form is accepted and normalized to the bare address.
	out, err = action.Execute(ctx, schema.StepConfig{
		"to": "Jane Doe <jane@example.com>",
	}, baseContext())
	require.NoError(t, err)
	assert.False(t, Skipped(out))
	assert.Equal(t, "jane@example.com", out["to"])
	assert.Equal(t, []string{"jane@example.com", "jane@example.com"}, email.sent)
}

func TestSendEmailProviderErrorFails(t *testing.T) {
	action := NewSendEmailAction(&fakeEmail{err: errors.New("smtp down")})

	_, err := action.Execute(context.Background(), schema.StepConfig{"to": "jane@example.com"}, baseContext())
	require.Error(t, err)

	var ee *schema.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, schema.ErrCodeProvider, ee.Code)
}

func TestSendNotificationSkips(t *testing.T) {
	ctx := context.Background()

	// No user id resolvable anywhere.
	out, err := NewSendNotificationAction(&fakeNotifier{}).Execute(ctx, schema.StepConfig{"title": "t"}, baseContext())
	require.NoError(t, err)
	assert.True(t, Skipped(out))

	// Provider declines.
	wctx := baseContext()
	wctx.TriggeredByUserID = "u-1"
	out, err = NewSendNotificationAction(&fakeNotifier{declined: true}).Execute(ctx, schema.StepConfig{"title": "t"}, wctx)
	require.NoError(t, err)
	assert.True(t, Skipped(out))

	// Happy path falls back to the triggering user.
	notifier := &fakeNotifier{}
	out, err = NewSendNotificationAction(notifier).Execute(ctx, schema.StepConfig{"title": "t"}, wctx)
	require.NoError(t, err)
	assert.False(t, Skipped(out))
	assert.Equal(t, []string{"u-1"}, notifier.created)
}

func TestCreateContactRequiresCompanyID(t *testing.T) {
	s := store.NewMemoryStore()
	action := NewCreateContactAction(s)
	ctx := context.Background()

	wctx := &schema.WorkflowContext{OrganizationID: "org1"}
	_, err := action.Execute(ctx, schema.StepConfig{"name": "Jane"}, wctx)
	require.Error(t, err)

	out, err := action.Execute(ctx, schema.StepConfig{
		"company_id_field": "company.id",
		"name":             "{{contact.name}}",
		"email":            "{{contact.email}}",
	}, baseContext())
	require.NoError(t, err)
	assert.Equal(t, "co-1", out["company_id"])

	contact, err := s.GetContact(ctx, out["contact_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Jane", contact.Name)
	assert.Equal(t, "org1", contact.OrganizationID)
}

func TestUpdateContactEmptyPayloadSkips(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateContact(context.Background(), &store.Contact{ID: "c-1", OrganizationID: "org1"}))
	action := NewUpdateContactAction(s)
	ctx := context.Background()

	out, err := action.Execute(ctx, schema.StepConfig{"contact_id": "c-1"}, baseContext())
	require.NoError(t, err)
	assert.True(t, Skipped(out))

	out, err = action.Execute(ctx, schema.StepConfig{
		"contact_id": "c-1",
		"fields":     map[string]any{"stage": "customer"},
	}, baseContext())
	require.NoError(t, err)
	assert.False(t, Skipped(out))

	contact, err := s.GetContact(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "customer", contact.Fields["stage"])
}

func TestCreateActivitySkipsWhenLogUnavailable(t *testing.T) {
	s := store.NewMemoryStore()
	s.DisableActivityLog()
	action := NewCreateActivityAction(s)

	out, err := action.Execute(context.Background(), schema.StepConfig{
		"company_id_field": "company.id",
		"title":            "Workflow ran",
	}, baseContext())
	require.NoError(t, err)
	assert.True(t, Skipped(out))
	assert.Equal(t, "activity log unavailable", out["reason"])
}

func TestCreateActivitySkipsWithoutCompany(t *testing.T) {
	s := store.NewMemoryStore()
	action := NewCreateActivityAction(s)

	wctx := &schema.WorkflowContext{OrganizationID: "org1"}
	out, err := action.Execute(context.Background(), schema.StepConfig{"title": "t"}, wctx)
	require.NoError(t, err)
	assert.True(t, Skipped(out))
	assert.Empty(t, s.Activities())
}

func TestCreateProjectFromTemplate(t *testing.T) {
	s := store.NewMemoryStore()
	s.SeedTemplate(&store.ProjectTemplate{
		ID:       "tpl-1",
		Name:     "Onboarding",
		Defaults: map[string]any{"phase": "kickoff", "owner": "ops"},
	})
	action := NewCreateProjectFromTemplateAction(s)
	ctx := context.Background()

	_, err := action.Execute(ctx, schema.StepConfig{"template_id": "tpl-missing"}, baseContext())
	require.Error(t, err)

	out, err := action.Execute(ctx, schema.StepConfig{
		"template_id": "tpl-1",
		"fields":      map[string]any{"owner": "{{contact.name}}"},
	}, baseContext())
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", out["name"])

	projects := s.Projects()
	require.Len(t, projects, 1)
	assert.Equal(t, "kickoff", projects[0].Fields["phase"])
	assert.Equal(t, "Jane", projects[0].Fields["owner"])
}

func TestSendSlackSkipsWithoutIntegration(t *testing.T) {
	ctx := context.Background()
	cfg := schema.StepConfig{"channel": "#sales", "message": "Deal won!"}

	out, err := NewSendSlackAction(&fakeSlack{}).Execute(ctx, cfg, baseContext())
	require.NoError(t, err)
	assert.True(t, Skipped(out))

	slack := &fakeSlack{integration: &SlackIntegration{AccessToken: "xoxb-1"}}
	out, err = NewSendSlackAction(slack).Execute(ctx, cfg, baseContext())
	require.NoError(t, err)
	assert.False(t, Skipped(out))
	assert.Equal(t, "#sales", out["channel"])

	// Empty channel after interpolation skips.
	out, err = NewSendSlackAction(slack).Execute(ctx, schema.StepConfig{
		"channel": "{{trigger.channel}}",
		"message": "hi",
	}, baseContext())
	require.NoError(t, err)
	assert.True(t, Skipped(out))
}

func TestAIActions(t *testing.T) {
	ctx := context.Background()
	wctx := baseContext()

	out, err := NewAIGenerateAction(&fakeAI{}).Execute(ctx, schema.StepConfig{
		"prompt": "Write a follow-up for {{contact.name}}",
	}, wctx)
	require.NoError(t, err)
	assert.Equal(t, "generated: Write a follow-up for Jane", out["text"])

	out, err = NewAICategorizeAction(&fakeAI{}).Execute(ctx, schema.StepConfig{
		"content":    "pricing question",
		"categories": []any{"sales", "support"},
	}, wctx)
	require.NoError(t, err)
	assert.Equal(t, "sales", out["category"])

	_, err = NewAISummarizeAction(&fakeAI{err: errors.New("quota exceeded")}).Execute(ctx, schema.StepConfig{
		"content": "long text",
	}, wctx)
	require.Error(t, err)
}

func TestDefaultRegistryCoversEveryActionType(t *testing.T) {
	reg, err := NewDefaultRegistry(Providers{
		Store:    store.NewMemoryStore(),
		Email:    &fakeEmail{},
		Notifier: &fakeNotifier{},
		Slack:    &fakeSlack{},
		AI:       &fakeAI{},
	})
	require.NoError(t, err)

	assert.Equal(t, len(schema.ActionTypes), reg.Count())
	for _, at := range schema.ActionTypes {
		assert.True(t, reg.Has(at), string(at))
	}
}
