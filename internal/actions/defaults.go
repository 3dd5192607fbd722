package actions

import "github.com/calderio/automaton/internal/store"

// Providers bundles the external collaborators for default registration.
type Providers struct {
	Store    store.Store
	Email    EmailSender
	Notifier Notifier
	Slack    SlackClient
	AI       AIProvider
	Webhook  WebhookConfig
}

// NewDefaultRegistry builds a registry with every known action handler.
func NewDefaultRegistry(p Providers) (*Registry, error) {
	reg := NewRegistry()
	handlers := []Handler{
		NewSendEmailAction(p.Email),
		NewSendNotificationAction(p.Notifier),
		NewSendPushAction(p.Notifier),
		NewCreateContactAction(p.Store),
		NewUpdateContactAction(p.Store),
		NewUpdateOpportunityAction(p.Store),
		NewAddTagAction(p.Store),
		NewRemoveTagAction(p.Store),
		NewCreateProjectAction(p.Store),
		NewCreateProjectFromTemplateAction(p.Store),
		NewCreateActivityAction(p.Store),
		NewWebhookCallAction(p.Webhook),
		NewSendSlackAction(p.Slack),
		NewAIGenerateAction(p.AI),
		NewAICategorizeAction(p.AI),
		NewAISummarizeAction(p.AI),
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
