package actions

import (
	"context"
	"strings"

	"github.com/calderio/automaton/internal/expressions"
	"github.com/calderio/automaton/pkg/schema"
)

// AIGenerateAction produces text from an interpolated prompt.
type AIGenerateAction struct {
	ai AIProvider
}

// NewAIGenerateAction creates the ai_generate handler.
func NewAIGenerateAction(ai AIProvider) *AIGenerateAction {
	return &AIGenerateAction{ai: ai}
}

func (a *AIGenerateAction) Type() schema.ActionType { return schema.ActionAIGenerate }

func (a *AIGenerateAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	prompt := strings.TrimSpace(expressions.Interpolate(stringParam(cfg, "prompt", ""), wctx.AsMap()))
	if prompt == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "ai_generate: missing prompt")
	}

	text, err := a.ai.Generate(ctx, prompt)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeProvider, "ai_generate: provider error").WithCause(err)
	}

	return map[string]any{"text": text}, nil
}

// AICategorizeAction assigns interpolated content to one of the configured
// categories.
type AICategorizeAction struct {
	ai AIProvider
}

// NewAICategorizeAction creates the ai_categorize handler.
func NewAICategorizeAction(ai AIProvider) *AICategorizeAction {
	return &AICategorizeAction{ai: ai}
}

func (a *AICategorizeAction) Type() schema.ActionType { return schema.ActionAICategorize }

func (a *AICategorizeAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	data := wctx.AsMap()

	content := strings.TrimSpace(expressions.Interpolate(stringParam(cfg, "content", ""), data))
	if content == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "ai_categorize: missing content")
	}
	categories := stringSliceParam(cfg, "categories")

	category, err := a.ai.Categorize(ctx, content, categories)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeProvider, "ai_categorize: provider error").WithCause(err)
	}

	return map[string]any{"category": category}, nil
}

// AISummarizeAction condenses interpolated content.
type AISummarizeAction struct {
	ai AIProvider
}

// NewAISummarizeAction creates the ai_summarize handler.
func NewAISummarizeAction(ai AIProvider) *AISummarizeAction {
	return &AISummarizeAction{ai: ai}
}

func (a *AISummarizeAction) Type() schema.ActionType { return schema.ActionAISummarize }

func (a *AISummarizeAction) Execute(ctx context.Context, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	content := strings.TrimSpace(expressions.Interpolate(stringParam(cfg, "content", ""), wctx.AsMap()))
	if content == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "ai_summarize: missing content")
	}

	summary, err := a.ai.Summarize(ctx, content)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeProvider, "ai_summarize: provider error").WithCause(err)
	}

	return map[string]any{"summary": summary}, nil
}
