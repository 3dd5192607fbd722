package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	runIDKey
	organizationIDKey
)

// WithWorkflowID returns a context with the workflow ID set.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithRunID returns a context with the run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithOrganizationID returns a context with the organization ID set.
func WithOrganizationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, organizationIDKey, id)
}

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string {
	v, _ := ctx.Value(workflowIDKey).(string)
	return v
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// OrganizationID extracts the organization ID from the context, or "" if absent.
func OrganizationID(ctx context.Context) string {
	v, _ := ctx.Value(organizationIDKey).(string)
	return v
}

// WithIDs sets all three correlation IDs on the context at once.
func WithIDs(ctx context.Context, workflowID, runID, organizationID string) context.Context {
	ctx = WithWorkflowID(ctx, workflowID)
	ctx = WithRunID(ctx, runID)
	ctx = WithOrganizationID(ctx, organizationID)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if wfID := WorkflowID(ctx); wfID != "" {
		logger = logger.With(slog.String("workflow_id", wfID))
	}
	if rID := RunID(ctx); rID != "" {
		logger = logger.With(slog.String("run_id", rID))
	}
	if oID := OrganizationID(ctx); oID != "" {
		logger = logger.With(slog.String("organization_id", oID))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := WorkflowID(ctx); v != "" {
		r.AddAttrs(slog.String("workflow_id", v))
	}
	if v := RunID(ctx); v != "" {
		r.AddAttrs(slog.String("run_id", v))
	}
	if v := OrganizationID(ctx); v != "" {
		r.AddAttrs(slog.String("organization_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
