package actions

import (
	"context"
	"sort"
	"sync"

	"github.com/calderio/automaton/pkg/schema"
)

// Registry is a thread-safe map from action type to handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.ActionType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.ActionType]Handler),
	}
}

// Register adds a handler to the registry. Returns error on duplicate type.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	at := h.Type()
	if at == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler action type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[at]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", at)
	}

	r.handlers[at] = h
	return nil
}

// Get retrieves a handler by action type.
func (r *Registry) Get(at schema.ActionType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[at]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", at)
	}
	return h, nil
}

// Dispatch looks up the handler for the action type and executes it.
func (r *Registry) Dispatch(ctx context.Context, at schema.ActionType, cfg schema.StepConfig, wctx *schema.WorkflowContext) (map[string]any, error) {
	h, err := r.Get(at)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, cfg, wctx)
}

// Has checks if an action type is registered.
func (r *Registry) Has(at schema.ActionType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[at]
	return ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Types returns the registered action types, sorted by name.
func (r *Registry) Types() []schema.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]schema.ActionType, 0, len(r.handlers))
	for at := range r.handlers {
		types = append(types, at)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})
	return types
}
