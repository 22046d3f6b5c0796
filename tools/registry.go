package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/retrieval"
)

type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewRetrievalRegistry registers the search, context and index tools for
// the given collection.
func NewRetrievalRegistry(a *retrieval.Assembler, collection string) *Registry {
	r := NewRegistry()
	r.Register(NewSimilaritySearchTool(a, collection))
	r.Register(NewRetrieveContextTool(a, collection))
	r.Register(NewIndexDocumentTool(a, collection))
	return r
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) GetMultiple(names []string) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, core.NewValidationError("tool", fmt.Sprintf("unknown tool %q", name))
		}
		result = append(result, t)
	}
	return result, nil
}

// List returns the registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Schemas(names []string) ([]core.ToolSchema, error) {
	tools, err := r.GetMultiple(names)
	if err != nil {
		return nil, err
	}
	return ToSchemas(tools), nil
}

// Call executes a tool call. Failures are reported in the result, never
// returned, so the orchestration layer can hand them back to the model.
func (r *Registry) Call(ctx context.Context, call core.ToolCall) core.ToolResult {
	t, ok := r.Get(call.Name)
	if !ok {
		return core.NewToolError(call.ID, core.NewValidationError("tool", fmt.Sprintf("unknown tool %q", call.Name)))
	}

	out, err := t.Execute(ctx, call.Arguments)
	if err != nil {
		return core.NewToolError(call.ID, err)
	}
	return core.NewToolResult(call.ID, out)
}
