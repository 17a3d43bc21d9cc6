// Package registry maps tool names to their handlers.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/fastly-mcp/pkg/domain"
)

// ToolFunction handles one invocation of a tool.
type ToolFunction func(ctx context.Context, inv domain.Invocation) (any, error)

// Registry manages the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ToolFunction
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]ToolFunction),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn ToolFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (ToolFunction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tools[name]
	return fn, ok
}

// Execute looks up the invoked tool and runs it.
// A name with no handler yields domain.ErrUnknownTool.
func (r *Registry) Execute(ctx context.Context, inv domain.Invocation) (any, error) {
	fn, ok := r.Lookup(inv.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTool, inv.Name)
	}
	return fn(ctx, inv)
}
