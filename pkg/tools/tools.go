// Package tools dispatches model tool calls to their implementations.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/model"
)

// Tool defines the interface that all tools must implement.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any // Simple representation of JSON schema
	// Run performs the call. Failures the model should see are reported in
	// the result; a returned error means the call could not be made at all.
	Run(ctx context.Context, input map[string]any) (domain.ActionResult, error)
}

// Registry manages the available tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Specs describes the registered tools for a model request.
func (r *Registry) Specs() []model.ToolSpec {
	var specs []model.ToolSpec
	for _, t := range r.List() {
		specs = append(specs, model.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return specs
}

// Run invokes the named tool with input.
func (r *Registry) Run(ctx context.Context, name string, input map[string]any) (domain.ActionResult, error) {
	t, ok := r.Get(name)
	if !ok {
		slog.Warn("Unknown tool called", "tool", name)
		return domain.ActionResult{}, fmt.Errorf("%w: %q", domain.ErrToolNotFound, name)
	}
	slog.Debug("Running tool", "tool", name, "input", input)
	return t.Run(ctx, input)
}
