package tools

import (
	"fmt"
	"log/slog"

	"github.com/quillcode/quill/pkg/llms"
	"github.com/quillcode/quill/pkg/registry"
)

// Registry holds the tools available to a session. Tools disabled by
// configuration are filtered at registration time so no layer above
// ever sees them.
type Registry struct {
	*registry.BaseRegistry[Tool]
	disabled map[string]bool
	logger   *slog.Logger
}

func NewRegistry(disabled map[string]bool, logger *slog.Logger) *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Tool](),
		disabled:     disabled,
		logger:       logger,
	}
}

// RegisterTool adds a tool unless configuration disables it.
// Duplicate names are an error.
func (r *Registry) RegisterTool(tool Tool) error {
	info := tool.Info()
	if info.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if r.disabled[info.Name] {
		r.logger.Debug("tool disabled by configuration", "tool", info.Name)
		return nil
	}
	return r.Register(info.Name, tool)
}

// GetTool returns a registered tool by name.
func (r *Registry) GetTool(name string) (Tool, error) {
	tool, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("tool %q not found", name)
	}
	return tool, nil
}

// Definitions exports every registered tool for provider requests, in
// name order.
func (r *Registry) Definitions() []llms.ToolDefinition {
	defs := make([]llms.ToolDefinition, 0, r.Count())
	for _, tool := range r.List() {
		info := tool.Info()
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.Schema,
		})
	}
	return defs
}
