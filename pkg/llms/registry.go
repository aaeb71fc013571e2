package llms

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/registry"
)

// ErrNotImplemented is returned by factories for provider types that
// are declared but have no working implementation yet.
var ErrNotImplemented = errors.New("provider type not implemented")

// Factory builds a Provider from one configured instance.
type Factory func(name string, cfg config.ProviderInstance, logger *slog.Logger) (Provider, error)

// Registry holds live provider instances and the type → factory table
// used to construct them.
type Registry struct {
	*registry.BaseRegistry[Provider]
	factories map[string]Factory
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
		factories:    make(map[string]Factory),
		logger:       logger,
	}

	r.RegisterType("openai", newOpenAICompatibleFactory("https://api.openai.com/v1"))
	r.RegisterType("openrouter", newOpenAICompatibleFactory("https://openrouter.ai/api/v1"))
	r.RegisterType("vllm", newOpenAICompatibleFactory("http://localhost:8000/v1"))
	r.RegisterType("lmstudio", newOpenAICompatibleFactory("http://localhost:1234/v1"))
	r.RegisterType("anthropic", NewAnthropicProvider)
	r.RegisterType("ollama", NewOllamaProvider)
	return r
}

// RegisterType installs a factory for a provider type, replacing any
// previous one.
func (r *Registry) RegisterType(providerType string, factory Factory) {
	r.factories[providerType] = factory
}

// Types returns the registered provider types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create builds and registers the provider for one configured
// instance. Unknown types report the available types and the config
// path to fix.
func (r *Registry) Create(name string, cfg config.ProviderInstance) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider instance name cannot be empty")
	}

	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf(
			"unknown provider type %q for instance %q (available: %s); set providers.instances.%s.type to one of them",
			cfg.Type, name, strings.Join(r.Types(), ", "), name)
	}

	provider, err := factory(name, cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", name, err)
	}

	if err := r.Register(name, provider); err != nil {
		_ = provider.Close()
		return nil, err
	}
	return provider, nil
}

// GetProvider returns a previously created instance by name.
func (r *Registry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("provider instance %q not found", name)
	}
	return provider, nil
}

// CloseAll shuts down every registered provider.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, provider := range r.List() {
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
