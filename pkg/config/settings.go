package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/quillcode/quill/pkg/configmap"
)

// Settings is the typed facade over the layered configuration. Reads
// are safe for concurrent use; the watcher and runtime Set calls take
// the write lock.
type Settings struct {
	mu      sync.RWMutex
	dcm     *configmap.Map
	sources []LayerSource
	cfg     Config
	extras  []string
}

// New loads all configuration sources and decodes them into Settings.
// Construction fails on legacy environment variables, malformed YAML,
// empty bundled defaults, or invalid provider instances.
func New(opts ...LoadOption) (*Settings, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	dcm, sources, err := buildMap(&o)
	if err != nil {
		return nil, err
	}

	s := &Settings{dcm: dcm, sources: sources}
	if err := s.decode(); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// decode materializes the merged mapping into the typed Config,
// recording unknown keys for CollectExtraFields.
func (s *Settings) decode() error {
	raw := s.dcm.ToMap()

	var cfg Config
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return &ConfigError{Message: "cannot build config decoder", Err: err}
	}
	if err := decoder.Decode(raw); err != nil {
		return &ConfigError{Message: "configuration does not match the expected shape", Err: err}
	}

	extras := append([]string(nil), md.Unused...)
	sort.Strings(extras)

	s.cfg = cfg
	s.extras = extras
	return nil
}

func (s *Settings) validate() error {
	for name, inst := range s.cfg.Providers.Instances {
		if inst.Type == "" {
			return &LegacyProviderError{Instance: name}
		}
		if !isKnownProviderType(inst.Type) {
			return &ConfigError{
				Path: "providers.instances." + name + ".type",
				Message: fmt.Sprintf("unknown provider type %q (known: %s)",
					inst.Type, strings.Join(KnownProviderTypes, ", ")),
			}
		}
		if inst.CacheTTL < 0 {
			return &ConfigError{
				Path:    "providers.instances." + name + ".cache_ttl",
				Message: "cache_ttl must be >= 0",
			}
		}
	}
	if s.cfg.Behavior.MaxToolRounds < 0 {
		return &ConfigError{Path: "behavior.max_tool_rounds", Message: "must be >= 0"}
	}
	return nil
}

func isKnownProviderType(t string) bool {
	for _, known := range KnownProviderTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Config returns a copy of the decoded configuration.
func (s *Settings) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Settings) Behavior() BehaviorConfig { return s.Config().Behavior }
func (s *Settings) Models() ModelsConfig     { return s.Config().Models }
func (s *Settings) Providers() ProvidersConfig {
	return s.Config().Providers
}
func (s *Settings) Sandbox() SandboxConfig { return s.Config().Sandbox }
func (s *Settings) Logging() LoggingConfig { return s.Config().Logging }
func (s *Settings) Session() SessionConfig { return s.Config().Session }
func (s *Settings) Tools() ToolsConfig     { return s.Config().Tools }
func (s *Settings) Hooks() map[string][]HookConfig {
	return s.Config().Hooks
}
func (s *Settings) Profiles() map[string]ProfileConfig {
	return s.Config().Profiles
}

// Map exposes the underlying layered map for runtime edits (the `/set`
// command path). Callers mutate through it and then call Refresh.
func (s *Settings) Map() *configmap.Map {
	return s.dcm
}

// Refresh re-decodes the typed view after layer or front mutations.
// On failure the previous typed view is kept.
func (s *Settings) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dcm.Reload()

	prevCfg, prevExtras := s.cfg, s.extras
	if err := s.decode(); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		s.cfg, s.extras = prevCfg, prevExtras
		return err
	}
	return nil
}

// CollectExtraFields returns the dotted paths of configuration keys no
// typed field consumed, sorted. Useful for typo diagnostics.
func (s *Settings) CollectExtraFields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.extras...)
}

// Sources describes the loaded layers in priority order.
func (s *Settings) Sources() []LayerSource {
	return append([]LayerSource(nil), s.sources...)
}

// ProviderFor returns the named provider instance. An empty name
// selects the default.
func (s *Settings) ProviderFor(name string) (string, ProviderInstance, error) {
	cfg := s.Config()
	if name == "" {
		name = cfg.Providers.Default
	}
	inst, ok := cfg.Providers.Instances[name]
	if !ok {
		return "", ProviderInstance{}, &ConfigError{
			Path:    "providers.instances." + name,
			Message: "no such provider instance",
		}
	}
	if !inst.IsEnabled() {
		return "", ProviderInstance{}, &ConfigError{
			Path:    "providers.instances." + name,
			Message: "provider instance is disabled",
		}
	}
	return name, inst, nil
}

// ResolveModelAlias follows the alias table to a canonical model id.
// Alias chains are followed with a cycle guard; a name with no alias
// entry resolves to itself.
func (s *Settings) ResolveModelAlias(name string) string {
	aliases := s.Models().Aliases
	seen := map[string]bool{}
	for {
		target, ok := aliases[name]
		if !ok || seen[name] {
			return name
		}
		seen[name] = true
		name = target
	}
}

// NativeModelID maps a canonical model id to the id the given provider
// instance expects. Bindings win; otherwise a "vendor/" prefix matching
// the provider name is stripped; otherwise the canonical id passes
// through unchanged.
func (s *Settings) NativeModelID(canonical, provider string) string {
	models := s.Models()
	if desc, ok := models.Registry[canonical]; ok {
		if binding, ok := desc.Bindings[provider]; ok && binding.ID != "" {
			return binding.ID
		}
	}
	if rest, ok := strings.CutPrefix(canonical, provider+"/"); ok {
		return rest
	}
	return canonical
}

// EffectiveContext returns the usable context window for a model on a
// provider: the binding override when set, else the model's native
// context, else 0 for unknown models.
func (s *Settings) EffectiveContext(canonical, provider string) int {
	models := s.Models()
	desc, ok := models.Registry[canonical]
	if !ok {
		return 0
	}
	if binding, ok := desc.Bindings[provider]; ok && binding.Context > 0 {
		return binding.Context
	}
	return desc.Context
}

// ModelCapabilities reports what the canonical model supports. Models
// absent from the registry are treated as fully capable so unregistered
// ids keep working.
func (s *Settings) ModelCapabilities(canonical string) ModelCapabilities {
	if desc, ok := s.Models().Registry[canonical]; ok {
		return desc.Capabilities
	}
	return ModelCapabilities{Tools: true, Reasoning: true}
}

// DefaultModel returns the canonical id of the configured default
// model after alias resolution.
func (s *Settings) DefaultModel() string {
	return s.ResolveModelAlias(s.Models().Default)
}
