package config

// Config is the typed view over the merged configuration layers.
// Unknown keys at any level are preserved separately for audit (see
// Settings.CollectExtraFields).
type Config struct {
	Version   int                      `mapstructure:"version"`
	Models    ModelsConfig             `mapstructure:"models"`
	Providers ProvidersConfig          `mapstructure:"providers"`
	Behavior  BehaviorConfig           `mapstructure:"behavior"`
	Sandbox   SandboxConfig            `mapstructure:"sandbox"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Session   SessionConfig            `mapstructure:"session"`
	Plugins   PluginsConfig            `mapstructure:"plugins"`
	Tools     ToolsConfig              `mapstructure:"tools"`
	Profiles  map[string]ProfileConfig `mapstructure:"profiles"`
	Hooks     map[string][]HookConfig  `mapstructure:"hooks"`
}

// ModelsConfig names the default model and the registry of known
// model identities.
type ModelsConfig struct {
	Default   string                     `mapstructure:"default"`
	Registry  map[string]ModelDescriptor `mapstructure:"registry"`
	Aliases   map[string]string          `mapstructure:"aliases"`
	Favorites []string                   `mapstructure:"favorites"`
}

// ModelDescriptor describes one canonical model identity
// (e.g. "anthropic/claude-sonnet-4").
type ModelDescriptor struct {
	// Context is the model's native context window in tokens.
	Context      int               `mapstructure:"context"`
	Capabilities ModelCapabilities `mapstructure:"capabilities"`
	// Bindings map provider-instance names to native model ids.
	Bindings map[string]ModelBinding `mapstructure:"bindings"`
}

type ModelCapabilities struct {
	Tools     bool `mapstructure:"tools"`
	Reasoning bool `mapstructure:"reasoning"`
}

// ModelBinding carries the provider-native model id and an optional
// effective context override for that provider.
type ModelBinding struct {
	ID      string `mapstructure:"id"`
	Context int    `mapstructure:"context"`
}

type ProvidersConfig struct {
	Default   string                      `mapstructure:"default"`
	Instances map[string]ProviderInstance `mapstructure:"instances"`
}

// ProviderInstance configures one provider endpoint. Type is the
// discriminator; a shape without it is the pre-migration legacy form
// and is rejected during validation.
type ProviderInstance struct {
	Type            string         `mapstructure:"type"`
	BaseURL         string         `mapstructure:"base_url"`
	APIKey          string         `mapstructure:"api_key"`
	CredentialsPath string         `mapstructure:"credentials_path"`
	Enabled         *bool          `mapstructure:"enabled"`
	CacheTTL        int            `mapstructure:"cache_ttl"`
	Extra           map[string]any `mapstructure:",remain"`
}

func (p *ProviderInstance) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

type BehaviorConfig struct {
	MaxTokens          int            `mapstructure:"max_tokens"`
	Verbose            bool           `mapstructure:"verbose"`
	OutputFormat       string         `mapstructure:"output_format"`
	ReasoningLevel     string         `mapstructure:"reasoning_level"`
	ReasoningFormat    string         `mapstructure:"reasoning_format"`
	MaxToolRounds      int            `mapstructure:"max_tool_rounds"`
	ToolResultMaxChars int            `mapstructure:"tool_result_max_chars"`
	Recovery           RecoveryConfig `mapstructure:"recovery"`
}

// RecoveryConfig bounds the tool-call recovery subsystem.
type RecoveryConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxPerTurn      int  `mapstructure:"max_per_turn"`
	MaxPerSession   int  `mapstructure:"max_per_session"`
	LoopWindowTurns int  `mapstructure:"loop_window_turns"`
	Feedback        bool `mapstructure:"feedback"`
}

type SandboxConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AllowNetwork bool     `mapstructure:"allow_network"`
	AllowedPaths []string `mapstructure:"allowed_paths"`
}

type LoggingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Dir         string `mapstructure:"dir"`
	Private     bool   `mapstructure:"private"`
	RawPayloads bool   `mapstructure:"raw_payloads"`
	Level       string `mapstructure:"level"`
}

type SessionConfig struct {
	Dir      string `mapstructure:"dir"`
	Autosave bool   `mapstructure:"autosave"`
}

type PluginsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Paths   []string `mapstructure:"paths"`
}

type ToolsConfig struct {
	Disabled map[string]bool `mapstructure:"disabled"`
}

// ProfileConfig is a model-specific system prompt fragment set.
type ProfileConfig struct {
	SystemPromptPrefix string   `mapstructure:"system_prompt_prefix"`
	SystemPromptSuffix string   `mapstructure:"system_prompt_suffix"`
	EnabledPatterns    []string `mapstructure:"enabled_patterns"`
	// Models lists canonical model ids (or glob prefixes) this profile
	// applies to when not selected by explicit name.
	Models []string `mapstructure:"models"`
}

// HookConfig configures one external hook command for an event.
type HookConfig struct {
	Command []string `mapstructure:"command"`
	// Match is an optional regexp filtered against the tool name.
	Match string `mapstructure:"match"`
	// TimeoutSeconds overrides the 30s default.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}
