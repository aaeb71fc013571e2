package config

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigError is fatal at startup: missing or malformed configuration
// that no partial fallback can paper over.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config error in %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LegacyEnvError reports pre-migration flat environment variables with
// their nested replacements.
type LegacyEnvError struct {
	// Found maps each detected legacy variable to its replacement.
	Found map[string]string
}

func (e *LegacyEnvError) Error() string {
	names := make([]string, 0, len(e.Found))
	for name := range e.Found {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("legacy environment variables detected; migrate to the nested form:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s -> %s\n", name, e.Found[name])
	}
	b.WriteString("set " + skipMigrationEnv + "=1 to bypass this check")
	return b.String()
}

// LegacyProviderError reports a provider instance in the pre-migration
// shape (missing the `type` discriminator).
type LegacyProviderError struct {
	Instance string
}

func (e *LegacyProviderError) Error() string {
	return fmt.Sprintf(
		"provider instance %q has no `type` field; add `providers.instances.%s.type` "+
			"(one of: %s) to migrate from the legacy shape",
		e.Instance, e.Instance, strings.Join(KnownProviderTypes, ", "))
}

// KnownProviderTypes lists the accepted provider discriminators; the
// llms package registers a factory per entry.
var KnownProviderTypes = []string{"openai", "openrouter", "anthropic", "ollama", "vllm", "lmstudio"}
