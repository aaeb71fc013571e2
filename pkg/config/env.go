package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/quillcode/quill/pkg/configmap"
)

const (
	// EnvPrefix is the prefix of every nested configuration variable.
	EnvPrefix = "QUILL_"

	configDirEnv     = "QUILL_CONFIG_DIR"
	envFileEnv       = "QUILL_ENV_FILE"
	projectRootEnv   = "QUILL_PROJECT_ROOT"
	skipMigrationEnv = "QUILL_SKIP_MIGRATION_CHECK"
)

// infraEnvVars configure the loader itself and never become config keys.
var infraEnvVars = map[string]bool{
	configDirEnv:     true,
	envFileEnv:       true,
	projectRootEnv:   true,
	skipMigrationEnv: true,
	// Provider-native alias, consumed through ${...} expansion in the
	// provider instance config rather than as a config key.
	"QUILL_OLLAMA_HOST": true,
}

// legacyEnvVars maps pre-migration flat names to their nested
// replacements. Their presence fails settings construction unless
// QUILL_SKIP_MIGRATION_CHECK is set.
var legacyEnvVars = map[string]string{
	"QUILL_MODEL":      "QUILL_MODELS__DEFAULT",
	"QUILL_PROVIDER":   "QUILL_PROVIDERS__DEFAULT",
	"QUILL_MAX_TOKENS": "QUILL_BEHAVIOR__MAX_TOKENS",
	"QUILL_VERBOSE":    "QUILL_BEHAVIOR__VERBOSE",
	"QUILL_SANDBOX":    "QUILL_SANDBOX__ENABLED",
	"QUILL_LOG_DIR":    "QUILL_LOGGING__DIR",
	"QUILL_API_KEY":    "QUILL_PROVIDERS__INSTANCES__<NAME>__API_KEY",
}

// checkLegacyEnv scans for pre-migration variables.
func checkLegacyEnv() error {
	if os.Getenv(skipMigrationEnv) != "" {
		return nil
	}
	found := make(map[string]string)
	for name, replacement := range legacyEnvVars {
		if _, ok := os.LookupEnv(name); ok {
			found[name] = replacement
		}
	}
	if len(found) > 0 {
		return &LegacyEnvError{Found: found}
	}
	return nil
}

// envLayer builds a source layer from QUILL_* variables. A double
// underscore separates nesting levels: QUILL_BEHAVIOR__MAX_TOKENS maps
// to behavior.max_tokens. Values are parsed as bool/int/float where
// they look like one.
func envLayer() (map[string]any, error) {
	k := koanf.New(".")
	provider := env.Provider(EnvPrefix, ".", func(s string) string {
		if infraEnvVars[s] || legacyEnvVars[s] != "" {
			return ""
		}
		trimmed := strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(trimmed), "__", ".")
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, &ConfigError{Message: "failed to read environment variables", Err: err}
	}
	return parseScalars(k.Raw()).(map[string]any), nil
}

// parseScalars converts string leaves to typed scalars, mirroring YAML
// implicit typing so env overrides compare equal to file values.
func parseScalars(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			out[k] = parseScalars(item)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = parseScalars(item)
		}
		return out
	case string:
		return parseValue(tv)
	default:
		return v
	}
}

func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}
	return value
}

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
}

// expandEnvVars substitutes ${VAR} and ${VAR:-default} references.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

// expandEnvInLayer walks a source layer expanding ${VAR} references in
// string values. Expanded strings are re-typed like env values.
func expandEnvInLayer(data any) any {
	switch v := data.(type) {
	case configmap.Replace:
		return configmap.Replace{Value: expandEnvInLayer(v.Value)}
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return v
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = expandEnvInLayer(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = expandEnvInLayer(item)
		}
		return result
	default:
		return v
	}
}
