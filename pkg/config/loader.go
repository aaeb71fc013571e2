package config

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/quillcode/quill/pkg/configmap"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// LayerName identifies a configuration source layer.
type LayerName string

const (
	LayerOverrides LayerName = "overrides"
	LayerEnv       LayerName = "env"
	LayerProject   LayerName = "project"
	LayerUser      LayerName = "user"
	LayerDefaults  LayerName = "defaults"
)

// LayerSource describes one loaded layer: its priority index in the
// DCM, and the file it came from when file-backed.
type LayerSource struct {
	Name  LayerName
	Index int
	// Path is empty for non-file layers (overrides, env, defaults).
	Path string
	// Data is the layer mapping installed in the DCM. The watcher
	// refreshes it in place on file change.
	Data map[string]any
}

// loadOptions collects the constructor knobs; see the With* options.
type loadOptions struct {
	overrides   map[string]any
	projectRoot string
	configDir   string
	envFile     string
	skipDotEnv  bool
}

type LoadOption func(*loadOptions)

// WithOverrides installs the highest-priority layer, above even the
// environment. Used for CLI flags.
func WithOverrides(m map[string]any) LoadOption {
	return func(o *loadOptions) { o.overrides = m }
}

// WithProjectRoot sets the directory searched for .quill/config.yaml
// and .env. Defaults to QUILL_PROJECT_ROOT, then the working directory.
func WithProjectRoot(dir string) LoadOption {
	return func(o *loadOptions) { o.projectRoot = dir }
}

// WithConfigDir overrides the user configuration directory
// (default QUILL_CONFIG_DIR, then ~/.config/quill).
func WithConfigDir(dir string) LoadOption {
	return func(o *loadOptions) { o.configDir = dir }
}

// WithEnvFile points at an explicit .env file instead of
// <project>/.env.
func WithEnvFile(path string) LoadOption {
	return func(o *loadOptions) { o.envFile = path }
}

// WithoutDotEnv disables .env loading entirely. Tests use this to keep
// the process environment under their own control.
func WithoutDotEnv() LoadOption {
	return func(o *loadOptions) { o.skipDotEnv = true }
}

func (o *loadOptions) resolveProjectRoot() string {
	if o.projectRoot != "" {
		return o.projectRoot
	}
	if dir := os.Getenv(projectRootEnv); dir != "" {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func (o *loadOptions) resolveConfigDir() string {
	if o.configDir != "" {
		return o.configDir
	}
	return DefaultConfigDir()
}

// DefaultConfigDir returns the user configuration directory, honoring
// the QUILL_CONFIG_DIR override.
func DefaultConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "quill")
}

// buildMap assembles the DCM from all sources, highest priority first:
// overrides > env > project file > user file > bundled defaults. The
// .env file is folded into the process environment before the env
// layer is read, so explicit environment variables still win over it.
func buildMap(o *loadOptions) (*configmap.Map, []LayerSource, error) {
	if err := checkLegacyEnv(); err != nil {
		return nil, nil, err
	}

	if !o.skipDotEnv {
		loadDotEnv(o)
	}

	defaults, err := decodeLayer(defaultsYAML, "defaults.yaml")
	if err != nil {
		return nil, nil, err
	}
	if len(defaults) == 0 {
		return nil, nil, &ConfigError{Path: "defaults.yaml", Message: "bundled defaults are empty"}
	}

	userPath := ""
	var userLayer map[string]any
	if dir := o.resolveConfigDir(); dir != "" {
		userPath = filepath.Join(dir, "config.yaml")
		userLayer, err = readLayerFile(userPath)
		if err != nil {
			return nil, nil, err
		}
	}

	projectPath := filepath.Join(o.resolveProjectRoot(), ".quill", "config.yaml")
	projectLayer, err := readLayerFile(projectPath)
	if err != nil {
		return nil, nil, err
	}

	envData, err := envLayer()
	if err != nil {
		return nil, nil, err
	}

	overrides := o.overrides
	if overrides == nil {
		overrides = map[string]any{}
	}

	var sources []LayerSource
	add := func(name LayerName, path string, data map[string]any) {
		if data == nil {
			data = map[string]any{}
		}
		sources = append(sources, LayerSource{Name: name, Index: len(sources), Path: path, Data: data})
	}
	add(LayerOverrides, "", overrides)
	add(LayerEnv, "", envData)
	add(LayerProject, projectPath, projectLayer)
	add(LayerUser, userPath, userLayer)
	add(LayerDefaults, "", defaults)

	layers := make([]map[string]any, len(sources))
	for i, src := range sources {
		layers[i] = src.Data
	}
	return configmap.New(layers...), sources, nil
}

func loadDotEnv(o *loadOptions) {
	path := o.envFile
	if path == "" {
		path = os.Getenv(envFileEnv)
	}
	if path == "" {
		path = filepath.Join(o.resolveProjectRoot(), ".env")
	}
	// godotenv never overwrites variables already present in the
	// process environment, which gives .env its below-env precedence.
	_ = godotenv.Load(path)
}

// readLayerFile parses one YAML layer file. A missing file yields an
// empty layer; a malformed one is fatal.
func readLayerFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, &ConfigError{Path: path, Message: "cannot read config file", Err: err}
	}
	return decodeLayer(data, path)
}

func decodeLayer(data []byte, path string) (map[string]any, error) {
	layer, err := configmap.DecodeYAML(data)
	if err != nil {
		return nil, &ConfigError{Path: path, Message: "invalid YAML", Err: err}
	}
	expanded := expandEnvInLayer(layer)
	out, _ := expanded.(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
