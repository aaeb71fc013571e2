package configmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDecodeYAML_Tags(t *testing.T) {
	data := []byte(`
behavior:
  max_tokens: 4096
  verbose: !delete
providers:
  openrouter: !replace
    type: openrouter
items:
  - one
  - 2
`)
	layer, err := DecodeYAML(data)
	require.NoError(t, err)

	behavior := layer["behavior"].(map[string]any)
	assert.Equal(t, 4096, behavior["max_tokens"])
	assert.True(t, IsDelete(behavior["verbose"]))

	providers := layer["providers"].(map[string]any)
	r, ok := providers["openrouter"].(Replace)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "openrouter"}, r.Value)

	assert.Equal(t, []any{"one", 2}, layer["items"])
}

func TestDecodeYAML_Empty(t *testing.T) {
	layer, err := DecodeYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, layer)
}

func TestDecodeYAML_NonMappingTopLevel(t *testing.T) {
	_, err := DecodeYAML([]byte("- just\n- a list\n"))
	require.Error(t, err)
}

func TestDecodeYAML_Malformed(t *testing.T) {
	_, err := DecodeYAML([]byte("a: [unclosed"))
	require.Error(t, err)
}

func TestDecodeYAMLWithLines(t *testing.T) {
	data := []byte("top:\n  nested: 1\nother: 2\n")
	layer, lines, err := DecodeYAMLWithLines(data)
	require.NoError(t, err)
	require.Contains(t, layer, "top")

	assert.Equal(t, 1, lines["top"].Line)
	assert.Equal(t, 2, lines["top.nested"].Line)
	assert.Equal(t, 3, lines["other"].Line)
}

// YAML -> DCM -> ToMap round-trips to the same merged mapping when no
// user mutations are applied.
func TestYAMLRoundTrip(t *testing.T) {
	data := []byte(`
behavior:
  max_tokens: 8192
  verbose: false
models:
  default: openai/gpt-4o
  favorites:
    - openai/gpt-4o
`)
	layer, err := DecodeYAML(data)
	require.NoError(t, err)

	m := New(layer)
	out, err := yaml.Marshal(m.ToMap())
	require.NoError(t, err)

	reparsed, err := DecodeYAML(out)
	require.NoError(t, err)
	assert.Equal(t, New(reparsed).ToMap(), m.ToMap())
}
