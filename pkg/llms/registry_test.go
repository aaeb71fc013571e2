package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcode/quill/pkg/config"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry(discardLogger())

	provider, err := r.Create("openai", config.ProviderInstance{Type: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", provider.Name())

	got, err := r.GetProvider("openai")
	require.NoError(t, err)
	assert.Same(t, provider, got)
}

func TestRegistry_UnknownTypeListsAvailableAndConfigPath(t *testing.T) {
	r := NewRegistry(discardLogger())

	_, err := r.Create("myinstance", config.ProviderInstance{Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
	assert.Contains(t, err.Error(), "anthropic")
	assert.Contains(t, err.Error(), "ollama")
	assert.Contains(t, err.Error(), "providers.instances.myinstance.type")
}

func TestRegistry_AllConfigTypesConstructible(t *testing.T) {
	r := NewRegistry(discardLogger())
	for _, providerType := range config.KnownProviderTypes {
		_, err := r.Create("inst-"+providerType, config.ProviderInstance{Type: providerType})
		require.NoError(t, err, "type %s", providerType)
	}
}

func TestRegistry_DuplicateInstanceRejected(t *testing.T) {
	r := NewRegistry(discardLogger())

	_, err := r.Create("openai", config.ProviderInstance{Type: "openai"})
	require.NoError(t, err)
	_, err = r.Create("openai", config.ProviderInstance{Type: "openai"})
	require.Error(t, err)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry(discardLogger())
	_, err := r.GetProvider("nope")
	require.Error(t, err)
}
