package llms

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quillcode/quill/pkg/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelAuto, ParseLevel(""))
	assert.Equal(t, LevelHigh, ParseLevel("HIGH"))
	assert.Equal(t, LevelOff, ParseLevel("  off "))
	assert.Equal(t, Level("raw:banana"), ParseLevel("raw:banana"))
}

func TestTranslateOpenAIEffort(t *testing.T) {
	logger := discardLogger()
	tests := []struct {
		level Level
		want  map[string]any
	}{
		{LevelAuto, map[string]any{}},
		{LevelOff, map[string]any{"reasoning_effort": "none"}},
		{LevelMinimal, map[string]any{"reasoning_effort": "minimal"}},
		{LevelLow, map[string]any{"reasoning_effort": "low"}},
		{LevelMedium, map[string]any{"reasoning_effort": "medium"}},
		{LevelHigh, map[string]any{"reasoning_effort": "high"}},
		{LevelMaximum, map[string]any{"reasoning_effort": "xhigh"}},
		{Level("raw:ultra"), map[string]any{"reasoning_effort": "ultra"}},
		// Unknown levels pass through with a warning.
		{Level("turbo"), map[string]any{"reasoning_effort": "turbo"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, translateOpenAIEffort(tt.level, logger), "level %s", tt.level)
	}
}

func TestOllamaTranslate_GPTOSSClamp(t *testing.T) {
	provider, err := NewOllamaProvider("local", config.ProviderInstance{Type: "ollama"}, discardLogger())
	assert.NoError(t, err)
	p := provider.(*OllamaProvider)

	tests := []struct {
		level Level
		want  string
	}{
		{LevelOff, "low"},
		{LevelMinimal, "low"},
		{LevelLow, "low"},
		{LevelMedium, "medium"},
		{LevelHigh, "high"},
		{LevelMaximum, "high"},
	}
	for _, tt := range tests {
		got := p.translateForModel(tt.level, "gpt-oss:20b")
		assert.Equal(t, map[string]any{"think": tt.want}, got, "level %s", tt.level)
	}

	assert.Empty(t, p.translateForModel(LevelAuto, "gpt-oss:20b"))
}

func TestOllamaTranslate_BooleanThink(t *testing.T) {
	provider, err := NewOllamaProvider("local", config.ProviderInstance{Type: "ollama"}, discardLogger())
	assert.NoError(t, err)
	p := provider.(*OllamaProvider)

	assert.Equal(t, map[string]any{"think": false}, p.translateForModel(LevelOff, "qwen3:8b"))
	assert.Equal(t, map[string]any{"think": true}, p.translateForModel(LevelHigh, "qwen3:8b"))
	assert.Empty(t, p.translateForModel(LevelAuto, "qwen3:8b"))
}

func TestAnthropicTranslate_Budgets(t *testing.T) {
	provider, err := NewAnthropicProvider("anthropic", config.ProviderInstance{Type: "anthropic"}, discardLogger())
	assert.NoError(t, err)
	p := provider.(*AnthropicProvider)

	assert.Empty(t, p.TranslateReasoningLevel(LevelAuto))

	got := p.TranslateReasoningLevel(LevelHigh)
	thinking := got["thinking"].(map[string]any)
	assert.Equal(t, "enabled", thinking["type"])
	assert.Equal(t, 16384, thinking["budget_tokens"])

	off := p.TranslateReasoningLevel(LevelOff)
	assert.Equal(t, "disabled", off["thinking"].(map[string]any)["type"])
}
