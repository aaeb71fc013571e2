package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcode/quill/pkg/config"
)

func newOllamaTestProvider(t *testing.T, handler http.HandlerFunc) Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewOllamaProvider("local",
		config.ProviderInstance{Type: "ollama", BaseURL: server.URL}, discardLogger())
	require.NoError(t, err)
	return provider
}

func ndjsonHandler(lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n"))
		}
	}
}

func TestOllamaStream_TextThinkingAndTools(t *testing.T) {
	provider := newOllamaTestProvider(t, ndjsonHandler([]string{
		`{"message":{"role":"assistant","thinking":"pondering"},"done":false}`,
		`{"message":{"role":"assistant","content":"Hello"},"done":false}`,
		`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"read_file","arguments":{"path":"a.txt"}}}]},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":20,"eval_count":8}`,
	}))

	ch, err := provider.Stream(context.Background(), Request{Model: "qwen3:8b"})
	require.NoError(t, err)
	events := drain(t, ch)

	require.Len(t, eventsOfType(events, EventThinkingDelta), 1)
	require.Len(t, eventsOfType(events, EventTextDelta), 1)

	starts := eventsOfType(events, EventToolUseStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "read_file", starts[0].ToolCall.Name)

	stops := eventsOfType(events, EventContentStop)
	require.Len(t, stops, 1)
	assert.JSONEq(t, `{"path":"a.txt"}`, string(stops[0].ToolCall.Arguments))
	assert.False(t, stops[0].Recovered)

	terminal := events[len(events)-1]
	require.Equal(t, EventMessageStop, terminal.Type)
	require.NotNil(t, terminal.Usage)
	assert.Equal(t, Usage{Input: 20, Output: 8, Total: 28}, *terminal.Usage)
}

func TestOllamaStream_ErrorChunk(t *testing.T) {
	provider := newOllamaTestProvider(t, ndjsonHandler([]string{
		`{"error":"model not found"}`,
	}))

	ch, err := provider.Stream(context.Background(), Request{Model: "missing"})
	require.NoError(t, err)
	events := drain(t, ch)

	last := events[len(events)-1]
	require.Equal(t, EventMessageStop, last.Type)
	require.Error(t, last.Err)
	assert.Contains(t, last.Err.Error(), "model not found")
}

func TestOllamaBuildRequest_ThinkField(t *testing.T) {
	provider, err := NewOllamaProvider("local", config.ProviderInstance{Type: "ollama"}, discardLogger())
	require.NoError(t, err)
	p := provider.(*OllamaProvider)

	req := p.buildRequest(Request{Model: "gpt-oss:20b", Reasoning: LevelOff}, true)
	assert.Equal(t, "low", req.Think)

	req = p.buildRequest(Request{Model: "qwen3:8b", Reasoning: LevelMedium, MaxTokens: 512}, true)
	assert.Equal(t, true, req.Think)
	assert.Equal(t, map[string]any{"num_predict": 512}, req.Options)

	req = p.buildRequest(Request{Model: "qwen3:8b", Reasoning: LevelAuto}, true)
	assert.Nil(t, req.Think)
}

func TestOllamaComplete(t *testing.T) {
	provider := newOllamaTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		_, _ = w.Write([]byte(`{
			"message":{"role":"assistant","content":"done","thinking":"brief thought"},
			"done":true,"prompt_eval_count":5,"eval_count":2
		}`))
	})

	resp, err := provider.Complete(context.Background(), Request{Model: "qwen3:8b"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, "brief thought", resp.Thinking)
	assert.Equal(t, Usage{Input: 5, Output: 2, Total: 7}, resp.Usage)
}
