package llms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/protocol"
)

func newAnthropicTestProvider(t *testing.T, handler http.HandlerFunc) Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewAnthropicProvider("anthropic",
		config.ProviderInstance{Type: "anthropic", BaseURL: server.URL, APIKey: "sk-ant"}, discardLogger())
	require.NoError(t, err)
	return provider
}

func anthropicSSE(t *testing.T, lines []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			_, _ = w.Write([]byte("data: " + line + "\n\n"))
		}
	}
}

func TestAnthropicStream_FullTurn(t *testing.T) {
	provider := newAnthropicTestProvider(t, anthropicSSE(t, []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":12}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"let me see"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Sure."}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_1","name":"read_file"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"\"a.txt\"}"}}`,
		`{"type":"content_block_stop","index":2}`,
		`{"type":"message_delta","usage":{"output_tokens":9}}`,
		`{"type":"message_stop"}`,
	}))

	ch, err := provider.Stream(context.Background(), Request{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	events := drain(t, ch)

	thinking := eventsOfType(events, EventThinkingDelta)
	require.Len(t, thinking, 1)
	assert.Equal(t, "let me see", thinking[0].Text)

	text := eventsOfType(events, EventTextDelta)
	require.Len(t, text, 1)
	assert.Equal(t, "Sure.", text[0].Text)

	starts := eventsOfType(events, EventToolUseStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "toolu_1", starts[0].ToolCall.ID)

	stops := eventsOfType(events, EventContentStop)
	require.Len(t, stops, 1)
	assert.JSONEq(t, `{"path":"a.txt"}`, string(stops[0].ToolCall.Arguments))

	terminal := events[len(events)-1]
	require.Equal(t, EventMessageStop, terminal.Type)
	require.NotNil(t, terminal.Usage)
	assert.Equal(t, Usage{Input: 12, Output: 9, Total: 21}, *terminal.Usage)
}

func TestAnthropicStream_ErrorEvent(t *testing.T) {
	provider := newAnthropicTestProvider(t, anthropicSSE(t, []string{
		`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
	}))

	ch, err := provider.Stream(context.Background(), Request{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	events := drain(t, ch)

	last := events[len(events)-1]
	require.Equal(t, EventMessageStop, last.Type)
	require.Error(t, last.Err)
	assert.Contains(t, last.Err.Error(), "overloaded")
}

func TestAnthropicBuildRequest_Shape(t *testing.T) {
	provider, err := NewAnthropicProvider("anthropic",
		config.ProviderInstance{Type: "anthropic", APIKey: "k"}, discardLogger())
	require.NoError(t, err)
	p := provider.(*AnthropicProvider)

	req := p.buildRequest(Request{
		Model:  "claude-sonnet-4-20250514",
		System: "be brief",
		Messages: []protocol.Message{
			protocol.User("read it"),
			{Role: protocol.RoleAssistant, ToolCalls: []protocol.ToolCall{
				{ID: "toolu_1", Name: "read_file", Arguments: []byte(`{"path":"a"}`)},
			}},
			protocol.ToolResult("toolu_1", "read_file", "contents"),
		},
		Tools:     []ToolDefinition{{Name: "read_file", Parameters: map[string]any{"type": "object"}}},
		Reasoning: LevelMedium,
	}, true)

	// System rides separately, not as a message.
	assert.Equal(t, "be brief", req.System)
	require.Len(t, req.Messages, 3)

	assert.Equal(t, "tool_use", req.Messages[1].Content[0].Type)
	// Tool results map onto user-role tool_result blocks.
	assert.Equal(t, "user", req.Messages[2].Role)
	assert.Equal(t, "tool_result", req.Messages[2].Content[0].Type)
	assert.Equal(t, "toolu_1", req.Messages[2].Content[0].ToolUseID)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "read_file", req.Tools[0].Name)
	require.NotNil(t, req.Thinking)
	assert.Equal(t, 8192, req.Thinking["budget_tokens"])
}
