// Package llms presents a uniform facade over heterogeneous HTTP LLM
// APIs: single-shot completion and streaming with a normalized event
// sequence, plus reasoning-level translation into each provider's
// native knobs.
package llms

import (
	"context"

	"github.com/quillcode/quill/pkg/protocol"
)

// StreamEventType tags one normalized stream event.
type StreamEventType string

const (
	EventThinkingDelta StreamEventType = "thinking_delta"
	EventTextDelta     StreamEventType = "text_delta"
	EventToolUseStart  StreamEventType = "tool_use_start"
	EventToolUseDelta  StreamEventType = "tool_use_delta"
	EventContentStop   StreamEventType = "content_stop"
	EventMessageStop   StreamEventType = "message_stop"
)

// Usage is the token accounting reported by a provider.
type Usage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// StreamEvent is the normalized union every provider stream emits.
//
//   - thinking_delta / text_delta carry Text.
//   - tool_use_start carries Index and ToolCall with id and name set.
//   - tool_use_delta carries Index and an argument fragment in Text.
//   - content_stop carries the fully accumulated ToolCall with parsed
//     arguments; Recovered is set when the raw arguments were not valid
//     JSON and were replaced with an empty object.
//   - message_stop carries Usage when the provider reported it, and
//     Err when the stream failed mid-flight.
type StreamEvent struct {
	Type      StreamEventType
	Text      string
	Index     int
	ToolCall  *protocol.ToolCall
	Recovered bool
	Usage     *Usage
	Err       error
}

// ToolDefinition describes one callable tool for the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the provider-neutral completion request.
type Request struct {
	Model     string
	System    string
	Messages  []protocol.Message
	Tools     []ToolDefinition
	MaxTokens int
	Reasoning Level
}

// Response is a completed (non-streaming) model turn.
type Response struct {
	Text      string
	Thinking  string
	ToolCalls []protocol.ToolCall
	Usage     Usage
}

// Provider is one configured LLM endpoint.
type Provider interface {
	// Name returns the instance name from configuration.
	Name() string

	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream starts a streaming completion. The returned channel is
	// closed after a terminal message_stop event. Transport failures
	// before the stream starts are returned directly; mid-stream
	// failures arrive as a message_stop event carrying Err.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	SupportsTools() bool
	SupportsReasoning() bool

	// TranslateReasoningLevel maps the unified level to this
	// provider's native request parameters. Empty map means "let the
	// provider default".
	TranslateReasoningLevel(level Level) map[string]any

	Close() error
}
