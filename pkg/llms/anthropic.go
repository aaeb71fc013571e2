package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quillcode/quill/internal/httpclient"
	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/protocol"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicProvider speaks the Anthropic messages API, including its
// event-stream framing and extended-thinking blocks.
type AnthropicProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *httpclient.Client
	logger     *slog.Logger
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// Thinking blocks.
	Thinking string `json:"thinking,omitempty"`
	// Tool use blocks.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// Tool result blocks.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Thinking  map[string]any     `json:"thinking,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// anthropicStreamEvent is the union of the SSE payloads we consume.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`

	ContentBlock *anthropicContent `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta,omitempty"`

	Usage *anthropicUsage `json:"usage,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicProvider is the Factory for the anthropic instance type.
func NewAnthropicProvider(name string, cfg config.ProviderInstance, logger *slog.Logger) (Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
			httpclient.WithLogger(logger),
		),
		logger: logger,
	}, nil
}

func (p *AnthropicProvider) Name() string            { return p.name }
func (p *AnthropicProvider) SupportsTools() bool     { return true }
func (p *AnthropicProvider) SupportsReasoning() bool { return true }
func (p *AnthropicProvider) Close() error            { return nil }

// TranslateReasoningLevel maps the unified vocabulary onto extended
// thinking budgets. off disables thinking explicitly; auto defers to
// the API default.
func (p *AnthropicProvider) TranslateReasoningLevel(level Level) map[string]any {
	switch {
	case level == LevelAuto || level == "":
		return map[string]any{}
	case level == LevelOff:
		return map[string]any{"thinking": map[string]any{"type": "disabled"}}
	case level.IsRaw():
		return map[string]any{"thinking": map[string]any{"type": level.RawValue()}}
	}
	if budget, ok := anthropicBudget[level]; ok {
		return map[string]any{"thinking": map[string]any{
			"type":          "enabled",
			"budget_tokens": budget,
		}}
	}
	p.logger.Warn("unknown reasoning level passed through", "level", string(level))
	return map[string]any{}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}

	out := &Response{Usage: Usage{
		Input:  parsed.Usage.InputTokens,
		Output: parsed.Usage.OutputTokens,
		Total:  parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "thinking":
			out.Thinking += block.Thinking
		case "tool_use":
			args, _ := parseToolArguments(string(block.Input))
			out.ToolCalls = append(out.ToolCalls, protocol.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	return out, nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 64)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		p.consumeStream(resp.Body, events)
	}()
	return events, nil
}

// buildRequest separates the system prompt and renders messages as
// content blocks; tool results become tool_result blocks on a user
// message per the messages API shape.
func (p *AnthropicProvider) buildRequest(req Request, stream bool) anthropicRequest {
	out := anthropicRequest{
		Model:     req.Model,
		System:    req.System,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = 4096
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case protocol.RoleTool:
			out.Messages = append(out.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		case protocol.RoleAssistant:
			var blocks []anthropicContent
			if msg.Content != "" {
				blocks = append(blocks, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropicContent{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: call.Arguments,
				})
			}
			out.Messages = append(out.Messages, anthropicMessage{Role: "assistant", Content: blocks})
		case protocol.RoleUser:
			out.Messages = append(out.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: msg.Content}},
			})
		}
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}
	if params := p.TranslateReasoningLevel(req.Reasoning); len(params) > 0 {
		if thinking, ok := params["thinking"].(map[string]any); ok {
			out.Thinking = thinking
		}
	}
	return out
}

func (p *AnthropicProvider) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// consumeStream normalizes the Anthropic event stream. Block indices
// map directly to accumulator slots; input_json_delta fragments build
// the tool arguments.
func (p *AnthropicProvider) consumeStream(body io.Reader, events chan<- StreamEvent) {
	acc := newToolAccumulator()
	var usage Usage
	sawUsage := false

	emit := func(e *StreamEvent) {
		if e != nil {
			events <- *e
		}
	}

	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				events <- StreamEvent{Type: EventMessageStop,
					Err: fmt.Errorf("failed to read stream: %w", err)}
				return
			}
			break
		}

		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal(line[len("data: "):], &event); err != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				usage.Input = event.Message.Usage.InputTokens
				sawUsage = true
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				emit(acc.start(event.Index, event.ContentBlock.ID, event.ContentBlock.Name))
			}

		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				events <- StreamEvent{Type: EventTextDelta, Text: event.Delta.Text}
			case "thinking_delta":
				events <- StreamEvent{Type: EventThinkingDelta, Text: event.Delta.Thinking}
			case "input_json_delta":
				emit(acc.delta(event.Index, event.Delta.PartialJSON))
			}

		case "message_delta":
			if event.Usage != nil {
				usage.Output = event.Usage.OutputTokens
				sawUsage = true
			}

		case "error":
			if event.Error != nil {
				events <- StreamEvent{Type: EventMessageStop,
					Err: fmt.Errorf("API error: %s", event.Error.Message)}
				return
			}

		case "message_stop":
			goto done
		}
	}

done:
	for _, e := range acc.finish() {
		events <- e
	}
	terminal := StreamEvent{Type: EventMessageStop}
	if sawUsage {
		usage.Total = usage.Input + usage.Output
		terminal.Usage = &usage
	}
	events <- terminal
}
