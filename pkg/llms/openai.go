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

// OpenAIProvider speaks the OpenAI chat-completions wire format. It
// backs the openai, openrouter, vllm and lmstudio instance types,
// which differ only in base URL and authentication.
type OpenAIProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *httpclient.Client
	logger     *slog.Logger
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAIToolCall struct {
	// Index orders incremental deltas during streaming.
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	Stream          bool            `json:"stream"`
	StreamOptions   map[string]any  `json:"stream_options,omitempty"`
	Tools           []openAITool    `json:"tools,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			// Reasoning streams appear under either key depending on
			// the gateway.
			Reasoning        string           `json:"reasoning"`
			ReasoningContent string           `json:"reasoning_content"`
			ToolCalls        []openAIToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *openAIUsage `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

// newOpenAICompatibleFactory builds the Factory for one
// OpenAI-compatible instance type with its default base URL.
func newOpenAICompatibleFactory(defaultBaseURL string) Factory {
	return func(name string, cfg config.ProviderInstance, logger *slog.Logger) (Provider, error) {
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return &OpenAIProvider{
			name:    name,
			baseURL: strings.TrimSuffix(baseURL, "/"),
			apiKey:  cfg.APIKey,
			httpClient: httpclient.New(
				httpclient.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
				httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
				httpclient.WithLogger(logger),
			),
			logger: logger,
		}, nil
	}
}

func (p *OpenAIProvider) Name() string            { return p.name }
func (p *OpenAIProvider) SupportsTools() bool     { return true }
func (p *OpenAIProvider) SupportsReasoning() bool { return true }
func (p *OpenAIProvider) Close() error            { return nil }

func (p *OpenAIProvider) TranslateReasoningLevel(level Level) map[string]any {
	return translateOpenAIEffort(level, p.logger)
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	body := p.buildRequest(req, false)

	resp, err := p.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := parsed.Choices[0]
	out := &Response{Text: choice.Message.Content}
	for _, call := range choice.Message.ToolCalls {
		args, _ := parseToolArguments(call.Function.Arguments)
		out.ToolCalls = append(out.ToolCalls, protocol.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	if parsed.Usage != nil {
		out.Usage = Usage{
			Input:  parsed.Usage.PromptTokens,
			Output: parsed.Usage.CompletionTokens,
			Total:  parsed.Usage.TotalTokens,
		}
	}
	return out, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	body := p.buildRequest(req, true)

	resp, err := p.post(ctx, body)
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

func (p *OpenAIProvider) buildRequest(req Request, stream bool) openAIRequest {
	messages := make([]openAIMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, toOpenAIMessage(msg))
	}

	out := openAIRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	if stream {
		out.StreamOptions = map[string]any{"include_usage": true}
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openAITool{Type: "function", Function: tool})
	}
	if params := p.TranslateReasoningLevel(req.Reasoning); len(params) > 0 {
		if effort, ok := params["reasoning_effort"].(string); ok {
			out.ReasoningEffort = effort
		}
	}
	return out
}

func toOpenAIMessage(msg protocol.Message) openAIMessage {
	out := openAIMessage{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openAIToolCall{
			ID:   call.ID,
			Type: "function",
			Function: openAIToolFunction{
				Name:      call.Name,
				Arguments: string(call.Arguments),
			},
		})
	}
	return out
}

func (p *OpenAIProvider) post(ctx context.Context, body openAIRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

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
		var wrapped struct {
			Error *openAIError `json:"error"`
		}
		if json.Unmarshal(raw, &wrapped) == nil && wrapped.Error != nil {
			return nil, fmt.Errorf("API request failed with status %d: %s (type: %s)",
				resp.StatusCode, wrapped.Error.Message, wrapped.Error.Type)
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(raw))
	}
	return resp, nil
}

// consumeStream normalizes the SSE stream into the event union. Tool
// calls accumulate by index and finalize as content_stop events before
// the terminal message_stop.
func (p *OpenAIProvider) consumeStream(body io.Reader, events chan<- StreamEvent) {
	acc := newToolAccumulator()
	var usage *Usage
	lastIndex := -1

	fail := func(err error) {
		events <- StreamEvent{Type: EventMessageStop, Err: err}
	}
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
				fail(fmt.Errorf("failed to read stream: %w", err))
				return
			}
			break
		}

		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[len("data: "):]
		if bytes.Equal(line, []byte("[DONE]")) {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			fail(fmt.Errorf("API error: %s", chunk.Error.Message))
			return
		}
		if chunk.Usage != nil {
			usage = &Usage{
				Input:  chunk.Usage.PromptTokens,
				Output: chunk.Usage.CompletionTokens,
				Total:  chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if thinking := delta.Reasoning + delta.ReasoningContent; thinking != "" {
			events <- StreamEvent{Type: EventThinkingDelta, Text: thinking}
		}
		if delta.Content != "" {
			events <- StreamEvent{Type: EventTextDelta, Text: delta.Content}
		}
		for _, call := range delta.ToolCalls {
			index := lastIndex
			if call.Index != nil {
				index = *call.Index
			} else if call.ID != "" {
				// Some gateways omit indices; a fresh id opens the
				// next slot.
				index = lastIndex + 1
			}
			lastIndex = index

			if call.ID != "" || call.Function.Name != "" {
				emit(acc.start(index, call.ID, call.Function.Name))
			}
			emit(acc.delta(index, call.Function.Arguments))
		}
	}

	for _, e := range acc.finish() {
		events <- e
	}
	events <- StreamEvent{Type: EventMessageStop, Usage: usage}
}
