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

// OllamaProvider speaks the Ollama /api/chat NDJSON protocol. Tool
// calls arrive complete rather than as argument deltas.
type OllamaProvider struct {
	name       string
	baseURL    string
	httpClient *httpclient.Client
	logger     *slog.Logger
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ToolDefinition `json:"function"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	// Think is a bool for most reasoning models and a string level
	// for the GPT-OSS family.
	Think   any            `json:"think,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaChunk struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error,omitempty"`
}

// NewOllamaProvider is the Factory for the ollama instance type.
func NewOllamaProvider(name string, cfg config.ProviderInstance, logger *slog.Logger) (Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 10 * time.Minute}),
			httpclient.WithLogger(logger),
		),
		logger: logger,
	}, nil
}

func (p *OllamaProvider) Name() string            { return p.name }
func (p *OllamaProvider) SupportsTools() bool     { return true }
func (p *OllamaProvider) SupportsReasoning() bool { return true }
func (p *OllamaProvider) Close() error            { return nil }

// isGPTOSS reports whether the model takes string think levels.
func isGPTOSS(model string) bool {
	return strings.Contains(strings.ToLower(model), "gpt-oss")
}

// TranslateReasoningLevel produces the think parameter. The GPT-OSS
// family takes {low, medium, high} and cannot be disabled, so off
// clamps to low; other reasoning models take a boolean.
func (p *OllamaProvider) TranslateReasoningLevel(level Level) map[string]any {
	return p.translateForModel(level, "")
}

func (p *OllamaProvider) translateForModel(level Level, model string) map[string]any {
	switch {
	case level == LevelAuto || level == "":
		return map[string]any{}
	case level.IsRaw():
		return map[string]any{"think": level.RawValue()}
	}
	if !level.IsKnown() {
		p.logger.Warn("unknown reasoning level passed through", "level", string(level))
		return map[string]any{"think": string(level)}
	}
	if isGPTOSS(model) {
		return map[string]any{"think": gptOSSLevel[level]}
	}
	return map[string]any{"think": level != LevelOff}
}

func (p *OllamaProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed ollamaChunk
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("API error: %s", parsed.Error)
	}

	out := &Response{
		Text:     parsed.Message.Content,
		Thinking: parsed.Message.Thinking,
		Usage: Usage{
			Input:  parsed.PromptEvalCount,
			Output: parsed.EvalCount,
			Total:  parsed.PromptEvalCount + parsed.EvalCount,
		},
	}
	for i, call := range parsed.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, protocol.ToolCall{
			ID:        ollamaCallID(i),
			Name:      call.Function.Name,
			Arguments: normalizeArgs(call.Function.Arguments),
		})
	}
	return out, nil
}

func (p *OllamaProvider) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
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

func (p *OllamaProvider) buildRequest(req Request, stream bool) ollamaRequest {
	out := ollamaRequest{
		Model:  req.Model,
		Stream: stream,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		m := ollamaMessage{Role: string(msg.Role), Content: msg.Content}
		for _, call := range msg.ToolCalls {
			var oc ollamaToolCall
			oc.Function.Name = call.Name
			oc.Function.Arguments = call.Arguments
			m.ToolCalls = append(m.ToolCalls, oc)
		}
		out.Messages = append(out.Messages, m)
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, ollamaTool{Type: "function", Function: tool})
	}
	if req.MaxTokens > 0 {
		out.Options = map[string]any{"num_predict": req.MaxTokens}
	}
	if params := p.translateForModel(req.Reasoning, req.Model); len(params) > 0 {
		out.Think = params["think"]
	}
	return out
}

func (p *OllamaProvider) post(ctx context.Context, body ollamaRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	req.Header.Set("Content-Type", "application/json")

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

// consumeStream normalizes the NDJSON stream. Complete tool calls
// expand into start + content_stop pairs at the end of the message.
func (p *OllamaProvider) consumeStream(body io.Reader, events chan<- StreamEvent) {
	var calls []ollamaToolCall
	var usage *Usage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			events <- StreamEvent{Type: EventMessageStop,
				Err: fmt.Errorf("API error: %s", chunk.Error)}
			return
		}

		if chunk.Message.Thinking != "" {
			events <- StreamEvent{Type: EventThinkingDelta, Text: chunk.Message.Thinking}
		}
		if chunk.Message.Content != "" {
			events <- StreamEvent{Type: EventTextDelta, Text: chunk.Message.Content}
		}
		calls = append(calls, chunk.Message.ToolCalls...)

		if chunk.Done {
			usage = &Usage{
				Input:  chunk.PromptEvalCount,
				Output: chunk.EvalCount,
				Total:  chunk.PromptEvalCount + chunk.EvalCount,
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Type: EventMessageStop,
			Err: fmt.Errorf("failed to read stream: %w", err)}
		return
	}

	for i, call := range calls {
		id := ollamaCallID(i)
		events <- StreamEvent{
			Type:     EventToolUseStart,
			Index:    i,
			ToolCall: &protocol.ToolCall{ID: id, Name: call.Function.Name},
		}
		args, recovered := parseToolArguments(string(normalizeArgs(call.Function.Arguments)))
		events <- StreamEvent{
			Type:  EventContentStop,
			Index: i,
			ToolCall: &protocol.ToolCall{
				ID:        id,
				Name:      call.Function.Name,
				Arguments: args,
			},
			Recovered: recovered,
		}
	}
	events <- StreamEvent{Type: EventMessageStop, Usage: usage}
}

func ollamaCallID(index int) string {
	return fmt.Sprintf("call_%d", index)
}

func normalizeArgs(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
