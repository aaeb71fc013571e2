// Package transcript writes the append-only conversation log: one JSON
// object per line, flushed on every write, plus a markdown exporter for
// human consumption.
package transcript

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType names one kind of log entry.
type EventType string

const (
	EventSessionStart      EventType = "session_start"
	EventContextInit       EventType = "context_init"
	EventContextInjection  EventType = "context_injection"
	EventContextReady      EventType = "context_ready"
	EventUserMessage       EventType = "user_message"
	EventAssistantMessage  EventType = "assistant_message"
	EventThinking          EventType = "thinking"
	EventToolCall          EventType = "tool_call"
	EventToolResult        EventType = "tool_result"
	EventUsage             EventType = "usage"
	EventToolCallRecovered EventType = "tool_call_recovered"
	EventError             EventType = "error"
	EventSessionEnd        EventType = "session_end"
)

// rawPayloadCap bounds tool inputs and outputs in the log unless raw
// payloads are enabled.
const rawPayloadCap = 4096

// Logger appends conversation events as JSONL. All methods are safe for
// concurrent use; event numbers are monotonic starting at 1.
type Logger struct {
	mu        sync.Mutex
	w         *bufio.Writer
	closer    io.Closer
	path      string
	sessionID string

	eventNum       int
	contextVersion int
	closed         bool

	private     bool
	rawPayloads bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithPrivate redacts message content to hashes. Structural fields
// (event types, tool names, success flags) are kept.
func WithPrivate() Option {
	return func(l *Logger) { l.private = true }
}

// WithRawPayloads disables the size cap on tool inputs and outputs.
func WithRawPayloads() Option {
	return func(l *Logger) { l.rawPayloads = true }
}

// New opens (or creates) the JSONL log at path in append mode.
func New(path, sessionID string, opts ...Option) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open conversation log: %w", err)
	}
	l := NewWithWriter(f, sessionID, opts...)
	l.path = path
	l.closer = f
	return l, nil
}

// NewWithWriter builds a Logger over an arbitrary writer. The writer is
// not closed by Close unless it came from New.
func NewWithWriter(w io.Writer, sessionID string, opts ...Option) *Logger {
	l := &Logger{w: bufio.NewWriter(w), sessionID: sessionID}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path, empty for writer-backed loggers.
func (l *Logger) Path() string { return l.path }

// SessionID returns the session this log belongs to.
func (l *Logger) SessionID() string { return l.sessionID }

func (l *Logger) SessionStart(provider, model string) {
	l.write(EventSessionStart, map[string]any{
		"session_id": l.sessionID,
		"provider":   provider,
		"model":      model,
	})
}

// ContextInit records the base system prompt before any injection.
func (l *Logger) ContextInit(basePrompt string) {
	l.mu.Lock()
	l.contextVersion = 1
	l.mu.Unlock()
	l.write(EventContextInit, map[string]any{
		"base_system_prompt": l.redact(basePrompt),
		"context_version":    1,
	})
}

// InjectionRecord describes one context injection for the log.
type InjectionRecord struct {
	Source       string
	Location     string
	Content      string
	Origin       string
	TriggerType  string
	TriggerMatch string
	Metadata     map[string]any
}

// ContextInjection bumps the context version and records the injection
// with a content hash so private logs stay diffable.
func (l *Logger) ContextInjection(rec InjectionRecord) {
	l.mu.Lock()
	l.contextVersion++
	version := l.contextVersion
	l.mu.Unlock()

	fields := map[string]any{
		"context_version": version,
		"source":          rec.Source,
		"location":        rec.Location,
		"content":         l.redact(rec.Content),
		"content_hash":    ContentHash(rec.Content),
		"origin":          rec.Origin,
	}
	if rec.TriggerType != "" {
		fields["trigger_type"] = rec.TriggerType
	}
	if rec.TriggerMatch != "" {
		fields["trigger_match"] = rec.TriggerMatch
	}
	if len(rec.Metadata) > 0 {
		fields["metadata"] = rec.Metadata
	}
	l.write(EventContextInjection, fields)
}

// ContextReady seals context construction with the final prompt hash.
func (l *Logger) ContextReady(systemPrompt string) {
	l.mu.Lock()
	version := l.contextVersion
	l.mu.Unlock()
	l.write(EventContextReady, map[string]any{
		"context_version":    version,
		"system_prompt_hash": ContentHash(systemPrompt),
	})
}

func (l *Logger) UserMessage(content string) {
	l.write(EventUserMessage, map[string]any{"content": l.redact(content)})
}

func (l *Logger) AssistantMessage(content, thinking string) {
	fields := map[string]any{"content": l.redact(content)}
	if thinking != "" {
		fields["thinking"] = l.redact(thinking)
	}
	l.write(EventAssistantMessage, fields)
}

func (l *Logger) Thinking(content string) {
	l.write(EventThinking, map[string]any{"content": l.redact(content)})
}

func (l *Logger) ToolCall(toolName string, input json.RawMessage, toolID string) {
	fields := map[string]any{
		"tool_name":  toolName,
		"tool_input": l.redactPayload(string(input)),
	}
	if toolID != "" {
		fields["tool_id"] = toolID
	}
	l.write(EventToolCall, fields)
}

func (l *Logger) ToolResult(toolName string, success bool, output, errMsg, toolID string, duration time.Duration) {
	fields := map[string]any{
		"tool_name": toolName,
		"success":   success,
	}
	if output != "" {
		fields["output"] = l.redactPayload(output)
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if toolID != "" {
		fields["tool_id"] = toolID
	}
	if duration > 0 {
		fields["duration_ms"] = duration.Milliseconds()
	}
	l.write(EventToolResult, fields)
}

func (l *Logger) Usage(inputTokens, outputTokens, totalTokens int) {
	l.write(EventUsage, map[string]any{
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"total_tokens":  totalTokens,
	})
}

// ToolCallRecovered records a tool call reconstructed from thinking
// output rather than received through the wire protocol.
func (l *Logger) ToolCallRecovered(toolName, toolID, origin string) {
	fields := map[string]any{
		"tool_name": toolName,
		"origin":    origin,
	}
	if toolID != "" {
		fields["tool_id"] = toolID
	}
	l.write(EventToolCallRecovered, fields)
}

func (l *Logger) Error(err error, context string) {
	fields := map[string]any{"error": err.Error()}
	if context != "" {
		fields["context"] = context
	}
	l.write(EventError, fields)
}

// SessionEnd writes the terminal event. total_events includes the
// session_end entry itself.
func (l *Logger) SessionEnd() {
	l.mu.Lock()
	total := l.eventNum + 1
	l.mu.Unlock()
	l.write(EventSessionEnd, map[string]any{"total_events": total})
}

// Close flushes and releases the underlying file, if any. Further
// writes are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	err := l.w.Flush()
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (l *Logger) write(eventType EventType, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.eventNum++
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["event_number"] = l.eventNum
	entry["event_type"] = string(eventType)

	line, err := json.Marshal(entry)
	if err != nil {
		// Entries are built from plain values; a marshal failure here
		// means a programming error, not user input.
		return
	}
	l.w.Write(line)
	l.w.WriteByte('\n')
	l.w.Flush()
}

func (l *Logger) redact(content string) string {
	if l.private {
		return "sha256:" + ContentHash(content)
	}
	return content
}

// redactPayload applies private-mode redaction first, then the size cap
// for non-raw logs.
func (l *Logger) redactPayload(payload string) string {
	if l.private {
		return "sha256:" + ContentHash(payload)
	}
	if !l.rawPayloads && len(payload) > rawPayloadCap {
		return payload[:rawPayloadCap] + fmt.Sprintf(" [TRUNCATED at %d characters]", rawPayloadCap)
	}
	return payload
}

// ContentHash returns a short stable identifier for logged content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}
