package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry is one parsed log line. Unknown fields are retained in Fields.
type Entry struct {
	Timestamp   string
	EventNumber int
	EventType   EventType
	Fields      map[string]any
}

// Parse reads a JSONL conversation log. Malformed lines are skipped so
// a partially written log (crash mid-session) still exports.
func Parse(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open conversation log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			continue
		}
		entry := Entry{Fields: fields}
		entry.Timestamp, _ = fields["timestamp"].(string)
		if n, ok := fields["event_number"].(float64); ok {
			entry.EventNumber = int(n)
		}
		if t, ok := fields["event_type"].(string); ok {
			entry.EventType = EventType(t)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read conversation log: %w", err)
	}
	return entries, nil
}

// ExportMarkdown re-parses a JSONL log into a presentation transcript.
// Every assistant message, tool call, and tool result appears exactly
// once, in event order.
func ExportMarkdown(path string) (string, error) {
	entries, err := Parse(path)
	if err != nil {
		return "", err
	}
	return RenderMarkdown(entries), nil
}

// RenderMarkdown formats parsed entries deterministically.
func RenderMarkdown(entries []Entry) string {
	var b strings.Builder

	for _, e := range entries {
		switch e.EventType {
		case EventSessionStart:
			fmt.Fprintf(&b, "# Conversation %s\n\n", str(e.Fields, "session_id"))
			fmt.Fprintf(&b, "- Provider: `%s`\n- Model: `%s`\n- Started: %s\n\n",
				str(e.Fields, "provider"), str(e.Fields, "model"), e.Timestamp)

		case EventContextReady:
			fmt.Fprintf(&b, "_Context v%d ready (prompt hash `%s`)._\n\n",
				num(e.Fields, "context_version"), str(e.Fields, "system_prompt_hash"))

		case EventUserMessage:
			fmt.Fprintf(&b, "## User\n\n%s\n\n", str(e.Fields, "content"))

		case EventAssistantMessage:
			b.WriteString("## Assistant\n\n")
			if thinking := str(e.Fields, "thinking"); thinking != "" {
				writeQuoted(&b, thinking)
			}
			fmt.Fprintf(&b, "%s\n\n", str(e.Fields, "content"))

		case EventThinking:
			writeQuoted(&b, str(e.Fields, "content"))

		case EventToolCall:
			fmt.Fprintf(&b, "**Tool call** `%s`\n\n```json\n%s\n```\n\n",
				str(e.Fields, "tool_name"), str(e.Fields, "tool_input"))

		case EventToolCallRecovered:
			fmt.Fprintf(&b, "_Tool call `%s` recovered from %s output._\n\n",
				str(e.Fields, "tool_name"), str(e.Fields, "origin"))

		case EventToolResult:
			status := "ok"
			if ok, _ := e.Fields["success"].(bool); !ok {
				status = "failed"
			}
			fmt.Fprintf(&b, "**Tool result** `%s` (%s)\n\n", str(e.Fields, "tool_name"), status)
			if output := str(e.Fields, "output"); output != "" {
				fmt.Fprintf(&b, "```\n%s\n```\n\n", output)
			}
			if errMsg := str(e.Fields, "error"); errMsg != "" {
				fmt.Fprintf(&b, "Error: %s\n\n", errMsg)
			}

		case EventUsage:
			fmt.Fprintf(&b, "_Usage: %d in / %d out / %d total tokens._\n\n",
				num(e.Fields, "input_tokens"), num(e.Fields, "output_tokens"),
				num(e.Fields, "total_tokens"))

		case EventError:
			fmt.Fprintf(&b, "**Error:** %s\n\n", str(e.Fields, "error"))

		case EventSessionEnd:
			fmt.Fprintf(&b, "---\n\nSession ended after %d events.\n", num(e.Fields, "total_events"))
		}
	}

	return b.String()
}

func writeQuoted(b *strings.Builder, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(b, "> %s\n", line)
	}
	b.WriteString("\n")
}

func str(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func num(fields map[string]any, key string) int {
	n, _ := fields[key].(float64)
	return int(n)
}
