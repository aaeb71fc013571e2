package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logFullSession(t *testing.T, opts ...Option) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	l, err := New(path, "sess-1", opts...)
	require.NoError(t, err)

	l.SessionStart("anthropic", "claude-sonnet-4")
	l.ContextInit("You are a coding assistant.")
	l.ContextInjection(InjectionRecord{
		Source:   "project-rules",
		Location: "prepend",
		Content:  "Always run tests.",
		Origin:   "rules",
	})
	l.ContextReady("final prompt text")
	l.UserMessage("list the files")
	l.Thinking("the user wants a directory listing")
	l.ToolCall("execute_command", json.RawMessage(`{"command":"ls"}`), "call_1")
	l.ToolResult("execute_command", true, "main.go\n", "", "call_1", 12*time.Millisecond)
	l.AssistantMessage("The directory contains main.go.", "done looking")
	l.Usage(120, 45, 165)
	l.SessionEnd()
	require.NoError(t, l.Close())
	return path
}

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry), scanner.Text())
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestLogger_FullSessionShape(t *testing.T) {
	entries := readEntries(t, logFullSession(t))
	require.Len(t, entries, 11)

	wantTypes := []string{
		"session_start", "context_init", "context_injection", "context_ready",
		"user_message", "thinking", "tool_call", "tool_result",
		"assistant_message", "usage", "session_end",
	}
	for i, entry := range entries {
		assert.Equal(t, wantTypes[i], entry["event_type"], "event %d", i)
		assert.Equal(t, float64(i+1), entry["event_number"], "numbering is monotonic from 1")

		ts, ok := entry["timestamp"].(string)
		require.True(t, ok)
		_, err := time.Parse(time.RFC3339Nano, ts)
		assert.NoError(t, err, "timestamp must be ISO-8601")
	}

	assert.Equal(t, "sess-1", entries[0]["session_id"])
	assert.Equal(t, float64(1), entries[1]["context_version"])
	assert.Equal(t, float64(2), entries[2]["context_version"])
	assert.Equal(t, float64(2), entries[3]["context_version"])
	assert.Equal(t, float64(12), entries[7]["duration_ms"])
	assert.Equal(t, float64(11), entries[10]["total_events"])
}

func TestLogger_PrivateModeRedactsContent(t *testing.T) {
	entries := readEntries(t, logFullSession(t, WithPrivate()))

	for _, entry := range entries {
		for _, key := range []string{"content", "thinking", "base_system_prompt", "tool_input", "output"} {
			if value, ok := entry[key].(string); ok {
				assert.True(t, strings.HasPrefix(value, "sha256:"),
					"%s in %s must be redacted, got %q", key, entry["event_type"], value)
			}
		}
	}

	// Hashes stay comparable across private and plain logs.
	plain := readEntries(t, logFullSession(t))
	var privateInjection, plainInjection map[string]any
	for _, e := range entries {
		if e["event_type"] == "context_injection" {
			privateInjection = e
		}
	}
	for _, e := range plain {
		if e["event_type"] == "context_injection" {
			plainInjection = e
		}
	}
	assert.Equal(t, plainInjection["content_hash"], privateInjection["content_hash"])
}

func TestLogger_PayloadCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.jsonl")
	l, err := New(path, "sess-cap")
	require.NoError(t, err)

	big := strings.Repeat("x", rawPayloadCap+100)
	l.ToolResult("read_file", true, big, "", "", 0)
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	output := entries[0]["output"].(string)
	assert.Contains(t, output, "[TRUNCATED at")
	assert.Less(t, len(output), len(big))
}

func TestLogger_RawPayloadsUncapped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.jsonl")
	l, err := New(path, "sess-raw", WithRawPayloads())
	require.NoError(t, err)

	big := strings.Repeat("x", rawPayloadCap+100)
	l.ToolResult("read_file", true, big, "", "", 0)
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	assert.Equal(t, big, entries[0]["output"])
}

func TestLogger_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.jsonl")

	l, err := New(path, "sess-r")
	require.NoError(t, err)
	l.UserMessage("first")
	require.NoError(t, l.Close())

	l, err = New(path, "sess-r")
	require.NoError(t, err)
	l.UserMessage("second")
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0]["content"])
	assert.Equal(t, "second", entries[1]["content"])
}

func TestLogger_WriteAfterCloseDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.jsonl")
	l, err := New(path, "sess-c")
	require.NoError(t, err)
	l.UserMessage("kept")
	require.NoError(t, l.Close())
	l.UserMessage("dropped")

	assert.Len(t, readEntries(t, path), 1)
}

func TestExportMarkdown_RoundTrip(t *testing.T) {
	path := logFullSession(t)

	md, err := ExportMarkdown(path)
	require.NoError(t, err)

	assert.Contains(t, md, "# Conversation sess-1")
	assert.Equal(t, 1, strings.Count(md, "## User"), "one user section")
	assert.Equal(t, 1, strings.Count(md, "## Assistant"), "assistant message exactly once")
	assert.Equal(t, 1, strings.Count(md, "**Tool call** `execute_command`"), "tool call exactly once")
	assert.Equal(t, 1, strings.Count(md, "**Tool result** `execute_command`"), "tool result exactly once")
	assert.Contains(t, md, "165 total tokens")
	assert.Contains(t, md, "Session ended after 11 events")

	// Deterministic: a second export is byte-identical.
	again, err := ExportMarkdown(path)
	require.NoError(t, err)
	assert.Equal(t, md, again)
}

func TestExportMarkdown_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.jsonl")
	content := `{"event_number":1,"event_type":"user_message","content":"hi","timestamp":"2026-08-24T10:00:00Z"}
{"event_number":2,"event_type":"assist`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	md, err := ExportMarkdown(path)
	require.NoError(t, err)
	assert.Contains(t, md, "hi")
}

func TestContentHash(t *testing.T) {
	assert.Len(t, ContentHash("abc"), 16)
	assert.Equal(t, ContentHash("abc"), ContentHash("abc"))
	assert.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
}

func TestToolCallRecoveredEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.jsonl")
	l, err := New(path, "sess-rec")
	require.NoError(t, err)
	l.ToolCallRecovered("execute_command", "rec_1", "thinking")
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "tool_call_recovered", entries[0]["event_type"])
	assert.Equal(t, "execute_command", entries[0]["tool_name"])
	assert.Equal(t, "thinking", entries[0]["origin"])
}

func TestErrorEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "err.jsonl")
	l, err := New(path, "sess-e")
	require.NoError(t, err)
	l.Error(fmt.Errorf("provider returned 500"), "stream")
	require.NoError(t, l.Close())

	entries := readEntries(t, path)
	assert.Equal(t, "provider returned 500", entries[0]["error"])
	assert.Equal(t, "stream", entries[0]["context"])
}
