package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/protocol"
	"github.com/quillcode/quill/pkg/transcript"
)

// SessionCmd manages recorded conversation logs.
type SessionCmd struct {
	List   SessionListCmd   `cmd:"" help:"List recorded sessions."`
	Show   SessionShowCmd   `cmd:"" help:"Render a session as markdown."`
	Delete SessionDeleteCmd `cmd:"" help:"Delete a recorded session."`
}

// sessionDir resolves where conversation logs live: session.dir, then
// logging.dir, then the user data directory.
func sessionDir(settings *config.Settings) string {
	if dir := settings.Session().Dir; dir != "" {
		return dir
	}
	if dir := settings.Logging().Dir; dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "quill", "sessions")
}

type SessionListCmd struct{}

func (c *SessionListCmd) Run() error {
	settings, err := config.New()
	if err != nil {
		return err
	}
	dir := sessionDir(settings)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		fmt.Println("no sessions recorded")
		return nil
	}
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	sort.Strings(names)

	for _, name := range names {
		id := strings.TrimSuffix(name, ".jsonl")
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		fmt.Printf("%-40s %8d bytes  %s\n", id, info.Size(), info.ModTime().Format("2006-01-02 15:04"))
	}
	return nil
}

type SessionShowCmd struct {
	ID string `arg:"" help:"Session id."`
}

func (c *SessionShowCmd) Run() error {
	settings, err := config.New()
	if err != nil {
		return err
	}

	md, err := transcript.ExportMarkdown(filepath.Join(sessionDir(settings), c.ID+".jsonl"))
	if err != nil {
		return err
	}
	fmt.Print(md)
	return nil
}

type SessionDeleteCmd struct {
	ID string `arg:"" help:"Session id."`
}

func (c *SessionDeleteCmd) Run() error {
	settings, err := config.New()
	if err != nil {
		return err
	}

	path := filepath.Join(sessionDir(settings), c.ID+".jsonl")
	if err := os.Remove(path); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", c.ID)
	return nil
}

// loadSessionMessages rebuilds conversation history from a recorded
// log, for --resume. Tool calls are reattached to the assistant message
// that produced them.
func loadSessionMessages(path string) ([]protocol.Message, error) {
	entries, err := transcript.Parse(path)
	if err != nil {
		return nil, err
	}

	var messages []protocol.Message
	for _, e := range entries {
		switch e.EventType {
		case transcript.EventUserMessage:
			messages = append(messages, protocol.User(field(e, "content")))

		case transcript.EventAssistantMessage:
			msg := protocol.Assistant(field(e, "content"))
			msg.Thinking = field(e, "thinking")
			messages = append(messages, msg)

		case transcript.EventToolCall:
			if len(messages) == 0 {
				continue
			}
			last := &messages[len(messages)-1]
			if last.Role != protocol.RoleAssistant {
				continue
			}
			last.ToolCalls = append(last.ToolCalls, protocol.ToolCall{
				ID:        field(e, "tool_id"),
				Name:      field(e, "tool_name"),
				Arguments: json.RawMessage(field(e, "tool_input")),
			})

		case transcript.EventToolResult:
			content := field(e, "output")
			if errMsg := field(e, "error"); errMsg != "" {
				content = "Error: " + errMsg
			}
			messages = append(messages, protocol.ToolResult(
				field(e, "tool_id"), field(e, "tool_name"), content))
		}
	}
	return messages, nil
}

func field(e transcript.Entry, key string) string {
	s, _ := e.Fields[key].(string)
	return s
}
