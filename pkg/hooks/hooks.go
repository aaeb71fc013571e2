// Package hooks runs user-configured subprocess hooks around context
// building and tool execution. Hooks receive a JSON context on stdin
// and may answer with a JSON result on stdout.
package hooks

import (
	"encoding/json"
	"time"
)

// Event names the dispatch points.
type Event string

const (
	EventContextBuild Event = "CONTEXT_BUILD"
	EventPreToolUse   Event = "PRE_TOOL_USE"
	EventPostToolUse  Event = "POST_TOOL_USE"
)

// DefaultTimeout is the hard per-hook deadline.
const DefaultTimeout = 30 * time.Second

// Action is a hook's verdict.
type Action string

const (
	ActionContinue Action = "continue"
	ActionBlock    Action = "block"
	ActionSkip     Action = "skip"
)

// Location places a context injection relative to the base prompt.
type Location string

const (
	LocationPrepend Location = "prepend"
	LocationAppend  Location = "append"
)

// Context is serialized to the hook's stdin.
type Context struct {
	Event     Event  `json:"event"`
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd"`

	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolResult json.RawMessage `json:"tool_result,omitempty"`

	BaseSystemPrompt string   `json:"base_system_prompt,omitempty"`
	InjectionsSoFar  []string `json:"injections_so_far,omitempty"`
}

// Result is the structure a hook may print on stdout. An empty stdout
// with exit 0 means continue.
type Result struct {
	Action  Action `json:"action"`
	Message string `json:"message,omitempty"`

	ModifiedInput  json.RawMessage `json:"modified_input,omitempty"`
	ModifiedOutput *string         `json:"modified_output,omitempty"`

	InjectSystemMessage string   `json:"inject_system_message,omitempty"`
	ContextInjection    string   `json:"context_injection,omitempty"`
	ContextLocation     Location `json:"context_location,omitempty"`
}

// Injection is one pending prompt addition produced by a hook.
type Injection struct {
	Content  string
	Location Location
	// Source is the hook command that produced the injection.
	Source string
}

// Outcome aggregates a sequential dispatch over all matching hooks.
type Outcome struct {
	// Blocked is only ever set for PRE_TOOL_USE.
	Blocked      bool
	BlockMessage string
	// Skipped means the tool should not run but the turn continues.
	Skipped bool

	ModifiedInput  json.RawMessage
	ModifiedOutput *string

	SystemMessages []string
	Injections     []Injection
}
