package agent

import (
	"encoding/json"

	"github.com/quillcode/quill/pkg/protocol"
	"github.com/quillcode/quill/pkg/tools"
)

// Callbacks is the processor's surface toward the UI. All methods are
// invoked from the turn's goroutine, in event order.
type Callbacks interface {
	OnThinking(text string)
	OnText(text string)
	// OnToolStart fires before a tool executes; recovered marks calls
	// reconstructed from thinking output.
	OnToolStart(call protocol.ToolCall, recovered bool)
	OnToolResult(toolName string, result tools.ToolResult)
	// IsCancelled is polled before every suspension point.
	IsCancelled() bool
	// RequestPermission gates tools whose Info reports
	// RequiresPermission. Returning false denies the call.
	RequestPermission(info tools.ToolInfo, args json.RawMessage) bool
}

// NopCallbacks ignores events, never cancels, and approves everything.
// Useful for print mode and tests.
type NopCallbacks struct{}

func (NopCallbacks) OnThinking(string)                         {}
func (NopCallbacks) OnText(string)                             {}
func (NopCallbacks) OnToolStart(protocol.ToolCall, bool)       {}
func (NopCallbacks) OnToolResult(string, tools.ToolResult)     {}
func (NopCallbacks) IsCancelled() bool                         { return false }
func (NopCallbacks) RequestPermission(tools.ToolInfo, json.RawMessage) bool {
	return true
}
