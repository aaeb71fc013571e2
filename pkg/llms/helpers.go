package llms

import (
	"encoding/json"
	"strings"

	"github.com/quillcode/quill/pkg/protocol"
)

// toolAccumulator assembles incremental tool calls keyed by stream
// index and finalizes them into content_stop events.
type toolAccumulator struct {
	order []int
	calls map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolAccumulator() *toolAccumulator {
	return &toolAccumulator{calls: make(map[int]*pendingCall)}
}

// start registers a new call slot and returns its tool_use_start
// event. Re-announcing a known index only fills in missing fields.
func (a *toolAccumulator) start(index int, id, name string) *StreamEvent {
	if existing, ok := a.calls[index]; ok {
		if existing.id == "" {
			existing.id = id
		}
		if existing.name == "" {
			existing.name = name
		}
		return nil
	}
	a.calls[index] = &pendingCall{id: id, name: name}
	a.order = append(a.order, index)
	return &StreamEvent{
		Type:     EventToolUseStart,
		Index:    index,
		ToolCall: &protocol.ToolCall{ID: id, Name: name},
	}
}

// delta appends an argument fragment and returns its event, or nil for
// an index that never started.
func (a *toolAccumulator) delta(index int, fragment string) *StreamEvent {
	call, ok := a.calls[index]
	if !ok || fragment == "" {
		return nil
	}
	call.args.WriteString(fragment)
	return &StreamEvent{Type: EventToolUseDelta, Index: index, Text: fragment}
}

// empty reports whether no calls were accumulated.
func (a *toolAccumulator) empty() bool { return len(a.order) == 0 }

// finish emits one content_stop per accumulated call, in stream order.
// Arguments that fail to parse as a JSON object become an empty object
// with Recovered set.
func (a *toolAccumulator) finish() []StreamEvent {
	events := make([]StreamEvent, 0, len(a.order))
	for _, index := range a.order {
		call := a.calls[index]
		args, recovered := parseToolArguments(call.args.String())
		events = append(events, StreamEvent{
			Type:  EventContentStop,
			Index: index,
			ToolCall: &protocol.ToolCall{
				ID:        call.id,
				Name:      call.name,
				Arguments: args,
			},
			Recovered: recovered,
		})
	}
	return events
}

// parseToolArguments validates raw argument JSON. Empty input and
// invalid JSON both degrade to an empty object; only the invalid case
// is flagged for recovery.
func parseToolArguments(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage(`{}`), false
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), false
	}
	return json.RawMessage(`{}`), true
}
