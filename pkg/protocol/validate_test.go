package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(id, name string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: json.RawMessage(`{}`)}
}

func assistantWithCalls(calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

func TestValidateSequence(t *testing.T) {
	tests := []struct {
		name    string
		msgs    []Message
		opts    ValidateOptions
		wantErr error
	}{
		{
			name: "simple exchange",
			msgs: []Message{System("be brief"), User("hi"), Assistant("hello")},
		},
		{
			name: "empty sequence",
			msgs: nil,
		},
		{
			name: "tool round trip",
			msgs: []Message{
				User("list files"),
				assistantWithCalls(call("c1", "read_file")),
				ToolResult("c1", "read_file", "ok"),
				Assistant("done"),
			},
		},
		{
			name: "multiple calls answered in any order",
			msgs: []Message{
				User("go"),
				assistantWithCalls(call("c1", "a"), call("c2", "b")),
				ToolResult("c2", "b", "ok"),
				ToolResult("c1", "a", "ok"),
				Assistant("done"),
			},
		},
		{
			name:    "system not first",
			msgs:    []Message{User("hi"), System("late")},
			wantErr: ErrSystemPosition,
		},
		{
			name:    "consecutive user",
			msgs:    []Message{User("a"), User("b")},
			wantErr: ErrConsecutiveUser,
		},
		{
			name:    "consecutive assistant",
			msgs:    []Message{User("a"), Assistant("x"), Assistant("y")},
			wantErr: ErrConsecutiveAssistant,
		},
		{
			name: "assistant before results complete",
			msgs: []Message{
				User("go"),
				assistantWithCalls(call("c1", "a"), call("c2", "b")),
				ToolResult("c1", "a", "ok"),
				Assistant("jumped the gun"),
			},
			wantErr: ErrUnpairedToolResult,
		},
		{
			name: "user interrupts pending calls",
			msgs: []Message{
				User("go"),
				assistantWithCalls(call("c1", "a")),
				User("never mind"),
			},
			wantErr: ErrUnpairedToolResult,
		},
		{
			name: "orphan tool result",
			msgs: []Message{
				User("go"),
				Assistant("no calls"),
				ToolResult("ghost", "a", "ok"),
			},
			wantErr: ErrOrphanToolResult,
		},
		{
			name: "duplicate tool result",
			msgs: []Message{
				User("go"),
				assistantWithCalls(call("c1", "a")),
				ToolResult("c1", "a", "ok"),
				ToolResult("c1", "a", "again"),
			},
			wantErr: ErrUnpairedToolResult,
		},
		{
			name: "trailing pending calls rejected at rest",
			msgs: []Message{
				User("go"),
				assistantWithCalls(call("c1", "a")),
			},
			wantErr: ErrUnpairedToolResult,
		},
		{
			name: "trailing pending calls allowed mid-loop",
			msgs: []Message{
				User("go"),
				assistantWithCalls(call("c1", "a"), call("c2", "b")),
				ToolResult("c1", "a", "ok"),
			},
			opts: ValidateOptions{InToolLoop: true},
		},
		{
			name: "tool call without id",
			msgs: []Message{
				User("go"),
				assistantWithCalls(ToolCall{Name: "a"}),
			},
			wantErr: ErrEmptyToolCall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSequence(tt.msgs, tt.opts)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			var seqErr *SequenceError
			require.ErrorAs(t, err, &seqErr)
			assert.GreaterOrEqual(t, seqErr.Index, 0)
		})
	}
}

func TestMessageHelpers(t *testing.T) {
	assert.Equal(t, RoleSystem, System("x").Role)
	assert.Equal(t, RoleUser, User("x").Role)
	assert.Equal(t, RoleAssistant, Assistant("x").Role)

	res := ToolResult("c1", "read_file", "data")
	assert.Equal(t, RoleTool, res.Role)
	assert.Equal(t, "c1", res.ToolCallID)
	assert.Equal(t, "read_file", res.Name)

	assert.True(t, assistantWithCalls(call("c1", "a")).HasToolCalls())
	assert.False(t, Assistant("x").HasToolCalls())
}
