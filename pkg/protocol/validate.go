package protocol

import (
	"errors"
	"fmt"
)

// Sequence violation kinds. Each rule failure surfaces as a
// SequenceError wrapping one of these.
var (
	ErrSystemPosition       = errors.New("system message outside index 0")
	ErrConsecutiveUser      = errors.New("two consecutive user messages")
	ErrConsecutiveAssistant = errors.New("two consecutive assistant messages")
	ErrUnpairedToolResult   = errors.New("tool calls not answered one-to-one")
	ErrOrphanToolResult     = errors.New("tool result references no known call")
	ErrEmptyToolCall        = errors.New("tool call missing id or name")
)

// SequenceError locates one invariant violation.
type SequenceError struct {
	Index int
	Err   error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("invalid message sequence at index %d: %v", e.Index, e.Err)
}

func (e *SequenceError) Unwrap() error { return e.Err }

func seqErr(index int, kind error) error {
	return &SequenceError{Index: index, Err: kind}
}

// ValidateOptions tune sequence validation.
type ValidateOptions struct {
	// InToolLoop relaxes the pairing rule for the tail of the
	// sequence: a trailing assistant message with tool calls may be
	// only partially answered, since results arrive one at a time
	// while the loop is still executing tools.
	InToolLoop bool
}

// ValidateSequence checks the conversation invariants: at most one
// system message and only at index 0; no two consecutive user or
// assistant messages; an assistant message with tool calls is followed
// by tool results pairing its calls one-to-one; every tool result
// answers a call that actually occurred.
func ValidateSequence(msgs []Message, opts ValidateOptions) error {
	knownCalls := make(map[string]bool)
	// pending holds the unanswered call ids of the most recent
	// assistant tool-call message.
	pending := make(map[string]bool)

	var prevRole Role
	for i, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			if i != 0 {
				return seqErr(i, ErrSystemPosition)
			}

		case RoleUser:
			if prevRole == RoleUser {
				return seqErr(i, ErrConsecutiveUser)
			}
			if len(pending) > 0 {
				return seqErr(i, ErrUnpairedToolResult)
			}

		case RoleAssistant:
			if prevRole == RoleAssistant {
				return seqErr(i, ErrConsecutiveAssistant)
			}
			if len(pending) > 0 {
				return seqErr(i, ErrUnpairedToolResult)
			}
			for _, call := range msg.ToolCalls {
				if call.ID == "" || call.Name == "" {
					return seqErr(i, ErrEmptyToolCall)
				}
				knownCalls[call.ID] = true
				pending[call.ID] = true
			}

		case RoleTool:
			if !knownCalls[msg.ToolCallID] {
				return seqErr(i, ErrOrphanToolResult)
			}
			if !pending[msg.ToolCallID] {
				return seqErr(i, ErrUnpairedToolResult)
			}
			delete(pending, msg.ToolCallID)

		default:
			return seqErr(i, fmt.Errorf("unknown role %q", msg.Role))
		}
		prevRole = msg.Role
	}

	if len(pending) > 0 && !opts.InToolLoop {
		return seqErr(len(msgs)-1, ErrUnpairedToolResult)
	}
	return nil
}
