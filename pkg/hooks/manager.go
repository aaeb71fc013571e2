package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/quillcode/quill/pkg/config"
)

// Manager dispatches events to configured hook commands. Hooks run
// sequentially in declaration order; for blockable events the first
// block stops the chain.
type Manager struct {
	hooks  map[Event][]config.HookConfig
	logger *slog.Logger
}

func NewManager(configured map[string][]config.HookConfig, logger *slog.Logger) *Manager {
	m := &Manager{hooks: make(map[Event][]config.HookConfig), logger: logger}
	for event, list := range configured {
		m.hooks[Event(strings.ToUpper(event))] = list
	}
	return m
}

// Dispatch runs every hook matching the event and tool name. The
// returned Outcome folds together all hook results according to the
// event's capabilities: CONTEXT_BUILD and POST_TOOL_USE cannot block.
func (m *Manager) Dispatch(ctx context.Context, hctx Context) (*Outcome, error) {
	outcome := &Outcome{}

	for _, hook := range m.hooks[hctx.Event] {
		if !m.matches(hook, hctx.ToolName) {
			continue
		}

		result, err := m.runHook(ctx, hook, hctx)
		if err != nil {
			if m.handleHookError(hctx.Event, hook, err, outcome) {
				return outcome, nil
			}
			continue
		}
		if result == nil {
			continue
		}

		m.applyResult(hctx.Event, hook, result, outcome)
		if outcome.Blocked || outcome.Skipped {
			return outcome, nil
		}
	}
	return outcome, nil
}

func (m *Manager) matches(hook config.HookConfig, toolName string) bool {
	if hook.Match == "" {
		return true
	}
	matched, err := regexp.MatchString(hook.Match, toolName)
	if err != nil {
		m.logger.Warn("invalid hook match pattern, skipping hook",
			"pattern", hook.Match, "error", err)
		return false
	}
	return matched
}

// handleHookError folds a failed hook into the outcome. Returns true
// when the failure terminates the chain (a block).
func (m *Manager) handleHookError(event Event, hook config.HookConfig, err error, outcome *Outcome) bool {
	var crash *crashError
	if errors.As(err, &crash) {
		// Subprocess died to a signal: degrade open.
		m.logger.Warn("hook subprocess crashed, continuing",
			"command", hookLabel(hook), "error", err)
		return false
	}

	if event == EventPreToolUse {
		outcome.Blocked = true
		outcome.BlockMessage = err.Error()
		return true
	}
	m.logger.Warn("hook failed, continuing", "event", string(event),
		"command", hookLabel(hook), "error", err)
	return false
}

func (m *Manager) applyResult(event Event, hook config.HookConfig, result *Result, outcome *Outcome) {
	if result.InjectSystemMessage != "" {
		outcome.SystemMessages = append(outcome.SystemMessages, result.InjectSystemMessage)
	}
	if result.ContextInjection != "" {
		location := result.ContextLocation
		if location == "" {
			location = LocationAppend
		}
		outcome.Injections = append(outcome.Injections, Injection{
			Content:  result.ContextInjection,
			Location: location,
			Source:   hookLabel(hook),
		})
	}

	switch event {
	case EventPreToolUse:
		if result.ModifiedInput != nil {
			outcome.ModifiedInput = result.ModifiedInput
		}
		switch result.Action {
		case ActionBlock:
			outcome.Blocked = true
			outcome.BlockMessage = result.Message
		case ActionSkip:
			outcome.Skipped = true
			outcome.BlockMessage = result.Message
		}

	case EventPostToolUse:
		if result.ModifiedOutput != nil {
			outcome.ModifiedOutput = result.ModifiedOutput
		}
		if result.Action == ActionBlock {
			m.logger.Warn("POST_TOOL_USE hook cannot block, ignoring",
				"command", hookLabel(hook))
		}

	case EventContextBuild:
		if result.Action == ActionBlock {
			m.logger.Warn("CONTEXT_BUILD hook cannot block, ignoring",
				"command", hookLabel(hook))
		}
	}
}

// crashError marks a subprocess killed by a signal.
type crashError struct{ err error }

func (e *crashError) Error() string { return e.err.Error() }
func (e *crashError) Unwrap() error { return e.err }

// runHook launches one hook subprocess with the JSON context on stdin
// and parses its optional JSON stdout.
func (m *Manager) runHook(ctx context.Context, hook config.HookConfig, hctx Context) (*Result, error) {
	if len(hook.Command) == 0 {
		return nil, nil
	}

	timeout := DefaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(hctx)
	if err != nil {
		return nil, fmt.Errorf("cannot serialize hook context: %w", err)
	}

	cmd := exec.CommandContext(ctx, hook.Command[0], hook.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("hook %s timed out after %s", hookLabel(hook), timeout)
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			if exitErr.ExitCode() == -1 {
				return nil, &crashError{err: fmt.Errorf("hook %s killed by signal", hookLabel(hook))}
			}
			message := strings.TrimSpace(stderr.String())
			if message == "" {
				message = strings.TrimSpace(stdout.String())
			}
			if message == "" {
				message = runErr.Error()
			}
			return nil, fmt.Errorf("hook %s exited %d: %s",
				hookLabel(hook), exitErr.ExitCode(), message)
		}
		return nil, fmt.Errorf("hook %s failed to start: %w", hookLabel(hook), runErr)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal(out, &result); err != nil {
		m.logger.Warn("hook produced unparseable stdout, treating as continue",
			"command", hookLabel(hook), "error", err)
		return nil, nil
	}
	return &result, nil
}

func hookLabel(hook config.HookConfig) string {
	return strings.Join(hook.Command, " ")
}
