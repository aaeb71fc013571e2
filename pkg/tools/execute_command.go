package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/quillcode/quill/pkg/sandbox"
)

const defaultCommandTimeout = 2 * time.Minute

// ExecuteCommandTool runs a shell command inside the sandbox wrapper.
type ExecuteCommandTool struct {
	sandbox *sandbox.Config
	workDir string
}

type executeCommandArgs struct {
	Command        string `json:"command" jsonschema:"required,description=Shell command to execute"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Timeout in seconds (default 120)"`
}

func NewExecuteCommandTool(sb *sandbox.Config, workDir string) *ExecuteCommandTool {
	return &ExecuteCommandTool{sandbox: sb, workDir: workDir}
}

func (t *ExecuteCommandTool) Info() ToolInfo {
	return ToolInfo{
		Name:               "execute_command",
		Description:        "Execute a shell command in the project directory and return its combined output.",
		Schema:             DeriveSchema(&executeCommandArgs{}),
		RequiresPermission: true,
		Risk:               RiskHighImpact,
		RecoveryPolicy:     RecoveryAllow,
	}
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	start := time.Now()

	var args executeCommandArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure(start, fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if strings.TrimSpace(args.Command) == "" {
		return failure(start, fmt.Errorf("command cannot be empty")), nil
	}

	timeout := defaultCommandTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv, err := t.sandbox.WrapCommand([]string{"sh", "-c", args.Command})
	if err != nil {
		return failure(start, err), nil
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = t.workDir
	output, err := cmd.CombinedOutput()

	result := ToolResult{
		Output:   string(output),
		Duration: time.Since(start),
		Metadata: map[string]any{"command": args.Command},
	}
	if ctx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Sprintf("command timed out after %s", timeout)
		return result, nil
	}
	if err != nil {
		result.Error = err.Error()
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.Metadata["exit_code"] = exitErr.ExitCode()
		}
		return result, nil
	}
	result.Success = true
	result.Metadata["exit_code"] = 0
	return result, nil
}
