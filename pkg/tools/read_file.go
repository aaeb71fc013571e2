package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quillcode/quill/pkg/sandbox"
)

// defaultReadCap bounds file reads so one tool call cannot flood the
// conversation.
const defaultReadCap = 256 * 1024

// ReadFileTool reads file contents after sandbox read validation.
type ReadFileTool struct {
	sandbox *sandbox.Config
}

type readFileArgs struct {
	Path     string `json:"path" jsonschema:"required,description=Path of the file to read"`
	MaxBytes int    `json:"max_bytes,omitempty" jsonschema:"description=Read at most this many bytes (default 262144)"`
}

func NewReadFileTool(sb *sandbox.Config) *ReadFileTool {
	return &ReadFileTool{sandbox: sb}
}

func (t *ReadFileTool) Info() ToolInfo {
	return ToolInfo{
		Name:               "read_file",
		Description:        "Read the contents of a file.",
		Schema:             DeriveSchema(&readFileArgs{}),
		RequiresPermission: false,
		Risk:               RiskLow,
		RecoveryPolicy:     RecoveryAllow,
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	start := time.Now()

	var args readFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure(start, fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if args.Path == "" {
		return failure(start, fmt.Errorf("path cannot be empty")), nil
	}
	if err := ctx.Err(); err != nil {
		return failure(start, err), nil
	}

	if err := t.sandbox.ValidateRead(args.Path); err != nil {
		return failure(start, err), nil
	}

	f, err := os.Open(args.Path)
	if err != nil {
		return failure(start, err), nil
	}
	defer f.Close()

	limit := args.MaxBytes
	if limit <= 0 {
		limit = defaultReadCap
	}
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return failure(start, err), nil
	}

	truncated := false
	if len(data) > limit {
		data = data[:limit]
		truncated = true
	}

	result := success(start, string(data))
	result.Metadata = map[string]any{"path": args.Path, "bytes": len(data), "truncated": truncated}
	return result, nil
}
