package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quillcode/quill/pkg/sandbox"
)

// WriteFileTool writes file contents after sandbox write validation.
type WriteFileTool struct {
	sandbox *sandbox.Config
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=Path of the file to write"`
	Content string `json:"content" jsonschema:"required,description=Full file content"`
}

func NewWriteFileTool(sb *sandbox.Config) *WriteFileTool {
	return &WriteFileTool{sandbox: sb}
}

func (t *WriteFileTool) Info() ToolInfo {
	return ToolInfo{
		Name:               "write_file",
		Description:        "Create or overwrite a file with the given content.",
		Schema:             DeriveSchema(&writeFileArgs{}),
		RequiresPermission: true,
		Risk:               RiskModerate,
		RecoveryPolicy:     RecoveryAllow,
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
	start := time.Now()

	var args writeFileArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return failure(start, fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if args.Path == "" {
		return failure(start, fmt.Errorf("path cannot be empty")), nil
	}
	if err := ctx.Err(); err != nil {
		return failure(start, err), nil
	}

	if err := t.sandbox.ValidateWrite(args.Path); err != nil {
		return failure(start, err), nil
	}

	if err := os.MkdirAll(filepath.Dir(args.Path), 0o755); err != nil {
		return failure(start, err), nil
	}
	if err := os.WriteFile(args.Path, []byte(args.Content), 0o644); err != nil {
		return failure(start, err), nil
	}

	result := success(start, fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path))
	result.Metadata = map[string]any{"path": args.Path, "bytes": len(args.Content)}
	return result, nil
}
