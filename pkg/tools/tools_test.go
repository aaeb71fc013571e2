package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillcode/quill/pkg/sandbox"
)

func testSandbox(t *testing.T) (*sandbox.Config, string) {
	t.Helper()
	project := t.TempDir()
	// SkipSandbox keeps command execution unwrapped so tests do not
	// depend on bubblewrap being installed; path validation for the
	// file tools is exercised through a separate strict config.
	return &sandbox.Config{ProjectRoot: project, SkipSandbox: true}, project
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeriveSchema(t *testing.T) {
	schema := DeriveSchema(&writeFileArgs{})

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "path")
	assert.Contains(t, props, "content")

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	assert.Contains(t, required, "path")
}

func TestValidateArgs(t *testing.T) {
	schema := DeriveSchema(&writeFileArgs{})

	assert.NoError(t, ValidateArgs(schema, json.RawMessage(`{"path":"a.txt","content":"hi"}`)))
	assert.Error(t, ValidateArgs(schema, json.RawMessage(`{"content":"hi"}`)), "missing required path")
	assert.Error(t, ValidateArgs(schema, json.RawMessage(`{"path":42,"content":"hi"}`)), "wrong type")
	assert.Error(t, ValidateArgs(schema, json.RawMessage(`{broken`)))
}

func TestRegistry_DisabledFilter(t *testing.T) {
	sb, _ := testSandbox(t)
	r := NewRegistry(map[string]bool{"execute_command": true}, discardLogger())

	require.NoError(t, r.RegisterTool(NewExecuteCommandTool(sb, "")))
	require.NoError(t, r.RegisterTool(NewReadFileTool(sb)))

	_, err := r.GetTool("execute_command")
	assert.Error(t, err)
	_, err = r.GetTool("read_file")
	assert.NoError(t, err)

	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "read_file", defs[0].Name)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	sb, _ := testSandbox(t)
	r := NewRegistry(nil, discardLogger())

	require.NoError(t, r.RegisterTool(NewReadFileTool(sb)))
	assert.Error(t, r.RegisterTool(NewReadFileTool(sb)))
}

func TestExecuteCommand_Success(t *testing.T) {
	sb, project := testSandbox(t)
	tool := NewExecuteCommandTool(sb, project)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"echo hello"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello\n", result.Output)
	assert.Equal(t, 0, result.Metadata["exit_code"])
}

func TestExecuteCommand_FailureIsResultNotError(t *testing.T) {
	sb, project := testSandbox(t)
	tool := NewExecuteCommandTool(sb, project)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"exit 3"}`))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Metadata["exit_code"])
}

func TestExecuteCommand_Timeout(t *testing.T) {
	sb, project := testSandbox(t)
	tool := NewExecuteCommandTool(sb, project)

	result, err := tool.Execute(context.Background(),
		json.RawMessage(`{"command":"sleep 5","timeout_seconds":1}`))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timed out")
}

func TestExecuteCommand_EmptyCommand(t *testing.T) {
	sb, project := testSandbox(t)
	tool := NewExecuteCommandTool(sb, project)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"command":"  "}`))
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestWriteFile_RoundTrip(t *testing.T) {
	sb, project := testSandbox(t)
	path := filepath.Join(project, "sub", "out.txt")

	writeArgs, _ := json.Marshal(writeFileArgs{Path: path, Content: "hello"})
	result, err := NewWriteFileTool(sb).Execute(context.Background(), writeArgs)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	readArgs, _ := json.Marshal(readFileArgs{Path: path})
	read, err := NewReadFileTool(sb).Execute(context.Background(), readArgs)
	require.NoError(t, err)
	require.True(t, read.Success)
	assert.Equal(t, "hello", read.Output)
}

func TestWriteFile_SandboxDenial(t *testing.T) {
	strict := &sandbox.Config{ProjectRoot: t.TempDir()}
	tool := NewWriteFileTool(strict)

	args, _ := json.Marshal(writeFileArgs{Path: "/etc/quill-test-denied", Content: "x"})
	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "sandbox denied")

	_, statErr := os.Stat("/etc/quill-test-denied")
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadFile_SizeCap(t *testing.T) {
	sb, project := testSandbox(t)
	path := filepath.Join(project, "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))

	args, _ := json.Marshal(readFileArgs{Path: path, MaxBytes: 10})
	result, err := NewReadFileTool(sb).Execute(context.Background(), args)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Len(t, result.Output, 10)
	assert.Equal(t, true, result.Metadata["truncated"])
}

func TestReadFile_Missing(t *testing.T) {
	sb, project := testSandbox(t)

	args, _ := json.Marshal(readFileArgs{Path: filepath.Join(project, "nope.txt")})
	result, err := NewReadFileTool(sb).Execute(context.Background(), args)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
