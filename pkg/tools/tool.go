// Package tools defines the tool interface, the registry consulted by
// the conversation processor, and the built-in filesystem and shell
// tools.
package tools

import (
	"context"
	"encoding/json"
	"time"
)

// Risk grades the blast radius of a tool.
type Risk string

const (
	RiskLow        Risk = "low"
	RiskModerate   Risk = "moderate"
	RiskHighImpact Risk = "high_impact"
)

// RecoveryPolicy says whether a call to this tool may be synthesized
// from a model's thinking text when the provider emitted no structured
// call.
type RecoveryPolicy string

const (
	RecoveryAllow RecoveryPolicy = "allow"
	RecoveryDeny  RecoveryPolicy = "deny"
)

// ToolInfo is the static description of one tool.
type ToolInfo struct {
	Name               string
	Description        string
	Schema             map[string]any
	RequiresPermission bool
	Risk               Risk
	RecoveryPolicy     RecoveryPolicy
}

// ToolResult is the outcome of one execution. Failures are results,
// not errors: the conversation continues and the model sees the error
// text.
type ToolResult struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tool is one executable capability exposed to the model.
type Tool interface {
	Info() ToolInfo
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

func failure(start time.Time, err error) ToolResult {
	return ToolResult{Success: false, Error: err.Error(), Duration: time.Since(start)}
}

func success(start time.Time, output string) ToolResult {
	return ToolResult{Success: true, Output: output, Duration: time.Since(start)}
}
