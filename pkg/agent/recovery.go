package agent

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/protocol"
	"github.com/quillcode/quill/pkg/tools"
)

// antiPatterns are phrases that mark a JSON blob as illustrative rather
// than an intended tool call. Checked against the text immediately
// preceding the candidate.
var antiPatterns = []string{"example:", "for instance", "such as", "```"}

// antiPatternWindow is how far back the preceding text is inspected.
const antiPatternWindow = 60

// maxCandidates bounds the trailing-JSON scan per message.
const maxCandidates = 3

// feedbackMessage nudges the model toward structural tool calls after a
// recovery.
const feedbackMessage = "Note: your previous tool call was written into thinking text " +
	"and had to be recovered. Emit tool calls through the structured tool-call interface."

// recoverer reconstructs tool calls that the model wrote into its
// thinking buffer instead of emitting structurally.
type recoverer struct {
	cfg      config.RecoveryConfig
	registry *tools.Registry
	logger   *slog.Logger

	turn         int
	turnCount    int
	sessionCount int
	recent       []recoveredPair
}

type recoveredPair struct {
	tool string
	args string
	turn int
}

func newRecoverer(cfg config.RecoveryConfig, registry *tools.Registry, logger *slog.Logger) *recoverer {
	return &recoverer{cfg: cfg, registry: registry, logger: logger}
}

// beginTurn resets the per-turn budget and advances the loop-guard
// window.
func (r *recoverer) beginTurn() {
	r.turn++
	r.turnCount = 0
}

// recover scans the thinking buffer for a trailing tool call. Returns
// the synthesized call and an optional feedback message for the next
// round, or nil when nothing recoverable is found.
func (r *recoverer) recover(thinking string) (*protocol.ToolCall, string) {
	if !r.cfg.Enabled || r.registry == nil || strings.TrimSpace(thinking) == "" {
		return nil, ""
	}
	if r.turnCount >= r.cfg.MaxPerTurn || r.sessionCount >= r.cfg.MaxPerSession {
		r.logger.Debug("tool recovery budget exhausted",
			"turn_count", r.turnCount, "session_count", r.sessionCount)
		return nil, ""
	}

	for _, candidate := range trailingJSONCandidates(thinking, maxCandidates) {
		if hasAntiPattern(thinking, candidate.start) {
			continue
		}

		var args map[string]any
		if err := json.Unmarshal([]byte(candidate.text), &args); err != nil || len(args) == 0 {
			continue
		}

		toolName := r.matchTool(thinking, args)
		if toolName == "" {
			continue
		}
		if !r.recoveryAllowed(toolName) {
			r.logger.Debug("tool recovery denied by policy", "tool", toolName)
			continue
		}

		canonical := canonicalArgs(args)
		if r.recentlyRecovered(toolName, canonical) {
			r.logger.Debug("tool recovery suppressed by loop guard", "tool", toolName)
			continue
		}

		r.turnCount++
		r.sessionCount++
		r.recent = append(r.recent, recoveredPair{tool: toolName, args: canonical, turn: r.turn})

		call := &protocol.ToolCall{
			ID:        "rec_" + uuid.NewString()[:8],
			Name:      toolName,
			Arguments: json.RawMessage(candidate.text),
		}
		r.logger.Info("recovered tool call from thinking output",
			"tool", toolName, "id", call.ID)

		feedback := ""
		if r.cfg.Feedback {
			feedback = feedbackMessage
		}
		return call, feedback
	}
	return nil, ""
}

// matchTool prefers tools whose required fields are all present in the
// candidate (schema match), then tools mentioned in the surrounding
// text whose schema shares at least one key (context match).
func (r *recoverer) matchTool(thinking string, args map[string]any) string {
	defs := r.registry.Definitions()

	for _, def := range defs {
		required := requiredFields(def.Parameters)
		if len(required) == 0 {
			continue
		}
		if containsAll(args, required) {
			return def.Name
		}
	}

	lower := strings.ToLower(thinking)
	for _, def := range defs {
		if !strings.Contains(lower, strings.ToLower(def.Name)) {
			continue
		}
		if intersects(args, propertyNames(def.Parameters)) {
			return def.Name
		}
	}
	return ""
}

func (r *recoverer) recoveryAllowed(toolName string) bool {
	tool, err := r.registry.GetTool(toolName)
	if err != nil {
		return false
	}
	return tool.Info().RecoveryPolicy != tools.RecoveryDeny
}

func (r *recoverer) recentlyRecovered(toolName, canonical string) bool {
	window := r.cfg.LoopWindowTurns
	if window <= 0 {
		window = 1
	}
	for _, pair := range r.recent {
		if pair.tool == toolName && pair.args == canonical && r.turn-pair.turn < window {
			return true
		}
	}
	return false
}

type jsonCandidate struct {
	text  string
	start int
}

// trailingJSONCandidates walks the buffer end-to-start collecting
// balanced top-level objects, most recent first.
func trailingJSONCandidates(text string, limit int) []jsonCandidate {
	var candidates []jsonCandidate
	end := strings.LastIndexByte(text, '}')

	for end >= 0 && len(candidates) < limit {
		found := false
		for start := strings.LastIndexByte(text[:end], '{'); start >= 0; start = strings.LastIndexByte(text[:start], '{') {
			fragment := text[start : end+1]
			if json.Valid([]byte(fragment)) {
				candidates = append(candidates, jsonCandidate{text: fragment, start: start})
				end = strings.LastIndexByte(text[:start], '}')
				found = true
				break
			}
		}
		if !found {
			break
		}
	}
	return candidates
}

func hasAntiPattern(text string, start int) bool {
	from := start - antiPatternWindow
	if from < 0 {
		from = 0
	}
	window := strings.ToLower(text[from:start])
	for _, pattern := range antiPatterns {
		if strings.Contains(window, pattern) {
			return true
		}
	}
	return false
}

// canonicalArgs renders arguments with sorted keys so equivalent calls
// compare equal in the loop guard.
func canonicalArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	return string(data)
}

func requiredFields(schema map[string]any) []string {
	switch raw := schema["required"].(type) {
	case []string:
		return raw
	case []any:
		fields := make([]string, 0, len(raw))
		for _, f := range raw {
			if s, ok := f.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	}
	return nil
}

func propertyNames(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	return names
}

func containsAll(args map[string]any, keys []string) bool {
	for _, key := range keys {
		if _, ok := args[key]; !ok {
			return false
		}
	}
	return true
}

func intersects(args map[string]any, keys []string) bool {
	for _, key := range keys {
		if _, ok := args[key]; ok {
			return true
		}
	}
	return false
}
