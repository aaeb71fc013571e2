package llms

import (
	"log/slog"
	"strings"
)

// Level is the unified reasoning vocabulary. The zero value is
// LevelAuto. The "raw:" prefix escapes straight to a vendor string.
type Level string

const (
	LevelAuto    Level = "auto"
	LevelOff     Level = "off"
	LevelMinimal Level = "minimal"
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelMaximum Level = "maximum"

	rawLevelPrefix = "raw:"
)

// ParseLevel normalizes a configuration string into a Level. Unknown
// values pass through so providers can warn with context.
func ParseLevel(s string) Level {
	if s == "" {
		return LevelAuto
	}
	return Level(strings.ToLower(strings.TrimSpace(s)))
}

// IsRaw reports whether the level is a raw vendor escape.
func (l Level) IsRaw() bool { return strings.HasPrefix(string(l), rawLevelPrefix) }

// RawValue returns the vendor string of a raw level.
func (l Level) RawValue() string { return strings.TrimPrefix(string(l), rawLevelPrefix) }

// IsKnown reports whether l is one of the unified vocabulary values.
func (l Level) IsKnown() bool {
	switch l {
	case LevelAuto, LevelOff, LevelMinimal, LevelLow, LevelMedium, LevelHigh, LevelMaximum:
		return true
	}
	return false
}

// openAIEffort maps a unified level to OpenAI-compatible
// reasoning_effort values.
var openAIEffort = map[Level]string{
	LevelOff:     "none",
	LevelMinimal: "minimal",
	LevelLow:     "low",
	LevelMedium:  "medium",
	LevelHigh:    "high",
	LevelMaximum: "xhigh",
}

// translateOpenAIEffort implements the OpenAI-compatible knob:
// auto → empty, known levels via the effort table, raw pass-through,
// anything else warned and passed through as-is.
func translateOpenAIEffort(level Level, logger *slog.Logger) map[string]any {
	switch {
	case level == LevelAuto || level == "":
		return map[string]any{}
	case level.IsRaw():
		return map[string]any{"reasoning_effort": level.RawValue()}
	}
	if effort, ok := openAIEffort[level]; ok {
		return map[string]any{"reasoning_effort": effort}
	}
	logger.Warn("unknown reasoning level passed through", "level", string(level))
	return map[string]any{"reasoning_effort": string(level)}
}

// gptOSSLevel clamps the unified vocabulary onto the GPT-OSS string
// levels {low, medium, high}. The family cannot be fully disabled, so
// off clamps to low.
var gptOSSLevel = map[Level]string{
	LevelOff:     "low",
	LevelMinimal: "low",
	LevelLow:     "low",
	LevelMedium:  "medium",
	LevelHigh:    "high",
	LevelMaximum: "high",
}

// anthropicBudget maps levels to extended-thinking token budgets.
var anthropicBudget = map[Level]int{
	LevelMinimal: 1024,
	LevelLow:     4096,
	LevelMedium:  8192,
	LevelHigh:    16384,
	LevelMaximum: 32768,
}
