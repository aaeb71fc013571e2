// Package agent drives conversation turns: stream one model response,
// execute requested tools under hook and permission mediation, feed
// results back, and loop until the model stops calling tools or a
// bound is hit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/hooks"
	"github.com/quillcode/quill/pkg/llms"
	"github.com/quillcode/quill/pkg/prompt"
	"github.com/quillcode/quill/pkg/protocol"
	"github.com/quillcode/quill/pkg/tools"
	"github.com/quillcode/quill/pkg/transcript"
)

// Stop reasons reported on Result.
const (
	StopEndTurn   = "end_turn"
	StopMaxRounds = "max_rounds"
	StopCancelled = "cancelled"
)

const (
	defaultMaxToolRounds      = 16
	defaultToolResultMaxChars = 30000
)

// Config assembles a Processor. Provider and Model are required;
// everything else degrades gracefully when absent.
type Config struct {
	Provider llms.Provider
	// Model is the provider-native model id.
	Model string

	// Capabilities gates what the resolved model accepts. Nil means
	// unrestricted.
	Capabilities *config.ModelCapabilities

	Tools      *tools.Registry
	Hooks      *hooks.Manager
	Prompt     *prompt.Builder
	Transcript *transcript.Logger
	Logger     *slog.Logger
	Callbacks  Callbacks

	Behavior     config.BehaviorConfig
	SystemPrompt string
	SessionID    string
	Cwd          string

	ToolsEnabled bool
	DryRun       bool
	AutoApprove  bool
}

// Result is the outcome of one Process call.
type Result struct {
	Text     string
	Thinking string
	Usage    llms.Usage

	StopReason string
	Cancelled  bool
	Rounds     int

	// Messages is the full history after the turn, partial on
	// cancellation.
	Messages []protocol.Message
}

// Processor runs turns against one provider. Not safe for concurrent
// Process calls; instantiate one per conversation.
type Processor struct {
	cfg       config.BehaviorConfig
	provider  llms.Provider
	model     string
	caps      *config.ModelCapabilities
	tools     *tools.Registry
	hooks     *hooks.Manager
	prompt    *prompt.Builder
	log       *transcript.Logger
	logger    *slog.Logger
	callbacks Callbacks
	recovery  *recoverer

	sessionID    string
	cwd          string
	toolsEnabled bool
	dryRun       bool
	autoApprove  bool

	systemPrompt string
	messages     []protocol.Message
	// pendingInjections holds hook system messages and recovery
	// feedback, folded into the system prompt before the next call.
	pendingInjections []string
}

func NewProcessor(c Config) *Processor {
	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	callbacks := c.Callbacks
	if callbacks == nil {
		callbacks = NopCallbacks{}
	}
	behavior := c.Behavior
	if behavior.MaxToolRounds <= 0 {
		behavior.MaxToolRounds = defaultMaxToolRounds
	}
	if behavior.ToolResultMaxChars <= 0 {
		behavior.ToolResultMaxChars = defaultToolResultMaxChars
	}
	return &Processor{
		cfg:          behavior,
		provider:     c.Provider,
		model:        c.Model,
		caps:         c.Capabilities,
		tools:        c.Tools,
		hooks:        c.Hooks,
		prompt:       c.Prompt,
		log:          c.Transcript,
		logger:       logger,
		callbacks:    callbacks,
		recovery:     newRecoverer(behavior.Recovery, c.Tools, logger),
		sessionID:    c.SessionID,
		cwd:          c.Cwd,
		toolsEnabled: c.ToolsEnabled,
		dryRun:       c.DryRun,
		autoApprove:  c.AutoApprove,
		systemPrompt: c.SystemPrompt,
	}
}

// Messages returns the accumulated history.
func (p *Processor) Messages() []protocol.Message { return p.messages }

// SetMessages seeds history, e.g. when resuming a session.
func (p *Processor) SetMessages(msgs []protocol.Message) { p.messages = msgs }

type toolUse struct {
	call      protocol.ToolCall
	recovered bool
}

type streamTurn struct {
	text      string
	thinking  string
	calls     []toolUse
	usage     llms.Usage
	sawUsage  bool
	cancelled bool
}

// Process runs one full turn for the given user input.
func (p *Processor) Process(ctx context.Context, input string) (*Result, error) {
	result := &Result{}
	if p.callbacks.IsCancelled() {
		return p.finishCancelled(result), nil
	}
	p.recovery.beginTurn()

	content := p.resolveSkillTrigger(input)
	p.messages = append(p.messages, protocol.User(content))
	if p.log != nil {
		p.log.UserMessage(content)
	}

	for round := 0; ; round++ {
		result.Rounds = round + 1
		if p.callbacks.IsCancelled() {
			return p.finishCancelled(result), nil
		}
		p.applyPendingInjections()

		turn, err := p.streamOnce(ctx)
		if err != nil {
			if p.log != nil {
				p.log.Error(err, "stream")
			}
			return nil, err
		}

		result.Text += turn.text
		result.Thinking += turn.thinking
		p.addUsage(result, turn)

		if turn.cancelled {
			if p.log != nil && turn.thinking != "" {
				p.log.Thinking(turn.thinking)
			}
			return p.finishCancelled(result), nil
		}

		calls := turn.calls
		if len(calls) == 0 {
			if call, feedback := p.recovery.recover(turn.thinking); call != nil {
				calls = append(calls, toolUse{call: *call, recovered: true})
				if feedback != "" {
					p.pendingInjections = append(p.pendingInjections, feedback)
				}
				if p.log != nil {
					p.log.ToolCallRecovered(call.Name, call.ID, "thinking")
				}
			}
		}

		p.recordAssistant(turn, calls)

		if len(calls) == 0 {
			result.StopReason = StopEndTurn
			break
		}

		for _, use := range calls {
			if p.callbacks.IsCancelled() {
				return p.finishCancelled(result), nil
			}
			content := p.runTool(ctx, use)
			p.messages = append(p.messages, protocol.ToolResult(use.call.ID, use.call.Name, content))
		}

		if round+1 >= p.cfg.MaxToolRounds {
			result.StopReason = StopMaxRounds
			break
		}
	}

	result.Messages = p.messages
	return result, nil
}

func (p *Processor) finishCancelled(result *Result) *Result {
	result.Cancelled = true
	result.StopReason = StopCancelled
	result.Messages = p.messages
	return result
}

func (p *Processor) recordAssistant(turn *streamTurn, calls []toolUse) {
	if turn.text == "" && len(calls) == 0 {
		if turn.thinking != "" && p.log != nil {
			p.log.Thinking(turn.thinking)
		}
		return
	}

	msg := protocol.Assistant(turn.text)
	msg.Thinking = turn.thinking
	for _, use := range calls {
		msg.ToolCalls = append(msg.ToolCalls, use.call)
	}
	p.messages = append(p.messages, msg)
	if p.log != nil {
		p.log.AssistantMessage(turn.text, turn.thinking)
	}
}

func (p *Processor) addUsage(result *Result, turn *streamTurn) {
	usage := turn.usage
	if !turn.sawUsage {
		// Best-effort estimate so per-turn accounting never reads zero.
		usage.Output = estimateTokens(turn.text + turn.thinking)
		usage.Total = usage.Output
	}
	result.Usage.Input += usage.Input
	result.Usage.Output += usage.Output
	result.Usage.Total += usage.Total
	if p.log != nil {
		p.log.Usage(usage.Input, usage.Output, usage.Total)
	}
}

func (p *Processor) streamOnce(ctx context.Context) (*streamTurn, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := p.provider.Stream(streamCtx, p.buildRequest())
	if err != nil {
		return nil, err
	}

	turn := &streamTurn{}
	for ev := range ch {
		if p.callbacks.IsCancelled() {
			turn.cancelled = true
			cancel()
			for range ch {
			}
			break
		}

		switch ev.Type {
		case llms.EventThinkingDelta:
			turn.thinking += ev.Text
			p.callbacks.OnThinking(ev.Text)
		case llms.EventTextDelta:
			turn.text += ev.Text
			p.callbacks.OnText(ev.Text)
		case llms.EventContentStop:
			if ev.ToolCall != nil {
				turn.calls = append(turn.calls, toolUse{call: *ev.ToolCall, recovered: ev.Recovered})
			}
		case llms.EventMessageStop:
			if ev.Usage != nil {
				turn.usage = *ev.Usage
				turn.sawUsage = true
			}
			if ev.Err != nil {
				return nil, ev.Err
			}
		}
	}
	return turn, nil
}

func (p *Processor) buildRequest() llms.Request {
	if err := protocol.ValidateSequence(p.messages, protocol.ValidateOptions{InToolLoop: true}); err != nil {
		p.logger.Warn("message sequence violation", "error", err)
	}

	req := llms.Request{
		Model:     p.model,
		System:    p.systemPrompt,
		Messages:  p.messages,
		MaxTokens: p.cfg.MaxTokens,
		Reasoning: llms.ParseLevel(p.cfg.ReasoningLevel),
	}
	if p.caps != nil && !p.caps.Reasoning {
		// Auto translates to no reasoning parameters on every provider.
		req.Reasoning = llms.LevelAuto
	}
	if p.toolsEnabled && p.tools != nil && p.provider.SupportsTools() && p.modelSupportsTools() {
		req.Tools = p.tools.Definitions()
	}
	return req
}

func (p *Processor) modelSupportsTools() bool {
	return p.caps == nil || p.caps.Tools
}

func (p *Processor) applyPendingInjections() {
	for _, inj := range p.pendingInjections {
		p.systemPrompt = strings.TrimSpace(p.systemPrompt + "\n\n" + inj)
	}
	p.pendingInjections = nil
}

// resolveSkillTrigger expands "/skill <name>" into in-band guidance
// followed by the remaining prompt.
func (p *Processor) resolveSkillTrigger(input string) string {
	if p.prompt == nil {
		return input
	}
	name, rest, ok := prompt.ParseSkillCommand(input)
	if !ok {
		return input
	}
	skill, found := p.prompt.Skill(name)
	if !found {
		p.logger.Warn("unknown skill in slash command", "skill", name)
		return input
	}
	inj := p.prompt.TriggerInjection(skill, "slash_command", "/skill "+name)
	if rest == "" {
		rest = "Apply this skill now."
	}
	return inj.Content + "\n\n" + rest
}

// runTool takes one call through the full mediation pipeline and
// returns the content fed back to the model.
func (p *Processor) runTool(ctx context.Context, use toolUse) string {
	call := use.call
	args := call.Arguments
	p.callbacks.OnToolStart(call, use.recovered)

	result, decided := p.preToolHook(ctx, call.Name, &args)
	if !decided {
		result = p.executeTool(ctx, call.Name, args)
	}
	result = p.postToolHook(ctx, call.Name, args, result)

	result.Output = truncateOutput(result.Output, p.cfg.ToolResultMaxChars)

	if p.log != nil {
		p.log.ToolCall(call.Name, args, call.ID)
		p.log.ToolResult(call.Name, result.Success, result.Output, result.Error, call.ID, result.Duration)
	}
	p.callbacks.OnToolResult(call.Name, result)

	if result.Success {
		return result.Output
	}
	return "Error: " + result.Error
}

// preToolHook returns (result, true) when the hook decided the outcome
// without execution. It may rewrite args in place.
func (p *Processor) preToolHook(ctx context.Context, toolName string, args *json.RawMessage) (tools.ToolResult, bool) {
	if p.hooks == nil {
		return tools.ToolResult{}, false
	}

	outcome, err := p.hooks.Dispatch(ctx, hooks.Context{
		Event:     hooks.EventPreToolUse,
		SessionID: p.sessionID,
		Cwd:       p.cwd,
		ToolName:  toolName,
		ToolInput: *args,
	})
	if err != nil {
		p.logger.Warn("pre-tool hook dispatch failed, continuing", "tool", toolName, "error", err)
		return tools.ToolResult{}, false
	}

	p.pendingInjections = append(p.pendingInjections, outcome.SystemMessages...)
	if outcome.Blocked {
		return tools.ToolResult{Success: false, Error: outcome.BlockMessage}, true
	}
	if outcome.Skipped {
		return tools.ToolResult{Success: true, Output: "[skipped]"}, true
	}
	if outcome.ModifiedInput != nil {
		*args = outcome.ModifiedInput
	}
	return tools.ToolResult{}, false
}

func (p *Processor) executeTool(ctx context.Context, toolName string, args json.RawMessage) tools.ToolResult {
	if p.tools == nil {
		return tools.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool %q", toolName)}
	}
	tool, err := p.tools.GetTool(toolName)
	if err != nil {
		return tools.ToolResult{Success: false, Error: fmt.Sprintf("unknown tool %q", toolName)}
	}

	info := tool.Info()
	if info.RequiresPermission && !p.autoApprove {
		if !p.callbacks.RequestPermission(info, args) {
			return tools.ToolResult{Success: false, Error: "permission denied by user"}
		}
	}
	if p.dryRun {
		return tools.ToolResult{Success: true, Output: "[dry run]"}
	}
	if err := tools.ValidateArgs(info.Schema, args); err != nil {
		return tools.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	if err != nil {
		return tools.ToolResult{Success: false, Error: err.Error(), Duration: time.Since(start)}
	}
	return result
}

func (p *Processor) postToolHook(ctx context.Context, toolName string, args json.RawMessage, result tools.ToolResult) tools.ToolResult {
	if p.hooks == nil {
		return result
	}

	resultJSON, err := json.Marshal(map[string]any{
		"success": result.Success,
		"output":  result.Output,
		"error":   result.Error,
	})
	if err != nil {
		return result
	}

	outcome, err := p.hooks.Dispatch(ctx, hooks.Context{
		Event:      hooks.EventPostToolUse,
		SessionID:  p.sessionID,
		Cwd:        p.cwd,
		ToolName:   toolName,
		ToolInput:  args,
		ToolResult: resultJSON,
	})
	if err != nil {
		p.logger.Warn("post-tool hook dispatch failed, result unchanged", "tool", toolName, "error", err)
		return result
	}

	p.pendingInjections = append(p.pendingInjections, outcome.SystemMessages...)
	if outcome.ModifiedOutput != nil {
		result.Output = *outcome.ModifiedOutput
	}
	return result
}

func truncateOutput(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	return output[:maxChars] + fmt.Sprintf("\n[TRUNCATED at %d characters]", maxChars)
}
