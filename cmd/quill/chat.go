package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/quillcode/quill/pkg/agent"
	"github.com/quillcode/quill/pkg/config"
	"github.com/quillcode/quill/pkg/hooks"
	"github.com/quillcode/quill/pkg/llms"
	"github.com/quillcode/quill/pkg/logger"
	"github.com/quillcode/quill/pkg/prompt"
	"github.com/quillcode/quill/pkg/protocol"
	"github.com/quillcode/quill/pkg/sandbox"
	"github.com/quillcode/quill/pkg/tools"
	"github.com/quillcode/quill/pkg/transcript"
)

// defaultSystemPrompt is the base context before rules, profiles,
// skills, and hook injections are merged in.
const defaultSystemPrompt = "You are Quill, a coding assistant that lives in the terminal. " +
	"You help with software engineering tasks: reading and writing code, running commands, " +
	"and explaining results. Prefer using the provided tools over guessing. Be direct and concise."

// ChatCmd sends one prompt through the conversation loop.
type ChatCmd struct {
	Print    bool `short:"p" help:"Non-interactive: print the final response and exit."`
	JSON     bool `name:"json" help:"Emit the result as a JSON object."`
	NoStream bool `name:"no-stream" help:"Print the response at once instead of streaming."`
	NoColor  bool `name:"no-color" help:"Disable terminal colors."`
	Yes      bool `short:"y" help:"Auto-approve tool permission prompts."`
	DryRun   bool `name:"dry-run" help:"Resolve tool calls without executing them."`
	Tools    bool `default:"true" negatable:"" help:"Offer tools to the model (disable with --no-tools)."`

	NoLog   bool   `name:"no-log" help:"Disable the conversation log."`
	LogFile string `name:"log-file" type:"path" help:"Conversation log path (default: session dir)."`

	Provider string `help:"Provider instance name (default from config)."`
	Model    string `help:"Model name or alias (default from config)."`
	Profile  string `help:"Prompt profile name (default: mapped from model)."`

	DangerouslySkipPermissions bool `name:"dangerously-skip-permissions" help:"Run permission-gated tools without asking."`
	DangerouslySkipSandbox     bool `name:"dangerously-skip-sandbox" help:"Disable the OS sandbox entirely."`

	Resume string `placeholder:"ID" help:"Resume a recorded session by id."`

	Prompt []string `arg:"" optional:"" help:"The prompt. Read from stdin when omitted and not a TTY."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	input, err := c.resolvePrompt()
	if err != nil {
		return err
	}

	settings, err := config.New(config.WithOverrides(c.overrides()))
	if err != nil {
		return err
	}
	cfg := settings.Config()

	level, parseErr := logger.ParseLevel(cfg.Logging.Level)
	if parseErr != nil {
		level = slog.LevelInfo
	}
	logger.Init(level, os.Stderr, "simple")
	log := logger.Default()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	providerName, instance, err := settings.ProviderFor(c.Provider)
	if err != nil {
		return err
	}
	registry := llms.NewRegistry(log)
	provider, err := registry.Create(providerName, instance)
	if err != nil {
		return err
	}
	defer registry.CloseAll()

	model := c.Model
	if model == "" {
		model = settings.DefaultModel()
	}
	canonical := settings.ResolveModelAlias(model)
	native := settings.NativeModelID(canonical, providerName)
	caps := settings.ModelCapabilities(canonical)

	sessionID := c.Resume
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var rec *transcript.Logger
	var resumed []protocol.Message
	if cfg.Logging.Enabled && !c.NoLog {
		path := c.LogFile
		if path == "" {
			path = filepath.Join(sessionDir(settings), sessionID+".jsonl")
		}
		if c.Resume != "" {
			resumed, err = loadSessionMessages(path)
			if err != nil {
				return fmt.Errorf("cannot resume session %s: %w", c.Resume, err)
			}
		}
		var opts []transcript.Option
		if cfg.Logging.Private {
			opts = append(opts, transcript.WithPrivate())
		}
		if cfg.Logging.RawPayloads {
			opts = append(opts, transcript.WithRawPayloads())
		}
		rec, err = transcript.New(path, sessionID, opts...)
		if err != nil {
			return err
		}
		defer rec.Close()
		rec.SessionStart(providerName, canonical)
		defer rec.SessionEnd()
	}

	sb := &sandbox.Config{
		ProjectRoot:  cwd,
		AllowedPaths: cfg.Sandbox.AllowedPaths,
		AllowNetwork: cfg.Sandbox.AllowNetwork,
		SkipSandbox:  !cfg.Sandbox.Enabled || c.DangerouslySkipSandbox,
		Logger:       log,
	}

	toolRegistry := tools.NewRegistry(cfg.Tools.Disabled, log)
	for _, tool := range []tools.Tool{
		tools.NewExecuteCommandTool(sb, cwd),
		tools.NewWriteFileTool(sb),
		tools.NewReadFileTool(sb),
	} {
		if err := toolRegistry.RegisterTool(tool); err != nil {
			return err
		}
	}

	hookManager := hooks.NewManager(cfg.Hooks, log)

	var pluginPaths []string
	if cfg.Plugins.Enabled {
		pluginPaths = cfg.Plugins.Paths
	}
	builder := prompt.NewBuilder(prompt.BuilderConfig{
		Profiles:   cfg.Profiles,
		Rules:      prompt.LoadRules(cwd, config.DefaultConfigDir(), pluginPaths),
		Skills:     prompt.LoadSkills(cwd, config.DefaultConfigDir()),
		Hooks:      hookManager,
		Transcript: rec,
		Logger:     log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cancelled := &atomic.Bool{}
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		cancelled.Store(true)
	}()

	built, err := builder.Build(ctx, prompt.Request{
		BasePrompt:    defaultSystemPrompt,
		Model:         canonical,
		Profile:       c.Profile,
		SessionID:     sessionID,
		Cwd:           cwd,
		RulesEnabled:  true,
		SkillsEnabled: true,
	})
	if err != nil {
		return err
	}

	callbacks := &chatCallbacks{
		out:         os.Stdout,
		streamText:  !c.NoStream && !c.JSON,
		verbose:     cfg.Behavior.Verbose,
		cancelled:   cancelled,
		interactive: !c.Print && term.IsTerminal(int(os.Stdin.Fd())),
		stdin:       bufio.NewReader(os.Stdin),
	}

	processor := agent.NewProcessor(agent.Config{
		Provider:     provider,
		Model:        native,
		Capabilities: &caps,
		Tools:        toolRegistry,
		Hooks:        hookManager,
		Prompt:       builder,
		Transcript:   rec,
		Logger:       log,
		Callbacks:    callbacks,
		Behavior:     cfg.Behavior,
		SystemPrompt: built.SystemPrompt,
		SessionID:    sessionID,
		Cwd:          cwd,
		ToolsEnabled: c.Tools,
		DryRun:       c.DryRun,
		AutoApprove:  c.Yes || c.DangerouslySkipPermissions,
	})
	if len(resumed) > 0 {
		processor.SetMessages(resumed)
	}

	result, err := processor.Process(ctx, input)
	if err != nil {
		return err
	}
	return c.printResult(result, callbacks.streamedAny)
}

func (c *ChatCmd) resolvePrompt() (string, error) {
	input := strings.TrimSpace(strings.Join(c.Prompt, " "))
	if input != "" {
		return input, nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", missingInput("no prompt given (pass one as an argument or on stdin)")
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(string(data))
	if input == "" {
		return "", missingInput("no prompt given (stdin was empty)")
	}
	return input, nil
}

// overrides maps --provider/--model to the constructor override layer.
func (c *ChatCmd) overrides() map[string]any {
	ov := map[string]any{}
	if c.Provider != "" {
		ov["providers"] = map[string]any{"default": c.Provider}
	}
	if c.Model != "" {
		ov["models"] = map[string]any{"default": c.Model}
	}
	return ov
}

func (c *ChatCmd) printResult(result *agent.Result, streamed bool) error {
	if c.JSON {
		out := map[string]any{
			"text":        result.Text,
			"stop_reason": result.StopReason,
			"cancelled":   result.Cancelled,
			"rounds":      result.Rounds,
			"usage": map[string]int{
				"input_tokens":  result.Usage.Input,
				"output_tokens": result.Usage.Output,
				"total_tokens":  result.Usage.Total,
			},
		}
		if result.Thinking != "" {
			out["thinking"] = result.Thinking
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if streamed {
		fmt.Println()
	} else if result.Text != "" {
		fmt.Println(result.Text)
	}
	if result.Cancelled {
		fmt.Fprintln(os.Stderr, "(cancelled)")
	}
	return nil
}

// chatCallbacks renders stream events to the terminal and mediates
// permission prompts.
type chatCallbacks struct {
	out         io.Writer
	streamText  bool
	verbose     bool
	interactive bool
	cancelled   *atomic.Bool
	stdin       *bufio.Reader
	streamedAny bool
}

func (c *chatCallbacks) OnThinking(text string) {
	if c.verbose {
		fmt.Fprint(os.Stderr, text)
	}
}

func (c *chatCallbacks) OnText(text string) {
	if c.streamText {
		fmt.Fprint(c.out, text)
		c.streamedAny = true
	}
}

func (c *chatCallbacks) OnToolStart(call protocol.ToolCall, recovered bool) {
	if !c.verbose {
		return
	}
	label := call.Name
	if recovered {
		label += " (recovered)"
	}
	fmt.Fprintf(os.Stderr, "→ %s %s\n", label, string(call.Arguments))
}

func (c *chatCallbacks) OnToolResult(toolName string, result tools.ToolResult) {
	if !c.verbose {
		return
	}
	if result.Success {
		fmt.Fprintf(os.Stderr, "← %s ok (%s)\n", toolName, result.Duration)
	} else {
		fmt.Fprintf(os.Stderr, "← %s failed: %s\n", toolName, result.Error)
	}
}

func (c *chatCallbacks) IsCancelled() bool { return c.cancelled.Load() }

func (c *chatCallbacks) RequestPermission(info tools.ToolInfo, args json.RawMessage) bool {
	if !c.interactive {
		return false
	}
	fmt.Fprintf(os.Stderr, "Allow %s (%s risk)? %s [y/N] ", info.Name, info.Risk, string(args))
	line, err := c.stdin.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
