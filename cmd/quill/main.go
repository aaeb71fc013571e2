// Command quill is a terminal-resident coding assistant: it builds a
// layered configuration, dispatches prompts to an LLM provider, runs
// requested tools inside a sandbox, and logs the conversation.
//
// Usage:
//
//	quill chat "explain this stack trace" -p
//	quill config show --provenance
//	quill api providers
//	quill session list
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Chat    ChatCmd    `cmd:"" default:"withargs" help:"Send a prompt and run the tool loop."`
	Config  ConfigCmd  `cmd:"" help:"Inspect the merged configuration."`
	API     APICmd     `cmd:"" name:"api" help:"Inspect and test provider instances."`
	Session SessionCmd `cmd:"" help:"Manage recorded conversation sessions."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("quill %s\n", version)
	return nil
}

// exitError carries a process exit code through kong's Run.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// missingInput is the reserved exit code for "no prompt given".
func missingInput(msg string) error { return &exitError{code: 2, msg: msg} }

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("quill"),
		kong.Description("A terminal-resident LLM coding assistant."),
		kong.UsageOnError(),
	)

	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}
