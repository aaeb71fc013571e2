//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
)

// protectedReadPaths lists the home-directory clusters tools must not
// read on linux: credentials and key material.
func protectedReadPaths() []string {
	clusters := []string{
		"~/.ssh",
		"~/.gnupg",
		"~/.aws",
		"~/.azure",
		"~/.kube",
		"~/.docker",
		"~/.config/gcloud",
		"~/.netrc",
	}
	out := make([]string, 0, len(clusters)+1)
	for _, c := range clusters {
		out = append(out, resolveExisting(expandHome(c)))
	}
	out = append(out, "/etc/shadow")
	return out
}

// WrapCommand composes a bwrap invocation around argv: the filesystem
// is bound read-only, with the project root, temp directory and
// allowed paths re-bound read-write. Missing bubblewrap is fatal
// unless SkipSandbox is set.
func (c *Config) WrapCommand(argv []string) ([]string, error) {
	if c.SkipSandbox {
		return argv, nil
	}

	bwrap, err := exec.LookPath("bwrap")
	if err != nil {
		return nil, fmt.Errorf("bubblewrap not found in PATH (install bubblewrap, or skip sandboxing): %w", err)
	}

	wrapped := []string{
		bwrap,
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/run",
		"--die-with-parent",
	}
	for _, root := range c.writableRoots() {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		wrapped = append(wrapped, "--bind", root, root)
	}
	if !c.AllowNetwork {
		wrapped = append(wrapped, "--unshare-net")
	}
	wrapped = append(wrapped, "--")
	return append(wrapped, argv...), nil
}
