//go:build darwin

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// protectedReadPaths guards the user and volume roots on macOS; system
// prefixes stay readable.
func protectedReadPaths() []string {
	return []string{"/Users", "/Volumes"}
}

// seatbeltProfile renders the Seatbelt policy: deny-default, file
// reads broadly allowed, protected clusters re-denied, writable roots
// re-allowed for read and write, network per config.
func (c *Config) seatbeltProfile() string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow signal (target same-sandbox))\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow file-read*)\n")

	for _, protected := range protectedReadPaths() {
		fmt.Fprintf(&b, "(deny file-read* (subpath %q))\n", protected)
	}
	for _, root := range c.writableRoots() {
		fmt.Fprintf(&b, "(allow file-read* (subpath %q))\n", root)
		fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", root)
	}

	if c.AllowNetwork {
		b.WriteString("(allow network*)\n")
	} else {
		b.WriteString("(deny network*)\n")
	}
	return b.String()
}

// WrapCommand writes a Seatbelt profile and prefixes argv with
// sandbox-exec.
func (c *Config) WrapCommand(argv []string) ([]string, error) {
	if c.SkipSandbox {
		return argv, nil
	}

	profile, err := os.CreateTemp("", "quill-sandbox-*.sb")
	if err != nil {
		return nil, fmt.Errorf("cannot write sandbox profile: %w", err)
	}
	if _, err := profile.WriteString(c.seatbeltProfile()); err != nil {
		profile.Close()
		os.Remove(profile.Name())
		return nil, fmt.Errorf("cannot write sandbox profile: %w", err)
	}
	if err := profile.Close(); err != nil {
		os.Remove(profile.Name())
		return nil, fmt.Errorf("cannot write sandbox profile: %w", err)
	}

	wrapped := []string{"sandbox-exec", "-f", filepath.Clean(profile.Name()), "--"}
	return append(wrapped, argv...), nil
}
