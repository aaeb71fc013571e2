//go:build !linux && !darwin

package sandbox

import "fmt"

func protectedReadPaths() []string { return nil }

// WrapCommand has no isolation backend on this platform: pass through
// when sandboxing is skipped, fail otherwise.
func (c *Config) WrapCommand(argv []string) ([]string, error) {
	if c.SkipSandbox {
		c.logger().Warn("command sandboxing is not supported on this platform, running without isolation")
		return argv, nil
	}
	return nil, fmt.Errorf("command sandboxing is not supported on this platform; rerun with sandboxing skipped to proceed without isolation")
}
