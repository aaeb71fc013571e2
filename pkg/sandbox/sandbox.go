// Package sandbox validates filesystem access for tools and wraps
// shell commands in an OS-level isolation boundary: Seatbelt profiles
// on darwin, bubblewrap on linux.
package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config describes the isolation policy for one session.
type Config struct {
	// ProjectRoot is always writable.
	ProjectRoot string
	// AllowedPaths are extra writable roots granted by configuration.
	AllowedPaths []string
	AllowNetwork bool
	// SkipSandbox turns every check and wrapper into a no-op.
	SkipSandbox bool
	// Logger receives downgrade warnings. Nil falls back to the
	// process default.
	Logger *slog.Logger
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// AccessError reports one denied path operation.
type AccessError struct {
	Op     string // "read" or "write"
	Path   string
	Reason string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("sandbox denied %s of %s: %s", e.Op, e.Path, e.Reason)
}

// writableRoots returns the resolved roots writes are confined to:
// project root, the system temp directory and explicit allowances.
func (c *Config) writableRoots() []string {
	roots := make([]string, 0, len(c.AllowedPaths)+2)
	if c.ProjectRoot != "" {
		roots = append(roots, resolveExisting(c.ProjectRoot))
	}
	roots = append(roots, resolveExisting(os.TempDir()))
	for _, p := range c.AllowedPaths {
		if p != "" {
			roots = append(roots, resolveExisting(p))
		}
	}
	return roots
}

// ValidateWrite accepts a path iff its resolved form is inside the
// project root, the temp directory or an explicitly allowed path.
// There are no other exceptions.
func (c *Config) ValidateWrite(path string) error {
	if c.SkipSandbox {
		return nil
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return &AccessError{Op: "write", Path: path, Reason: err.Error()}
	}
	for _, root := range c.writableRoots() {
		if isWithin(root, resolved) {
			return nil
		}
	}
	return &AccessError{Op: "write", Path: path,
		Reason: "outside project root, temp directory and allowed paths"}
}

// ValidateRead tries the write allow-list first, then rejects paths in
// the platform's protected clusters. Everything else is permitted so
// tools can read /usr, /bin and other system prefixes.
func (c *Config) ValidateRead(path string) error {
	if c.SkipSandbox {
		return nil
	}
	resolved, err := resolvePath(path)
	if err != nil {
		return &AccessError{Op: "read", Path: path, Reason: err.Error()}
	}
	for _, root := range c.writableRoots() {
		if isWithin(root, resolved) {
			return nil
		}
	}
	for _, protected := range protectedReadPaths() {
		if isWithin(protected, resolved) {
			return &AccessError{Op: "read", Path: path,
				Reason: "inside protected cluster " + protected}
		}
	}
	return nil
}

// resolvePath follows symlinks so an escaping link cannot smuggle a
// protected target past the prefix checks. For paths that do not exist
// yet, the deepest existing ancestor is resolved and the remainder
// re-appended.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	var tail []string
	dir := abs
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
	}
	return abs, nil
}

// resolveExisting resolves symlinks for a root expected to exist,
// falling back to the absolute form.
func resolveExisting(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// isWithin reports whether path is root or inside it.
func isWithin(root, path string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
