// Package security holds the immutable policy object that constrains which
// filesystem paths and shell commands tools may touch. A Context is built
// once per run from configuration; changing policy means building a new one.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrPathDenied is returned when a path is outside every allowed root.
	ErrPathDenied = errors.New("path is outside the allowed directories")

	// ErrFileTooLarge is returned when a read or write exceeds the size limit.
	ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")

	// ErrCommandBlocked is returned when a command matches the blocklist.
	ErrCommandBlocked = errors.New("command matches a blocked pattern")

	// ErrCommandsDisabled is returned when command execution is not enabled.
	ErrCommandsDisabled = errors.New("command execution is disabled")
)

// DefaultMaxFileSize bounds tool file reads and writes.
const DefaultMaxFileSize = 10 * 1024 * 1024 // 10 MiB

// DefaultCommandTimeout bounds shell command execution wall-clock time.
const DefaultCommandTimeout = 30 * time.Second

// blockedCommands is the fixed blocklist of destructive command patterns,
// matched case-insensitively as substrings before any process is spawned.
var blockedCommands = []string{
	"rm -rf",
	"rm -fr",
	"rmdir /s",
	"mkfs",
	"dd if=",
	"format c:",
	":(){ :|:& };:", // fork bomb
	"chmod -r 777",
	"chmod -r 000",
	"chown -r",
	"iptables -f",
	"ufw disable",
	"shutdown",
	"reboot",
	"halt",
	"poweroff",
	"init 0",
	"init 6",
}

// envAllowlist is the only set of variables inherited by spawned commands.
// Everything else, credentials included, stays out of child environments.
var envAllowlist = []string{"PATH", "HOME", "LANG", "LC_ALL", "TERM", "TMPDIR", "USER"}

// Config carries the raw policy values a Context is built from.
type Config struct {
	AllowedRoots    []string
	MaxFileSize     int64
	AllowWebSearch  bool
	AllowCommands   bool
	CommandTimeout  time.Duration
	ConfirmCommands bool
}

// Context is the immutable policy value enforced before any local tool runs.
type Context struct {
	roots           []string
	maxFileSize     int64
	allowWebSearch  bool
	allowCommands   bool
	commandTimeout  time.Duration
	confirmCommands bool
}

// New canonicalizes the allowed roots and freezes the policy. Roots that do
// not exist are rejected so the policy can never silently cover nothing.
func New(cfg Config) (*Context, error) {
	roots := make([]string, 0, len(cfg.AllowedRoots))
	for _, root := range cfg.AllowedRoots {
		canonical, err := canonicalize(root)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed root %q: %w", root, err)
		}
		roots = append(roots, canonical)
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	return &Context{
		roots:           roots,
		maxFileSize:     maxSize,
		allowWebSearch:  cfg.AllowWebSearch,
		allowCommands:   cfg.AllowCommands,
		commandTimeout:  timeout,
		confirmCommands: cfg.ConfirmCommands,
	}, nil
}

// canonicalize resolves symlinks and produces an absolute path, so the
// descendant check below is structural rather than pattern-matched.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// CheckPath accepts a path only if its canonical form is equal to or a
// descendant of one of the allowed roots, and returns that canonical form
// for the caller to operate on. Traversal via ".." and symlink escapes are
// defeated by canonicalization. For paths that do not exist yet (writes),
// the nearest existing ancestor is canonicalized instead.
func (c *Context) CheckPath(path string) (string, error) {
	canonical, err := canonicalize(path)
	if err != nil {
		canonical, err = canonicalizeMissing(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrPathDenied, path)
		}
	}

	for _, root := range c.roots {
		if canonical == root || strings.HasPrefix(canonical, root+string(filepath.Separator)) {
			return canonical, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPathDenied, path)
}

// canonicalizeMissing handles a path whose tail does not exist yet, such as
// a write under directories still to be created. It walks up to the nearest
// existing ancestor, resolves that, and re-appends the missing components.
func canonicalizeMissing(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var missing []string
	dir := abs
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor of %s", abs)
		}
		missing = append(missing, filepath.Base(dir))
		dir = parent
		if _, err := os.Stat(dir); err == nil {
			break
		}
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, missing[i])
	}
	return resolved, nil
}

// CheckSize rejects reads and writes beyond the configured maximum.
func (c *Context) CheckSize(size int64) error {
	if size > c.maxFileSize {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, size, c.maxFileSize)
	}
	return nil
}

// CheckCommand rejects commands containing any blocklisted destructive
// pattern. The match is a case-insensitive substring check and runs before
// a process is ever spawned.
func (c *Context) CheckCommand(command string) error {
	if !c.allowCommands {
		return ErrCommandsDisabled
	}
	lower := strings.ToLower(command)
	for _, blocked := range blockedCommands {
		if strings.Contains(lower, blocked) {
			return fmt.Errorf("%w: %q", ErrCommandBlocked, blocked)
		}
	}
	return nil
}

// Env builds the environment for spawned commands as an explicit allow-list
// of inherited variables, never inherit-all-then-scrub.
func (c *Context) Env() []string {
	env := make([]string, 0, len(envAllowlist))
	for _, name := range envAllowlist {
		if value, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+value)
		}
	}
	return env
}

// WorkDir returns the first allowed root, used as the working directory for
// spawned commands. Empty when no roots are configured.
func (c *Context) WorkDir() string {
	if len(c.roots) == 0 {
		return ""
	}
	return c.roots[0]
}

// MaxFileSize returns the configured file size limit in bytes.
func (c *Context) MaxFileSize() int64 { return c.maxFileSize }

// AllowWebSearch reports whether the search_web tool may be registered.
func (c *Context) AllowWebSearch() bool { return c.allowWebSearch }

// AllowCommands reports whether the execute_command tool may be registered.
func (c *Context) AllowCommands() bool { return c.allowCommands }

// CommandTimeout returns the hard wall-clock limit for spawned commands.
func (c *Context) CommandTimeout() time.Duration { return c.commandTimeout }

// ConfirmCommands reports whether command execution requires interactive
// confirmation before running.
func (c *Context) ConfirmCommands() bool { return c.confirmCommands }
