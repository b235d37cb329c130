package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/halim/aria/pkg/security"
)

// ConfirmFunc asks the user whether a command may run. Returning false
// aborts the execution without an error surfacing to the user as a failure.
type ConfirmFunc func(command string) bool

// ExecuteCommand runs shell commands under the security policy: blocklist
// check before spawn, scrubbed environment, and a process-group kill on
// timeout so children cannot outlive the deadline.
type ExecuteCommand struct {
	sec     *security.Context
	confirm ConfirmFunc
}

// NewExecuteCommand builds the execute_command tool. confirm may be nil when
// confirmation is disabled.
func NewExecuteCommand(sec *security.Context, confirm ConfirmFunc) *ExecuteCommand {
	return &ExecuteCommand{sec: sec, confirm: confirm}
}

func (t *ExecuteCommand) Name() string { return "execute_command" }

func (t *ExecuteCommand) Description() string {
	return "Run a shell command in the working directory. Returns stdout, stderr and the exit code."
}

func (t *ExecuteCommand) Params() []Param {
	return []Param{
		{Name: "command", Type: "string", Description: "Shell command to run", Required: true},
		{Name: "timeout_seconds", Type: "number", Description: "Timeout in seconds (default from configuration)"},
	}
}

func (t *ExecuteCommand) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return "", errors.New("command is required")
	}
	if err := t.sec.CheckCommand(command); err != nil {
		return "", err
	}
	if t.sec.ConfirmCommands() && t.confirm != nil && !t.confirm(command) {
		return "command execution declined by the user", nil
	}

	timeout := t.sec.CommandTimeout()
	if secs := numberArg(args, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = t.sec.WorkDir()
	cmd.Env = t.sec.Env()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole process group so pipelines and children die too.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s", timeout)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return "", fmt.Errorf("run command: %w", err)
		}
	}

	log.Debug().
		Str("command", command).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("command executed")

	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d\n", exitCode)
	if out := strings.TrimRight(stdout.String(), "\n"); out != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", out)
	}
	if errOut := strings.TrimRight(stderr.String(), "\n"); errOut != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", errOut)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
