// Package executor defines the boundary to whatever performs the actual
// work of a task. The engine only sees an Outcome; what "doing the work"
// means is entirely the implementation's business.
package executor

import (
	"context"
	"fmt"
	"strings"

	iexec "github.com/jharlow/foreman/internal/exec"
	"github.com/jharlow/foreman/internal/workspace"
	"github.com/jharlow/foreman/pkg/models"
)

// Executor runs a single task inside its provisioned workspace. Every
// failure mode is expressed through the returned Outcome, never a separate
// error channel, so completion handling has one funnel.
type Executor interface {
	Execute(ctx context.Context, item *models.WorkItem, ws *workspace.Workspace) models.Outcome
}

// CommandExecutor runs a configured shell command in the task's workspace.
// The command receives the task id and title as positional context appended
// to the command line. A zero exit status is success; the result ref is the
// last non-empty output line, falling back to the workspace branch.
type CommandExecutor struct {
	command string
	runner  iexec.CommandRunner
}

// Verify CommandExecutor implements Executor at compile time.
var _ Executor = (*CommandExecutor)(nil)

// NewCommandExecutor creates an executor running the given shell command.
func NewCommandExecutor(command string) *CommandExecutor {
	return &CommandExecutor{command: command, runner: iexec.NewRunner()}
}

// NewCommandExecutorWithRunner creates an executor with a custom command
// runner (for testing).
func NewCommandExecutorWithRunner(command string, runner iexec.CommandRunner) *CommandExecutor {
	return &CommandExecutor{command: command, runner: runner}
}

// Execute runs the configured command in the workspace directory.
func (e *CommandExecutor) Execute(ctx context.Context, item *models.WorkItem, ws *workspace.Workspace) models.Outcome {
	cmd := fmt.Sprintf("%s %s %s", e.command, shellQuote(item.ID), shellQuote(item.Title))
	out, err := e.runner.RunShell(ctx, ws.Path, cmd)
	if err != nil {
		reason := strings.TrimSpace(string(out))
		if reason == "" {
			reason = err.Error()
		}
		return models.FailureOutcome(reason)
	}

	ref := lastLine(string(out))
	if ref == "" {
		ref = ws.Branch
	}
	return models.SuccessOutcome(ref)
}

// lastLine returns the last non-empty line of output, trimmed.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// shellQuote wraps a value in single quotes for safe interpolation.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
