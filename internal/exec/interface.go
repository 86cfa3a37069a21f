// Package exec provides an interface for command execution. It is the seam
// shared by the git runner and the command executor, and the point where
// tests substitute fakes for real processes.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunShell executes a shell command through "sh -c".
	// This is a convenience method for running complex shell commands.
	RunShell(ctx context.Context, workDir string, command string) (output []byte, err error)
}
