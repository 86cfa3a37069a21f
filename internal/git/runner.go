package git

import (
	"context"
	"fmt"
	"strings"

	iexec "github.com/jharlow/foreman/internal/exec"
)

// ExecRunner implements Runner by shelling out to git.
type ExecRunner struct {
	repoPath string
	runner   iexec.CommandRunner
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath, runner: iexec.NewRunner()}
}

// NewRunnerWithExec creates a git runner with a custom command runner (for testing).
func NewRunnerWithExec(repoPath string, runner iexec.CommandRunner) *ExecRunner {
	return &ExecRunner{repoPath: repoPath, runner: runner}
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(args ...string) (string, error) {
	out, err := r.runner.Run(context.Background(), r.repoPath, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists returns true if the branch exists.
func (r *ExecRunner) BranchExists(name string) (bool, error) {
	_, err := r.run("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		// show-ref exits non-zero when the branch does not exist.
		return false, nil
	}
	return true, nil
}

// DeleteBranch deletes the specified branch (force delete).
func (r *ExecRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// WorktreeAddNewBranch creates a new worktree with a new branch.
func (r *ExecRunner) WorktreeAddNewBranch(path, branch string) error {
	return r.runSilent("worktree", "add", "-b", branch, path)
}

// WorktreeRemove removes the worktree at the given path.
func (r *ExecRunner) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return r.runSilent(args...)
}

// WorktreeList returns the paths of all worktrees.
func (r *ExecRunner) WorktreeList() ([]string, error) {
	out, err := r.run("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "worktree ") {
			paths = append(paths, strings.TrimPrefix(line, "worktree "))
		}
	}
	return paths, nil
}

// WorktreePrune removes stale worktree entries.
func (r *ExecRunner) WorktreePrune() error {
	return r.runSilent("worktree", "prune")
}
