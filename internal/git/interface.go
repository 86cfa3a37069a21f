// Package git provides an interface for the git operations workspace
// provisioning relies on.
package git

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch deletes the specified branch (force delete).
	DeleteBranch(name string) error
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeRemove removes the worktree at the given path, optionally with force.
	WorktreeRemove(path string, force bool) error
	// WorktreeList returns a list of worktree paths.
	WorktreeList() ([]string, error)
	// WorktreePrune removes stale worktree entries.
	WorktreePrune() error
}

// Runner defines the complete interface for git operations.
// Consumers should prefer the focused interfaces when possible.
type Runner interface {
	BranchOperations
	WorktreeOperations
	// Run executes an arbitrary git command with the given arguments.
	// Returns the command output and an error if the command fails.
	Run(args ...string) (string, error)
}
