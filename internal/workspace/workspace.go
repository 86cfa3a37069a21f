// Package workspace provisions isolated execution contexts for tasks. Each
// task gets its own git worktree and branch so concurrent executors never
// share a working directory.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jharlow/foreman/internal/git"
)

// Workspace is an isolated, independently addressable execution context
// keyed by the unit id it was provisioned for.
type Workspace struct {
	// UnitID is the task this workspace belongs to.
	UnitID string
	// Path is the absolute path to the worktree directory.
	Path string
	// Branch is the branch checked out in this worktree.
	Branch string
	// CreatedAt is when the workspace was provisioned.
	CreatedAt time.Time
}

// Provisioner defines the interface for workspace management. Provision is
// idempotent per unit id: calling it twice without an intervening Release
// returns the existing workspace rather than creating a duplicate.
type Provisioner interface {
	// Provision returns the workspace for the given unit, creating it if
	// needed.
	Provision(unitID string) (*Workspace, error)
	// Release removes a workspace and deletes its branch.
	Release(ws *Workspace) error
}

// Verify Manager implements Provisioner at compile time.
var _ Provisioner = (*Manager)(nil)

// Manager provisions workspaces as git worktrees under a base directory.
type Manager struct {
	baseDir  string
	repoPath string
	git      git.Runner

	mu     sync.Mutex
	byUnit map[string]*Workspace
}

// NewManager creates a workspace manager. baseDir defaults to
// ~/.cache/foreman/workspaces when empty.
func NewManager(baseDir, repoPath string) (*Manager, error) {
	return NewManagerWithRunner(baseDir, repoPath, git.NewRunner(repoPath))
}

// NewManagerWithRunner creates a manager with a custom git runner (for testing).
func NewManagerWithRunner(baseDir, repoPath string, runner git.Runner) (*Manager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "foreman", "workspaces")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}

	return &Manager{
		baseDir:  baseDir,
		repoPath: repoPath,
		git:      runner,
		byUnit:   make(map[string]*Workspace),
	}, nil
}

// BaseDir returns the directory workspaces are created under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Provision returns the workspace for the given unit, creating a worktree
// and branch on first call. Repeated calls for the same unit return the
// existing workspace.
func (m *Manager) Provision(unitID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.byUnit[unitID]; ok {
		return ws, nil
	}

	suffix := uuid.New().String()[:8]
	branch := fmt.Sprintf("foreman-%s-%s", sanitize(unitID), suffix)
	path := filepath.Join(m.baseDir, branch)

	if err := m.git.WorktreeAddNewBranch(path, branch); err != nil {
		return nil, fmt.Errorf("provision workspace for %s: %w", unitID, err)
	}

	ws := &Workspace{
		UnitID:    unitID,
		Path:      path,
		Branch:    branch,
		CreatedAt: time.Now(),
	}
	m.byUnit[unitID] = ws
	return ws, nil
}

// Release removes the worktree and deletes its branch. The unit becomes
// eligible for a fresh Provision afterwards.
func (m *Manager) Release(ws *Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreeRemove(ws.Path, true); err != nil {
		return fmt.Errorf("remove worktree %s: %w", ws.Path, err)
	}
	if err := m.git.DeleteBranch(ws.Branch); err != nil {
		return fmt.Errorf("delete branch %s: %w", ws.Branch, err)
	}
	delete(m.byUnit, ws.UnitID)
	return nil
}

// StartupCleanup prunes stale worktree entries and removes leftover foreman
// worktrees from a previous process. Returns the number removed.
func (m *Manager) StartupCleanup() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreePrune(); err != nil {
		return 0, fmt.Errorf("prune worktrees: %w", err)
	}

	paths, err := m.git.WorktreeList()
	if err != nil {
		return 0, fmt.Errorf("list worktrees: %w", err)
	}

	removed := 0
	for _, path := range paths {
		if !strings.HasPrefix(path, m.baseDir+string(filepath.Separator)) {
			continue
		}
		branch := filepath.Base(path)
		if err := m.git.WorktreeRemove(path, true); err != nil {
			continue
		}
		if exists, _ := m.git.BranchExists(branch); exists {
			_ = m.git.DeleteBranch(branch)
		}
		removed++
	}
	return removed, nil
}

// sanitize makes a unit id safe for use in a branch name.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '-'
		}
	}, id)
}
