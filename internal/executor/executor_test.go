package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jharlow/foreman/internal/workspace"
	"github.com/jharlow/foreman/pkg/models"
)

// fakeRunner returns canned output for RunShell calls.
type fakeRunner struct {
	output []byte
	err    error
	calls  []string
}

func (f *fakeRunner) Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error) {
	return f.output, f.err
}

func (f *fakeRunner) RunShell(ctx context.Context, workDir, command string) ([]byte, error) {
	f.calls = append(f.calls, command)
	return f.output, f.err
}

func testItem() *models.WorkItem {
	return &models.WorkItem{ID: "t-1", Kind: models.KindTask, Title: "add parser"}
}

func testWorkspace() *workspace.Workspace {
	return &workspace.Workspace{UnitID: "t-1", Path: "/tmp/ws", Branch: "foreman-t-1-abcd1234"}
}

func TestExecuteSuccessUsesLastOutputLine(t *testing.T) {
	runner := &fakeRunner{output: []byte("building...\ntests ok\npr-17\n")}
	e := NewCommandExecutorWithRunner("./work.sh", runner)

	outcome := e.Execute(context.Background(), testItem(), testWorkspace())
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.ResultRef != "pr-17" {
		t.Errorf("expected result ref pr-17, got %q", outcome.ResultRef)
	}
}

func TestExecuteSuccessFallsBackToBranch(t *testing.T) {
	runner := &fakeRunner{output: []byte("   \n")}
	e := NewCommandExecutorWithRunner("./work.sh", runner)

	outcome := e.Execute(context.Background(), testItem(), testWorkspace())
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if outcome.ResultRef != "foreman-t-1-abcd1234" {
		t.Errorf("expected branch fallback, got %q", outcome.ResultRef)
	}
}

func TestExecuteFailureCarriesReason(t *testing.T) {
	runner := &fakeRunner{output: []byte("compile error: missing brace"), err: errors.New("exit status 1")}
	e := NewCommandExecutorWithRunner("./work.sh", runner)

	outcome := e.Execute(context.Background(), testItem(), testWorkspace())
	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Reason != "compile error: missing brace" {
		t.Errorf("expected command output as reason, got %q", outcome.Reason)
	}
}

func TestExecuteFailureWithoutOutputUsesError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 2")}
	e := NewCommandExecutorWithRunner("./work.sh", runner)

	outcome := e.Execute(context.Background(), testItem(), testWorkspace())
	if outcome.Success {
		t.Fatal("expected failure")
	}
	if outcome.Reason != "exit status 2" {
		t.Errorf("expected error string as reason, got %q", outcome.Reason)
	}
}

func TestExecutePassesTaskContext(t *testing.T) {
	runner := &fakeRunner{output: []byte("ok")}
	e := NewCommandExecutorWithRunner("./work.sh", runner)

	e.Execute(context.Background(), testItem(), testWorkspace())
	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 shell call, got %d", len(runner.calls))
	}
	if !strings.Contains(runner.calls[0], "'t-1'") || !strings.Contains(runner.calls[0], "'add parser'") {
		t.Errorf("command missing task context: %q", runner.calls[0])
	}
}
