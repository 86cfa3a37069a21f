package models

import (
	"reflect"
	"testing"
	"time"
)

func stateWithTasks(ids ...string) *WorkflowState {
	s := NewWorkflowState("ROOT-1")
	root := &WorkItem{ID: "ROOT-1", Kind: KindRoot, Title: "root"}
	for i, id := range ids {
		root.Children = append(root.Children, id)
		s.Items[id] = &WorkItem{
			ID:        id,
			Kind:      KindTask,
			Title:     "task " + id,
			Status:    StatusPending,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		}
	}
	s.Items[root.ID] = root
	return s
}

func TestEnqueueDeduplicates(t *testing.T) {
	s := stateWithTasks("T-1", "T-2")
	s.Enqueue("T-1")
	s.Enqueue("T-1")
	s.Enqueue("T-2")

	want := []string{"T-1", "T-2"}
	if !reflect.DeepEqual(s.Queued, want) {
		t.Errorf("Queued = %v, want %v", s.Queued, want)
	}
}

func TestEnqueueSkipsTrackedIDs(t *testing.T) {
	s := stateWithTasks("T-1", "T-2", "T-3")
	s.Completed["T-1"] = true
	s.Active["T-2"] = true

	s.Enqueue("T-1")
	s.Enqueue("T-2")
	s.Enqueue("T-3")

	if len(s.Queued) != 1 || s.Queued[0] != "T-3" {
		t.Errorf("Queued = %v, want [T-3]", s.Queued)
	}
}

func TestDispatchCompleteLifecycle(t *testing.T) {
	s := stateWithTasks("T-1")
	s.Enqueue("T-1")

	if err := s.Dispatch("T-1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !s.Active["T-1"] || s.IsQueued("T-1") {
		t.Error("T-1 should be active and dequeued")
	}
	if got := s.Item("T-1").Status; got != StatusActive {
		t.Errorf("status = %s, want active", got)
	}

	if err := s.Complete("T-1", "PR-7"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !s.Completed["T-1"] || s.Active["T-1"] {
		t.Error("T-1 should be completed and inactive")
	}
	if got := s.Item("T-1").ResultRef; got != "PR-7" {
		t.Errorf("ResultRef = %q, want PR-7", got)
	}
	if !s.Done() {
		t.Error("expected done")
	}
}

func TestDispatchRequiresQueued(t *testing.T) {
	s := stateWithTasks("T-1")
	if err := s.Dispatch("T-1"); err == nil {
		t.Error("expected error dispatching unqueued task")
	}
}

func TestCompleteAndFailRequireActive(t *testing.T) {
	s := stateWithTasks("T-1")
	if err := s.Complete("T-1", "ref"); err == nil {
		t.Error("expected error completing inactive task")
	}
	if err := s.Fail("T-1"); err == nil {
		t.Error("expected error failing inactive task")
	}
}

func TestFailMovesToFailedSet(t *testing.T) {
	s := stateWithTasks("T-1")
	s.Enqueue("T-1")
	if err := s.Dispatch("T-1"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := s.Fail("T-1"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if !s.Failed["T-1"] || s.Active["T-1"] {
		t.Error("T-1 should be failed and inactive")
	}
	if got := s.Item("T-1").Status; got != StatusFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestLeavesSortedAndExcludeNonTasks(t *testing.T) {
	s := stateWithTasks("T-3", "T-1", "T-2")
	want := []string{"T-1", "T-2", "T-3"}
	if got := s.Leaves(); !reflect.DeepEqual(got, want) {
		t.Errorf("Leaves() = %v, want %v", got, want)
	}
	for _, id := range s.Leaves() {
		if id == "ROOT-1" {
			t.Error("root must not appear in Leaves()")
		}
	}
}

func TestStatusCounts(t *testing.T) {
	s := stateWithTasks("T-1", "T-2", "T-3")
	s.Enqueue("T-1")
	s.Enqueue("T-2")
	if err := s.Dispatch("T-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete("T-1", "ref"); err != nil {
		t.Fatal(err)
	}

	counts := s.StatusCounts()
	if counts[StatusCompleted] != 1 || counts[StatusPending] != 2 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestCheckInvariants(t *testing.T) {
	s := stateWithTasks("T-1", "T-2")
	s.Enqueue("T-1")
	s.Active["T-2"] = true
	if err := s.CheckInvariants(); err != nil {
		t.Errorf("valid partition rejected: %v", err)
	}

	// An id in two sets violates the partition.
	s.Completed["T-2"] = true
	if err := s.CheckInvariants(); err == nil {
		t.Error("expected violation for id in two sets")
	}
	delete(s.Completed, "T-2")

	// Unknown id in a set.
	s.Failed["T-99"] = true
	if err := s.CheckInvariants(); err == nil {
		t.Error("expected violation for unknown id")
	}
	delete(s.Failed, "T-99")

	// Non-task id in a set.
	s.Completed["ROOT-1"] = true
	if err := s.CheckInvariants(); err == nil {
		t.Error("expected violation for non-task id")
	}
}
