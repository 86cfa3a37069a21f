package models

import (
	"fmt"
	"sort"
)

// WorkflowState is the root aggregate for a single workflow run. It is
// constructed fresh by reconstruction at process start, owned by the
// execution controller, and never persisted directly — only checkpoint
// snapshots leave the process.
type WorkflowState struct {
	// Root is the id of the root work item.
	Root string
	// Items is the arena: every item in the tree, keyed by id.
	Items map[string]*WorkItem
	// Active is the set of task ids currently dispatched.
	Active map[string]bool
	// Queued is the ordered sequence of task ids eligible but not yet
	// dispatched.
	Queued []string
	// Completed is the set of task ids that finished successfully.
	Completed map[string]bool
	// Failed is the set of task ids that failed.
	Failed map[string]bool
	// Paused reports whether new dispatch is suppressed. Written only by
	// the execution controller.
	Paused bool
}

// NewWorkflowState creates an empty state for the given root id.
func NewWorkflowState(rootID string) *WorkflowState {
	return &WorkflowState{
		Root:      rootID,
		Items:     make(map[string]*WorkItem),
		Active:    make(map[string]bool),
		Completed: make(map[string]bool),
		Failed:    make(map[string]bool),
	}
}

// Item returns the work item with the given id, or nil.
func (s *WorkflowState) Item(id string) *WorkItem {
	return s.Items[id]
}

// Leaves returns all task ids in ascending id order.
func (s *WorkflowState) Leaves() []string {
	var ids []string
	for id, item := range s.Items {
		if item.IsLeaf() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// LeafItems returns all task items in ascending id order.
func (s *WorkflowState) LeafItems() []*WorkItem {
	ids := s.Leaves()
	items := make([]*WorkItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, s.Items[id])
	}
	return items
}

// Enqueue appends a task id to the queued sequence and marks it pending.
// Ids already queued or in a tracked set are not enqueued twice.
func (s *WorkflowState) Enqueue(id string) {
	if s.Active[id] || s.Completed[id] || s.Failed[id] || s.IsQueued(id) {
		return
	}
	s.Queued = append(s.Queued, id)
}

// IsQueued returns true if the id is in the queued sequence.
func (s *WorkflowState) IsQueued(id string) bool {
	for _, q := range s.Queued {
		if q == id {
			return true
		}
	}
	return false
}

// Dispatch moves a task from queued to active and marks it active.
// Returns an error if the id is not queued.
func (s *WorkflowState) Dispatch(id string) error {
	idx := -1
	for i, q := range s.Queued {
		if q == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("dispatch %s: not queued", id)
	}
	s.Queued = append(s.Queued[:idx], s.Queued[idx+1:]...)
	s.Active[id] = true
	if item := s.Items[id]; item != nil {
		item.Status = StatusActive
	}
	return nil
}

// Complete moves a task from active to completed and records its result ref.
// Returns an error if the id is not active.
func (s *WorkflowState) Complete(id, resultRef string) error {
	if !s.Active[id] {
		return fmt.Errorf("complete %s: not active", id)
	}
	delete(s.Active, id)
	s.Completed[id] = true
	if item := s.Items[id]; item != nil {
		item.Status = StatusCompleted
		item.ResultRef = resultRef
	}
	return nil
}

// Fail moves a task from active to failed.
// Returns an error if the id is not active.
func (s *WorkflowState) Fail(id string) error {
	if !s.Active[id] {
		return fmt.Errorf("fail %s: not active", id)
	}
	delete(s.Active, id)
	s.Failed[id] = true
	if item := s.Items[id]; item != nil {
		item.Status = StatusFailed
	}
	return nil
}

// StatusCounts returns the number of tasks per status.
func (s *WorkflowState) StatusCounts() map[ItemStatus]int {
	counts := make(map[ItemStatus]int)
	for _, item := range s.Items {
		if item.IsLeaf() {
			counts[item.Status]++
		}
	}
	return counts
}

// Done returns true when no task remains queued or active.
func (s *WorkflowState) Done() bool {
	return len(s.Queued) == 0 && len(s.Active) == 0
}

// CheckInvariants verifies the partition invariant: every tracked id exists
// in the arena, is a task, and appears in exactly one of the four sets.
func (s *WorkflowState) CheckInvariants() error {
	seen := make(map[string]int)
	track := func(id string, set string) error {
		item := s.Items[id]
		if item == nil {
			return fmt.Errorf("%s set references unknown item %s", set, id)
		}
		if !item.IsLeaf() {
			return fmt.Errorf("%s set references non-task item %s", set, id)
		}
		seen[id]++
		if seen[id] > 1 {
			return fmt.Errorf("item %s appears in more than one set", id)
		}
		return nil
	}
	for _, id := range s.Queued {
		if err := track(id, "queued"); err != nil {
			return err
		}
	}
	for id := range s.Active {
		if err := track(id, "active"); err != nil {
			return err
		}
	}
	for id := range s.Completed {
		if err := track(id, "completed"); err != nil {
			return err
		}
	}
	for id := range s.Failed {
		if err := track(id, "failed"); err != nil {
			return err
		}
	}
	return nil
}
