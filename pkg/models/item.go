package models

import "time"

// ItemKind identifies a work item's position in the decomposition tree.
type ItemKind string

const (
	// KindRoot is the root work item (the PRD).
	KindRoot ItemKind = "root"
	// KindEpic is a grouping item that owns a set of tasks.
	KindEpic ItemKind = "epic"
	// KindTask is a leaf item, the smallest schedulable unit of work.
	KindTask ItemKind = "task"
)

// Valid returns true if the kind is a known value.
func (k ItemKind) Valid() bool {
	switch k {
	case KindRoot, KindEpic, KindTask:
		return true
	default:
		return false
	}
}

// ItemStatus represents the current state of a work item.
type ItemStatus string

const (
	// StatusPending indicates the item has not started.
	StatusPending ItemStatus = "pending"
	// StatusActive indicates the item is currently being worked on.
	StatusActive ItemStatus = "active"
	// StatusCompleted indicates the item finished successfully.
	StatusCompleted ItemStatus = "completed"
	// StatusFailed indicates the item failed.
	StatusFailed ItemStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is an end state.
func (s ItemStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// WorkItem is a node in the decomposition tree. Children are referenced by
// id into the WorkflowState arena, never embedded, so lookups stay O(1) and
// ownership stays with the state aggregate.
type WorkItem struct {
	// ID is the tracker-assigned identifier, unique across the tree.
	ID string `json:"id"`
	// Kind is the item's position in the tree: root, epic, or task.
	Kind ItemKind `json:"kind"`
	// Title is the short description of the item.
	Title string `json:"title"`
	// Status is the current state of the item.
	Status ItemStatus `json:"status"`
	// Children lists child item ids in declaration order. Empty for tasks.
	Children []string `json:"children,omitempty"`
	// Footprint lists the resource keys (typically file paths) a task will
	// mutate. Tasks only; keys are compared by exact string equality.
	Footprint []string `json:"footprint,omitempty"`
	// ResultRef is an opaque reference to the produced artifact (e.g. a PR
	// identifier), set when the item completes.
	ResultRef string `json:"result_ref,omitempty"`
	// CreatedAt is when the item was created in the tracker.
	CreatedAt time.Time `json:"created_at"`
}

// IsLeaf returns true if the item is a schedulable task.
func (w *WorkItem) IsLeaf() bool {
	return w.Kind == KindTask
}
