// Package tracker defines the issue-tracker boundary: the external system of
// record the engine reconstructs from, checkpoints to, and polls for
// operator signals. The engine depends only on these abstractions, never on
// a concrete wire protocol.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/jharlow/foreman/pkg/models"
)

// ErrNotFound indicates the requested item does not exist in the tracker.
var ErrNotFound = errors.New("tracker: item not found")

// ErrUnavailable indicates the tracker could not be reached. Transient;
// callers retry with backoff rather than treating it as fatal.
var ErrUnavailable = errors.New("tracker: unavailable")

// ResultState classifies the externally observed outcome of a task.
type ResultState string

const (
	// ResultNone means no result reference exists for the task.
	ResultNone ResultState = "none"
	// ResultInFlight means a result reference exists but no terminal
	// outcome has been recorded.
	ResultInFlight ResultState = "in_flight"
	// ResultCompleted means the task has a completed result.
	ResultCompleted ResultState = "completed"
	// ResultFailed means a terminal failure marker is present.
	ResultFailed ResultState = "failed"
)

// ResultRef is the externally observed result of a task: an opaque artifact
// reference plus its terminal classification.
type ResultRef struct {
	// Ref is the opaque artifact reference (e.g. a PR identifier).
	Ref string
	// State classifies the result.
	State ResultState
}

// Annotation is an operator-authored note attached to the workflow, used to
// carry pause/resume signals.
type Annotation struct {
	// Timestamp is when the annotation was created.
	Timestamp time.Time
	// Text is the annotation body.
	Text string
}

// ItemReader fetches work items and their externally observed results.
type ItemReader interface {
	// FetchItem returns the work item with the given id.
	// Returns ErrNotFound if the id is unknown, ErrUnavailable on
	// transport failure.
	FetchItem(ctx context.Context, id string) (*models.WorkItem, error)
	// FetchChildren returns the declared child ids of an item, in order.
	FetchChildren(ctx context.Context, id string) ([]string, error)
	// FetchResultRef returns the observed result for a task.
	FetchResultRef(ctx context.Context, id string) (ResultRef, error)
}

// ResultWriter records the terminal outcome of a task in the system of
// record. The engine writes a result on every terminal transition so a
// restarted run reconstructs finished work instead of re-executing it.
type ResultWriter interface {
	// SetResult upserts the observed result for a task.
	SetResult(ctx context.Context, id string, ref ResultRef) error
}

// CheckpointStore persists the per-root checkpoint document. Writes are
// upserts against a stable marker: repeated writes overwrite the same
// document and never append.
type CheckpointStore interface {
	// UpsertCheckpoint overwrites the document at the given marker.
	UpsertCheckpoint(ctx context.Context, marker string, doc []byte) error
	// FetchCheckpoint returns the document at the marker, or ErrNotFound.
	FetchCheckpoint(ctx context.Context, marker string) ([]byte, error)
}

// AnnotationSource reads operator annotations and posts status updates.
type AnnotationSource interface {
	// FetchAnnotationsSince returns annotations created after the given
	// time, oldest first.
	FetchAnnotationsSince(ctx context.Context, since time.Time) ([]Annotation, error)
	// PostStatus attaches a status note to an item. Best effort; callers
	// log failures and continue.
	PostStatus(ctx context.Context, id, text string) error
}

// IssueTracker is the complete system-of-record interface. Consumers should
// prefer the focused interfaces when possible.
type IssueTracker interface {
	ItemReader
	ResultWriter
	CheckpointStore
	AnnotationSource
}
