package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jharlow/foreman/internal/tracker"
	"github.com/jharlow/foreman/pkg/models"
)

// Reconstructor rebuilds an in-memory WorkflowState from the tracker plus
// the most recent checkpoint. The tracker's freshly observed terminal
// results are always authoritative; the checkpoint only accelerates queue
// ordering after a crash or restart.
type Reconstructor struct {
	trk    tracker.IssueTracker
	logger *DebugLogger
}

// NewReconstructor creates a reconstructor over the given tracker.
func NewReconstructor(trk tracker.IssueTracker, logger *DebugLogger) *Reconstructor {
	if logger == nil {
		logger = NopLogger()
	}
	return &Reconstructor{trk: trk, logger: logger}
}

// Reconstruct fetches the decomposition tree rooted at rootID and derives
// every task's status from the tracker's observed results, then seeds the
// queue order from the last checkpoint. Fails only if the tracker is
// unreachable; dangling child references degrade to pending placeholders
// with a logged warning so a partial tree never blocks the workflow.
func (r *Reconstructor) Reconstruct(ctx context.Context, rootID string) (*models.WorkflowState, error) {
	state := models.NewWorkflowState(rootID)

	if err := r.fetchSubtree(ctx, state, rootID, 0); err != nil {
		return nil, err
	}

	// Derive each task's status from its observed result. Leaves() is
	// sorted, so requeue order stays deterministic.
	var requeued []string
	for _, id := range state.Leaves() {
		item := state.Item(id)
		ref, err := r.trk.FetchResultRef(ctx, id)
		if err != nil {
			if errors.Is(err, tracker.ErrUnavailable) {
				return nil, fmt.Errorf("reconstruct %s: %w", rootID, err)
			}
			r.logger.Log("[reconstruct] result lookup for %s: %v (treating as pending)", id, err)
			ref = tracker.ResultRef{State: tracker.ResultNone}
		}

		switch ref.State {
		case tracker.ResultCompleted:
			item.Status = models.StatusCompleted
			item.ResultRef = ref.Ref
			state.Completed[id] = true
		case tracker.ResultFailed:
			item.Status = models.StatusFailed
			state.Failed[id] = true
		case tracker.ResultInFlight:
			// The process that dispatched this task is gone; nothing is
			// actually running it anymore. Requeue it with priority.
			r.logger.Log("[reconstruct] task %s was in flight, requeueing", id)
			item.Status = models.StatusPending
			requeued = append(requeued, id)
		default:
			item.Status = models.StatusPending
		}
	}

	// Seed queue order from the checkpoint: previously active tasks first,
	// then the previously queued order, then any remaining pending tasks
	// in ascending id order. Terminal status observed above always wins
	// over a stale checkpoint entry.
	cp := r.fetchCheckpoint(ctx, rootID)
	if cp != nil {
		for _, id := range cp.Active {
			r.enqueueIfPending(state, id)
		}
	}
	for _, id := range requeued {
		r.enqueueIfPending(state, id)
	}
	if cp != nil {
		for _, id := range cp.Queued {
			r.enqueueIfPending(state, id)
		}
	}
	for _, id := range state.Leaves() {
		r.enqueueIfPending(state, id)
	}

	r.logger.Log("[reconstruct] root %s: %d items, %d queued, %d completed, %d failed",
		rootID, len(state.Items), len(state.Queued), len(state.Completed), len(state.Failed))
	return state, nil
}

// fetchSubtree recursively fetches an item and its declared children,
// inferring kind from tree depth: root, one level of epics, then tasks.
func (r *Reconstructor) fetchSubtree(ctx context.Context, state *models.WorkflowState, id string, depth int) error {
	item, err := r.trk.FetchItem(ctx, id)
	if err != nil {
		if errors.Is(err, tracker.ErrUnavailable) {
			return fmt.Errorf("fetch item %s: %w", id, err)
		}
		// Dangling reference: the parent declared a child the tracker
		// cannot resolve. Degrade to a pending placeholder.
		r.logger.Log("[reconstruct] WARNING: dangling child %s, treating as pending task", id)
		state.Items[id] = &models.WorkItem{
			ID:        id,
			Kind:      kindForDepth(depth),
			Status:    models.StatusPending,
			CreatedAt: time.Time{},
		}
		return nil
	}

	item.Kind = kindForDepth(depth)
	item.Status = models.StatusPending
	state.Items[id] = item

	for _, childID := range item.Children {
		if _, seen := state.Items[childID]; seen {
			continue
		}
		if err := r.fetchSubtree(ctx, state, childID, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// fetchCheckpoint loads and decodes the root's checkpoint document.
// Any failure is logged and treated as "no checkpoint".
func (r *Reconstructor) fetchCheckpoint(ctx context.Context, rootID string) *models.Checkpoint {
	doc, err := r.trk.FetchCheckpoint(ctx, models.CheckpointMarker(rootID))
	if err != nil {
		if !errors.Is(err, tracker.ErrNotFound) {
			r.logger.Log("[reconstruct] checkpoint fetch: %v (continuing without)", err)
		}
		return nil
	}
	var cp models.Checkpoint
	if err := yaml.Unmarshal(doc, &cp); err != nil {
		r.logger.Log("[reconstruct] checkpoint decode: %v (continuing without)", err)
		return nil
	}
	return &cp
}

// enqueueIfPending queues a task id if it exists, is a task, and has no
// terminal status.
func (r *Reconstructor) enqueueIfPending(state *models.WorkflowState, id string) {
	item := state.Item(id)
	if item == nil || !item.IsLeaf() {
		return
	}
	if state.Completed[id] || state.Failed[id] {
		return
	}
	state.Enqueue(id)
}

// kindForDepth maps tree depth to item kind: the root, one level of epics,
// then tasks all the way down.
func kindForDepth(depth int) models.ItemKind {
	switch depth {
	case 0:
		return models.KindRoot
	case 1:
		return models.KindEpic
	default:
		return models.KindTask
	}
}
