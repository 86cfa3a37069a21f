package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jharlow/foreman/internal/tracker"
	"github.com/jharlow/foreman/pkg/models"
)

// seedTree stores a root -> epic -> tasks tree in the tracker.
func seedTree(trk *tracker.Memory, taskIDs ...string) {
	trk.PutItem(&models.WorkItem{ID: "ROOT-1", Kind: models.KindRoot, Title: "root", Children: []string{"E-1"}})
	trk.PutItem(&models.WorkItem{ID: "E-1", Kind: models.KindEpic, Title: "epic", Children: taskIDs})
	for i, id := range taskIDs {
		trk.PutItem(&models.WorkItem{
			ID:        id,
			Kind:      models.KindTask,
			Title:     "task " + id,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
}

func storeCheckpoint(t *testing.T, trk *tracker.Memory, rootID string, cp models.Checkpoint) {
	t.Helper()
	doc, err := yaml.Marshal(&cp)
	if err != nil {
		t.Fatalf("marshal checkpoint: %v", err)
	}
	if err := trk.UpsertCheckpoint(context.Background(), models.CheckpointMarker(rootID), doc); err != nil {
		t.Fatalf("store checkpoint: %v", err)
	}
}

func TestReconstructDerivesStatusFromResults(t *testing.T) {
	trk := tracker.NewMemory()
	seedTree(trk, "T-1", "T-2", "T-3", "T-4")
	trk.SetResult(context.Background(), "T-1", tracker.ResultRef{Ref: "PR-101", State: tracker.ResultCompleted})
	trk.SetResult(context.Background(), "T-2", tracker.ResultRef{State: tracker.ResultFailed})
	trk.SetResult(context.Background(), "T-3", tracker.ResultRef{Ref: "PR-103", State: tracker.ResultInFlight})

	state, err := NewReconstructor(trk, nil).Reconstruct(context.Background(), "ROOT-1")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	if !state.Completed["T-1"] {
		t.Error("expected T-1 completed")
	}
	if state.Item("T-1").ResultRef != "PR-101" {
		t.Errorf("expected result ref carried over, got %q", state.Item("T-1").ResultRef)
	}
	if !state.Failed["T-2"] {
		t.Error("expected T-2 failed")
	}
	// The in-flight task is requeued ahead of the untouched one: whoever
	// dispatched it is gone, so nothing is actually running it.
	want := []string{"T-3", "T-4"}
	if !reflect.DeepEqual(state.Queued, want) {
		t.Errorf("expected queue %v, got %v", want, state.Queued)
	}
	if err := state.CheckInvariants(); err != nil {
		t.Errorf("invariants after reconstruction: %v", err)
	}
}

func TestReconstructFreshResultOverridesStaleCheckpoint(t *testing.T) {
	trk := tracker.NewMemory()
	seedTree(trk, "T-1", "T-2", "T-3")
	// The checkpoint claims T-1 was active and T-2 queued, but the tracker
	// has since observed T-1 failing. The observed terminal status wins.
	storeCheckpoint(t, trk, "ROOT-1", models.Checkpoint{
		Timestamp: time.Now(),
		Active:    []string{"T-1"},
		Queued:    []string{"T-2"},
	})
	trk.SetResult(context.Background(), "T-1", tracker.ResultRef{State: tracker.ResultFailed})

	state, err := NewReconstructor(trk, nil).Reconstruct(context.Background(), "ROOT-1")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	if !state.Failed["T-1"] {
		t.Error("expected observed failure to override checkpoint")
	}
	if state.IsQueued("T-1") {
		t.Error("failed task must not be requeued")
	}
	want := []string{"T-2", "T-3"}
	if !reflect.DeepEqual(state.Queued, want) {
		t.Errorf("expected queue %v, got %v", want, state.Queued)
	}
}

func TestReconstructCheckpointSeedsQueueOrder(t *testing.T) {
	trk := tracker.NewMemory()
	seedTree(trk, "T-1", "T-2", "T-3", "T-4")
	// Previously active tasks come first, then the checkpoint's queue order,
	// then anything the checkpoint never saw.
	storeCheckpoint(t, trk, "ROOT-1", models.Checkpoint{
		Timestamp: time.Now(),
		Active:    []string{"T-3"},
		Queued:    []string{"T-4", "T-2"},
	})

	state, err := NewReconstructor(trk, nil).Reconstruct(context.Background(), "ROOT-1")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := []string{"T-3", "T-4", "T-2", "T-1"}
	if !reflect.DeepEqual(state.Queued, want) {
		t.Errorf("expected queue %v, got %v", want, state.Queued)
	}
}

func TestReconstructDanglingChildBecomesPlaceholder(t *testing.T) {
	trk := tracker.NewMemory()
	seedTree(trk, "T-1")
	// E-1 also declares a child the tracker cannot resolve.
	trk.PutItem(&models.WorkItem{ID: "E-1", Kind: models.KindEpic, Title: "epic", Children: []string{"T-1", "T-GONE"}})

	state, err := NewReconstructor(trk, nil).Reconstruct(context.Background(), "ROOT-1")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	ghost := state.Item("T-GONE")
	if ghost == nil {
		t.Fatal("expected placeholder for dangling child")
	}
	if ghost.Kind != models.KindTask || ghost.Status != models.StatusPending {
		t.Errorf("unexpected placeholder %+v", ghost)
	}
	if !state.IsQueued("T-GONE") {
		t.Error("placeholder should be queued")
	}
}

func TestReconstructFailsWhenTrackerUnavailable(t *testing.T) {
	trk := tracker.NewMemory()
	seedTree(trk, "T-1")
	trk.Unavailable = true

	_, err := NewReconstructor(trk, nil).Reconstruct(context.Background(), "ROOT-1")
	if !errors.Is(err, tracker.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestReconstructIgnoresCorruptCheckpoint(t *testing.T) {
	trk := tracker.NewMemory()
	seedTree(trk, "T-1", "T-2")
	if err := trk.UpsertCheckpoint(context.Background(), models.CheckpointMarker("ROOT-1"), []byte("{not yaml")); err != nil {
		t.Fatalf("seed corrupt checkpoint: %v", err)
	}

	state, err := NewReconstructor(trk, nil).Reconstruct(context.Background(), "ROOT-1")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := []string{"T-1", "T-2"}
	if !reflect.DeepEqual(state.Queued, want) {
		t.Errorf("expected fallback queue %v, got %v", want, state.Queued)
	}
}

func TestReconstructAssignsKindByDepth(t *testing.T) {
	trk := tracker.NewMemory()
	seedTree(trk, "T-1")

	state, err := NewReconstructor(trk, nil).Reconstruct(context.Background(), "ROOT-1")
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if got := state.Item("ROOT-1").Kind; got != models.KindRoot {
		t.Errorf("root kind = %s", got)
	}
	if got := state.Item("E-1").Kind; got != models.KindEpic {
		t.Errorf("epic kind = %s", got)
	}
	if got := state.Item("T-1").Kind; got != models.KindTask {
		t.Errorf("task kind = %s", got)
	}
}
