package orchestrator

import (
	"context"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jharlow/foreman/internal/tracker"
	"github.com/jharlow/foreman/pkg/models"
)

func snapshotAt(ts time.Time) models.Checkpoint {
	return models.Checkpoint{
		Timestamp: ts,
		Progress:  models.ProgressCounts{Pending: 2, Active: 1},
		Active:    []string{"T-1"},
		Queued:    []string{"T-2", "T-3"},
	}
}

func fetchCheckpointDoc(t *testing.T, trk *tracker.Memory, rootID string) models.Checkpoint {
	t.Helper()
	doc, err := trk.FetchCheckpoint(context.Background(), models.CheckpointMarker(rootID))
	if err != nil {
		t.Fatalf("fetch checkpoint: %v", err)
	}
	var cp models.Checkpoint
	if err := yaml.Unmarshal(doc, &cp); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	return cp
}

func TestCheckpointRateLimit(t *testing.T) {
	trk := tracker.NewMemory()
	cm := NewCheckpointManager(trk, "ROOT-1", 30*time.Second, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// First write always goes through.
	if !cm.MaybeCheckpoint(ctx, snapshotAt(base), base) {
		t.Fatal("expected initial checkpoint write")
	}
	// Inside the interval, routine snapshots are suppressed.
	if cm.MaybeCheckpoint(ctx, snapshotAt(base.Add(time.Second)), base.Add(time.Second)) {
		t.Error("expected write suppressed inside interval")
	}
	if cm.MaybeCheckpoint(ctx, snapshotAt(base.Add(29*time.Second)), base.Add(29*time.Second)) {
		t.Error("expected write suppressed at 29s")
	}
	// At the interval boundary the write resumes.
	if !cm.MaybeCheckpoint(ctx, snapshotAt(base.Add(30*time.Second)), base.Add(30*time.Second)) {
		t.Error("expected write at interval boundary")
	}

	cp := fetchCheckpointDoc(t, trk, "ROOT-1")
	if !cp.Timestamp.Equal(base.Add(30 * time.Second)) {
		t.Errorf("expected newest snapshot persisted, got %v", cp.Timestamp)
	}
}

func TestCheckpointSignificantEventForcesWrite(t *testing.T) {
	trk := tracker.NewMemory()
	cm := NewCheckpointManager(trk, "ROOT-1", 30*time.Second, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cm.MaybeCheckpoint(ctx, snapshotAt(base), base)

	cm.MarkSignificant()
	at := base.Add(time.Second)
	if !cm.MaybeCheckpoint(ctx, snapshotAt(at), at) {
		t.Fatal("expected significant event to force a write inside the interval")
	}
	// The flag is consumed by the write.
	at = at.Add(time.Second)
	if cm.MaybeCheckpoint(ctx, snapshotAt(at), at) {
		t.Error("expected flag consumed after forced write")
	}
}

func TestCheckpointWriteFailureRetries(t *testing.T) {
	trk := tracker.NewMemory()
	cm := NewCheckpointManager(trk, "ROOT-1", 30*time.Second, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cm.MaybeCheckpoint(ctx, snapshotAt(base), base)
	cm.MarkSignificant()

	trk.Unavailable = true
	at := base.Add(time.Second)
	if cm.MaybeCheckpoint(ctx, snapshotAt(at), at) {
		t.Fatal("write should fail while tracker unavailable")
	}

	// The significant flag survives the failure: the next cycle retries
	// immediately once the tracker is back.
	trk.Unavailable = false
	at = at.Add(time.Second)
	if !cm.MaybeCheckpoint(ctx, snapshotAt(at), at) {
		t.Fatal("expected retry after tracker recovered")
	}
	cp := fetchCheckpointDoc(t, trk, "ROOT-1")
	if !cp.Timestamp.Equal(at) {
		t.Errorf("expected retried snapshot persisted, got %v", cp.Timestamp)
	}
}

func TestCheckpointUpsertIsIdempotent(t *testing.T) {
	trk := tracker.NewMemory()
	cm := NewCheckpointManager(trk, "ROOT-1", time.Second, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Repeated writes overwrite the same marker rather than appending.
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 2 * time.Second)
		if !cm.MaybeCheckpoint(ctx, snapshotAt(at), at) {
			t.Fatalf("write %d suppressed", i)
		}
	}
	cp := fetchCheckpointDoc(t, trk, "ROOT-1")
	if !cp.Timestamp.Equal(base.Add(8 * time.Second)) {
		t.Errorf("expected last write to win, got %v", cp.Timestamp)
	}
}
