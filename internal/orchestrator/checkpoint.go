package orchestrator

import (
	"context"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jharlow/foreman/internal/tracker"
	"github.com/jharlow/foreman/pkg/models"
)

// DefaultCheckpointInterval is the minimum spacing between routine
// checkpoint writes.
const DefaultCheckpointInterval = 30 * time.Second

// CheckpointManager persists progress snapshots to the tracker at a
// bounded rate. Significant events (a task completing or failing, a pause
// or resume) force a write regardless of the interval; routine polling
// does not spam the system of record. Every write is an upsert against the
// root's stable marker, so repeated writes with identical state produce no
// duplicate artifacts.
type CheckpointManager struct {
	store       tracker.CheckpointStore
	marker      string
	minInterval time.Duration
	logger      *DebugLogger

	mu          sync.Mutex
	lastWrite   time.Time
	significant bool
	wroteOnce   bool
}

// NewCheckpointManager creates a manager writing under the given root's
// marker. A non-positive interval falls back to the default.
func NewCheckpointManager(store tracker.CheckpointStore, rootID string, minInterval time.Duration, logger *DebugLogger) *CheckpointManager {
	if minInterval <= 0 {
		minInterval = DefaultCheckpointInterval
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &CheckpointManager{
		store:       store,
		marker:      models.CheckpointMarker(rootID),
		minInterval: minInterval,
		logger:      logger,
	}
}

// MarkSignificant records that a significant event occurred since the last
// persisted checkpoint. The next MaybeCheckpoint call writes
// unconditionally.
func (cm *CheckpointManager) MarkSignificant() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.significant = true
}

// MaybeCheckpoint persists the snapshot if the rate limit allows it or a
// significant event is pending. Returns true if a write was persisted.
// Write failures are logged and the significant flag is kept, so the write
// is retried on the next cycle — a flaky tracker never crashes the loop.
func (cm *CheckpointManager) MaybeCheckpoint(ctx context.Context, cp models.Checkpoint, now time.Time) bool {
	cm.mu.Lock()
	due := cm.significant || !cm.wroteOnce || now.Sub(cm.lastWrite) >= cm.minInterval
	cm.mu.Unlock()
	if !due {
		return false
	}

	doc, err := yaml.Marshal(&cp)
	if err != nil {
		cm.logger.Log("[checkpoint] encode: %v", err)
		return false
	}

	if err := cm.store.UpsertCheckpoint(ctx, cm.marker, doc); err != nil {
		cm.logger.Log("[checkpoint] upsert %s: %v (will retry)", cm.marker, err)
		return false
	}

	cm.mu.Lock()
	cm.lastWrite = now
	cm.significant = false
	cm.wroteOnce = true
	cm.mu.Unlock()

	cm.logger.Log("[checkpoint] persisted %s (%d active, %d queued)", cm.marker, len(cp.Active), len(cp.Queued))
	return true
}
