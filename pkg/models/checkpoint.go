package models

import "time"

// CheckpointMarker returns the stable document marker for a workflow root.
// One mutable document exists per root; writes overwrite it in place.
func CheckpointMarker(rootID string) string {
	return "checkpoint:" + rootID
}

// ProgressCounts summarizes task counts by status at checkpoint time.
type ProgressCounts struct {
	Pending   int `yaml:"pending" json:"pending"`
	Active    int `yaml:"active" json:"active"`
	Completed int `yaml:"completed" json:"completed"`
	Failed    int `yaml:"failed" json:"failed"`
}

// BreakerSummary captures the failure tracker's state for a checkpoint.
type BreakerSummary struct {
	// Failures is the number of records inside the trailing window.
	Failures int `yaml:"failures" json:"failures"`
	// Tripped indicates the breaker is open.
	Tripped bool `yaml:"tripped" json:"tripped"`
}

// Checkpoint is a snapshot of scheduling progress, upserted to the tracker
// under a stable marker. It accelerates reconstruction ordering but is never
// authoritative over freshly observed terminal status.
type Checkpoint struct {
	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	// Progress counts tasks by status.
	Progress ProgressCounts `yaml:"progress" json:"progress"`
	// Active lists task ids dispatched at snapshot time.
	Active []string `yaml:"active,omitempty" json:"active,omitempty"`
	// Queued lists task ids eligible but not dispatched, in queue order.
	Queued []string `yaml:"queued,omitempty" json:"queued,omitempty"`
	// Breaker summarizes the failure tracker.
	Breaker BreakerSummary `yaml:"breaker" json:"breaker"`
}
