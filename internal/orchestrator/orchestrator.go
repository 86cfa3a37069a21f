package orchestrator

import (
	"context"
	"fmt"

	"github.com/jharlow/foreman/internal/breaker"
	"github.com/jharlow/foreman/internal/executor"
	"github.com/jharlow/foreman/internal/overlap"
	"github.com/jharlow/foreman/internal/tracker"
	"github.com/jharlow/foreman/internal/workspace"
)

// Engine wires the controller, reconstructor, checkpoint manager and
// intervention handler into a single runnable workflow. One Engine drives
// one workflow root from reconstruction to completion.
type Engine struct {
	trk         tracker.IssueTracker
	provisioner workspace.Provisioner
	executor    executor.Executor
	opts        engineOptions
}

// New creates an engine over the given collaborators.
func New(trk tracker.IssueTracker, prov workspace.Provisioner, exec executor.Executor, options ...Option) *Engine {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	return &Engine{
		trk:         trk,
		provisioner: prov,
		executor:    exec,
		opts:        opts,
	}
}

// Run reconstructs the workflow rooted at rootID, partitions its tasks
// into overlap groups, and drives the scheduling loop until the workflow
// finishes, stalls on a failed group, or the context is cancelled. Safe
// to call again after a crash: reconstruction resumes from the tracker
// and the last checkpoint.
func (e *Engine) Run(ctx context.Context, rootID string) error {
	logger := e.opts.logger

	recon := NewReconstructor(e.trk, logger)
	state, err := recon.Reconstruct(ctx, rootID)
	if err != nil {
		return fmt.Errorf("reconstruct workflow: %w", err)
	}

	groups := overlap.ComputeGroups(state.LeafItems())
	logger.Log("[engine] root %s: %d independent tasks, %d overlap groups",
		rootID, len(groups.Independent), len(groups.Groups))

	b := breaker.New(e.opts.breakerThreshold, e.opts.breakerWindow)
	cm := NewCheckpointManager(e.trk, rootID, e.opts.checkpointInterval, logger)

	ctrl := NewController(state, b, e.opts.concurrencyLimit, e.provisioner, e.executor)
	ctrl.SetGroups(groups)
	ctrl.SetStatusSink(e.trk)
	ctrl.SetResultSink(e.trk)
	ctrl.SetClock(e.opts.clock)
	ctrl.SetLogger(logger)
	ctrl.SetEmitter(e.wrapEmitter(cm))

	ih := NewInterventionHandler(e.trk, ctrl, b, e.opts.signals, logger)
	ih.SetLastPoll(e.opts.clock())
	ih.SetDrainPollInterval(e.opts.drainPollInterval)

	return e.loop(ctx, ctrl, cm, ih)
}

// wrapEmitter forwards events to the configured emitter and marks the
// checkpoint manager significant on state transitions, so completions,
// pauses and trips force a prompt checkpoint write.
func (e *Engine) wrapEmitter(cm *CheckpointManager) Emitter {
	user := e.opts.emitter
	return func(ev Event) {
		switch ev.Type {
		case EventTaskCompleted, EventTaskFailed, EventCircuitTripped, EventPaused, EventResumed:
			cm.MarkSignificant()
		}
		if user != nil {
			user(ev)
		}
	}
}
