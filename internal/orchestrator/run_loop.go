package orchestrator

import (
	"context"
	"errors"
	"time"
)

// ErrBlocked is returned when nothing is active, queued tasks remain, and
// none of them can ever become eligible because a failed task blocks the
// rest of its overlap group. The queued tasks stay persisted for a future
// run after the operator clears the failed result.
var ErrBlocked = errors.New("workflow blocked: failed task blocks remaining group members")

// loop is the engine's event loop. It multiplexes task completions, the
// scheduling tick, and the intervention poll on a single goroutine, so the
// controller sees a strictly ordered stream of state transitions.
func (e *Engine) loop(ctx context.Context, ctrl *Controller, cm *CheckpointManager, ih *InterventionHandler) error {
	logger := e.opts.logger

	tick := time.NewTicker(e.opts.tickInterval)
	defer tick.Stop()
	poll := time.NewTicker(e.opts.pollInterval)
	defer poll.Stop()

	// Initial checkpoint and dispatch before the first timer fires.
	cm.MaybeCheckpoint(ctx, ctrl.Snapshot(), e.opts.clock())
	ctrl.Tick(ctx)

	for {
		if done, err := e.checkExit(ctx, ctrl, cm); done {
			return err
		}

		select {
		case <-ctx.Done():
			logger.Log("[engine] context cancelled, draining %d active tasks", ctrl.ActiveCount())
			e.drainOnCancel(ctrl, cm)
			return ctx.Err()

		case comp := <-ctrl.Completions():
			if err := ctrl.OnCompletion(ctx, comp.UnitID, comp.Outcome); err != nil {
				logger.Log("[engine] completion: %v", err)
			}
			cm.MaybeCheckpoint(ctx, ctrl.Snapshot(), e.opts.clock())
			ctrl.Tick(ctx)

		case now := <-poll.C:
			ih.Poll(ctx, now)
			ctrl.Tick(ctx)

		case now := <-tick.C:
			ctrl.Tick(ctx)
			cm.MaybeCheckpoint(ctx, ctrl.Snapshot(), now)
		}
	}
}

// checkExit decides whether the loop should stop. The workflow never exits
// while paused: a paused-but-finished workflow waits for the operator, and
// a tripped breaker waits for an explicit resume.
func (e *Engine) checkExit(ctx context.Context, ctrl *Controller, cm *CheckpointManager) (bool, error) {
	if ctrl.IsPaused() {
		return false, nil
	}

	if ctrl.Done() {
		cm.MarkSignificant()
		cm.MaybeCheckpoint(ctx, ctrl.Snapshot(), e.opts.clock())
		e.opts.logger.Log("[engine] workflow done")
		e.emitDone(ctrl)
		return true, nil
	}

	if ctrl.Stalled() {
		cm.MarkSignificant()
		cm.MaybeCheckpoint(ctx, ctrl.Snapshot(), e.opts.clock())
		e.opts.logger.Log("[engine] workflow blocked, %d tasks remain queued", len(ctrl.Snapshot().Queued))
		return true, ErrBlocked
	}

	return false, nil
}

// emitDone emits the terminal event directly to the configured emitter;
// there is no checkpoint left to mark.
func (e *Engine) emitDone(ctrl *Controller) {
	if e.opts.emitter != nil {
		e.opts.emitter(Event{Type: EventWorkflowDone, UnitID: ctrl.rootID(), Timestamp: e.opts.clock()})
	}
}

// drainOnCancel collects outstanding completions after context
// cancellation so the final checkpoint reflects work that finished during
// shutdown. Executors honor the context, so this converges quickly.
func (e *Engine) drainOnCancel(ctrl *Controller, cm *CheckpointManager) {
	bg := context.Background()
	deadline := time.After(30 * time.Second)
	for ctrl.ActiveCount() > 0 {
		select {
		case comp := <-ctrl.Completions():
			if err := ctrl.OnCompletion(bg, comp.UnitID, comp.Outcome); err != nil {
				e.opts.logger.Log("[engine] completion during shutdown: %v", err)
			}
		case <-deadline:
			e.opts.logger.Log("[engine] shutdown drain timed out with %d tasks active", ctrl.ActiveCount())
			cm.MarkSignificant()
			cm.MaybeCheckpoint(bg, ctrl.Snapshot(), e.opts.clock())
			return
		}
	}
	cm.MarkSignificant()
	cm.MaybeCheckpoint(bg, ctrl.Snapshot(), e.opts.clock())
}
