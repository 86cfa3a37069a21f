package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jharlow/foreman/internal/breaker"
	"github.com/jharlow/foreman/internal/executor"
	"github.com/jharlow/foreman/internal/overlap"
	"github.com/jharlow/foreman/internal/tracker"
	"github.com/jharlow/foreman/internal/workspace"
	"github.com/jharlow/foreman/pkg/models"
)

// Completion is the asynchronous result of one dispatched task, delivered
// on the controller's completion channel. At most one completion is
// produced per dispatch.
type Completion struct {
	// UnitID is the task that finished.
	UnitID string
	// Outcome is the execution result.
	Outcome models.Outcome
}

// Controller is the scheduler core. It owns all mutations to the workflow
// state and the overlap-group progress; executors run on separate
// goroutines but report back only through OnCompletion. The paused flag is
// the single field shared with the intervention poller and is therefore
// atomic.
type Controller struct {
	mu      sync.Mutex
	state   *models.WorkflowState
	groups  *overlap.Result
	breaker *breaker.Breaker
	limit   int

	provisioner workspace.Provisioner
	executor    executor.Executor
	status      tracker.AnnotationSource
	results     tracker.ResultWriter

	paused      atomic.Bool
	completions chan Completion
	dispatched  map[string]time.Time

	// pendingResults holds terminal outcomes whose tracker write failed,
	// retried on subsequent ticks.
	pendingResults map[string]tracker.ResultRef

	now    func() time.Time
	emit   Emitter
	logger *DebugLogger
}

// NewController creates a controller for the given state. Groups must be set
// via SetGroups before the first Tick.
func NewController(state *models.WorkflowState, b *breaker.Breaker, limit int, prov workspace.Provisioner, exec executor.Executor) *Controller {
	if limit < 1 {
		limit = 1
	}
	return &Controller{
		state:       state,
		breaker:     b,
		limit:       limit,
		provisioner: prov,
		executor:    exec,
		completions:    make(chan Completion, limit),
		dispatched:     make(map[string]time.Time),
		pendingResults: make(map[string]tracker.ResultRef),
		now:            time.Now,
		emit:           func(Event) {},
		logger:         NopLogger(),
	}
}

// SetGroups installs the overlap partition computed for this planning phase.
func (c *Controller) SetGroups(groups *overlap.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = groups
}

// SetStatusSink sets the best-effort status poster. Optional.
func (c *Controller) SetStatusSink(s tracker.AnnotationSource) {
	c.status = s
}

// SetResultSink sets the writer terminal outcomes are recorded to. Without
// it, a restarted run cannot tell finished tasks from pending ones.
func (c *Controller) SetResultSink(w tracker.ResultWriter) {
	c.results = w
}

// SetClock sets the time source (for testing).
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// SetEmitter sets the event emitter.
func (c *Controller) SetEmitter(emit Emitter) {
	if emit != nil {
		c.emit = emit
	}
}

// SetLogger sets the debug logger.
func (c *Controller) SetLogger(l *DebugLogger) {
	if l != nil {
		c.logger = l
	}
}

// Completions returns the channel completions are delivered on. The run
// loop drains this channel and feeds OnCompletion.
func (c *Controller) Completions() <-chan Completion {
	return c.completions
}

// IsPaused reports whether new dispatch is suppressed.
func (c *Controller) IsPaused() bool {
	return c.paused.Load()
}

// SetPaused toggles the accept-new-work flag. In-flight tasks are never
// interrupted; pausing only suppresses new dispatch.
func (c *Controller) SetPaused(paused bool) {
	was := c.paused.Swap(paused)
	if was == paused {
		return
	}
	c.mu.Lock()
	c.state.Paused = paused
	c.mu.Unlock()

	if paused {
		c.logger.Log("[controller] paused - no new tasks will be dispatched")
		c.emit(Event{Type: EventPaused, Timestamp: c.now()})
	} else {
		c.logger.Log("[controller] resumed - dispatch enabled")
		c.emit(Event{Type: EventResumed, Timestamp: c.now()})
	}
}

// ActiveCount returns the number of currently dispatched tasks.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state.Active)
}

// Done returns true when no task remains queued or active.
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Done()
}

// Stalled returns true when nothing is active yet queued tasks exist and
// none of them is eligible. This happens when a failed task blocks the rest
// of its overlap group; the remaining members stay queued for a future run.
func (c *Controller) Stalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.state.Active) > 0 || len(c.state.Queued) == 0 {
		return false
	}
	for _, id := range c.state.Queued {
		if c.eligibleLocked(id) {
			return false
		}
	}
	return true
}

// Tick performs a single scheduling step. Safe to call at any time. While
// capacity remains, it selects the next eligible queued task in queue order
// and dispatches it to the executor asynchronously. Returns the ids
// dispatched in this step.
func (c *Controller) Tick(ctx context.Context) []string {
	c.flushPendingResults(ctx)

	if c.paused.Load() || c.breaker.IsTripped() {
		return nil
	}

	c.mu.Lock()
	var batch []*models.WorkItem
	for len(c.state.Active) < c.limit {
		item := c.nextEligibleLocked()
		if item == nil {
			break
		}
		if err := c.state.Dispatch(item.ID); err != nil {
			c.logger.Log("[controller] dispatch %s: %v", item.ID, err)
			break
		}
		c.dispatched[item.ID] = c.now()
		batch = append(batch, item)
	}
	c.mu.Unlock()

	ids := make([]string, 0, len(batch))
	for _, item := range batch {
		ids = append(ids, item.ID)
		c.logger.Log("[controller] dispatching task %s (%s)", item.ID, item.Title)
		c.emit(Event{Type: EventTaskDispatched, UnitID: item.ID, Title: item.Title, Timestamp: c.now()})
		c.postStatus(ctx, item.ID, "dispatched")
		go c.runUnit(ctx, item)
	}
	return ids
}

// nextEligibleLocked returns the first eligible queued item, or nil.
// Caller must hold c.mu.
func (c *Controller) nextEligibleLocked() *models.WorkItem {
	for _, id := range c.state.Queued {
		if c.eligibleLocked(id) {
			return c.state.Item(id)
		}
	}
	return nil
}

// eligibleLocked reports whether a queued task may be dispatched now: it is
// either independent, or every member before it in its overlap group's
// merge order has completed. A failed predecessor blocks the rest of its
// group indefinitely. Caller must hold c.mu.
func (c *Controller) eligibleLocked(id string) bool {
	if c.groups == nil {
		return true
	}
	group := c.groups.GroupFor(id)
	if group == nil {
		return true
	}
	for _, member := range group.Members {
		if member == id {
			return true
		}
		if !c.state.Completed[member] {
			return false
		}
	}
	return false
}

// runUnit provisions a workspace and executes the task, converting every
// failure mode into an Outcome delivered on the completion channel.
func (c *Controller) runUnit(ctx context.Context, item *models.WorkItem) {
	var outcome models.Outcome
	ws, err := c.provisioner.Provision(item.ID)
	if err != nil {
		outcome = models.FailureOutcome(fmt.Sprintf("provisioning: %v", err))
	} else {
		outcome = c.executor.Execute(ctx, item, ws)
	}
	c.completions <- Completion{UnitID: item.ID, Outcome: outcome}
}

// OnCompletion records the outcome of a dispatched task. On success the
// task moves to completed, the breaker's records clear, and the task's
// overlap group (if any) advances. On failure the task moves to failed and
// the breaker is notified; if that trips it, new dispatch halts but
// already-active tasks drain naturally.
func (c *Controller) OnCompletion(ctx context.Context, unitID string, outcome models.Outcome) error {
	c.mu.Lock()
	item := c.state.Item(unitID)
	var title string
	if item != nil {
		title = item.Title
	}

	var err error
	if outcome.Success {
		err = c.state.Complete(unitID, outcome.ResultRef)
	} else {
		err = c.state.Fail(unitID)
	}
	delete(c.dispatched, unitID)
	c.mu.Unlock()

	if err != nil {
		c.logger.Log("[controller] completion for %s rejected: %v", unitID, err)
		return err
	}

	if outcome.Success {
		c.recordResult(ctx, unitID, tracker.ResultRef{Ref: outcome.ResultRef, State: tracker.ResultCompleted})
		c.breaker.RecordSuccess()
		c.logger.Log("[controller] task %s completed (%s)", unitID, outcome.ResultRef)
		c.emit(Event{Type: EventTaskCompleted, UnitID: unitID, Title: title, Message: outcome.ResultRef, Timestamp: c.now()})
		c.postStatus(ctx, unitID, "completed: "+outcome.ResultRef)
		return nil
	}

	c.recordResult(ctx, unitID, tracker.ResultRef{State: tracker.ResultFailed})
	tripped := c.breaker.RecordFailure(c.now(), unitID, outcome.Reason)
	c.logger.Log("[controller] task %s failed: %s", unitID, outcome.Reason)
	c.emit(Event{Type: EventTaskFailed, UnitID: unitID, Title: title, Message: outcome.Reason, Timestamp: c.now()})
	c.postStatus(ctx, unitID, "failed: "+outcome.Reason)

	if tripped {
		// Halt new dispatch but let in-flight tasks drain.
		c.SetPaused(true)
		c.logger.Log("[controller] circuit tripped after repeated failures")
		c.emit(Event{Type: EventCircuitTripped, UnitID: unitID, Timestamp: c.now()})
		c.postStatus(ctx, c.rootID(), "circuit tripped: new dispatch halted, awaiting operator resume")
	}
	return nil
}

// recordResult writes a terminal outcome to the result sink. A failed write
// is logged and buffered; flushPendingResults retries it on later ticks so a
// tracker outage never blocks the completion path.
func (c *Controller) recordResult(ctx context.Context, unitID string, ref tracker.ResultRef) {
	if c.results == nil {
		return
	}
	if err := c.results.SetResult(ctx, unitID, ref); err != nil {
		c.logger.Log("[controller] record result for %s: %v (will retry)", unitID, err)
		c.mu.Lock()
		c.pendingResults[unitID] = ref
		c.mu.Unlock()
	}
}

// flushPendingResults retries buffered result writes. Entries that succeed
// are dropped; the rest stay buffered for the next tick.
func (c *Controller) flushPendingResults(ctx context.Context) {
	if c.results == nil {
		return
	}
	c.mu.Lock()
	if len(c.pendingResults) == 0 {
		c.mu.Unlock()
		return
	}
	pending := make(map[string]tracker.ResultRef, len(c.pendingResults))
	for id, ref := range c.pendingResults {
		pending[id] = ref
	}
	c.mu.Unlock()

	for id, ref := range pending {
		if err := c.results.SetResult(ctx, id, ref); err != nil {
			c.logger.Log("[controller] record result for %s: %v (will retry)", id, err)
			continue
		}
		c.mu.Lock()
		delete(c.pendingResults, id)
		c.mu.Unlock()
	}
}

// Snapshot builds a checkpoint from the current state and breaker.
func (c *Controller) Snapshot() models.Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := c.state.StatusCounts()
	active := make([]string, 0, len(c.state.Active))
	for id := range c.state.Active {
		active = append(active, id)
	}
	sort.Strings(active)

	now := c.now()
	return models.Checkpoint{
		Timestamp: now,
		Progress: models.ProgressCounts{
			Pending:   counts[models.StatusPending],
			Active:    counts[models.StatusActive],
			Completed: counts[models.StatusCompleted],
			Failed:    counts[models.StatusFailed],
		},
		Active: active,
		Queued: append([]string(nil), c.state.Queued...),
		Breaker: models.BreakerSummary{
			Failures: c.breaker.FailureCount(now),
			Tripped:  c.breaker.IsTripped(),
		},
	}
}

// CheckInvariants verifies the state partition invariant. Used by tests
// after every transition.
func (c *Controller) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.state.CheckInvariants(); err != nil {
		return err
	}
	if len(c.state.Active) > c.limit {
		return fmt.Errorf("active count %d exceeds limit %d", len(c.state.Active), c.limit)
	}
	return nil
}

// rootID returns the workflow root id.
func (c *Controller) rootID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Root
}

// postStatus posts a best-effort status note. Failures are logged, never
// propagated.
func (c *Controller) postStatus(ctx context.Context, id, text string) {
	if c.status == nil {
		return
	}
	if err := c.status.PostStatus(ctx, id, text); err != nil {
		c.logger.Log("[controller] post status for %s: %v", id, err)
	}
}
