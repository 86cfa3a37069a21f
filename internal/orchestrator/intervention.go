package orchestrator

import (
	"context"
	"regexp"
	"time"

	"github.com/jharlow/foreman/internal/breaker"
	"github.com/jharlow/foreman/internal/tracker"
)

// Signal is an operator intervention decoded from tracker annotations or
// local signal files.
type Signal int

const (
	// SignalNone means no intervention arrived since the last poll.
	SignalNone Signal = iota
	// SignalPause requests a graceful drain: no new dispatch, in-flight
	// work runs to completion.
	SignalPause
	// SignalResume requests dispatch to continue and the breaker to be
	// acknowledged.
	SignalResume
)

// DefaultDrainPollInterval is how often the drain wait re-checks the
// active count.
const DefaultDrainPollInterval = 250 * time.Millisecond

var (
	pausePattern  = regexp.MustCompile(`(?i)\bpause\b`)
	resumePattern = regexp.MustCompile(`(?i)\bresume\b`)
)

// InterventionHandler polls the tracker for operator pause/resume
// annotations and toggles the controller's accept-new-work flag. Pausing
// blocks new dispatch immediately but reports "paused" externally only
// once in-flight work has drained. A resume that arrives while work from a
// prior pause is still draining is deferred: the breaker reset is applied
// only after the drain is observed empty.
type InterventionHandler struct {
	trk        tracker.AnnotationSource
	controller *Controller
	breaker    *breaker.Breaker
	signals    *SignalWatcher
	logger     *DebugLogger

	lastPoll        time.Time
	announcePending bool
	resumePending   bool

	drainPollInterval time.Duration
}

// NewInterventionHandler creates a handler. The signal watcher is optional.
func NewInterventionHandler(trk tracker.AnnotationSource, ctrl *Controller, b *breaker.Breaker, signals *SignalWatcher, logger *DebugLogger) *InterventionHandler {
	if logger == nil {
		logger = NopLogger()
	}
	return &InterventionHandler{
		trk:               trk,
		controller:        ctrl,
		breaker:           b,
		signals:           signals,
		logger:            logger,
		lastPoll:          time.Now(),
		drainPollInterval: DefaultDrainPollInterval,
	}
}

// SetLastPoll sets the annotation cursor (for testing and resume).
func (h *InterventionHandler) SetLastPoll(t time.Time) {
	h.lastPoll = t
}

// SetDrainPollInterval overrides the drain re-check interval (for testing).
func (h *InterventionHandler) SetDrainPollInterval(d time.Duration) {
	if d > 0 {
		h.drainPollInterval = d
	}
}

// Poll reads interventions newer than the last poll and applies them.
// Annotation fetch failures are logged and retried on the next cycle; they
// never propagate. Returns the signal that was applied this cycle.
func (h *InterventionHandler) Poll(ctx context.Context, now time.Time) Signal {
	sig := h.readSignal(ctx, now)
	h.apply(ctx, sig, now)
	h.settle(ctx, now)
	return sig
}

// readSignal decodes the newest intervention from annotations and local
// signal files. The newest matching annotation wins when several arrived
// since the last poll.
func (h *InterventionHandler) readSignal(ctx context.Context, now time.Time) Signal {
	sig := SignalNone

	anns, err := h.trk.FetchAnnotationsSince(ctx, h.lastPoll)
	if err != nil {
		h.logger.Log("[intervention] annotation poll: %v (will retry)", err)
	} else {
		h.lastPoll = now
		for _, a := range anns {
			switch {
			case resumePattern.MatchString(a.Text):
				sig = SignalResume
			case pausePattern.MatchString(a.Text):
				sig = SignalPause
			}
		}
	}

	if h.signals != nil {
		// Local signal files take precedence over older annotations.
		if h.signals.ConsumeResume() {
			sig = SignalResume
		}
		if h.signals.ConsumePause() {
			sig = SignalPause
		}
	}
	return sig
}

// apply reacts to a decoded signal.
func (h *InterventionHandler) apply(ctx context.Context, sig Signal, now time.Time) {
	switch sig {
	case SignalPause:
		if h.controller.IsPaused() {
			return
		}
		h.logger.Log("[intervention] pause requested, draining %d active tasks", h.controller.ActiveCount())
		h.controller.SetPaused(true)
		h.resumePending = false
		h.announcePending = true

	case SignalResume:
		if !h.controller.IsPaused() {
			return
		}
		if h.controller.ActiveCount() > 0 {
			// Work from the prior pause is still draining; defer the
			// breaker reset until the drain is observed empty.
			h.logger.Log("[intervention] resume requested while draining, deferring")
			h.resumePending = true
			return
		}
		h.resume(ctx, now)
	}
}

// settle completes deferred transitions once the drain is observed empty.
func (h *InterventionHandler) settle(ctx context.Context, now time.Time) {
	if h.controller.ActiveCount() > 0 {
		return
	}
	if h.announcePending {
		h.announcePending = false
		h.logger.Log("[intervention] drain complete, workflow paused")
		h.postStatus(ctx, "paused: drain complete, awaiting resume")
	}
	if h.resumePending {
		h.resumePending = false
		h.resume(ctx, now)
	}
}

// resume clears the paused flag and gives the breaker a fresh window.
func (h *InterventionHandler) resume(ctx context.Context, now time.Time) {
	h.breaker.Reset()
	h.controller.SetPaused(false)
	h.announcePending = false
	h.logger.Log("[intervention] resumed")
	h.postStatus(ctx, "resumed")
}

// WaitForDrain blocks until no task is active, re-checking at a short
// fixed interval. This is the only blocking operation in the engine.
func (h *InterventionHandler) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(h.drainPollInterval)
	defer ticker.Stop()
	for {
		if h.controller.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// postStatus posts a best-effort status note against the workflow root.
func (h *InterventionHandler) postStatus(ctx context.Context, text string) {
	if err := h.trk.PostStatus(ctx, h.controller.rootID(), text); err != nil {
		h.logger.Log("[intervention] post status: %v", err)
	}
}
