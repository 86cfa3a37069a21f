package orchestrator

import (
	"time"
)

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

// engineOptions holds all optional configuration.
type engineOptions struct {
	concurrencyLimit   int
	breakerThreshold   int
	breakerWindow      time.Duration
	checkpointInterval time.Duration
	tickInterval       time.Duration
	pollInterval       time.Duration
	drainPollInterval  time.Duration
	logger             *DebugLogger
	emitter            Emitter
	clock              func() time.Time
	signals            *SignalWatcher
}

func defaultOptions() engineOptions {
	return engineOptions{
		concurrencyLimit:   3,
		breakerThreshold:   0, // breaker package default
		breakerWindow:      0, // breaker package default
		checkpointInterval: DefaultCheckpointInterval,
		tickInterval:       time.Second,
		pollInterval:       5 * time.Second,
		drainPollInterval:  DefaultDrainPollInterval,
		logger:             NopLogger(),
		clock:              time.Now,
	}
}

// WithConcurrencyLimit sets the maximum number of concurrently active tasks.
func WithConcurrencyLimit(n int) Option {
	return func(o *engineOptions) { o.concurrencyLimit = n }
}

// WithBreaker sets the failure threshold and trailing window for the
// circuit breaker.
func WithBreaker(threshold int, window time.Duration) Option {
	return func(o *engineOptions) {
		o.breakerThreshold = threshold
		o.breakerWindow = window
	}
}

// WithCheckpointInterval sets the minimum spacing between routine
// checkpoint writes.
func WithCheckpointInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.checkpointInterval = d }
}

// WithTickInterval sets the scheduling tick rate.
func WithTickInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.tickInterval = d }
}

// WithPollInterval sets the intervention poll rate, independent of the
// scheduling tick rate.
func WithPollInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.pollInterval = d }
}

// WithDrainPollInterval sets the drain re-check interval.
func WithDrainPollInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.drainPollInterval = d }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *engineOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e Emitter) Option {
	return func(o *engineOptions) { o.emitter = e }
}

// WithClock sets the time source (for testing).
func WithClock(clock func() time.Time) Option {
	return func(o *engineOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithSignalWatcher attaches a local signal watcher as a second
// intervention source.
func WithSignalWatcher(sw *SignalWatcher) Option {
	return func(o *engineOptions) { o.signals = sw }
}
