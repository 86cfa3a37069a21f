package orchestrator

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SignalWatcher picks up pause/resume signals dropped as files in the
// project's .foreman/signals directory, giving operators a local channel
// that works even when the tracker is unreachable. A filesystem watcher
// delivers signals immediately; a stat fallback on each consume call
// covers missed events.
type SignalWatcher struct {
	signalsDir string

	mu           sync.Mutex
	pauseSignal  bool
	resumeSignal bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates a watcher over projectRoot/.foreman/signals,
// creating the directory if needed. If the filesystem watcher cannot be
// started the watcher still works via the stat fallback.
func NewSignalWatcher(projectRoot string) (*SignalWatcher, error) {
	signalsDir := filepath.Join(projectRoot, ".foreman", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sw, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		return sw, nil
	}
	sw.watcher = watcher
	go sw.watch()

	return sw, nil
}

// watch monitors the signals directory for pause/resume files.
func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			sw.mu.Lock()
			switch filepath.Base(event.Name) {
			case "pause":
				sw.pauseSignal = true
			case "resume":
				sw.resumeSignal = true
			}
			sw.mu.Unlock()
		case <-sw.watcher.Errors:
			// Keep watching.
		}
	}
}

// ConsumePause returns true once per pause signal, clearing the signal
// file so it does not re-trigger.
func (sw *SignalWatcher) ConsumePause() bool {
	return sw.consume("pause", &sw.pauseSignal)
}

// ConsumeResume returns true once per resume signal.
func (sw *SignalWatcher) ConsumeResume() bool {
	return sw.consume("resume", &sw.resumeSignal)
}

func (sw *SignalWatcher) consume(name string, flag *bool) bool {
	path := filepath.Join(sw.signalsDir, name)
	if _, err := os.Stat(path); err == nil {
		sw.mu.Lock()
		*flag = true
		sw.mu.Unlock()
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !*flag {
		return false
	}
	*flag = false
	os.Remove(path)
	return true
}

// Close shuts down the watcher.
func (sw *SignalWatcher) Close() {
	close(sw.done)
	if sw.watcher != nil {
		sw.watcher.Close()
	}
}
