package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active workflow",
	Long: `Ask a running workflow to pause.

The engine stops dispatching new tasks immediately; tasks already in
flight run to completion. The pause is announced once that drain
finishes. Both a tracker annotation and a local signal file are written,
so the signal lands even if one channel is unavailable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendIntervention("pause")
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused workflow",
	Long: `Ask a paused workflow to continue.

Resuming acknowledges a tripped circuit breaker: the failure window is
cleared and dispatch starts again. If in-flight work from the pause is
still draining, the resume takes effect once the drain completes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendIntervention("resume")
	},
}

// sendIntervention delivers an operator signal over both channels: a
// tracker annotation for the poll loop and a signal file for the
// filesystem watcher.
func sendIntervention(signal string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	trk, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer trk.Close()

	if err := trk.AddAnnotation(context.Background(), time.Now(), signal); err != nil {
		return fmt.Errorf("annotate tracker: %w", err)
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}
	signalsDir := filepath.Join(root, ".foreman", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(signalsDir, signal), []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
		return fmt.Errorf("write signal file: %w", err)
	}

	color.Yellow("Sent %s signal", signal)
	return nil
}
