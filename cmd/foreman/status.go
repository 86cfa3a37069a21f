package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jharlow/foreman/internal/tracker"
	"github.com/jharlow/foreman/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status <root-id>",
	Short: "Show workflow progress",
	Long: `Display the state of a workflow: per-task status derived from the
tracker, plus the last persisted checkpoint.

The view is built the same way the engine rebuilds its own state, so what
you see here is exactly what a restarted run would resume from.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	rootID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	trk, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer trk.Close()

	ctx := context.Background()
	root, err := trk.FetchItem(ctx, rootID)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			fmt.Printf("No workflow %s. Load one with 'foreman plan <file>'.\n", rootID)
			return nil
		}
		return err
	}

	fmt.Printf("Workflow: %s  %q\n", root.ID, root.Title)

	var completed, failed, pending int
	for _, epicID := range root.Children {
		epic, err := trk.FetchItem(ctx, epicID)
		if err != nil {
			fmt.Printf("\n  %s (unresolvable)\n", epicID)
			continue
		}
		fmt.Printf("\n  %s  %q\n", epic.ID, epic.Title)

		for _, taskID := range epic.Children {
			task, err := trk.FetchItem(ctx, taskID)
			title := ""
			if err == nil {
				title = task.Title
			}
			ref, err := trk.FetchResultRef(ctx, taskID)
			if err != nil {
				ref = tracker.ResultRef{State: tracker.ResultNone}
			}
			switch ref.State {
			case tracker.ResultCompleted:
				completed++
				fmt.Printf("    %s %s %s  %s\n", color.GreenString("✓"), taskID, title, ref.Ref)
			case tracker.ResultFailed:
				failed++
				fmt.Printf("    %s %s %s\n", color.RedString("✗"), taskID, title)
			case tracker.ResultInFlight:
				pending++
				fmt.Printf("    %s %s %s  (was in flight)\n", color.CyanString("▶"), taskID, title)
			default:
				pending++
				fmt.Printf("    %s %s %s\n", color.WhiteString("·"), taskID, title)
			}
		}
	}

	fmt.Printf("\n  %s completed, %s failed, %d pending\n",
		color.GreenString("%d", completed), color.RedString("%d", failed), pending)

	printCheckpoint(ctx, trk, rootID)
	return nil
}

// printCheckpoint shows the last persisted checkpoint, if any.
func printCheckpoint(ctx context.Context, trk *tracker.SQLite, rootID string) {
	doc, err := trk.FetchCheckpoint(ctx, models.CheckpointMarker(rootID))
	if err != nil {
		return
	}
	var cp models.Checkpoint
	if err := yaml.Unmarshal(doc, &cp); err != nil {
		return
	}

	fmt.Printf("\nLast checkpoint: %s ago\n", formatDuration(time.Since(cp.Timestamp)))
	if len(cp.Active) > 0 {
		fmt.Printf("  was active: %v\n", cp.Active)
	}
	if len(cp.Queued) > 0 {
		fmt.Printf("  queued: %v\n", cp.Queued)
	}
	if cp.Breaker.Tripped {
		color.Red("  circuit breaker tripped (%d recent failures)", cp.Breaker.Failures)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dd", int(d.Hours())/24)
}
