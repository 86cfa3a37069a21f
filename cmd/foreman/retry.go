package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jharlow/foreman/internal/tracker"
)

var retryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Clear a failed task so the next run retries it",
	Long: `Clear the recorded result of a failed task.

A failed task blocks the rest of its overlap group until an operator
steps in. Retrying removes the failure record; the next 'foreman run'
reconstructs the task as pending and schedules it again, unblocking its
group.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func runRetry(cmd *cobra.Command, args []string) error {
	taskID := args[0]

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
	if _, err := trk.FetchItem(ctx, taskID); err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			return fmt.Errorf("no task %s in the tracker", taskID)
		}
		return err
	}

	ref, err := trk.FetchResultRef(ctx, taskID)
	if err != nil {
		return err
	}
	if ref.State == tracker.ResultNone {
		fmt.Printf("Task %s has no recorded result; nothing to clear.\n", taskID)
		return nil
	}
	if ref.State == tracker.ResultCompleted {
		return fmt.Errorf("task %s completed (%s); refusing to clear a successful result", taskID, ref.Ref)
	}

	if err := trk.ClearResult(ctx, taskID); err != nil {
		return err
	}
	color.Green("Cleared %s result for %s; it will be rescheduled on the next run", ref.State, taskID)
	return nil
}
