package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jharlow/foreman/internal/executor"
	"github.com/jharlow/foreman/internal/orchestrator"
	"github.com/jharlow/foreman/internal/workspace"
)

var (
	runCommand string
	runLimit   int
)

var runCmd = &cobra.Command{
	Use:   "run <root-id>",
	Short: "Execute a workflow to completion",
	Long: `Execute the workflow rooted at the given plan id.

The engine reconstructs the workflow from the tracker, so a previously
interrupted run resumes where it left off: completed tasks are skipped
and anything that was mid-flight is queued first.

Each task runs the configured executor command inside its own git
worktree. Tasks that declare overlapping footprints are serialized in
plan order; everything else runs concurrently up to the limit.

While a run is active, 'foreman pause' drains in-flight work and halts
dispatch, and 'foreman resume' continues it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCommand, "command", "", "Executor command (overrides config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Max concurrent tasks (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	rootID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runCommand != "" {
		cfg.Executor.Command = runCommand
	}
	if runLimit > 0 {
		cfg.Engine.ConcurrencyLimit = runLimit
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}

	trk, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer trk.Close()

	manager, err := workspace.NewManager(cfg.Workspace.BaseDir, root)
	if err != nil {
		return fmt.Errorf("workspace manager: %w", err)
	}
	if removed, err := manager.StartupCleanup(); err == nil && removed > 0 {
		fmt.Printf("Cleaned up %d stale workspaces\n", removed)
	}

	logger := orchestrator.NewDebugLoggerForProject(root)
	defer logger.Close()

	watcher, err := orchestrator.NewSignalWatcher(root)
	if err != nil {
		return fmt.Errorf("signal watcher: %w", err)
	}
	defer watcher.Close()

	eng := orchestrator.New(trk, manager, executor.NewCommandExecutor(cfg.Executor.Command),
		orchestrator.WithConcurrencyLimit(cfg.Engine.ConcurrencyLimit),
		orchestrator.WithTickInterval(cfg.Engine.TickInterval),
		orchestrator.WithPollInterval(cfg.Engine.PollInterval),
		orchestrator.WithBreaker(cfg.Breaker.Threshold, cfg.Breaker.Window),
		orchestrator.WithCheckpointInterval(cfg.Checkpoint.Interval),
		orchestrator.WithLogger(logger),
		orchestrator.WithSignalWatcher(watcher),
		orchestrator.WithEmitter(printEvent),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Running workflow %s (limit %d)\n", rootID, cfg.Engine.ConcurrencyLimit)
	err = eng.Run(ctx, rootID)
	switch {
	case err == nil:
		color.Green("Workflow %s complete", rootID)
		return nil
	case errors.Is(err, orchestrator.ErrBlocked):
		color.Yellow("Workflow %s blocked: a failed task holds back the rest of its group", rootID)
		fmt.Println("Clear the failure with 'foreman retry <task-id>' and run again.")
		return err
	case errors.Is(err, context.Canceled):
		color.Yellow("Workflow %s interrupted; progress checkpointed", rootID)
		return nil
	default:
		return err
	}
}

// printEvent renders engine events as colored progress lines.
func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventTaskDispatched:
		fmt.Printf("  %s %s %s\n", color.CyanString("▶"), ev.UnitID, ev.Title)
	case orchestrator.EventTaskCompleted:
		fmt.Printf("  %s %s %s\n", color.GreenString("✓"), ev.UnitID, ev.Message)
	case orchestrator.EventTaskFailed:
		fmt.Printf("  %s %s %s\n", color.RedString("✗"), ev.UnitID, ev.Message)
	case orchestrator.EventCircuitTripped:
		color.Red("  circuit tripped: dispatch halted, waiting for 'foreman resume'")
	case orchestrator.EventPaused:
		color.Yellow("  paused")
	case orchestrator.EventResumed:
		color.Yellow("  resumed")
	}
}
