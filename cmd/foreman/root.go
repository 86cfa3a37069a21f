package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Hierarchical workflow orchestration engine",
	Long: `Foreman drives a decomposed body of work (a plan broken into epics and
tasks) to completion: it schedules tasks under a concurrency limit,
serializes tasks that touch the same files, halts on failure bursts, and
checkpoints progress so a crashed or interrupted run picks up where it
left off.

Typical flow:
  foreman plan ./plan.yaml     load a work plan into the tracker
  foreman run ROOT-1           execute the workflow
  foreman status ROOT-1        inspect progress
  foreman pause / resume       intervene while a run is active`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(versionCmd)
}
