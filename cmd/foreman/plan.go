package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jharlow/foreman/pkg/models"
)

var planCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Load a work plan into the tracker",
	Long: `Load a YAML work plan into the project tracker.

A plan declares the decomposition tree: one root, its epics, and each
epic's tasks with the files they will touch. Tasks sharing a footprint
entry are serialized at run time; everything else runs concurrently.

Example plan:

  root:
    id: ROOT-1
    title: Ship the billing revamp
  epics:
    - id: E-1
      title: Data model
      tasks:
        - id: T-1
          title: Add invoice table
          footprint: [internal/db/schema.sql]
        - id: T-2
          title: Backfill script
          footprint: [internal/db/schema.sql, scripts/backfill.go]

Loading an existing plan upserts items in place; completed results are
left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

// planFile is the on-disk plan format.
type planFile struct {
	Root struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
	} `yaml:"root"`
	Epics []planEpic `yaml:"epics"`
}

type planEpic struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Tasks []planTask `yaml:"tasks"`
}

type planTask struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Footprint []string `yaml:"footprint"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	var plan planFile
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return fmt.Errorf("parse plan: %w", err)
	}
	if err := validatePlan(&plan); err != nil {
		return err
	}

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
	now := time.Now().UTC()
	taskCount := 0

	rootItem := &models.WorkItem{
		ID:        plan.Root.ID,
		Kind:      models.KindRoot,
		Title:     plan.Root.Title,
		CreatedAt: now,
	}
	for _, epic := range plan.Epics {
		rootItem.Children = append(rootItem.Children, epic.ID)
	}
	if err := trk.PutItem(ctx, rootItem); err != nil {
		return err
	}

	for _, epic := range plan.Epics {
		epicItem := &models.WorkItem{
			ID:        epic.ID,
			Kind:      models.KindEpic,
			Title:     epic.Title,
			CreatedAt: now,
		}
		for _, task := range epic.Tasks {
			epicItem.Children = append(epicItem.Children, task.ID)
		}
		if err := trk.PutItem(ctx, epicItem); err != nil {
			return err
		}

		for _, task := range epic.Tasks {
			// Stagger creation times so overlap groups get a stable
			// declaration-order serialization.
			taskItem := &models.WorkItem{
				ID:        task.ID,
				Kind:      models.KindTask,
				Title:     task.Title,
				Footprint: task.Footprint,
				CreatedAt: now.Add(time.Duration(taskCount) * time.Millisecond),
			}
			taskCount++
			if err := trk.PutItem(ctx, taskItem); err != nil {
				return err
			}
		}
	}

	color.Green("Loaded plan %s: %d epics, %d tasks", plan.Root.ID, len(plan.Epics), taskCount)
	fmt.Printf("Run it with: foreman run %s\n", plan.Root.ID)
	return nil
}

// validatePlan rejects plans with missing or duplicate ids before anything
// touches the tracker.
func validatePlan(plan *planFile) error {
	if plan.Root.ID == "" {
		return fmt.Errorf("plan root must have an id")
	}
	seen := map[string]bool{plan.Root.ID: true}
	for _, epic := range plan.Epics {
		if epic.ID == "" {
			return fmt.Errorf("epic under %s missing id", plan.Root.ID)
		}
		if seen[epic.ID] {
			return fmt.Errorf("duplicate id %s", epic.ID)
		}
		seen[epic.ID] = true
		for _, task := range epic.Tasks {
			if task.ID == "" {
				return fmt.Errorf("task under %s missing id", epic.ID)
			}
			if seen[task.ID] {
				return fmt.Errorf("duplicate id %s", task.ID)
			}
			seen[task.ID] = true
		}
	}
	return nil
}
