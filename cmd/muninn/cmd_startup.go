package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var startupGoal string

// startupCmd runs the §4.11 startup planner and prints the resume markdown.
var startupCmd = &cobra.Command{
	Use:   "startup",
	Short: "Plan session resume: health, decisions due, fragile files, resume point",
	RunE:  runStartup,
}

func init() {
	startupCmd.Flags().StringVar(&startupGoal, "goal", "", "What the new session is for")
}

func runStartup(cmd *cobra.Command, args []string) error {
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, timeout)
	defer cancel()

	result, err := startupPlan.Start(ctx, projectID, workspace, startupGoal)
	if err != nil {
		return err
	}

	fmt.Println(result.ResumeMarkdown)
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "muninn %s is available\n", result.UpdateVersion)
	}
	return nil
}
