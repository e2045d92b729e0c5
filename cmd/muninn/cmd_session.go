package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"muninn/internal/session"
)

var (
	sessionGoal      string
	sessionOutcome   string
	sessionFiles     []string
	sessionNextSteps string
	sessionSuccess   int
	sessionAnalyze   bool
)

// sessionCmd groups the §4.9 session lifecycle subcommands.
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start or end a tracked session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session for this project",
	RunE:  runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active session",
	RunE:  runSessionEnd,
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionGoal, "goal", "", "What this session is for")

	sessionEndCmd.Flags().StringVar(&sessionOutcome, "outcome", "", "One-line summary of what happened")
	sessionEndCmd.Flags().StringSliceVar(&sessionFiles, "files", nil, "Files touched this session")
	sessionEndCmd.Flags().StringVar(&sessionNextSteps, "next-steps", "", "What to pick up next session")
	sessionEndCmd.Flags().IntVar(&sessionSuccess, "success", 1, "Outcome code: 0 failed, 1 partial, 2 succeeded")
	sessionEndCmd.Flags().BoolVar(&sessionAnalyze, "analyze", false, "Run transcript analysis (reads stdin), if an analyzer is configured")

	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, timeout)
	defer cancel()

	s, err := sessionEng.Start(ctx, projectID, sessionGoal)
	if err != nil {
		return err
	}
	fmt.Printf("Started session #%d: %s\n", s.SessionNumber, s.Goal)
	return nil
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, timeout)
	defer cancel()

	var tail string
	if sessionAnalyze {
		raw, err := io.ReadAll(os.Stdin)
		if err == nil {
			tail = string(raw)
		}
	}

	result, err := sessionEng.End(ctx, projectID, session.EndParams{
		Outcome:        sessionOutcome,
		Files:          sessionFiles,
		NextSteps:      sessionNextSteps,
		Success:        sessionSuccess,
		Analyze:        sessionAnalyze,
		TranscriptTail: tail,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Ended session #%d: %d learnings, %d decisions checked, %d injections classified\n",
		result.Session.SessionNumber, len(result.LearningIDs), result.DecisionsHit, result.Impacts)
	return nil
}
