package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// hookPayload is the JSON object a tool hook pipes in on stdin: the tool
// name and its raw (structured or free-form) input, matching §4.2's
// map[string]any / string split.
type hookPayload struct {
	ToolName  string `json:"tool_name"`
	ToolInput any    `json:"tool_input"`
}

// enrichCmd runs the C6 enrichment pipeline for one tool-hook invocation and
// writes the assembled native-format context packet to stdout.
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a tool call with file history, decisions, blast radius and more",
	Long: `Reads a JSON payload {"tool_name": "...", "tool_input": ...} from stdin,
runs it through the enrichment pipeline, and prints the assembled native-format
context packet to stdout.

A hard block surfaces as a !BLOCKED line inside that packet, not as a nonzero
exit code; the caller is expected to read the packet either way.`,
	RunE: runEnrich,
}

func runEnrich(cmd *cobra.Command, args []string) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	var payload hookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("parse hook payload: %w", err)
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, timeout)
	defer cancel()

	result, err := engine.Enrich(ctx, projectID, workspace, payload.ToolName, payload.ToolInput)
	if err != nil {
		return err
	}
	if result.Context == "" {
		return nil
	}
	fmt.Println(result.Context)
	return nil
}
