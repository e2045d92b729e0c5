package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/merrors"
)

// approveCmd resolves a hard-blocked operation id, the §6 "muninn approve
// {operation_id}" instruction a block message tells the agent to run.
var approveCmd = &cobra.Command{
	Use:   "approve [operation_id]",
	Short: "Approve a pending operation and unblock it",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, timeout)
	defer cancel()

	ok, err := db.Approve(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return merrors.ErrAlreadyApproved
	}
	fmt.Printf("Approved %s\n", args[0])
	return nil
}
