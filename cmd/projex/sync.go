package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one manual sync cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := engine.Full(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("uploaded_delta=%v created_bootstrap=%v applied_delta_count=%d skipped_remote_count=%d\n",
			result.UploadedDelta, result.CreatedBootstrap, result.AppliedDeltaCount, result.SkippedRemoteCount)
		return nil
	},
}
