package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mobileBackgroundCmd is the entry point invoked by a mobile OS's
// background-task scheduler: short-lived, non-blocking, never prompts, and
// reports a status the OS can log rather than failing loudly (spec.md §4.7
// step 1, §9).
var mobileBackgroundCmd = &cobra.Command{
	Use:   "mobile-background",
	Short: "Run a single opportunistic background sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		result := engine.RunMobileBackground(ctx)
		fmt.Printf("status=%s message=%q\n", result.Status, result.Message)
		if result.Status == "failed" {
			return fmt.Errorf("mobile background sync failed: %s", result.Message)
		}
		return nil
	},
}
