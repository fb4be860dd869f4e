package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report current sync health: is_syncing, pending changes, last sync result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		status, err := engine.GetStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}
