package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Create or restore a full-table snapshot",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload a fresh snapshot of every local table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		deviceID, err := engine.CreateSnapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("uploaded snapshot for device %s\n", deviceID)
		return nil
	},
}

var restoreFromDeviceID string

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace every local table with another device's latest snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := engine.RestoreSnapshot(ctx, restoreFromDeviceID); err != nil {
			return err
		}
		fmt.Println("restore complete")
		return nil
	},
}

func init() {
	snapshotRestoreCmd.Flags().StringVar(&restoreFromDeviceID, "from-device", "", "device_id whose snapshot to restore")
	_ = snapshotRestoreCmd.MarkFlagRequired("from-device")
	snapshotCmd.AddCommand(snapshotCreateCmd, snapshotRestoreCmd)
}
