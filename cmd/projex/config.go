package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/offlinesync/projex/pkg/syncengine"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or change this device's sync configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current sync configuration (secret key redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg, err := engine.GetConfig(ctx)
		if err != nil {
			return err
		}
		return printJSON(cfg)
	},
}

var (
	setBucket    string
	setEndpoint  string
	setAccessKey string
	setSecretKey string
	setInterval  int
)

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update one or more sync configuration fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		params := syncengine.UpdateConfigParams{}
		if cmd.Flags().Changed("bucket") {
			params.Bucket = &setBucket
		}
		if cmd.Flags().Changed("endpoint") {
			params.Endpoint = &setEndpoint
		}
		if cmd.Flags().Changed("access-key") {
			params.AccessKey = &setAccessKey
		}
		if cmd.Flags().Changed("secret-key") {
			params.SecretKey = &setSecretKey
		}
		if cmd.Flags().Changed("interval-minutes") {
			params.AutoSyncIntervalMinutes = &setInterval
		}
		return engine.UpdateConfig(ctx, params)
	},
}

var configEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable automatic background sync",
	RunE:  func(cmd *cobra.Command, args []string) error { return setSyncEnabled(cmd, true) },
}

var configDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable automatic background sync",
	RunE:  func(cmd *cobra.Command, args []string) error { return setSyncEnabled(cmd, false) },
}

func setSyncEnabled(cmd *cobra.Command, enabled bool) error {
	ctx := cmd.Context()
	_, engine, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return engine.SetEnabled(ctx, enabled)
}

var configTestCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify the configured bucket is reachable with the configured credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := engine.TestConnection(ctx); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var configRevealCmd = &cobra.Command{
	Use:   "reveal-secret",
	Short: "Print the unredacted secret key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		secret, err := engine.RevealSecretKey(ctx)
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}

var configExportPath string

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export this device's sync configuration for setting up a new device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		exported, err := engine.ExportConfig(ctx)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(exported, "", "  ")
		if err != nil {
			return err
		}
		if configExportPath == "" {
			fmt.Println(string(data))
			return nil
		}
		return os.WriteFile(configExportPath, data, 0o600)
	},
}

var configImportPath string

var configImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a sync configuration exported from another device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, engine, cleanup, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		data, err := os.ReadFile(configImportPath)
		if err != nil {
			return fmt.Errorf("read config export file: %w", err)
		}
		var exported syncengine.ExportedConfig
		if err := json.Unmarshal(data, &exported); err != nil {
			return fmt.Errorf("parse config export file: %w", err)
		}
		return engine.ImportConfig(ctx, exported)
	},
}

func init() {
	configSetCmd.Flags().StringVar(&setBucket, "bucket", "", "S3 bucket name")
	configSetCmd.Flags().StringVar(&setEndpoint, "endpoint", "", "S3 endpoint (https://...)")
	configSetCmd.Flags().StringVar(&setAccessKey, "access-key", "", "S3 access key")
	configSetCmd.Flags().StringVar(&setSecretKey, "secret-key", "", "S3 secret key")
	configSetCmd.Flags().IntVar(&setInterval, "interval-minutes", 1, "auto-sync interval in minutes")

	configExportCmd.Flags().StringVar(&configExportPath, "out", "", "write the export to this file instead of stdout")
	configImportCmd.Flags().StringVar(&configImportPath, "in", "", "read the export from this file")
	_ = configImportCmd.MarkFlagRequired("in")

	configCmd.AddCommand(
		configShowCmd,
		configSetCmd,
		configEnableCmd,
		configDisableCmd,
		configTestCmd,
		configRevealCmd,
		configExportCmd,
		configImportCmd,
	)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
