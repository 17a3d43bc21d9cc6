package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	fastlymcp "github.com/aretw0/fastly-mcp"
	"github.com/aretw0/fastly-mcp/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "fastly-mcp",
	Short: "MCP server for the Fastly API and CLI",
	Long: `fastly-mcp exposes the Fastly REST API and the fastly CLI to MCP clients as two tools.
The API key is read from FASTLY_API_KEY and never leaves the server.

Without a subcommand it serves MCP over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStdio,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (default $FASTLY_MCP_CONFIG)")
	rootCmd.PersistentFlags().String("log-file", "", "Diagnostic log file (overrides config)")
	rootCmd.PersistentFlags().Bool("debug", false, "Write debug lines to the diagnostic log")
}

func loadConfig(cmd *cobra.Command) (fastlymcp.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := fastlymcp.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.File, _ = cmd.Flags().GetString("log-file")
	}
	return cfg, nil
}

// startBridge builds the bridge with tracing; the returned func releases both.
func startBridge(ctx context.Context, cmd *cobra.Command) (*fastlymcp.Bridge, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	tr, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "fastly-mcp",
		Version:     fastlymcp.Version,
		Endpoint:    telemetry.EndpointFromEnv(os.Getenv),
	})
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	bridge, err := fastlymcp.New(cfg,
		fastlymcp.WithLogLevel(level),
		fastlymcp.WithTracer(tr.Tracer()),
	)
	if err != nil {
		_ = tr.Shutdown(ctx)
		return nil, nil, err
	}

	release := func() {
		if err := tr.Shutdown(context.Background()); err != nil {
			bridge.Logger().Warn("Trace export failed", "error", err)
		}
		_ = bridge.Close()
	}
	return bridge, release, nil
}
