package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over standard input/output",
	Long: `Reads newline-delimited JSON-RPC from stdin and writes responses to stdout.
Diagnostics go to the log file and stderr so they never corrupt the protocol stream.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, release, err := startBridge(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	bridge.Logger().Info("Fastly MCP Server running on stdio")
	if err := bridge.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
		bridge.Logger().Error("MCP Server execution failed", "error", err)
		return err
	}
	bridge.Logger().Info("MCP Server stopped")
	return nil
}
