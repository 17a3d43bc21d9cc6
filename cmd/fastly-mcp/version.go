package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	fastlymcp "github.com/aretw0/fastly-mcp"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fastly-mcp",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fastly-mcp version %s\n", strings.TrimSpace(fastlymcp.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
