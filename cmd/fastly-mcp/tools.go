package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	fastlymcp "github.com/aretw0/fastly-mcp"
	"github.com/aretw0/fastly-mcp/internal/presentation/graph"
	"github.com/aretw0/fastly-mcp/internal/presentation/tui"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Describe the advertised tools",
	Long: `Prints the tool catalog a client would receive from tools/list.
Output is rendered Markdown on a terminal and plain Markdown otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		plain, _ := cmd.Flags().GetBool("plain")
		mermaid, _ := cmd.Flags().GetBool("mermaid")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		bridge, err := fastlymcp.New(cfg,
			fastlymcp.WithDiagnosticWriter(io.Discard),
			fastlymcp.WithRegistry(prometheus.NewRegistry()),
		)
		if err != nil {
			return err
		}
		defer bridge.Close()

		out := cmd.OutOrStdout()
		if mermaid {
			fmt.Fprint(out, graph.GenerateMermaid(routes(cfg)))
			return nil
		}

		doc := tui.CatalogMarkdown(bridge.Tools())
		if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprint(out, doc)
			return nil
		}

		tui.PrintBanner(out, fastlymcp.Version)
		rendered, err := tui.NewRenderer()(doc)
		if err != nil {
			fmt.Fprint(out, doc)
			return nil
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func routes(cfg fastlymcp.Config) []graph.Route {
	return []graph.Route{
		{Tool: cfg.Tools.API, Kind: graph.KindAPI, Target: cfg.API.BaseURL, Via: cfg.API.CredentialHeader},
		{Tool: cfg.Tools.CLI, Kind: graph.KindCLI, Target: cfg.CLI.Program, Via: cfg.CLI.TokenFlag},
	}
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().Bool("plain", false, "Print raw Markdown even on a terminal")
	toolsCmd.Flags().Bool("mermaid", false, "Print a Mermaid diagram of tools and their backends")
}
