package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over HTTP",
	Long: `Starts the server in HTTP mode. JSON-RPC messages are POSTed to /mcp,
one per request. Prometheus metrics are exposed on /metrics.

The server listens on 127.0.0.1:8080 by default. Binding any other interface
requires a bearer token (serve.token or FASTLY_MCP_SERVE_TOKEN). Browser
requests are refused unless their origin is listed in serve.allowed_origins.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bridge, release, err := startBridge(ctx, cmd)
		if err != nil {
			return err
		}
		defer release()
		logger := bridge.Logger()

		serve := bridge.Config().Serve
		if cmd.Flags().Changed("addr") {
			serve.Addr, _ = cmd.Flags().GetString("addr")
		}
		if err := serve.CheckExposure(); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              serve.Addr,
			Handler:           bridge.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("Fastly MCP Server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("Start shutdown...")

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				return srv.Close()
			}
			logger.Info("Fastly MCP Server stopped gracefully")
			return nil
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Address to listen on (overrides serve.addr)")
}
