package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/kette/pkg/config"
	"github.com/rhuss/kette/pkg/debug"
	"github.com/rhuss/kette/pkg/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the kette HTTP server and block until SIGINT or SIGTERM.
In-flight requests get the configured shutdown timeout to finish.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", -1, "Port to listen on (overrides config, 0 picks a free port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		if servePort < 0 || servePort > 65535 {
			return fmt.Errorf("invalid --port %d", servePort)
		}
		cfg.Server.Port = servePort
	}

	logger := debug.Setup(cfg.Logging)
	logger.Info("starting kette",
		"version", version,
		"transport", cfg.Server.Transport,
		"upstream", cfg.Proxy.Upstream,
		"auth", cfg.Auth.Type,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.FromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	return srv.Run(ctx, cfg.Server.Port)
}
