package main

import (
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "kette",
	Short: "kette - middleware chain HTTP server",
	Long: `kette runs an HTTP server whose requests flow through an ordered
middleware chain: recovery, request IDs, logging, metrics, authentication,
access logging, compression, and finally an upstream proxy.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("kette version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: $KETTE_CONFIG, ./config.yaml, /etc/kette/config.yaml)")
}
