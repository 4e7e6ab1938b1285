// Command kette runs the kette HTTP server.
//
// Configuration is read from a YAML file (--config, KETTE_CONFIG,
// ./config.yaml or /etc/kette/config.yaml) and KETTE_* environment
// variables. A .env file in the working directory is loaded first.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := loadDotenv(".env"); err != nil {
		slog.Error("loading environment file failed", "error", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadDotenv loads path into the environment. A missing file is not an error.
func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%s: %w", path, err)
}
