// Package main is the entry point for the card authorization server.
//
// main only loads configuration, builds the logger and hands both to
// internal/server, which owns every other dependency.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/cardauth/internal/config"
	"github.com/sakif/cardauth/internal/logging"
	"github.com/sakif/cardauth/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Defaults, then CONFIG_FILE (YAML), then .env and the environment.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// Stdout always; log.file adds a rotating file alongside it.
	logger, closer, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		closer.Close()
		os.Exit(1)
	}
}
