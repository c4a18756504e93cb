// Package main is the entry point for the auth server.
//
// The main package stays minimal. Its job is to:
// 1. Read configuration (defaults, env vars, flags)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/auth, ...).
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/entity-auth/internal/config"
	"github.com/sakif/entity-auth/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Fails fast: there is no default signing secret.
	//   JWT_SECRET=$(openssl rand -hex 32) ./server
	cfg, err := config.LoadFromOS()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	// A nil notifier logs reset tokens instead of mailing them.
	srv, err := server.New(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
