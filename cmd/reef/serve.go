// Reef is a Conan package repository service.
// Copyright (C) 2025 Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reef/internal/conan"
	"reef/internal/config"
	"reef/internal/lock"
	"reef/internal/logging"
	"reef/internal/metrics"
	"reef/internal/storage"
)

var (
	servePort     string
	serveStorage  string
	serveLockDB   string
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the repository HTTP server",
	Long: `Serve the Conan v1 read endpoints, the admin reindex endpoint, and
prometheus metrics. Configuration comes from REEF_* environment
variables; flags override.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP server port (overrides REEF_PORT)")
	serveCmd.Flags().StringVar(&serveStorage, "storage", "", "Object store root directory (overrides REEF_STORAGE)")
	serveCmd.Flags().StringVar(&serveLockDB, "lock-db", "", "Lock database path (overrides REEF_LOCK_DB)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides REEF_LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if serveStorage != "" {
		cfg.StorageRoot = serveStorage
	}
	if serveLockDB != "" {
		cfg.LockDB = serveLockDB
	}
	if serveLogLevel != "" {
		cfg.LogLevel = serveLogLevel
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	store, err := storage.NewFileStorage(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	locks, err := lock.OpenWithTTL(cfg.LockDB, cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to open lock service: %w", err)
	}
	defer func() { _ = locks.Close() }()

	router := conan.NewRouter(conan.NewHandler(store, locks, cfg.IndexConcurrency))
	if cfg.AuthMode == "htpasswd" {
		authenticator, err := conan.NewAuthenticator(conan.AuthConfig{
			Realm:        "reef",
			HtpasswdPath: cfg.HtpasswdFile,
		})
		if err != nil {
			return fmt.Errorf("failed to configure authentication: %w", err)
		}
		router.SetAuthenticator(authenticator)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", router)
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting Conan repository server", "port", cfg.Port, "storage", cfg.StorageRoot)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
	return nil
}
