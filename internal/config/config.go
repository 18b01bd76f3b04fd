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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the repository service configuration.
type Config struct {
	// Port is the HTTP server port.
	Port string

	// StorageRoot is the root directory of the filesystem object store.
	StorageRoot string

	// LockDB is the path of the SQLite database backing the lock service.
	LockDB string

	// LockTTL is the lease lifetime of acquired locks.
	LockTTL time.Duration

	// IndexConcurrency bounds parallel store probes during index rebuilds.
	IndexConcurrency int

	// AuthMode determines admin-endpoint authentication: "none" or "htpasswd".
	AuthMode string

	// HtpasswdFile is the path to the htpasswd file (required if AuthMode is "htpasswd").
	HtpasswdFile string

	// LogLevel is the slog level name (debug, info, warn, error).
	LogLevel string
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Port:             "9300",
		StorageRoot:      "/var/lib/reef/storage",
		LockDB:           "/var/lib/reef/locks.db",
		LockTTL:          1 * time.Hour,
		IndexConcurrency: 8,
		AuthMode:         "none",
		HtpasswdFile:     "",
		LogLevel:         "info",
	}
}

// LoadFromEnv loads configuration from REEF_* environment variables on
// top of the defaults.
func LoadFromEnv() (Config, error) {
	cfg := Default()

	// REEF_PORT
	if val := os.Getenv("REEF_PORT"); val != "" {
		if _, err := strconv.Atoi(val); err != nil {
			return cfg, fmt.Errorf("invalid REEF_PORT value: %w", err)
		}
		cfg.Port = val
	}

	// REEF_STORAGE
	if val := os.Getenv("REEF_STORAGE"); val != "" {
		cfg.StorageRoot = val
	}

	// REEF_LOCK_DB
	if val := os.Getenv("REEF_LOCK_DB"); val != "" {
		cfg.LockDB = val
	}

	// REEF_LOCK_TTL
	if val := os.Getenv("REEF_LOCK_TTL"); val != "" {
		ttl, err := time.ParseDuration(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid REEF_LOCK_TTL: %w", err)
		}
		if ttl < 1*time.Second {
			return cfg, fmt.Errorf("REEF_LOCK_TTL must be at least 1 second")
		}
		cfg.LockTTL = ttl
	}

	// REEF_INDEX_CONCURRENCY
	if val := os.Getenv("REEF_INDEX_CONCURRENCY"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return cfg, fmt.Errorf("invalid REEF_INDEX_CONCURRENCY: %w", err)
		}
		if n < 1 {
			return cfg, fmt.Errorf("REEF_INDEX_CONCURRENCY must be at least 1")
		}
		cfg.IndexConcurrency = n
	}

	// REEF_AUTH_MODE
	if val := os.Getenv("REEF_AUTH_MODE"); val != "" {
		if val != "none" && val != "htpasswd" {
			return cfg, fmt.Errorf("invalid REEF_AUTH_MODE: must be 'none' or 'htpasswd', got %q", val)
		}
		cfg.AuthMode = val
	}

	// REEF_HTPASSWD_FILE
	if val := os.Getenv("REEF_HTPASSWD_FILE"); val != "" {
		cfg.HtpasswdFile = val
	}

	// REEF_LOG_LEVEL
	if val := os.Getenv("REEF_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	if cfg.AuthMode == "htpasswd" && cfg.HtpasswdFile == "" {
		return cfg, fmt.Errorf("REEF_HTPASSWD_FILE is required when REEF_AUTH_MODE is 'htpasswd'")
	}

	return cfg, nil
}
