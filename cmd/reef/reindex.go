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
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"reef/internal/lock"
	"reef/internal/logging"
	"reef/internal/revision"
	"reef/internal/storage"
)

var (
	reindexDir         string
	reindexLockDB      string
	reindexConcurrency int
	reindexLogLevel    string
)

var reindexCmd = &cobra.Command{
	Use:   "reindex [package...]",
	Short: "Rebuild the revisions indexes of a store",
	Long: `Open a filesystem object store and run a full index update for each
named package coordinate (name/version/user/channel). With no
arguments, every package found in the store is updated.

Examples:
  reef reindex zlib/1.2.11/_/_
  reef reindex --dir /var/lib/reef/storage`,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().StringVar(&reindexDir, "dir", ".", "Object store root directory")
	reindexCmd.Flags().StringVar(&reindexLockDB, "lock-db", "", "Lock database path (default: a file in the system temp directory)")
	reindexCmd.Flags().IntVar(&reindexConcurrency, "concurrency", revision.DefaultConcurrency, "Parallel store probes during rebuilds")
	reindexCmd.Flags().StringVar(&reindexLogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	slog.SetDefault(logging.New(reindexLogLevel))

	store, err := storage.NewFileStorage(reindexDir)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	lockDB := reindexLockDB
	if lockDB == "" {
		lockDB = filepath.Join(os.TempDir(), "reef-locks.db")
	}

	locks, err := lock.Open(lockDB)
	if err != nil {
		return fmt.Errorf("failed to open lock service: %w", err)
	}
	defer func() { _ = locks.Close() }()

	ctx := cmd.Context()

	pkgs := args
	if len(pkgs) == 0 {
		pkgs, err = discoverPackages(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to discover packages: %w", err)
		}
		if len(pkgs) == 0 {
			slog.Info("No packages found in store", "dir", reindexDir)
			return nil
		}
	}

	for _, pkg := range pkgs {
		pi := revision.NewPackageIndex(store, locks, pkg, reindexConcurrency)
		revs, err := pi.FullIndexUpdate(ctx)
		if err != nil {
			return fmt.Errorf("full index update of %s failed: %w", pkg, err)
		}
		fmt.Printf("%s: %d recipe revision(s)\n", pkg, len(revs))
	}

	return nil
}

// discoverPackages derives every package coordinate present in the store
// from its recipe-file keys.
func discoverPackages(ctx context.Context, store storage.Storage) ([]string, error) {
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	pkgs := []string{}
	for _, key := range keys {
		coord := revision.CoordinateOf(key)
		if coord == "" || seen[coord] {
			continue
		}
		seen[coord] = true
		pkgs = append(pkgs, coord)
	}
	sort.Strings(pkgs)
	return pkgs, nil
}
