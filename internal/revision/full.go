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

package revision

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"reef/internal/lock"
)

// FullIndexer rebuilds the recipe index of a package and the binary index
// of every (recipe revision, package hash) pair below it.
type FullIndexer struct {
	indexer *Indexer
	locks   lock.Locker
}

// NewFullIndexer creates a full indexer over the given indexer and lock
// service.
func NewFullIndexer(indexer *Indexer, locks lock.Locker) *FullIndexer {
	return &FullIndexer{
		indexer: indexer,
		locks:   locks,
	}
}

// Update rebuilds every index below the package coordinate. The whole
// operation runs under the lock of pkg; the per-index rebuilds inside it
// take no further locks. Returns the rebuilt recipe revisions.
func (f *FullIndexer) Update(ctx context.Context, pkg string) ([]int, error) {
	lease, err := f.locks.Acquire(ctx, pkg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Release() }()

	start := time.Now()

	revs, err := f.indexer.Build(ctx, pkg, RecipeManifest, func(name string, r int) string {
		return RecipeFile(pkg, r, name)
	})
	if err != nil {
		return nil, err
	}

	pairs, err := f.collectBinaries(ctx, pkg, revs)
	if err != nil {
		return nil, err
	}

	if err := f.rebuildBinaries(ctx, pkg, pairs); err != nil {
		return nil, err
	}

	slog.Info("full index update complete",
		slog.String("package", pkg),
		slog.Int("recipe_revisions", len(revs)),
		slog.Int("binary_indexes", len(pairs)),
		slog.Duration("duration", time.Since(start)),
	)

	return revs, nil
}

type binaryRef struct {
	rev  int
	hash string
}

// collectBinaries enumerates the package hashes of every recipe revision
// in parallel.
func (f *FullIndexer) collectBinaries(ctx context.Context, pkg string, revs []int) ([]binaryRef, error) {
	var (
		mu       sync.Mutex
		pairs    []binaryRef
		firstErr error
	)

	wp := workerpool.New(f.indexer.concurrency)
	for _, r := range revs {
		r := r
		wp.Submit(func() {
			hashes, err := f.indexer.ListPackages(ctx, PackageDir(pkg, r))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for _, h := range hashes {
				pairs = append(pairs, binaryRef{rev: r, hash: h})
			}
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	return pairs, nil
}

// rebuildBinaries rebuilds the binary index of every pair in parallel.
func (f *FullIndexer) rebuildBinaries(ctx context.Context, pkg string, pairs []binaryRef) error {
	var (
		mu       sync.Mutex
		firstErr error
	)

	wp := workerpool.New(f.indexer.concurrency)
	for _, p := range pairs {
		root := BinaryRoot(pkg, p.rev, p.hash)
		wp.Submit(func() {
			_, err := f.indexer.Build(ctx, root, BinaryManifest, func(name string, b int) string {
				return BinaryFile(root, b, name)
			})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}
	wp.StopWait()

	return firstErr
}
