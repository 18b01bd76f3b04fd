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
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"reef/internal/metrics"
	"reef/internal/storage"
)

// DefaultConcurrency bounds the existence probes and per-revision rebuild
// fan-out when no limit is configured.
const DefaultConcurrency = 8

// PathFunc maps a manifest file name and a revision number to the storage
// key where that file lives.
type PathFunc func(name string, rev int) string

// Indexer rebuilds revisions index files by scanning the store.
type Indexer struct {
	store       storage.Storage
	concurrency int
}

// NewIndexer creates an indexer with the given probe concurrency bound.
func NewIndexer(store storage.Storage, concurrency int) *Indexer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Indexer{
		store:       store,
		concurrency: concurrency,
	}
}

// Build rebuilds the index file under prefix. Every numeric subdirectory
// of prefix is a candidate revision; a candidate is retained iff every
// manifest file exists at pathOf(file, rev). The retained revisions are
// written, ascending with empty timestamps, to <prefix>/revisions.txt and
// returned.
func (ix *Indexer) Build(ctx context.Context, prefix string, manifest []string, pathOf PathFunc) ([]int, error) {
	start := time.Now()

	keys, err := ix.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	candidates := []int{}
	for _, key := range keys {
		if len(key) <= len(prefix) {
			continue
		}
		r := RevisionOf(prefix, key)
		if r < 0 || seen[r] {
			continue
		}
		seen[r] = true
		candidates = append(candidates, r)
	}
	sort.Ints(candidates)

	complete, err := ix.probe(ctx, candidates, manifest, pathOf)
	if err != nil {
		return nil, err
	}

	revs := make([]int, 0, len(candidates))
	entries := make([]Entry, 0, len(candidates))
	for i, r := range candidates {
		if !complete[i] {
			continue
		}
		revs = append(revs, r)
		entries = append(entries, Entry{Revision: strconv.Itoa(r), Timestamp: ""})
	}

	if err := saveEntries(ctx, ix.store, IndexPath(prefix), entries); err != nil {
		return nil, err
	}

	slog.Debug("rebuilt revisions index",
		slog.String("prefix", prefix),
		slog.Int("candidates", len(candidates)),
		slog.Int("retained", len(revs)),
		slog.Duration("duration", time.Since(start)),
	)
	metrics.ObserveRebuild(time.Since(start))

	return revs, nil
}

// probe checks every (candidate, manifest file) pair in parallel and
// reports, per candidate, whether all files exist. Any probe failure
// fails the whole rebuild.
func (ix *Indexer) probe(ctx context.Context, candidates []int, manifest []string, pathOf PathFunc) ([]bool, error) {
	complete := make([]bool, len(candidates))
	for i := range complete {
		complete[i] = true
	}

	var (
		mu       sync.Mutex
		firstErr error
	)

	wp := workerpool.New(ix.concurrency)
	for i, r := range candidates {
		for _, name := range manifest {
			i, key := i, pathOf(name, r)
			wp.Submit(func() {
				present, err := ix.store.Exists(ctx, key)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				if !present {
					complete[i] = false
				}
			})
		}
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	return complete, nil
}

// ListPackages returns the direct subdirectory names under prefix: the
// binary package hashes of a recipe revision. Order is lexicographic.
func (ix *Indexer) ListPackages(ctx context.Context, prefix string) ([]string, error) {
	keys, err := ix.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	names := []string{}
	for _, key := range keys {
		if len(key) <= len(prefix) {
			continue
		}
		seg := NextSegment(prefix, key)
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		names = append(names, seg)
	}
	sort.Strings(names)
	return names, nil
}
