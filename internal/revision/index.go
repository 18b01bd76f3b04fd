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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"reef/internal/lock"
	"reef/internal/storage"
)

var (
	// ErrCorruptIndex marks a revisions.txt that exists but is not the
	// expected JSON shape. The file is never rewritten on this error.
	ErrCorruptIndex = errors.New("revision: corrupt index")

	// ErrBadRevision marks an index entry whose revision is not a
	// non-negative decimal integer.
	ErrBadRevision = errors.New("revision: bad revision value")
)

// Entry is one element of a revisions index file. Revision is the decimal
// string form of the revision number; Timestamp is the ISO-8601 instant
// of addition, or empty for entries produced by a rebuild.
type Entry struct {
	Revision  string `json:"revision"`
	Timestamp string `json:"timestamp"`
}

// indexDoc is the persisted JSON document. The pointer distinguishes a
// missing revisions key from an empty array.
type indexDoc struct {
	Revisions *[]Entry `json:"revisions"`
}

// Index owns read-modify-write of revisions index files. Every mutation
// runs under the lock of the index file key; reads do not lock.
type Index struct {
	store storage.Storage
	locks lock.Locker
	now   func() time.Time
}

// NewIndex creates an index core over the given store and lock service.
func NewIndex(store storage.Storage, locks lock.Locker) *Index {
	return &Index{
		store: store,
		locks: locks,
		now:   time.Now,
	}
}

// Load returns the entries of the index file at path. A missing file is
// an empty index.
func (ix *Index) Load(ctx context.Context, path string) ([]Entry, error) {
	data, err := ix.store.Value(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []Entry{}, nil
		}
		return nil, err
	}
	return decodeEntries(path, data)
}

// Add records revision rev in the index file at path, refreshing the
// timestamp if the revision is already present. The entry moves to the
// end of the array either way.
func (ix *Index) Add(ctx context.Context, rev int, path string) error {
	lease, err := ix.locks.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release() }()

	entries, err := ix.Load(ctx, path)
	if err != nil {
		return err
	}

	want := strconv.Itoa(rev)
	kept := make([]Entry, 0, len(entries)+1)
	for _, e := range entries {
		if e.Revision != want {
			kept = append(kept, e)
		}
	}
	kept = append(kept, Entry{
		Revision:  want,
		Timestamp: ix.now().UTC().Format(time.RFC3339),
	})

	return saveEntries(ctx, ix.store, path, kept)
}

// Remove deletes revision rev from the index file at path. Returns false
// without writing when the file or the entry is absent.
func (ix *Index) Remove(ctx context.Context, rev int, path string) (bool, error) {
	lease, err := ix.locks.Acquire(ctx, path)
	if err != nil {
		return false, err
	}
	defer func() { _ = lease.Release() }()

	present, err := ix.store.Exists(ctx, path)
	if err != nil {
		return false, err
	}
	if !present {
		return false, nil
	}

	entries, err := ix.Load(ctx, path)
	if err != nil {
		return false, err
	}

	want := strconv.Itoa(rev)
	kept := make([]Entry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.Revision == want {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return false, nil
	}

	if err := saveEntries(ctx, ix.store, path, kept); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the revision numbers of the index file at path in array
// order.
func (ix *Index) List(ctx context.Context, path string) ([]int, error) {
	entries, err := ix.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	revs := make([]int, 0, len(entries))
	for _, e := range entries {
		n := parseDecimal(e.Revision)
		if n < 0 {
			return nil, fmt.Errorf("%w: %q in %s", ErrBadRevision, e.Revision, path)
		}
		revs = append(revs, n)
	}
	return revs, nil
}

// Last returns the highest revision number in the index file at path, or
// -1 when the file is absent or empty.
func (ix *Index) Last(ctx context.Context, path string) (int, error) {
	revs, err := ix.List(ctx, path)
	if err != nil {
		return -1, err
	}

	last := -1
	for _, r := range revs {
		if r > last {
			last = r
		}
	}
	return last, nil
}

func decodeEntries(path string, data []byte) ([]Entry, error) {
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, path, err)
	}
	if doc.Revisions == nil {
		return nil, fmt.Errorf("%w: %s: missing revisions key", ErrCorruptIndex, path)
	}
	return *doc.Revisions, nil
}

// saveEntries persists the array as compact UTF-8 JSON under the exact
// top-level key "revisions".
func saveEntries(ctx context.Context, store storage.Storage, path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(indexDoc{Revisions: &entries})
	if err != nil {
		return fmt.Errorf("failed to encode index %s: %w", path, err)
	}
	return store.Save(ctx, path, data)
}
