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
	"testing"
	"time"
)

func TestIndexAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("empty index growth", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "revisions.new"

		for _, r := range []int{1, 2, 3} {
			if err := ix.Add(ctx, r, path); err != nil {
				t.Fatalf("Add(%d) failed: %v", r, err)
			}
		}

		revs, err := ix.List(ctx, path)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if !equalInts(revs, []int{1, 2, 3}) {
			t.Fatalf("expected [1 2 3], got %v", revs)
		}

		last, err := ix.Last(ctx, path)
		if err != nil {
			t.Fatalf("Last failed: %v", err)
		}
		if last != 3 {
			t.Fatalf("expected last 3, got %d", last)
		}
	})

	t.Run("re-add keeps one entry and refreshes timestamp", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "p/revisions.txt"

		first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		second := time.Date(2025, 3, 1, 11, 30, 0, 0, time.UTC)

		ix.now = func() time.Time { return first }
		if err := ix.Add(ctx, 7, path); err != nil {
			t.Fatalf("first Add failed: %v", err)
		}
		ix.now = func() time.Time { return second }
		if err := ix.Add(ctx, 7, path); err != nil {
			t.Fatalf("second Add failed: %v", err)
		}

		entries, err := ix.Load(ctx, path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected a single entry, got %v", entries)
		}
		if entries[0].Revision != "7" {
			t.Fatalf("expected revision \"7\", got %q", entries[0].Revision)
		}
		if entries[0].Timestamp != second.Format(time.RFC3339) {
			t.Fatalf("expected refreshed timestamp, got %q", entries[0].Timestamp)
		}
	})

	t.Run("re-add moves entry to the end", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "p/revisions.txt"

		for _, r := range []int{0, 1, 2} {
			if err := ix.Add(ctx, r, path); err != nil {
				t.Fatalf("Add(%d) failed: %v", r, err)
			}
		}
		if err := ix.Add(ctx, 0, path); err != nil {
			t.Fatalf("re-Add failed: %v", err)
		}

		revs, err := ix.List(ctx, path)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if !equalInts(revs, []int{1, 2, 0}) {
			t.Fatalf("expected [1 2 0], got %v", revs)
		}
	})

	t.Run("persisted form uses string revisions", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "p/revisions.txt"

		if err := ix.Add(ctx, 4, path); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		raw, err := store.Value(ctx, path)
		if err != nil {
			t.Fatalf("Value failed: %v", err)
		}

		var doc struct {
			Revisions []map[string]string `json:"revisions"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("persisted index is not valid JSON: %v", err)
		}
		if len(doc.Revisions) != 1 || doc.Revisions[0]["revision"] != "4" {
			t.Fatalf("unexpected persisted shape: %s", raw)
		}
		if doc.Revisions[0]["timestamp"] == "" {
			t.Fatal("expected a timestamp on added entry")
		}
	})
}

func TestIndexRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("remove reshapes list", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "p/revisions.txt"

		for _, r := range []int{0, 1, 2} {
			if err := ix.Add(ctx, r, path); err != nil {
				t.Fatalf("Add(%d) failed: %v", r, err)
			}
		}

		removed, err := ix.Remove(ctx, 1, path)
		if err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if !removed {
			t.Fatal("expected Remove to report true")
		}

		revs, err := ix.List(ctx, path)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if !equalInts(revs, []int{0, 2}) {
			t.Fatalf("expected [0 2], got %v", revs)
		}

		removed, err = ix.Remove(ctx, 1, path)
		if err != nil {
			t.Fatalf("second Remove failed: %v", err)
		}
		if removed {
			t.Fatal("expected second Remove to report false")
		}
	})

	t.Run("missing file returns false without writing", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "absent/revisions.txt"

		removed, err := ix.Remove(ctx, 3, path)
		if err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if removed {
			t.Fatal("expected false on missing file")
		}

		present, err := store.Exists(ctx, path)
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if present {
			t.Fatal("Remove must not create the index file")
		}
	})

	t.Run("absent revision does not rewrite the file", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "p/revisions.txt"

		if err := ix.Add(ctx, 5, path); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		before, err := store.Value(ctx, path)
		if err != nil {
			t.Fatalf("Value failed: %v", err)
		}

		removed, err := ix.Remove(ctx, 9, path)
		if err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if removed {
			t.Fatal("expected false for absent revision")
		}

		after, err := store.Value(ctx, path)
		if err != nil {
			t.Fatalf("Value failed: %v", err)
		}
		if string(before) != string(after) {
			t.Fatal("file changed on a false Remove")
		}
	})
}

func TestIndexLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file is an empty index", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)

		entries, err := ix.Load(ctx, "nope/revisions.txt")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected empty index, got %v", entries)
		}

		last, err := ix.Last(ctx, "nope/revisions.txt")
		if err != nil {
			t.Fatalf("Last failed: %v", err)
		}
		if last != -1 {
			t.Fatalf("expected -1 on missing file, got %d", last)
		}
	})

	t.Run("unparseable JSON is corrupt", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "bad/revisions.txt"

		if err := store.Save(ctx, path, []byte("{not json")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if _, err := ix.Load(ctx, path); !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})

	t.Run("missing revisions key is corrupt", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "bad/revisions.txt"

		if err := store.Save(ctx, path, []byte(`{"other": []}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if _, err := ix.Load(ctx, path); !errors.Is(err, ErrCorruptIndex) {
			t.Fatalf("expected ErrCorruptIndex, got %v", err)
		}
	})

	t.Run("non-integer revision fails List and Last", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "bad/revisions.txt"

		doc := `{"revisions":[{"revision":"zzz","timestamp":""}]}`
		if err := store.Save(ctx, path, []byte(doc)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if _, err := ix.List(ctx, path); !errors.Is(err, ErrBadRevision) {
			t.Fatalf("expected ErrBadRevision from List, got %v", err)
		}
		if _, err := ix.Last(ctx, path); !errors.Is(err, ErrBadRevision) {
			t.Fatalf("expected ErrBadRevision from Last, got %v", err)
		}
	})

	t.Run("round trip preserves entries", func(t *testing.T) {
		store, locks := newTestEnv(t)
		ix := NewIndex(store, locks)
		path := "p/revisions.txt"

		want := []Entry{
			{Revision: "0", Timestamp: ""},
			{Revision: "3", Timestamp: "2025-01-02T03:04:05Z"},
		}
		if err := saveEntries(ctx, store, path, want); err != nil {
			t.Fatalf("saveEntries failed: %v", err)
		}

		got, err := ix.Load(ctx, path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d entries, got %v", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], got[i])
			}
		}
	})
}
