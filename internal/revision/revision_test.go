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
	"path/filepath"
	"testing"

	"reef/internal/lock"
	"reef/internal/storage"
)

const (
	testPkg  = "zlib/1.2.11/_/_"
	testHash = "6af9cc7cb931c5ad942174fd7838eb655717c709"
)

// newTestEnv creates a filesystem store and a lock service on a temp
// directory.
func newTestEnv(t *testing.T) (storage.Storage, lock.Locker) {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewFileStorage(filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}

	locks, err := lock.Open(filepath.Join(dir, "locks.db"))
	if err != nil {
		t.Fatalf("lock.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = locks.Close() })

	return store, locks
}

// seedRecipe writes every recipe manifest file for one revision.
func seedRecipe(t *testing.T, store storage.Storage, pkg string, rev int) {
	t.Helper()
	ctx := context.Background()
	for _, name := range RecipeManifest {
		if err := store.Save(ctx, RecipeFile(pkg, rev, name), []byte(name)); err != nil {
			t.Fatalf("seeding %s failed: %v", name, err)
		}
	}
}

// seedBinary writes every binary manifest file for one revision of a
// package hash.
func seedBinary(t *testing.T, store storage.Storage, pkg string, recipeRev int, hash string, rev int) {
	t.Helper()
	ctx := context.Background()
	root := BinaryRoot(pkg, recipeRev, hash)
	for _, name := range BinaryManifest {
		if err := store.Save(ctx, BinaryFile(root, rev, name), []byte(name)); err != nil {
			t.Fatalf("seeding %s failed: %v", name, err)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
