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

package storage

import (
	"context"
	"errors"
)

// Delimiter separates the segments of a storage key.
const Delimiter = "/"

// ErrNotFound is returned by Value when no object exists at the key.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a flat key-to-blob object store over hierarchical string keys.
// Keys use Delimiter as separator; the store itself has no directory notion.
type Storage interface {
	// List returns all keys equal to prefix or beginning with prefix + "/".
	// An empty prefix lists every key. Order is unspecified.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Value returns the bytes stored at key, or ErrNotFound.
	Value(ctx context.Context, key string) ([]byte, error)

	// Save creates or replaces the object at key. Replacement is atomic
	// per key.
	Save(ctx context.Context, key string, data []byte) error

	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
