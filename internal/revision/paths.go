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

// Package revision maintains the per-artifact revisions index files of a
// Conan repository: their JSON shape, the lock-guarded mutations, and the
// store-scanning rebuilds.
package revision

import (
	"fmt"
	"strings"
)

// IndexFile is the name of a revisions index file.
const IndexFile = "revisions.txt"

// RecipeManifest lists the files a recipe revision must have under its
// export directory to count as complete.
var RecipeManifest = []string{
	"conanmanifest.txt",
	"conan_export.tgz",
	"conanfile.py",
	"conan_sources.tgz",
}

// BinaryManifest lists the files a binary revision must have to count as
// complete.
var BinaryManifest = []string{
	"conanmanifest.txt",
	"conaninfo.txt",
	"conan_package.tgz",
}

// NextSegment returns the path segment of key immediately below base:
// the substring strictly between base + "/" and the following "/". It is
// empty when key has no further "/" after that position. Assumes key
// begins with base + "/".
func NextSegment(base, key string) string {
	start := len(base) + 1
	if start >= len(key) {
		return ""
	}
	rest := key[start:]
	i := strings.Index(rest, "/")
	if i < 0 {
		return ""
	}
	return rest[:i]
}

// RevisionOf interprets the segment of key below base as a revision
// number. Returns -1 when the segment is empty or not a non-negative
// decimal integer.
func RevisionOf(base, key string) int {
	return parseDecimal(NextSegment(base, key))
}

// parseDecimal parses a non-negative all-digit decimal string, -1 on
// anything else.
func parseDecimal(s string) int {
	if s == "" {
		return -1
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// IndexPath returns the key of the revisions index file under prefix.
func IndexPath(prefix string) string {
	return prefix + "/" + IndexFile
}

// RecipeFile returns the key of a recipe file for the given revision of
// the package coordinate.
func RecipeFile(pkg string, rev int, name string) string {
	return fmt.Sprintf("%s/%d/export/%s", pkg, rev, name)
}

// PackageDir returns the key prefix holding the binary packages of a
// recipe revision.
func PackageDir(pkg string, rev int) string {
	return fmt.Sprintf("%s/%d/package", pkg, rev)
}

// BinaryRoot returns the key prefix of one binary package: the hash
// directory under a recipe revision.
func BinaryRoot(pkg string, rev int, hash string) string {
	return fmt.Sprintf("%s/%d/package/%s", pkg, rev, hash)
}

// BinaryFile returns the key of a binary file for revision rev below the
// binary package root.
func BinaryFile(root string, rev int, name string) string {
	return fmt.Sprintf("%s/%d/%s", root, rev, name)
}

// CoordinateOf derives the package coordinate from a recipe-file key:
// the prefix up to "/0/export/", or up to the "/_/_" token when that
// appears earlier. Empty when the key is not a recipe file.
func CoordinateOf(key string) string {
	exp := strings.Index(key, "/0/export/")
	if exp < 0 {
		return ""
	}
	if us := strings.Index(key, "/_/_"); us >= 0 && us+len("/_/_") <= exp {
		return key[:us+len("/_/_")]
	}
	return key[:exp]
}
