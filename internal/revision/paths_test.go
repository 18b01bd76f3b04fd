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

import "testing"

func TestNextSegment(t *testing.T) {
	tests := []struct {
		name string
		base string
		key  string
		want string
	}{
		{"segment below base", "pkg", "pkg/x/y", "x"},
		{"no further separator", "pkg", "pkg/x", ""},
		{"key equals base plus slash", "pkg", "pkg/", ""},
		{"deep key", "a/b", "a/b/7/export/conanfile.py", "7"},
		{"hash segment", "p/0/package", "p/0/package/6af9cc7cb931c5ad942174fd7838eb655717c709/0/conaninfo.txt", "6af9cc7cb931c5ad942174fd7838eb655717c709"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextSegment(tt.base, tt.key); got != tt.want {
				t.Fatalf("NextSegment(%q, %q) = %q, want %q", tt.base, tt.key, got, tt.want)
			}
		})
	}
}

func TestRevisionOf(t *testing.T) {
	tests := []struct {
		name string
		base string
		key  string
		want int
	}{
		{"numeric segment", "pkg", "pkg/3/export/conanfile.py", 3},
		{"zero", "pkg", "pkg/0/export/conanfile.py", 0},
		{"multi digit", "pkg", "pkg/42/export/x", 42},
		{"non numeric", "pkg", "pkg/abc/export/x", -1},
		{"signed is rejected", "pkg", "pkg/+5/export/x", -1},
		{"empty segment", "pkg", "pkg/revisions.txt", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RevisionOf(tt.base, tt.key); got != tt.want {
				t.Fatalf("RevisionOf(%q, %q) = %d, want %d", tt.base, tt.key, got, tt.want)
			}
		})
	}
}

func TestPathBuilders(t *testing.T) {
	pkg := "zlib/1.2.11/_/_"

	if got, want := IndexPath(pkg), "zlib/1.2.11/_/_/revisions.txt"; got != want {
		t.Fatalf("IndexPath = %q, want %q", got, want)
	}
	if got, want := RecipeFile(pkg, 0, "conanfile.py"), "zlib/1.2.11/_/_/0/export/conanfile.py"; got != want {
		t.Fatalf("RecipeFile = %q, want %q", got, want)
	}
	if got, want := PackageDir(pkg, 2), "zlib/1.2.11/_/_/2/package"; got != want {
		t.Fatalf("PackageDir = %q, want %q", got, want)
	}

	root := BinaryRoot(pkg, 0, "6af9cc7cb931c5ad942174fd7838eb655717c709")
	if want := "zlib/1.2.11/_/_/0/package/6af9cc7cb931c5ad942174fd7838eb655717c709"; root != want {
		t.Fatalf("BinaryRoot = %q, want %q", root, want)
	}
	if got, want := BinaryFile(root, 1, "conaninfo.txt"), root+"/1/conaninfo.txt"; got != want {
		t.Fatalf("BinaryFile = %q, want %q", got, want)
	}
}

func TestCoordinateOf(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"underscore coordinate", "zlib/1.2.11/_/_/0/export/conanfile.py", "zlib/1.2.11/_/_"},
		{"named user and channel", "boost/1.70/conan/stable/0/export/conanfile.py", "boost/1.70/conan/stable"},
		{"not a recipe file", "zlib/1.2.11/_/_/revisions.txt", ""},
		{"binary file", "zlib/1.2.11/_/_/0/package/abc/0/conaninfo.txt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoordinateOf(tt.key); got != tt.want {
				t.Fatalf("CoordinateOf(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
