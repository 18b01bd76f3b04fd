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

package conan

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strings"

	"reef/internal/lock"
	"reef/internal/revision"
	"reef/internal/storage"
)

// pinnedRevision is the revision subdirectory the Conan v1 path layout
// addresses implicitly.
const pinnedRevision = 0

// Handler implements the Conan v1 read endpoints.
type Handler struct {
	store       storage.Storage
	locks       lock.Locker
	concurrency int
}

// NewHandler creates the endpoint handler.
func NewHandler(store storage.Storage, locks lock.Locker, concurrency int) *Handler {
	return &Handler{
		store:       store,
		locks:       locks,
		concurrency: concurrency,
	}
}

// PingHandler handles GET /v1/ping - client capability probe.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Conan-Server-Capabilities", "complex_search")
	w.WriteHeader(http.StatusNoContent)
}

// RecipeDownloadURLs handles GET /v1/conans/<pkg>/download_urls.
// One URL per recipe manifest file present in the store.
func (h *Handler) RecipeDownloadURLs(w http.ResponseWriter, r *http.Request, pkg string) {
	urls := make(map[string]string)
	for _, name := range revision.RecipeManifest {
		key := revision.RecipeFile(pkg, pinnedRevision, name)
		present, err := h.store.Exists(r.Context(), key)
		if err != nil {
			writeStoreError(w, "recipe download_urls", err)
			return
		}
		if present {
			urls[name] = downloadURL(r.Host, key)
		}
	}

	if len(urls) == 0 {
		writeNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, urls)
}

// BinaryDownloadURLs handles
// GET /v1/conans/<pkg>/packages/<hash>/download_urls.
func (h *Handler) BinaryDownloadURLs(w http.ResponseWriter, r *http.Request, pkg, hash string) {
	root := revision.BinaryRoot(pkg, pinnedRevision, hash)
	urls := make(map[string]string)
	for _, name := range revision.BinaryManifest {
		key := revision.BinaryFile(root, pinnedRevision, name)
		present, err := h.store.Exists(r.Context(), key)
		if err != nil {
			writeStoreError(w, "binary download_urls", err)
			return
		}
		if present {
			urls[name] = downloadURL(r.Host, key)
		}
	}

	if len(urls) == 0 {
		writeNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, urls)
}

// BinaryInfo handles GET /v1/conans/<pkg>/packages/<hash>: the MD5 of
// every binary manifest file present. The digest is rendered as an
// unsigned big-integer in hex, without leading-zero padding; Conan
// clients tolerate the short form and it is preserved for
// compatibility.
func (h *Handler) BinaryInfo(w http.ResponseWriter, r *http.Request, pkg, hash string) {
	root := revision.BinaryRoot(pkg, pinnedRevision, hash)
	digests := make(map[string]string)
	for _, name := range revision.BinaryManifest {
		key := revision.BinaryFile(root, pinnedRevision, name)
		present, err := h.store.Exists(r.Context(), key)
		if err != nil {
			writeStoreError(w, "binary info", err)
			return
		}
		if !present {
			continue
		}
		data, err := h.store.Value(r.Context(), key)
		if err != nil {
			writeStoreError(w, "binary info", err)
			return
		}
		sum := md5.Sum(data)
		digests[name] = new(big.Int).SetBytes(sum[:]).Text(16)
	}

	if len(digests) == 0 {
		writeNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, digests)
}

// BinarySearch handles GET /v1/conans/<pkg>/search: the parsed
// conaninfo.txt of the first binary package below the pinned revision.
func (h *Handler) BinarySearch(w http.ResponseWriter, r *http.Request, pkg string) {
	prefix := revision.PackageDir(pkg, pinnedRevision)
	keys, err := h.store.List(r.Context(), prefix)
	if err != nil {
		writeStoreError(w, "binary search", err)
		return
	}
	sort.Strings(keys)

	infoKey := ""
	for _, key := range keys {
		if strings.HasSuffix(key, "conaninfo.txt") {
			infoKey = key
			break
		}
	}
	if infoKey == "" {
		writeText(w, http.StatusOK, fmt.Sprintf("Package binaries not found: %s", pkg))
		return
	}

	data, err := h.store.Value(r.Context(), infoKey)
	if err != nil {
		writeStoreError(w, "binary search", err)
		return
	}
	info, err := ParseInfo(data)
	if err != nil {
		slog.Error("Unparseable conaninfo", "key", infoKey, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	entry := make(map[string]any, len(info.Sections)+1)
	for name, section := range info.Sections {
		entry[name] = section
	}
	entry[recipeHashSection] = info.RecipeHash

	hash := revision.NextSegment(prefix, infoKey)
	writeJSON(w, http.StatusOK, map[string]any{hash: entry})
}

// RecipeSearch handles GET /v1/search?q=: every package coordinate in
// the store whose name contains the query as substring.
func (h *Handler) RecipeSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	keys, err := h.store.List(r.Context(), "")
	if err != nil {
		writeStoreError(w, "recipe search", err)
		return
	}

	seen := make(map[string]bool)
	results := []string{}
	for _, key := range keys {
		coord := revision.CoordinateOf(key)
		if coord == "" || seen[coord] {
			continue
		}
		seen[coord] = true
		if strings.Contains(coord, query) {
			results = append(results, coord)
		}
	}
	sort.Strings(results)

	writeJSON(w, http.StatusOK, map[string][]string{"results": results})
}

// Reindex handles POST /v1/admin/reindex/<pkg>: a full index update of
// one package coordinate.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request, pkg string) {
	pi := revision.NewPackageIndex(h.store, h.locks, pkg, h.concurrency)
	revs, err := pi.FullIndexUpdate(r.Context())
	if err != nil {
		slog.Error("Full index update failed", "package", pkg, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int{"recipe_revisions": revs})
}

// downloadURL builds the client-facing URL of a stored object.
func downloadURL(host, key string) string {
	return "http://" + host + "/" + key
}

// writeJSON writes a JSON response with standard headers applied.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Warn("Failed to write JSON response body", "error", err)
	}
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Warn("Failed to write text response body", "error", err)
	}
}

// writeNotFound writes the 404 shape the Conan client expects.
func writeNotFound(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusNotFound, fmt.Sprintf("URI %s not found.", r.URL.Path))
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	slog.Error("Store operation failed", "op", op, "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
