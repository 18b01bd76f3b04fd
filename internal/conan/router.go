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
	"net/http"
	"regexp"
	"time"

	"reef/internal/metrics"
)

// Router dispatches the Conan v1 API routes.
type Router struct {
	handler       *Handler
	authenticator *Authenticator

	// Compiled regex patterns for route matching
	binaryDownloadPattern *regexp.Regexp
	binaryInfoPattern     *regexp.Regexp
	recipeDownloadPattern *regexp.Regexp
	binarySearchPattern   *regexp.Regexp
	reindexPattern        *regexp.Regexp
}

// NewRouter creates a Conan v1 API router without authentication.
func NewRouter(handler *Handler) *Router {
	return &Router{
		handler:               handler,
		authenticator:         nil,
		binaryDownloadPattern: regexp.MustCompile(`^/v1/conans/(.+)/packages/([0-9a-f]{40})/download_urls$`),
		binaryInfoPattern:     regexp.MustCompile(`^/v1/conans/(.+)/packages/([0-9a-f]{40})$`),
		recipeDownloadPattern: regexp.MustCompile(`^/v1/conans/(.+)/download_urls$`),
		binarySearchPattern:   regexp.MustCompile(`^/v1/conans/(.+)/search$`),
		reindexPattern:        regexp.MustCompile(`^/v1/admin/reindex/(.+)$`),
	}
}

// SetAuthenticator guards the admin routes with an authenticator.
func (rt *Router) SetAuthenticator(authenticator *Authenticator) {
	rt.authenticator = authenticator
}

// ServeHTTP implements http.Handler for the Conan v1 API.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	endpoint := rt.route(rec, r)

	metrics.ObserveRequest(endpoint, rec.status, time.Since(start))
}

// route dispatches the request and returns the endpoint label it matched.
func (rt *Router) route(w http.ResponseWriter, r *http.Request) string {
	path := r.URL.Path

	if path == "/v1/ping" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return metrics.EndpointPing
		}
		rt.handler.PingHandler(w, r)
		return metrics.EndpointPing
	}

	if path == "/v1/search" {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return metrics.EndpointRecipeSearch
		}
		rt.handler.RecipeSearch(w, r)
		return metrics.EndpointRecipeSearch
	}

	if matches := rt.binaryDownloadPattern.FindStringSubmatch(path); matches != nil {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return metrics.EndpointBinaryDownload
		}
		rt.handler.BinaryDownloadURLs(w, r, matches[1], matches[2])
		return metrics.EndpointBinaryDownload
	}

	if matches := rt.binaryInfoPattern.FindStringSubmatch(path); matches != nil {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return metrics.EndpointBinaryInfo
		}
		rt.handler.BinaryInfo(w, r, matches[1], matches[2])
		return metrics.EndpointBinaryInfo
	}

	if matches := rt.binarySearchPattern.FindStringSubmatch(path); matches != nil {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return metrics.EndpointBinarySearch
		}
		rt.handler.BinarySearch(w, r, matches[1])
		return metrics.EndpointBinarySearch
	}

	if matches := rt.recipeDownloadPattern.FindStringSubmatch(path); matches != nil {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return metrics.EndpointRecipeDownload
		}
		rt.handler.RecipeDownloadURLs(w, r, matches[1])
		return metrics.EndpointRecipeDownload
	}

	if matches := rt.reindexPattern.FindStringSubmatch(path); matches != nil {
		pkg := matches[1]
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			rt.handler.Reindex(w, r, pkg)
		})
		if rt.authenticator != nil {
			rt.authenticator.Middleware(next).ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
		return metrics.EndpointReindex
	}

	writeNotFound(w, r)
	return metrics.EndpointUnknown
}

// statusRecorder captures the status code written to the response.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
