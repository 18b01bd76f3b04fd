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

package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu  sync.RWMutex
	reg *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rebuildDuration     prometheus.Histogram
	rebuildTotal        prometheus.Counter
)

// Endpoint labels for HTTP observations.
const (
	EndpointPing           = "ping"
	EndpointRecipeDownload = "recipe.download_urls"
	EndpointBinaryDownload = "binary.download_urls"
	EndpointBinaryInfo     = "binary.info"
	EndpointBinarySearch   = "binary.search"
	EndpointRecipeSearch   = "recipe.search"
	EndpointReindex        = "admin.reindex"
	EndpointUnknown        = "unknown"
)

func init() {
	resetLocked()
}

// Reset clears and reinitializes all metrics collectors.
// Primarily used by tests to ensure clean state.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resetLocked()
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
func Handler() http.Handler {
	mu.RLock()
	registry := reg
	mu.RUnlock()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed HTTP request against an endpoint.
func ObserveRequest(endpoint string, code int, duration time.Duration) {
	if endpoint == "" {
		endpoint = EndpointUnknown
	}

	mu.RLock()
	defer mu.RUnlock()
	if httpRequests != nil {
		httpRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
	if httpRequestDuration != nil {
		httpRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// ObserveRebuild records one revisions-index rebuild.
func ObserveRebuild(duration time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if rebuildTotal != nil {
		rebuildTotal.Inc()
	}
	if rebuildDuration != nil {
		rebuildDuration.Observe(duration.Seconds())
	}
}

func resetLocked() {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reef",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests grouped by endpoint and status code.",
	}, []string{"endpoint", "code"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reef",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests by endpoint.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	rebuilds := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reef",
		Subsystem: "index",
		Name:      "rebuilds_total",
		Help:      "Total revisions-index rebuilds.",
	})

	rebuildSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reef",
		Subsystem: "index",
		Name:      "rebuild_duration_seconds",
		Help:      "Duration of revisions-index rebuilds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	registry.MustRegister(requests, requestDuration, rebuilds, rebuildSeconds)

	reg = registry
	httpRequests = requests
	httpRequestDuration = requestDuration
	rebuildTotal = rebuilds
	rebuildDuration = rebuildSeconds
}
