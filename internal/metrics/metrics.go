// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes omgd's Prometheus counters/histograms (spec.md
// §4.8/§6's ambient observability) via promhttp.Handler bound to a second,
// local-only Unix socket (<rundir>/omg-metrics.sock). Never a network
// listener, so it doesn't reopen spec.md §1's "no remote access" non-goal.
package metrics

import (
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/histogram the daemon records.
type Metrics struct {
	once sync.Once

	RequestsTotal   *prometheus.CounterVec
	RequestErrors   *prometheus.CounterVec
	CacheHitsTotal  *prometheus.CounterVec
	CacheMissTotal  *prometheus.CounterVec
	IndexRebuilds   prometheus.Counter
	IndexRebuildDur prometheus.Histogram
	WorkerTicks     prometheus.Counter
	WorkerTickDur   prometheus.Histogram
}

var shared Metrics

// Default returns the process-wide Metrics instance, registering it with
// the default Prometheus registry on first call.
func Default() *Metrics {
	shared.init()
	return &shared
}

func (m *Metrics) init() {
	m.once.Do(func() {
		m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omgd_requests_total", Help: "Requests processed, by method.",
		}, []string{"method"})
		m.RequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omgd_request_errors_total", Help: "Error responses returned, by method and wire code.",
		}, []string{"method", "code"})
		m.CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omgd_cache_hits_total", Help: "L1 cache hits, by namespace.",
		}, []string{"namespace"})
		m.CacheMissTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omgd_cache_misses_total", Help: "L1 cache misses, by namespace.",
		}, []string{"namespace"})
		m.IndexRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omgd_index_rebuilds_total", Help: "Package index rebuilds triggered by the worker.",
		})
		m.IndexRebuildDur = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "omgd_index_rebuild_seconds", Help: "Package index rebuild duration.",
			Buckets: prometheus.DefBuckets,
		})
		m.WorkerTicks = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omgd_worker_ticks_total", Help: "Background worker refresh ticks completed.",
		})
		m.WorkerTickDur = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "omgd_worker_tick_seconds", Help: "Background worker refresh tick duration.",
			Buckets: prometheus.DefBuckets,
		})

		prometheus.MustRegister(
			m.RequestsTotal, m.RequestErrors,
			m.CacheHitsTotal, m.CacheMissTotal,
			m.IndexRebuilds, m.IndexRebuildDur,
			m.WorkerTicks, m.WorkerTickDur,
		)
	})
}

// Serve accepts connections on ln and serves /metrics until ln is closed.
// Intended to be run in its own goroutine, bound to a Unix socket — not a
// TCP listener — so the exporter stays local to the machine (spec.md §6).
func Serve(ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.Serve(ln, mux)
}
