// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package worker implements the C8 background refresh loop (spec.md §4.8):
// on a fixed interval it recomputes system status from the backend adapter,
// publishes it to the L1 cache, L2 store, and fast-status file, and rebuilds
// the package index when the backend's source data has changed. A failure
// in any one step is logged and the loop continues — the daemon never dies
// because a refresh tick failed.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PyRo1121/omg-sub003/internal/backend"
	"github.com/PyRo1121/omg-sub003/internal/cache"
	"github.com/PyRo1121/omg-sub003/internal/faststatus"
	"github.com/PyRo1121/omg-sub003/internal/index"
	"github.com/PyRo1121/omg-sub003/internal/metrics"
	"github.com/PyRo1121/omg-sub003/internal/model"
	"github.com/PyRo1121/omg-sub003/internal/security"
	"github.com/PyRo1121/omg-sub003/internal/store"
)

// DefaultInterval is the refresh period when Config.Interval is zero (spec.md §6).
const DefaultInterval = 300 * time.Second

// DefaultScanTimeout bounds how long one tick waits for security scans
// before falling back to the previous vulnerability count.
const DefaultScanTimeout = 20 * time.Second

// Config wires the collaborators the refresh loop needs. All fields are
// shared with the dispatcher; the worker holds no state the dispatcher
// can't also see.
type Config struct {
	Backend      backend.Backend
	Cache        *cache.Cache
	Store        *store.Store
	Index        *index.Handle
	Scanner      security.Scanner
	VulnCount    *atomic.Uint32
	FastStatusPath string
	Interval     time.Duration
	ScanTimeout  time.Duration
	Logger       *slog.Logger

	// LastSourceMtime seeds Worker.lastMtime from an index already loaded
	// from L2 at startup, so the first tick doesn't mistake a fresh process
	// for a stale index and re-enumerate the backend from scratch (spec.md
	// §8 scenario 6: restart loads the index from L2 without enumerating).
	LastSourceMtime int64
}

// Worker runs the refresh loop. One Worker is started per daemon instance.
type Worker struct {
	cfg       Config
	lastMtime int64
}

// New constructs a Worker, filling in defaults for zero-valued Config fields.
func New(cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = DefaultScanTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{cfg: cfg, lastMtime: cfg.LastSourceMtime}
}

// Run blocks, ticking every cfg.Interval until ctx is cancelled. It runs one
// refresh immediately on entry so status is populated before the first tick.
func (w *Worker) Run(ctx context.Context) {
	w.tick(ctx)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if w.cfg.Backend == nil {
		return
	}

	timer := prometheus.NewTimer(metrics.Default().WorkerTickDur)
	defer func() {
		timer.ObserveDuration()
		metrics.Default().WorkerTicks.Inc()
	}()

	if err := w.refreshIndexIfStale(ctx); err != nil {
		w.cfg.Logger.Warn("worker.index.refresh_error", "error", err)
	}

	status, err := w.computeStatus(ctx)
	if err != nil {
		w.cfg.Logger.Warn("worker.status.compute_error", "error", err)
		return
	}

	if w.cfg.Cache != nil {
		w.cfg.Cache.Set(cache.NamespaceStatus, cache.Key(cache.NamespaceStatus, "current"), status)
	}
	if w.cfg.Store != nil {
		if err := w.cfg.Store.SaveStatus(status); err != nil {
			w.cfg.Logger.Warn("worker.status.store_error", "error", err)
		}
	}
	if w.cfg.FastStatusPath != "" {
		record := faststatus.Record{
			TotalPackages:    status.TotalPackages,
			ExplicitPackages: status.ExplicitPackages,
			OrphanPackages:   status.OrphanPackages,
			UpdatesAvailable: status.UpdatesAvailable,
			Timestamp:        time.Now(),
		}
		if err := faststatus.Write(w.cfg.FastStatusPath, record); err != nil {
			w.cfg.Logger.Warn("worker.faststatus.write_error", "error", err)
		}
	}
}

func (w *Worker) computeStatus(ctx context.Context) (model.StatusResult, error) {
	counts, err := w.cfg.Backend.CountStatus(ctx)
	if err != nil {
		return model.StatusResult{}, err
	}
	runtimes, err := w.cfg.Backend.ProbeRuntimes(ctx)
	if err != nil {
		return model.StatusResult{}, err
	}

	vulnCount := w.refreshVulnCount(ctx)

	return model.StatusResult{
		TotalPackages:           counts.Total,
		ExplicitPackages:        counts.Explicit,
		OrphanPackages:          counts.Orphan,
		UpdatesAvailable:        counts.Updates,
		SecurityVulnerabilities: vulnCount,
		RuntimeVersions:         runtimes,
	}, nil
}

// refreshVulnCount re-scans the explicitly-installed set with a bounded
// timeout, falling back to the previously published count (spec.md §4.8)
// on timeout or scanner failure rather than reporting a misleading zero.
func (w *Worker) refreshVulnCount(ctx context.Context) uint32 {
	previous := uint32(0)
	if w.cfg.VulnCount != nil {
		previous = w.cfg.VulnCount.Load()
	}
	if w.cfg.Scanner == nil {
		return previous
	}

	names, err := w.cfg.Backend.ListExplicit(ctx)
	if err != nil {
		w.cfg.Logger.Warn("worker.security.list_explicit_error", "error", err)
		return previous
	}

	scanCtx, cancel := context.WithTimeout(ctx, w.cfg.ScanTimeout)
	defer cancel()

	type result struct {
		count uint32
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var severities []security.Severity
		for _, name := range names {
			sev, err := w.cfg.Scanner.ScanPackage(scanCtx, name, "")
			if err != nil {
				done <- result{err: err}
				return
			}
			severities = append(severities, sev)
		}
		done <- result{count: security.TotalVulnerable(severities)}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return previous
		}
		if w.cfg.VulnCount != nil {
			w.cfg.VulnCount.Store(r.count)
		}
		return r.count
	case <-scanCtx.Done():
		w.cfg.Logger.Warn("worker.security.scan_timeout")
		return previous
	}
}

// refreshIndexIfStale rebuilds the package index when the backend's source
// data has changed since the last successful build, publishing the new
// index atomically via Handle.Store (spec.md §4.5).
func (w *Worker) refreshIndexIfStale(ctx context.Context) error {
	if w.cfg.Index == nil {
		return nil
	}
	mtime, err := w.cfg.Backend.SourceMtime(ctx)
	if err != nil {
		return err
	}
	if mtime != 0 && mtime <= w.lastMtime {
		return nil
	}

	rebuildTimer := prometheus.NewTimer(metrics.Default().IndexRebuildDur)
	defer rebuildTimer.ObserveDuration()

	all, err := w.cfg.Backend.EnumerateAll(ctx)
	if err != nil {
		return err
	}
	packages := make(map[string]model.DetailedPackageInfo, len(all))
	for _, info := range all {
		packages[info.Name] = info
	}

	idx := index.Build(packages, time.Unix(mtime, 0))
	w.cfg.Index.Store(idx)
	if w.cfg.Store != nil {
		snap := store.IndexSnapshot{SourceMtime: time.Unix(mtime, 0), Packages: packages}
		if err := w.cfg.Store.SaveIndexSnapshot(snap); err != nil {
			w.cfg.Logger.Warn("worker.index.store_error", "error", err)
		}
	}
	w.lastMtime = mtime
	metrics.Default().IndexRebuilds.Inc()
	return nil
}
