// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PyRo1121/omg-sub003/internal/model"
)

// FakeBackend is an in-memory Backend used by dispatcher/worker/index
// tests and by the "fake" variant for local development without a real
// package database (spec.md §9's MockProvider-equivalent).
type FakeBackend struct {
	mu        sync.RWMutex
	packages  map[string]model.DetailedPackageInfo
	explicit  map[string]bool
	runtimes  []model.RuntimeVersion
	mtime     time.Time
	updates   uint32
	orphans   uint32
}

// NewFakeBackend returns an empty FakeBackend; call Seed to populate it.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		packages: make(map[string]model.DetailedPackageInfo),
		explicit: make(map[string]bool),
		mtime:    time.Now(),
	}
}

func (f *FakeBackend) Name() string { return "fake" }

// Seed installs a package record. explicit marks it as user-installed
// rather than a dependency.
func (f *FakeBackend) Seed(info model.DetailedPackageInfo, explicit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[info.Name] = info
	f.explicit[info.Name] = explicit
	// SourceMtime reports whole seconds, so each Seed moves the mtime
	// forward by at least one second.
	next := time.Now()
	if next.Unix() <= f.mtime.Unix() {
		next = f.mtime.Add(time.Second)
	}
	f.mtime = next
}

// SetRuntimes overrides ProbeRuntimes' return value for deterministic tests.
func (f *FakeBackend) SetRuntimes(runtimes []model.RuntimeVersion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runtimes = runtimes
}

// SetUpdatesAvailable overrides CountStatus's updates field.
func (f *FakeBackend) SetUpdatesAvailable(n uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = n
}

func (f *FakeBackend) EnumerateAll(ctx context.Context) ([]model.DetailedPackageInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.DetailedPackageInfo, 0, len(f.packages))
	for _, p := range f.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeBackend) GetOne(ctx context.Context, name string) (model.DetailedPackageInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.packages[name]
	if !ok {
		return model.DetailedPackageInfo{}, ErrPackageNotFound
	}
	return p, nil
}

func (f *FakeBackend) ListExplicit(ctx context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for name, explicit := range f.explicit {
		if explicit {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *FakeBackend) CountStatus(ctx context.Context) (StatusCounts, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	counts := StatusCounts{Total: uint32(len(f.packages)), Orphan: f.orphans, Updates: f.updates}
	for _, explicit := range f.explicit {
		if explicit {
			counts.Explicit++
		}
	}
	return counts, nil
}

func (f *FakeBackend) ProbeRuntimes(ctx context.Context) ([]model.RuntimeVersion, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.runtimes, nil
}

func (f *FakeBackend) SourceMtime(ctx context.Context) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mtime.Unix(), nil
}
