// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"

	"github.com/PyRo1121/omg-sub003/internal/model"
)

// affinityBackend confines a non-thread-safe Backend to a single dedicated
// goroutine, exposing a message-passing front so concurrent dispatcher
// handlers never touch the underlying handle directly (spec.md §4.6 /
// §9: "wrap each in an affinity thread with a bounded request/response
// channel rather than a global lock").
type affinityBackend struct {
	inner Backend
	jobs  chan func()
}

// WithAffinity wraps inner so every call it receives runs serialized on one
// dedicated goroutine, regardless of how many goroutines call concurrently.
func WithAffinity(inner Backend) Backend {
	b := &affinityBackend{inner: inner, jobs: make(chan func(), 64)}
	go b.run()
	return b
}

func (b *affinityBackend) run() {
	for job := range b.jobs {
		job()
	}
}

// submit runs fn on the affinity goroutine and blocks for its result,
// honoring ctx cancellation so a handler that gives up releases its slot
// without waiting for a queue backlog to drain (spec.md §9's cooperative
// cancellation note).
func submit[T any](ctx context.Context, b *affinityBackend, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	select {
	case b.jobs <- func() {
		val, err := fn()
		done <- result{val, err}
	}:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (b *affinityBackend) Name() string { return b.inner.Name() }

func (b *affinityBackend) EnumerateAll(ctx context.Context) ([]model.DetailedPackageInfo, error) {
	return submit(ctx, b, func() ([]model.DetailedPackageInfo, error) { return b.inner.EnumerateAll(ctx) })
}

func (b *affinityBackend) GetOne(ctx context.Context, name string) (model.DetailedPackageInfo, error) {
	return submit(ctx, b, func() (model.DetailedPackageInfo, error) { return b.inner.GetOne(ctx, name) })
}

func (b *affinityBackend) ListExplicit(ctx context.Context) ([]string, error) {
	return submit(ctx, b, func() ([]string, error) { return b.inner.ListExplicit(ctx) })
}

func (b *affinityBackend) CountStatus(ctx context.Context) (StatusCounts, error) {
	return submit(ctx, b, func() (StatusCounts, error) { return b.inner.CountStatus(ctx) })
}

func (b *affinityBackend) ProbeRuntimes(ctx context.Context) ([]model.RuntimeVersion, error) {
	return submit(ctx, b, func() ([]model.RuntimeVersion, error) { return b.inner.ProbeRuntimes(ctx) })
}

func (b *affinityBackend) SourceMtime(ctx context.Context) (int64, error) {
	return submit(ctx, b, func() (int64, error) { return b.inner.SourceMtime(ctx) })
}
