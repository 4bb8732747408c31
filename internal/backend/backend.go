// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend implements the C6 backend adapter (spec.md §4.6): a
// capability set over distro package databases and language runtime
// version managers, with variant selection performed once at construction
// time based on which distro signature is present on the host. Callers
// downstream of New never know which concrete variant they're talking to.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/PyRo1121/omg-sub003/internal/model"
)

// ErrPackageNotFound is returned by GetOne when name isn't in the backend's
// database (spec.md §4.6 → errors.CodePackageNotFound at the dispatcher).
var ErrPackageNotFound = errors.New("backend: package not found")

// StatusCounts is the count_status() tuple (spec.md §4.6).
type StatusCounts struct {
	Total   uint32
	Explicit uint32
	Orphan  uint32
	Updates uint32
}

// Backend is the capability set every distro/variant implements (spec.md
// §4.6). Implementations that wrap a non-thread-safe library should use
// WithAffinity rather than exposing their handle directly.
type Backend interface {
	// Name identifies the active variant: "arch" or "fake".
	Name() string

	// EnumerateAll returns every known package. May take hundreds of
	// milliseconds on a large local database; callers use it only for
	// index (re)builds, not per-request.
	EnumerateAll(ctx context.Context) ([]model.DetailedPackageInfo, error)

	// GetOne returns a single package's full record, or ErrPackageNotFound.
	GetOne(ctx context.Context, name string) (model.DetailedPackageInfo, error)

	// ListExplicit returns the names of explicitly (not dependency-)
	// installed packages.
	ListExplicit(ctx context.Context) ([]string, error)

	// CountStatus returns the aggregate counts behind StatusResult.
	CountStatus(ctx context.Context) (StatusCounts, error)

	// ProbeRuntimes returns (runtime, active_version) pairs for every
	// runtime version manager found on the host, skipping absent ones.
	ProbeRuntimes(ctx context.Context) ([]model.RuntimeVersion, error)

	// SourceMtime reports the on-disk mtime of the package database this
	// backend reads, used by the index builder's validity check (spec.md
	// §4.3/§4.5). A zero time means "always rebuild".
	SourceMtime(ctx context.Context) (int64, error)
}

// Config selects and configures a backend variant.
type Config struct {
	// Variant forces a specific backend ("arch" or "fake"). Empty means
	// auto-detect from the host's distro signature. A dpkg host is detected
	// as "debian", but there is no Debian backend, so New returns an error
	// for it.
	Variant string

	// PacmanLocalDir overrides the pacman local database path (tests).
	PacmanLocalDir string

	// RuntimeProbe overrides how version managers are probed (tests).
	RuntimeProbe RuntimeProber
}

// New selects and constructs the Backend appropriate for this host,
// mirroring the switch-based variant dispatch a multi-provider adapter
// uses to pick its concrete implementation at construction time.
func New(cfg Config) (Backend, error) {
	variant := cfg.Variant
	if variant == "" {
		variant = detectVariant()
	}

	switch variant {
	case "arch":
		dir := cfg.PacmanLocalDir
		if dir == "" {
			dir = defaultPacmanLocalDir
		}
		return WithAffinity(newArchBackend(dir, cfg.RuntimeProbe)), nil
	case "fake":
		return NewFakeBackend(), nil
	default:
		return nil, fmt.Errorf("backend: unsupported or undetected variant %q", variant)
	}
}

const defaultPacmanLocalDir = "/var/lib/pacman/local"

// detectVariant inspects well-known distro signature paths to decide which
// backend to construct (spec.md §4.6: "construction selects the one whose
// distro signature is present on the host").
func detectVariant() string {
	if _, err := os.Stat(defaultPacmanLocalDir); err == nil {
		return "arch"
	}
	if _, err := os.Stat("/var/lib/dpkg/status"); err == nil {
		return "debian"
	}
	return ""
}
