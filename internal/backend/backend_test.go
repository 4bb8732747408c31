// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/PyRo1121/omg-sub003/internal/model"
	"github.com/stretchr/testify/require"
)

func TestFakeBackendSeedAndGetOne(t *testing.T) {
	b := NewFakeBackend()
	b.Seed(model.DetailedPackageInfo{Name: "vim", Version: "9.1"}, true)

	got, err := b.GetOne(context.Background(), "vim")
	require.NoError(t, err)
	require.Equal(t, "9.1", got.Version)
}

func TestFakeBackendGetOneMissingReturnsErrPackageNotFound(t *testing.T) {
	b := NewFakeBackend()
	_, err := b.GetOne(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrPackageNotFound)
}

func TestFakeBackendListExplicitOnlyReturnsExplicit(t *testing.T) {
	b := NewFakeBackend()
	b.Seed(model.DetailedPackageInfo{Name: "vim"}, true)
	b.Seed(model.DetailedPackageInfo{Name: "libc"}, false)

	names, err := b.ListExplicit(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"vim"}, names)
}

func TestFakeBackendCountStatus(t *testing.T) {
	b := NewFakeBackend()
	b.Seed(model.DetailedPackageInfo{Name: "vim"}, true)
	b.Seed(model.DetailedPackageInfo{Name: "libc"}, false)
	b.SetUpdatesAvailable(2)

	counts, err := b.CountStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(2), counts.Total)
	require.Equal(t, uint32(1), counts.Explicit)
	require.Equal(t, uint32(2), counts.Updates)
}

func TestAffinityBackendSerializesCalls(t *testing.T) {
	inner := NewFakeBackend()
	inner.Seed(model.DetailedPackageInfo{Name: "vim"}, true)
	wrapped := WithAffinity(inner)

	require.Equal(t, "fake", wrapped.Name())
	got, err := wrapped.GetOne(context.Background(), "vim")
	require.NoError(t, err)
	require.Equal(t, "vim", got.Name)
}

func TestAffinityBackendHonorsContextCancellation(t *testing.T) {
	inner := NewFakeBackend()
	wrapped := WithAffinity(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := wrapped.GetOne(ctx, "vim")
	require.Error(t, err)
}

func writeDesc(t *testing.T, localDir, dirName, content string) {
	t.Helper()
	dir := filepath.Join(localDir, dirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "desc"), []byte(content), 0o644))
}

func TestArchBackendParsesDescFiles(t *testing.T) {
	dir := t.TempDir()
	writeDesc(t, dir, "vim-9.1-1", `%NAME%
vim

%VERSION%
9.1-1

%DESC%
Vi Improved, a highly configurable, improved version of the vi text editor

%URL%
https://www.vim.org

%SIZE%
33554432

%LICENSE%
custom
GPL2

%DEPENDS%
libc.so
glibc

%REASON%
0

`)
	writeDesc(t, dir, "glibc-2.40-1", `%NAME%
glibc

%VERSION%
2.40-1

%DESC%
GNU C Library

%SIZE%
100000

%REASON%
1

`)

	a := newArchBackend(dir, DefaultRuntimeProber())
	ctx := context.Background()

	all, err := a.EnumerateAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	vim, err := a.GetOne(ctx, "vim")
	require.NoError(t, err)
	require.Equal(t, "9.1-1", vim.Version)
	require.Equal(t, uint64(33554432), vim.InstallSize)
	require.Equal(t, []string{"custom", "GPL2"}, vim.Licenses)
	require.Equal(t, []string{"libc.so", "glibc"}, vim.Depends)

	explicit, err := a.ListExplicit(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"vim"}, explicit)

	counts, err := a.CountStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(2), counts.Total)
	require.Equal(t, uint32(1), counts.Explicit)
}

func TestArchBackendGetOneMissingReturnsErrPackageNotFound(t *testing.T) {
	dir := t.TempDir()
	a := newArchBackend(dir, DefaultRuntimeProber())
	_, err := a.GetOne(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrPackageNotFound)
}

func TestArchBackendSourceMtimeTracksDirMtime(t *testing.T) {
	dir := t.TempDir()
	a := newArchBackend(dir, DefaultRuntimeProber())
	mtime, err := a.SourceMtime(context.Background())
	require.NoError(t, err)
	require.Greater(t, mtime, int64(0))
}

func TestNewSelectsFakeVariantExplicitly(t *testing.T) {
	b, err := New(Config{Variant: "fake"})
	require.NoError(t, err)
	require.Equal(t, "fake", b.Name())
}

func TestNewRejectsUnknownVariant(t *testing.T) {
	_, err := New(Config{Variant: "plan9"})
	require.Error(t, err)
}
