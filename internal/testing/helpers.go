// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/PyRo1121/omg-sub003/internal/backend"
	"github.com/PyRo1121/omg-sub003/internal/index"
	"github.com/PyRo1121/omg-sub003/internal/model"
	"github.com/PyRo1121/omg-sub003/internal/store"
)

// SetupTestStore creates a bbolt-backed Store rooted in a temp directory.
// The store is closed automatically when the test finishes.
//
// Example:
//
//	s := testing.SetupTestStore(t)
//	require.NoError(t, s.SaveStatus(status))
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "omg.bbolt"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Logf("failed to close test store: %v", err)
		}
	})
	return s
}

// SamplePackages returns a small, deterministic package set covering an
// explicit app, an implicit dependency, and a package with a description
// exercising the fuzzy-match scorer's word-start/prefix bonuses.
func SamplePackages() []model.DetailedPackageInfo {
	return []model.DetailedPackageInfo{
		{Name: "firefox", Version: "128.0", Description: "Fast, private web browser", Repo: "extra"},
		{Name: "firefox-developer-edition", Version: "129.0b1", Description: "Browser for web developers", Repo: "aur"},
		{Name: "glibc", Version: "2.39", Description: "GNU C library", Repo: "core"},
		{Name: "vim", Version: "9.1", Description: "Vi Improved, a highly configurable text editor", Repo: "extra"},
	}
}

// SeededBackend returns a FakeBackend preloaded with pkgs, marking the
// first package explicit and the rest implicit dependencies — a realistic
// shape for exercising ListExplicit/CountStatus.
func SeededBackend(t *testing.T, pkgs []model.DetailedPackageInfo) *backend.FakeBackend {
	t.Helper()

	fb := backend.NewFakeBackend()
	for i, p := range pkgs {
		fb.Seed(p, i == 0)
	}
	return fb
}

// SetupTestIndex builds and publishes a package index over fb's current
// package set, as the worker's refresh loop would.
func SetupTestIndex(t *testing.T, fb *backend.FakeBackend) *index.Handle {
	t.Helper()

	all, err := fb.EnumerateAll(t.Context())
	if err != nil {
		t.Fatalf("failed to enumerate fake backend: %v", err)
	}
	packages := make(map[string]model.DetailedPackageInfo, len(all))
	for _, p := range all {
		packages[p.Name] = p
	}

	h := &index.Handle{}
	h.Store(index.Build(packages, time.Now()))
	return h
}
