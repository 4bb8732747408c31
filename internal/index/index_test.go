// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"testing"
	"time"

	"github.com/PyRo1121/omg-sub003/internal/model"
	"github.com/stretchr/testify/require"
)

func sample() map[string]model.DetailedPackageInfo {
	return map[string]model.DetailedPackageInfo{
		"firefox":        {Name: "firefox", Version: "128.0", Description: "web browser"},
		"firefox-esr":    {Name: "firefox-esr", Version: "115.0", Description: "extended support browser"},
		"vim":            {Name: "vim", Version: "9.1", Description: "text editor"},
		"neovim":         {Name: "neovim", Version: "0.10", Description: "vim fork text editor"},
		"chromium":       {Name: "chromium", Version: "126.0", Description: "web browser"},
	}
}

func TestBuildPublishesByNameForEveryItem(t *testing.T) {
	idx := Build(sample(), time.Now())
	for name := range sample() {
		_, ok := idx.Get(name)
		require.True(t, ok, "missing %s", name)
	}
}

func TestSearchEmptyQueryReturnsEmptyNotNilError(t *testing.T) {
	idx := Build(sample(), time.Now())
	got := idx.Search("", 10)
	require.Empty(t, got)
}

func TestSearchOneCharUsesPrefixFastPath(t *testing.T) {
	idx := Build(sample(), time.Now())
	got := idx.Search("v", 10)
	names := namesOf(got)
	require.Contains(t, names, "vim")
}

func TestSearchThreeCharNeverUsesPrefixPath(t *testing.T) {
	idx := Build(sample(), time.Now())
	// "fir" is a 3-char query; it must still find firefox via fuzzy scoring,
	// exercising the non-prefix path rather than a literal prefix-table hit.
	got := idx.Search("fir", 10)
	names := namesOf(got)
	require.Contains(t, names, "firefox")
}

func TestSearchFuzzySubsequenceMatch(t *testing.T) {
	idx := Build(sample(), time.Now())
	got := idx.Search("fox", 10)
	names := namesOf(got)
	require.Contains(t, names, "firefox")
}

func TestSearchNoMatchReturnsEmpty(t *testing.T) {
	idx := Build(sample(), time.Now())
	got := idx.Search("zzzznomatch", 10)
	require.Empty(t, got)
}

func TestSearchRanksWordStartHigherThanMidword(t *testing.T) {
	idx := Build(map[string]model.DetailedPackageInfo{
		"vim-plugin-manager": {Name: "vim-plugin-manager", Description: "manager"},
		"xvimx":              {Name: "xvimx", Description: "unrelated"},
	}, time.Now())
	got := idx.Search("vim", 10)
	require.NotEmpty(t, got)
	require.Equal(t, "vim-plugin-manager", got[0].Name)
}

func TestSuggestDeduplicatesNames(t *testing.T) {
	idx := Build(sample(), time.Now())
	names := idx.Suggest("fire", 10)
	seen := make(map[string]int)
	for _, n := range names {
		seen[n]++
	}
	for n, count := range seen {
		require.Equal(t, 1, count, "name %s appeared more than once", n)
	}
}

func TestGetMissingPackageReturnsFalse(t *testing.T) {
	idx := Build(sample(), time.Now())
	_, ok := idx.Get("definitely-not-a-package")
	require.False(t, ok)
}

func TestSourceMtimePreserved(t *testing.T) {
	mtime := time.Now().Add(-time.Hour)
	idx := Build(sample(), mtime)
	require.True(t, mtime.Equal(idx.SourceMtime()))
}

func TestHandlePublishIsAtomicSwap(t *testing.T) {
	var h Handle
	require.Nil(t, h.Load())

	first := Build(sample(), time.Now())
	h.Store(first)
	require.Same(t, first, h.Load())

	second := Build(map[string]model.DetailedPackageInfo{"only": {Name: "only"}}, time.Now())
	h.Store(second)
	require.Same(t, second, h.Load())
}

func namesOf(packages []model.PackageInfo) []string {
	out := make([]string, 0, len(packages))
	for _, p := range packages {
		out = append(out, p.Name)
	}
	return out
}
