// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index implements the C5 package index (spec.md §4.5): a fully
// in-memory, name+description fuzzy-search index published behind an
// atomic pointer so rebuilds never block or tear concurrent readers.
package index

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PyRo1121/omg-sub003/internal/model"
)

// item is one positionally-indexed entry (spec.md §3 PackageIndex.items).
type item struct {
	name         string
	lowerName    string
	descKeywords []string
}

// Index is the immutable, process-wide searchable snapshot (spec.md §3).
// Every field is read-only after construction; rebuilds produce a brand
// new *Index rather than mutating one in place.
type Index struct {
	byName      map[string]model.DetailedPackageInfo
	items       []item
	prefixTable map[string][]int
	sourceMtime time.Time
}

// Build constructs an Index from a flat package map and the backend
// database's mtime, which callers use later to decide whether a persisted
// snapshot is still valid (spec.md §4.3, §4.5).
func Build(packages map[string]model.DetailedPackageInfo, sourceMtime time.Time) *Index {
	idx := &Index{
		byName:      make(map[string]model.DetailedPackageInfo, len(packages)),
		items:       make([]item, 0, len(packages)),
		prefixTable: make(map[string][]int),
		sourceMtime: sourceMtime,
	}

	names := make([]string, 0, len(packages))
	for name := range packages {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic positional order across rebuilds

	for _, name := range names {
		info := packages[name]
		idx.byName[name] = info
		pos := len(idx.items)
		idx.items = append(idx.items, item{
			name:         name,
			lowerName:    strings.ToLower(name),
			descKeywords: keywords(info.Description),
		})
		for _, prefixLen := range []int{1, 2} {
			if p := prefix(strings.ToLower(name), prefixLen); p != "" {
				idx.prefixTable[p] = append(idx.prefixTable[p], pos)
			}
		}
	}
	return idx
}

// SourceMtime reports the backend database mtime this index was built
// against (spec.md §4.3's validity key).
func (idx *Index) SourceMtime() time.Time { return idx.sourceMtime }

// Snapshot returns the flat by-name map backing this index, e.g. for
// persisting to L2.
func (idx *Index) Snapshot() map[string]model.DetailedPackageInfo {
	return idx.byName
}

// Get performs the O(1) Info lookup (spec.md §4.5).
func (idx *Index) Get(name string) (model.DetailedPackageInfo, bool) {
	info, ok := idx.byName[name]
	return info, ok
}

// Search implements spec.md §4.5's Search algorithm: a ≤2-character query
// takes the prefix fast path; longer queries use the fuzzy scorer.
func (idx *Index) Search(query string, limit int) []model.PackageInfo {
	ql := strings.ToLower(strings.TrimSpace(query))
	if len(ql) == 0 {
		return []model.PackageInfo{}
	}
	if limit <= 0 {
		limit = 50
	}

	if len([]rune(ql)) <= 2 {
		return idx.searchPrefix(ql, limit)
	}
	return idx.searchFuzzy(strings.TrimSpace(query), ql, limit)
}

func (idx *Index) searchPrefix(ql string, limit int) []model.PackageInfo {
	positions := idx.prefixTable[ql]
	out := make([]model.PackageInfo, 0, min(limit, len(positions)))
	for _, pos := range positions {
		if len(out) >= limit {
			break
		}
		name := idx.items[pos].name
		out = append(out, idx.byName[name].Projection())
	}
	return out
}

type scored struct {
	pos   int
	score int
}

func (idx *Index) searchFuzzy(original, ql string, limit int) []model.PackageInfo {
	var candidates []scored
	for pos, it := range idx.items {
		score, ok := fuzzyScore(original, ql, it)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{pos: pos, score: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		nameA, nameB := idx.items[a.pos].name, idx.items[b.pos].name
		if len(nameA) != len(nameB) {
			return len(nameA) < len(nameB)
		}
		return nameA < nameB
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]model.PackageInfo, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, idx.byName[idx.items[c.pos].name].Projection())
	}
	return out
}

// Suggest implements spec.md §4.5's Suggest: identical search, but returns
// only deduplicated name projections.
func (idx *Index) Suggest(query string, limit int) []string {
	packages := idx.Search(query, limit)
	seen := make(map[string]struct{}, len(packages))
	out := make([]string, 0, len(packages))
	for _, p := range packages {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p.Name)
	}
	return out
}

// fuzzyScore implements the subsequence-with-contiguity-bonus scorer
// (spec.md §4.5): ql's characters must appear in order in the item's
// lowercased name or its description keywords. Returns ok=false when no
// such subsequence exists. original is the pre-lowercasing query, used for
// the case-match bonus.
func fuzzyScore(original, ql string, it item) (int, bool) {
	if score, ok := subsequenceScore(original, ql, it.name, it.lowerName); ok {
		return score + 10, true // name match outranks description-only match
	}
	for _, kw := range it.descKeywords {
		if score, ok := subsequenceScore(original, ql, kw, strings.ToLower(kw)); ok {
			return score, true
		}
	}
	return 0, false
}

// subsequenceScore walks target looking for ql's runes in order, scoring
// word-start matches, contiguous runs, case-preserving matches against the
// original (pre-lowercasing) query, and early-in-name matches.
func subsequenceScore(original, ql, target, lowerTarget string) (int, bool) {
	qr := []rune(ql)
	or := []rune(original)
	tr := []rune(lowerTarget)
	originalTarget := []rune(target)

	score := 0
	ti := 0
	matched := 0
	lastMatchIdx := -2
	for qi := 0; qi < len(qr) && ti < len(tr); {
		if qr[qi] == tr[ti] {
			if ti == 0 || !isWordChar(tr[ti-1]) {
				score += 3 // word-start bonus
			}
			if lastMatchIdx == ti-1 {
				score += 2 // contiguous-run bonus
			}
			if qi < len(or) && ti < len(originalTarget) && or[qi] == originalTarget[ti] {
				score += 1 // case-match bonus
			}
			lastMatchIdx = ti
			matched++
			qi++
		}
		ti++
	}
	if matched != len(qr) {
		return 0, false
	}
	if strings.HasPrefix(lowerTarget, ql) {
		score += 5 // early-in-name bonus
	}
	return score, true
}

func isWordChar(r rune) bool {
	return r != ' ' && r != '-' && r != '_' && r != '.'
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return ""
	}
	return string(r[:n])
}

func keywords(description string) []string {
	return strings.Fields(description)
}

// Handle is the atomic publish/subscribe point for the live index (spec.md
// §4.5's publish protocol and §9's "shared mutable index without locking
// readers" design note). Readers call Load for the duration of one
// request; the builder calls Store to swap in a freshly-built Index.
type Handle struct {
	ptr atomic.Pointer[Index]
}

// Load returns the currently published Index, or nil if none has been
// built yet.
func (h *Handle) Load() *Index {
	return h.ptr.Load()
}

// Store publishes idx, atomically replacing whatever was previously live.
// Outstanding readers holding an older *Index keep using it safely; Index
// is immutable once built.
func (h *Handle) Store(idx *Index) {
	h.ptr.Store(idx)
}
