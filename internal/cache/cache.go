// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache implements the C4 in-memory cache (spec.md §4.4): a
// concurrent, frequency-admission cache over ristretto, keyed by namespace
// plus the exact (trimmed, lowercased) query string, with per-namespace TTL.
package cache

import (
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Namespaces partition unrelated query shapes so a Search miss and a Status
// miss never collide on key space (spec.md §3 CacheEntry, §4.4).
const (
	NamespaceSearch   = "search"
	NamespaceInfo     = "info"
	NamespaceSuggest  = "suggest"
	NamespaceExplicit = "explicit"
	NamespaceStatus   = "status"
)

const (
	// DefaultTTL applies to search/info/suggest (spec.md §4.4).
	DefaultTTL = 300 * time.Second
	// ExplicitTTL applies to the explicit-package list (spec.md §4.7: "cache
	// result for 60 seconds").
	ExplicitTTL = 60 * time.Second
	// StatusTTL is shorter since status changes more often than the package set.
	StatusTTL = 30 * time.Second

	// DefaultMaxEntries is the configurable cache capacity's default (spec.md §4.4).
	DefaultMaxEntries = 1000
)

// Cache wraps two ristretto instances: one for status, one for every other
// namespace. Keeping status physically separate is what lets Clear (spec.md
// §4.7's CacheClear) wipe search/info/suggest/explicit without touching the
// status entry, rather than needing a prefix-selective delete ristretto
// doesn't offer.
type Cache struct {
	general *ristretto.Cache[string, any]
	status  *ristretto.Cache[string, any]
}

// Options configures capacity. NumCounters and MaxCost follow ristretto's
// own sizing guidance (10x expected entries for the frequency sketch,
// MaxCost as the entry budget).
type Options struct {
	MaxEntries int64
}

// New constructs a Cache with the given capacity.
func New(opts Options) (*Cache, error) {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	general, err := newRistretto(maxEntries)
	if err != nil {
		return nil, err
	}
	status, err := newRistretto(maxEntries)
	if err != nil {
		general.Close()
		return nil, err
	}
	return &Cache{general: general, status: status}, nil
}

func newRistretto(maxEntries int64) (*ristretto.Cache[string, any], error) {
	return ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		Metrics:     true,
	})
}

// Close releases background goroutines ristretto owns.
func (c *Cache) Close() {
	c.general.Close()
	c.status.Close()
}

// Key builds the cache key for a namespace and raw query: trimmed and
// lowercased per spec.md §3's CacheEntry key rule.
func Key(namespace, query string) string {
	return namespace + ":" + strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached value for key and whether it was present and
// unexpired. A miss causes no state change (spec.md §4.4); ristretto bumps
// recency on Get internally for a hit.
func (c *Cache) Get(key string) (any, bool) {
	return c.routeByKey(key).Get(key)
}

// Set inserts value under key with namespace's TTL, subject to ristretto's
// admission policy — the call may be a silent no-op if the newcomer loses
// the admission race against the current eviction victim.
func (c *Cache) Set(namespace, key string, value any) {
	inner := c.route(namespace)
	inner.SetWithTTL(key, value, 1, ttlFor(namespace))
	inner.Wait()
}

func (c *Cache) route(namespace string) *ristretto.Cache[string, any] {
	if namespace == NamespaceStatus {
		return c.status
	}
	return c.general
}

// routeByKey recovers the namespace from a key built by Key so Get doesn't
// need a separate namespace parameter.
func (c *Cache) routeByKey(key string) *ristretto.Cache[string, any] {
	namespace, _, _ := strings.Cut(key, ":")
	return c.route(namespace)
}

func ttlFor(namespace string) time.Duration {
	switch namespace {
	case NamespaceStatus:
		return StatusTTL
	case NamespaceExplicit:
		return ExplicitTTL
	default:
		return DefaultTTL
	}
}

// Clear evicts every entry in the non-status namespaces (search, info,
// suggest, explicit) and resets their frequency sketch, returning the
// number of entries evicted. The status namespace is untouched (spec.md
// §4.7: "CacheClear: wipes L1 ...; L2 is not touched" — and status survives
// since it isn't one of the namespaces named there).
func (c *Cache) Clear() uint64 {
	metrics := c.general.Metrics
	var before uint64
	if metrics != nil {
		before = metrics.KeysAdded() - metrics.KeysEvicted()
	}
	c.general.Clear()
	return before
}
