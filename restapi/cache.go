// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"sync"

	"storj.io/icecat/catalogdb"
)

// cacheEntry is a snapshot of the last served load result for a table.
type cacheEntry struct {
	ETag   string
	Result catalogdb.LoadTableResult
}

// ResponseCache remembers the last materialized load response per table. It
// only augments the conditional GET fast path; stale or missing entries are
// always safe because the caller falls back to a bodyless 304.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewResponseCache constructs an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{entries: make(map[string]cacheEntry)}
}

// Put stores the latest response for a table. Last writer wins.
func (cache *ResponseCache) Put(key, etag string, result catalogdb.LoadTableResult) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[key] = cacheEntry{ETag: etag, Result: result}
}

// Get returns the cached response for a table when its etag matches.
func (cache *ResponseCache) Get(key, etag string) (catalogdb.LoadTableResult, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	entry, ok := cache.entries[key]
	if !ok || entry.ETag != etag {
		return catalogdb.LoadTableResult{}, false
	}
	return entry.Result, true
}

// Invalidate drops the cached response for a table.
func (cache *ResponseCache) Invalidate(key string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.entries, key)
}
