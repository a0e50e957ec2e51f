// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package restapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/icecat/catalogdb"
)

func TestResponseCache(t *testing.T) {
	cache := NewResponseCache()

	result := catalogdb.LoadTableResult{MetadataLocation: "s3://w/ns/t/metadata/current.metadata.json"}
	cache.Put("ns.t", `"uuid-1"`, result)

	got, ok := cache.Get("ns.t", `"uuid-1"`)
	require.True(t, ok)
	require.Equal(t, result, got)

	// A different etag means the entry is stale.
	_, ok = cache.Get("ns.t", `"uuid-2"`)
	require.False(t, ok)

	_, ok = cache.Get("ns.other", `"uuid-1"`)
	require.False(t, ok)

	// Newer responses replace older ones for the same table.
	cache.Put("ns.t", `"uuid-2"`, result)
	_, ok = cache.Get("ns.t", `"uuid-1"`)
	require.False(t, ok)
	_, ok = cache.Get("ns.t", `"uuid-2"`)
	require.True(t, ok)

	cache.Invalidate("ns.t")
	_, ok = cache.Get("ns.t", `"uuid-2"`)
	require.False(t, ok)
}
