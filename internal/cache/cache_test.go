// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

func newTestCache(t *testing.T, maxSizeBytes int64) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, commons.NewTestLogger(), maxSizeBytes)
}

func TestGetMissIncrementsMissCount(t *testing.T) {
	c := newTestCache(t, 1<<20)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "nonexistent")
	require.NoError(t, err)
	require.False(t, ok)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.MissCount)
}

func TestPutThenGetHit(t *testing.T) {
	c := newTestCache(t, 1<<20)
	ctx := context.Background()

	entry := domain.CacheEntry{VariantHash: "h1", ModelID: "cartesia-sonic", VoiceID: "v1", AudioDurationMs: 1200}
	require.NoError(t, c.Put(ctx, entry, []byte("audio-bytes")))

	audio, ok, err := c.Get(ctx, "h1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("audio-bytes"), audio)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.HitCount)
	require.Equal(t, int64(1), stats.EntryCount)
}

func TestPutEvictsLeastRecentlyUsedWhenOverBudget(t *testing.T) {
	// Budget fits one ~11-byte entry only.
	c := newTestCache(t, 12)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.CacheEntry{VariantHash: "old"}, []byte("0123456789a")))
	// Access "old" isn't bumped here — Put alone should be enough for LRU
	// ordering between two successive puts.
	require.NoError(t, c.Put(ctx, domain.CacheEntry{VariantHash: "new"}, []byte("b123456789c")))

	_, oldStillThere, err := c.Get(ctx, "old")
	require.NoError(t, err)
	require.False(t, oldStillThere, "oldest entry should have been evicted once over budget")

	_, newStillThere, err := c.Get(ctx, "new")
	require.NoError(t, err)
	require.True(t, newStillThere)
}

func TestStatsReflectsAccumulatedSize(t *testing.T) {
	c := newTestCache(t, 1<<20)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.CacheEntry{VariantHash: "a"}, []byte("12345")))
	require.NoError(t, c.Put(ctx, domain.CacheEntry{VariantHash: "b"}, []byte("1234567890")))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(15), stats.SizeBytes)
	require.Equal(t, int64(2), stats.EntryCount)
}
