// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package cache implements the content-addressed audio cache (spec §3,
// §4.2): a Redis hash of variant_hash -> audio bytes plus metadata, with an
// LRU eviction policy bounded by cache_max_size_bytes. Eviction races the
// same way a claim does, so the accounting update is a single Lua script —
// the same atomicity idiom the queue package takes from the teacher's RTP
// port allocator.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

const (
	audioKeyPrefix = "cache:audio"
	metaKeyPrefix  = "cache:meta"
	lruKey         = "cache:lru" // sorted set: member=variant_hash, score=last_accessed unix µs
	statsKey       = "cache:stats"
)

type Cache struct {
	client      *redis.Client
	logger      commons.Logger
	maxSizeByte int64
}

func New(client *redis.Client, logger commons.Logger, maxSizeBytes int64) *Cache {
	return &Cache{client: client, logger: logger, maxSizeByte: maxSizeBytes}
}

// Get returns the cached audio for a variant hash and bumps its LRU
// recency, or (nil, false) on a miss (spec §4.2 `get`).
func (c *Cache) Get(ctx context.Context, variantHash string) ([]byte, bool, error) {
	audio, err := c.client.HGet(ctx, audioKeyPrefix, variantHash).Bytes()
	if err == redis.Nil {
		c.client.HIncrBy(ctx, statsKey, "miss_count", 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get failed: %w", err)
	}

	now := float64(time.Now().UnixMicro())
	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, lruKey, redis.Z{Score: now, Member: variantHash})
	pipe.HIncrBy(ctx, statsKey, "hit_count", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("cache: failed to bump lru recency", "variant_hash", variantHash, "error", err)
	}

	return audio, true, nil
}

// evictLRUScript pops the least-recently-used member once the tracked size
// would exceed the budget, removing its audio/meta entries and returning the
// freed byte count so Put can keep the running total in sync without a
// second round trip.
var evictLRUScript = redis.NewScript(`
	local victim = redis.call('ZRANGE', KEYS[1], 0, 0)
	if #victim == 0 then
		return 0
	end
	local vh = victim[1]
	local meta = redis.call('HGET', KEYS[3], vh)
	local freed = 0
	if meta then
		local ok, decoded = pcall(cjson.decode, meta)
		if ok and decoded.size_bytes then
			freed = decoded.size_bytes
		end
	end
	redis.call('ZREM', KEYS[1], vh)
	redis.call('HDEL', KEYS[2], vh)
	redis.call('HDEL', KEYS[3], vh)
	return freed
`)

// Put stores audio under variantHash and evicts least-recently-used entries
// until the running size total fits cache_max_size_bytes (spec §4.2 `put`,
// "LRU eviction when the cache exceeds its configured byte budget").
func (c *Cache) Put(ctx context.Context, entry domain.CacheEntry, audio []byte) error {
	entry.SizeBytes = int64(len(audio))
	entry.LastAccessedAt = time.Now()

	metaPayload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal meta failed: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, audioKeyPrefix, entry.VariantHash, audio)
	pipe.HSet(ctx, metaKeyPrefix, entry.VariantHash, metaPayload)
	pipe.ZAdd(ctx, lruKey, redis.Z{Score: float64(entry.LastAccessedAt.UnixMicro()), Member: entry.VariantHash})
	pipe.HIncrBy(ctx, statsKey, "size_bytes", entry.SizeBytes)
	pipe.HIncrBy(ctx, statsKey, "entry_count", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: put failed: %w", err)
	}

	return c.enforceBudget(ctx)
}

func (c *Cache) enforceBudget(ctx context.Context) error {
	for i := 0; i < 10_000; i++ {
		size, err := c.client.HGet(ctx, statsKey, "size_bytes").Int64()
		if err != nil && err != redis.Nil {
			return fmt.Errorf("cache: read size failed: %w", err)
		}
		if size <= c.maxSizeByte {
			return nil
		}

		freed, err := evictLRUScript.Run(ctx, c.client, []string{lruKey, audioKeyPrefix, metaKeyPrefix}).Int64()
		if err != nil {
			return fmt.Errorf("cache: eviction script failed: %w", err)
		}
		if freed == 0 {
			// Nothing left to evict; the accounting total has drifted from
			// the actual hash contents (should not happen under normal
			// operation), so stop rather than spin.
			c.logger.Warn("cache: size_bytes exceeds budget but nothing left to evict")
			return nil
		}

		pipe := c.client.TxPipeline()
		pipe.HIncrBy(ctx, statsKey, "size_bytes", -freed)
		pipe.HIncrBy(ctx, statsKey, "entry_count", -1)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("cache: post-eviction accounting failed: %w", err)
		}
	}
	return fmt.Errorf("cache: eviction loop exceeded safety bound")
}

// Stats reports the observability surface spec §4.2 requires (size, entry
// count, hit/miss counts) for the admin API.
func (c *Cache) Stats(ctx context.Context) (domain.CacheStats, error) {
	raw, err := c.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return domain.CacheStats{}, fmt.Errorf("cache: stats failed: %w", err)
	}

	stats := domain.CacheStats{}
	for k, v := range raw {
		var n int64
		fmt.Sscanf(v, "%d", &n)
		switch k {
		case "size_bytes":
			stats.SizeBytes = n
		case "entry_count":
			stats.EntryCount = n
		case "hit_count":
			stats.HitCount = n
		case "miss_count":
			stats.MissCount = n
		}
	}
	return stats, nil
}
