// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package inflight tracks which variant hashes currently have a worker
// synthesizing them and who is waiting on the result (spec §3, §4.3): the
// in-flight registry is what lets a second request for the same variant
// hash subscribe instead of re-enqueuing a duplicate job.
package inflight

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

func subscribersKey(variantHash string) string { return fmt.Sprintf("inflight:subs:{%s}", variantHash) }

type Registry struct {
	client *redis.Client
	logger commons.Logger
}

func New(client *redis.Client, logger commons.Logger) *Registry {
	return &Registry{client: client, logger: logger}
}

// registerScript atomically appends the new subscriber and reports whether
// the variant hash was already in-flight (non-empty subscriber list)
// before the append, so only the first caller enqueues a job — the
// same check-then-append-atomically shape as the queue's claim script,
// collapsed into a single round trip so two concurrent requests for the
// same variant hash can't both observe "not in flight".
var registerScript = redis.NewScript(`
	local existed = redis.call('EXISTS', KEYS[1])
	redis.call('RPUSH', KEYS[1], ARGV[1])
	return existed
`)

// Register adds sub as a subscriber of variantHash and reports whether the
// variant was already in-flight before this call (spec §4.3 `register`:
// "Returns whether it was already in-flight").
func (r *Registry) Register(ctx context.Context, variantHash string, sub domain.Subscriber) (alreadyInFlight bool, err error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return false, fmt.Errorf("inflight: marshal subscriber failed: %w", err)
	}

	existed, err := registerScript.Run(ctx, r.client, []string{subscribersKey(variantHash)}, string(payload)).Int()
	if err != nil {
		return false, fmt.Errorf("inflight: register failed: %w", err)
	}
	return existed == 1, nil
}

// Subscribers returns every subscriber waiting on variantHash (spec §4.3
// `subscribers`), used by the result consumer to fan out a completion.
func (r *Registry) Subscribers(ctx context.Context, variantHash string) ([]domain.Subscriber, error) {
	raws, err := r.client.LRange(ctx, subscribersKey(variantHash), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("inflight: subscribers failed: %w", err)
	}

	subs := make([]domain.Subscriber, 0, len(raws))
	for _, raw := range raws {
		var s domain.Subscriber
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			r.logger.Warn("inflight: dropping unparsable subscriber entry", "variant_hash", variantHash, "error", err)
			continue
		}
		subs = append(subs, s)
	}
	return subs, nil
}

// Clear removes the in-flight entry for variantHash once a result has been
// delivered to every subscriber (spec §4.3 `clear`), so the next request for
// the same variant hash is treated as a fresh cache miss rather than an
// in-flight join.
func (r *Registry) Clear(ctx context.Context, variantHash string) error {
	if err := r.client.Del(ctx, subscribersKey(variantHash)).Err(); err != nil {
		return fmt.Errorf("inflight: clear failed: %w", err)
	}
	return nil
}

// RemoveSubscriber drops a single (user, document, block) subscriber
// without clearing the whole in-flight entry — used when a client
// disconnects or its cursor moves past a block it was waiting on (spec
// §4.8.b, "pending-set cursor eviction").
func (r *Registry) RemoveSubscriber(ctx context.Context, variantHash string, sub domain.Subscriber) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("inflight: marshal subscriber failed: %w", err)
	}
	if err := r.client.LRem(ctx, subscribersKey(variantHash), 0, string(payload)).Err(); err != nil {
		return fmt.Errorf("inflight: remove subscriber failed: %w", err)
	}
	return nil
}
