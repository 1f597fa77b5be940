// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package resultstream wraps the Redis Stream workers push completed (or
// failed) jobs onto (spec §4.4, §4.5: "Workers always push a result,
// success or failure"). A stream rather than a list because the gateway's
// consumer group can replay unacked entries after a crash without losing a
// worker result the way a plain LPUSH/BRPOP pair would.
package resultstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

const payloadField = "result"

type Stream struct {
	client *redis.Client
	logger commons.Logger
	key    string
	group  string
}

// New binds a Stream to a stream key and a single consumer group; the
// group is created (idempotently) on first use with MKSTREAM so a fresh
// deployment doesn't need a manual bootstrap step.
func New(client *redis.Client, logger commons.Logger, streamKey, consumerGroup string) *Stream {
	return &Stream{client: client, logger: logger, key: streamKey, group: consumerGroup}
}

// EnsureGroup creates the consumer group if it does not already exist.
func (s *Stream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.key, s.group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("resultstream: create group failed: %w", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// Push appends a worker result to the stream (XADD), called by every
// worker after a synthesis attempt regardless of outcome.
func (s *Stream) Push(ctx context.Context, result domain.WorkerResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("resultstream: marshal result failed: %w", err)
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		Values: map[string]interface{}{payloadField: payload},
	}).Err(); err != nil {
		return fmt.Errorf("resultstream: xadd failed: %w", err)
	}
	return nil
}

// Entry pairs a decoded result with the stream ID needed to ack it.
type Entry struct {
	ID     string
	Result domain.WorkerResult
}

// Read blocks (up to block) for new entries assigned to consumerName within
// this stream's group, via XREADGROUP.
func (s *Stream) Read(ctx context.Context, consumerName string, count int64, block time.Duration) ([]Entry, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumerName,
		Streams:  []string{s.key, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resultstream: xreadgroup failed: %w", err)
	}

	var entries []Entry
	for _, stream := range res {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values[payloadField].(string)
			if !ok {
				s.logger.Warn("resultstream: skipping entry with missing payload field", "id", msg.ID)
				continue
			}
			var result domain.WorkerResult
			if err := json.Unmarshal([]byte(raw), &result); err != nil {
				s.logger.Warn("resultstream: dropping unparsable entry", "id", msg.ID, "error", err)
				continue
			}
			entries = append(entries, Entry{ID: msg.ID, Result: result})
		}
	}
	return entries, nil
}

// Ack acknowledges a processed entry so it won't be redelivered.
func (s *Stream) Ack(ctx context.Context, id string) error {
	if err := s.client.XAck(ctx, s.key, s.group, id).Err(); err != nil {
		return fmt.Errorf("resultstream: xack failed: %w", err)
	}
	return nil
}
