// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package pubsub fans a finished variant out to every gateway process with
// a subscriber waiting on it (spec §4.5, "publish to each subscriber's
// channel"). The dispatcher owning a client connection only ever
// subscribes to the channels for documents that client has open, so a
// single gateway never pays the cost of every document in the system.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

func channelName(userID, documentID string) string {
	return fmt.Sprintf("done:%s:%s", userID, documentID)
}

type Bus struct {
	client *redis.Client
	logger commons.Logger
}

func New(client *redis.Client, logger commons.Logger) *Bus {
	return &Bus{client: client, logger: logger}
}

// Publish announces a finished (or failed) block to every dispatcher
// listening on the (user, document) channel.
func (b *Bus) Publish(ctx context.Context, userID, documentID string, msg domain.StatusMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pubsub: marshal status failed: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(userID, documentID), payload).Err(); err != nil {
		return fmt.Errorf("pubsub: publish failed: %w", err)
	}
	return nil
}

// Subscription wraps a Redis pub/sub subscription for a single (user,
// document) pair, decoding each message into a domain.StatusMessage.
type Subscription struct {
	sub    *redis.PubSub
	logger commons.Logger
}

// Subscribe opens a channel-scoped subscription; callers range over
// Messages() until the context is cancelled or Close is called.
func (b *Bus) Subscribe(ctx context.Context, userID, documentID string) *Subscription {
	sub := b.client.Subscribe(ctx, channelName(userID, documentID))
	return &Subscription{sub: sub, logger: b.logger}
}

// Messages decodes incoming payloads, silently dropping any that fail to
// unmarshal (a malformed publish should never take down a client's read
// loop).
func (s *Subscription) Messages(ctx context.Context) <-chan domain.StatusMessage {
	out := make(chan domain.StatusMessage)
	raw := s.sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-raw:
				if !ok {
					return
				}
				var msg domain.StatusMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					s.logger.Warn("pubsub: dropping unparsable status message", "error", err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Close releases the underlying Redis subscription.
func (s *Subscription) Close() error {
	return s.sub.Close()
}
