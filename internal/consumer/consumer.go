// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package consumer implements the gateway-side result consumer (spec
// §4.5): drain the shared result stream, cache a successful synthesis,
// decide retry/DLQ routing for a failed one, and fan the outcome out to
// every subscriber waiting on that variant hash. No single teacher file
// matches this shape — it is assembled from the resultstream consumer
// idiom plus calls into cache/inflight/pubsub/queue, the same way the
// teacher's websocket_executor.go reads a connection's inbound loop and
// dispatches into several collaborator services per message.
package consumer

import (
	"context"
	"time"

	"github.com/readvox/synthbridge/internal/cache"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/inflight"
	"github.com/readvox/synthbridge/internal/metrics"
	"github.com/readvox/synthbridge/internal/pubsub"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
)

type Consumer struct {
	stream    *resultstream.Stream
	queue     *queue.Queue
	cache     *cache.Cache
	inflight  *inflight.Registry
	pubsub    *pubsub.Bus
	metrics   *metrics.Registry
	logger    commons.Logger
	name      string
	batchSize int64
	block     time.Duration
}

func New(
	stream *resultstream.Stream,
	q *queue.Queue,
	c *cache.Cache,
	reg *inflight.Registry,
	bus *pubsub.Bus,
	m *metrics.Registry,
	logger commons.Logger,
	consumerName string,
) *Consumer {
	return &Consumer{
		stream:    stream,
		queue:     q,
		cache:     c,
		inflight:  reg,
		pubsub:    bus,
		metrics:   m,
		logger:    logger,
		name:      consumerName,
		batchSize: 10,
		block:     2 * time.Second,
	}
}

// Run blocks, draining the result stream until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Infof("consumer: starting as %s", c.name)
	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("consumer: stopping")
			return ctx.Err()
		default:
		}

		entries, err := c.stream.Read(ctx, c.name, c.batchSize, c.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("consumer: stream read failed", "error", err)
			continue
		}

		for _, entry := range entries {
			c.handle(ctx, entry.Result)
			if err := c.stream.Ack(ctx, entry.ID); err != nil {
				c.logger.Error("consumer: ack failed", "id", entry.ID, "error", err)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, result domain.WorkerResult) {
	if result.Succeeded() {
		c.handleSuccess(ctx, result)
		return
	}
	c.handleFailure(ctx, result)
}

func (c *Consumer) handleSuccess(ctx context.Context, result domain.WorkerResult) {
	entry := domain.CacheEntry{
		VariantHash:     result.VariantHash,
		ModelID:         result.ModelID,
		VoiceID:         result.VoiceID,
		AudioDurationMs: result.AudioDurationMs,
	}
	if err := c.cache.Put(ctx, entry, result.AudioBytes); err != nil {
		c.logger.Error("consumer: cache put failed", "variant_hash", result.VariantHash, "error", err)
	}

	if err := c.queue.Complete(ctx, result.ModelID, result.JobID); err != nil {
		c.logger.Error("consumer: complete failed", "job_id", result.JobID, "error", err)
	}
	c.metrics.IncJobCompleted()

	c.notifySubscribers(ctx, result, domain.StatusCached, "")
}

func (c *Consumer) handleFailure(ctx context.Context, result domain.WorkerResult) {
	job := domain.SynthesisJob{
		JobID:       result.JobID,
		VariantHash: result.VariantHash,
		BlockIndex:  result.BlockIndex,
		DocumentID:  result.DocumentID,
		UserID:      result.UserID,
		ModelID:     result.ModelID,
		VoiceID:     result.VoiceID,
		RetryCount:  result.RetryCount,
	}

	c.metrics.IncSynthesisError()

	if result.Error.NonRetriable {
		c.sendToDLQ(ctx, job, domain.DLQReasonFatal, result)
		return
	}

	if err := c.queue.Requeue(ctx, result.ModelID, job); err != nil {
		if err == queue.ErrRetriesExhausted {
			c.sendToDLQ(ctx, job, domain.DLQReasonRetriesExhausted, result)
			return
		}
		c.logger.Error("consumer: requeue failed", "job_id", result.JobID, "error", err)
		return
	}

	c.notifySubscribers(ctx, result, domain.StatusProcessing, "")
}

func (c *Consumer) sendToDLQ(ctx context.Context, job domain.SynthesisJob, reason domain.DLQReason, result domain.WorkerResult) {
	if err := c.queue.DLQ(ctx, job.ModelID, job, reason); err != nil {
		c.logger.Error("consumer: dlq push failed", "job_id", job.JobID, "error", err)
	}
	c.metrics.IncDLQWrite()
	c.notifySubscribers(ctx, result, domain.StatusError, result.Error.Message)
}

func (c *Consumer) notifySubscribers(ctx context.Context, result domain.WorkerResult, status domain.StatusValue, errMsg string) {
	subs, err := c.inflight.Subscribers(ctx, result.VariantHash)
	if err != nil {
		c.logger.Error("consumer: subscribers lookup failed", "variant_hash", result.VariantHash, "error", err)
		return
	}

	msg := domain.StatusMessage{
		DocumentID:  result.DocumentID,
		BlockIndex:  result.BlockIndex,
		VariantHash: result.VariantHash,
		Status:      status,
		ModelID:     result.ModelID,
		VoiceID:     result.VoiceID,
		Error:       errMsg,
	}
	if status == domain.StatusCached {
		msg.AudioURL = "/audio/" + result.VariantHash
	}

	for _, sub := range subs {
		m := msg
		m.DocumentID = sub.DocumentID
		m.BlockIndex = sub.BlockIndex
		if err := c.pubsub.Publish(ctx, sub.UserID, sub.DocumentID, m); err != nil {
			c.logger.Error("consumer: publish failed", "user_id", sub.UserID, "document_id", sub.DocumentID, "error", err)
		}
	}

	// A terminal outcome (cached or error) clears the in-flight entry; a
	// requeue (still "processing") leaves subscribers registered so the
	// next attempt's result reaches them too.
	if status == domain.StatusCached || status == domain.StatusError {
		if err := c.inflight.Clear(ctx, result.VariantHash); err != nil {
			c.logger.Error("consumer: inflight clear failed", "variant_hash", result.VariantHash, "error", err)
		}
	}
}
