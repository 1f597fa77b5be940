// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package scanner implements the two background sweepers the coordinator
// runs alongside the result consumer: VisibilityScanner (stuck-claim
// requeue) and OverflowScanner (elastic serverless burst relief). Neither
// has a single teacher file to ground on — they are timer-driven loops in
// the same shape as the teacher's reconnect/health-check goroutines,
// adapted to sweep Redis state instead of a network connection.
package scanner

import (
	"context"
	"time"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/inflight"
	"github.com/readvox/synthbridge/internal/pubsub"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
)

// VisibilityScanner requeues or dead-letters jobs whose claim has sat in a
// model's processing set past visibility_timeout_s (spec §4.6).
type VisibilityScanner struct {
	queue             *queue.Queue
	stream            *resultstream.Stream
	inflight          *inflight.Registry
	pubsub            *pubsub.Bus
	logger            commons.Logger
	modelIDs          []string
	interval          time.Duration
	visibilityTimeout time.Duration
}

func NewVisibilityScanner(
	q *queue.Queue,
	stream *resultstream.Stream,
	reg *inflight.Registry,
	bus *pubsub.Bus,
	logger commons.Logger,
	modelIDs []string,
	interval, visibilityTimeout time.Duration,
) *VisibilityScanner {
	return &VisibilityScanner{
		queue: q, stream: stream, inflight: reg, pubsub: bus, logger: logger,
		modelIDs: modelIDs, interval: interval, visibilityTimeout: visibilityTimeout,
	}
}

// Run ticks on s.interval until ctx is cancelled, scanning every configured
// model queue each tick.
func (s *VisibilityScanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, modelID := range s.modelIDs {
				s.scanOne(ctx, modelID)
			}
		}
	}
}

func (s *VisibilityScanner) scanOne(ctx context.Context, modelID string) {
	stale, err := s.queue.ScanStale(ctx, modelID, s.visibilityTimeout)
	if err != nil {
		s.logger.Error("visibility-scanner: scan_stale failed", "model_id", modelID, "error", err)
		return
	}

	for _, job := range stale {
		if err := s.queue.Requeue(ctx, modelID, job); err == nil {
			continue
		} else if err != queue.ErrRetriesExhausted {
			s.logger.Error("visibility-scanner: requeue failed", "job_id", job.JobID, "error", err)
			continue
		}

		if err := s.queue.DLQ(ctx, modelID, job, domain.DLQReasonRetriesExhausted); err != nil {
			s.logger.Error("visibility-scanner: dlq failed", "job_id", job.JobID, "error", err)
			continue
		}

		// A synthetic error result lets the gateway's ordinary result
		// consumer pipeline notify subscribers and clear the in-flight
		// entry, instead of duplicating that fan-out logic here.
		syntheticResult := domain.WorkerResult{
			JobID:       job.JobID,
			VariantHash: job.VariantHash,
			UserID:      job.UserID,
			DocumentID:  job.DocumentID,
			BlockIndex:  job.BlockIndex,
			ModelID:     modelID,
			VoiceID:     job.VoiceID,
			RetryCount:  job.RetryCount,
			Error:       &domain.ResultErr{Code: "retries_exhausted", Message: "worker claim expired past max_retries", NonRetriable: true},
		}
		if err := s.stream.Push(ctx, syntheticResult); err != nil {
			s.logger.Error("visibility-scanner: synthetic result push failed", "job_id", job.JobID, "error", err)
		}
	}
}
