// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package workerloop implements the generic pull-process-push worker loop
// (spec §4.4): pop a job from a model's queue, hand it to a pluggable
// Adapter, and always push exactly one result. The worker pool shape is
// generalized from a plain in-process channel pool
// (other_examples/.../audio_jobs.go's AudioQueue.worker) to a loop that
// pulls from the shared Redis queue instead of an in-memory channel, since
// here the pool spans independent worker processes rather than goroutines
// inside one process.
package workerloop

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
)

// Adapter is implemented once per TTS vendor (spec §4.4: "Workers are
// pluggable; each adapter implements a synchronous synthesize call").
type Adapter interface {
	// ModelID identifies which queue this adapter's workers pull from.
	ModelID() string
	// Synthesize turns normalized text into audio. A non-nil, non-retriable
	// error (e.g. invalid voice ID) should be reported via the returned
	// error wrapped in a *NonRetriableError; anything else is treated as
	// transient and left to the queue's retry policy.
	Synthesize(ctx context.Context, job domain.SynthesisJob) (audio []byte, durationMs int64, err error)
	// Health reports whether the underlying vendor API is currently
	// reachable; used to back off pulling new jobs when it is not.
	Health(ctx context.Context) error
}

// NonRetriableError marks an adapter error that should send the job
// straight to the DLQ instead of being retried (spec §7, "Non-retriable
// failures" — e.g. an invalid voice_id will never succeed on retry).
type NonRetriableError struct {
	Code    string
	Message string
}

func (e *NonRetriableError) Error() string { return e.Code + ": " + e.Message }

// Loop pulls jobs for one model, synthesizes them via Adapter, and always
// pushes a WorkerResult — success or failure — onto the shared result
// stream (spec §4.5, "Workers always push a result").
type Loop struct {
	queue    *queue.Queue
	stream   *resultstream.Stream
	adapter  Adapter
	logger   commons.Logger
	workerID string

	pollInterval time.Duration
	backoff      backoff.BackOff
}

// New builds a Loop. backoffPolicy governs the delay between health-check
// failures; a nil policy falls back to a capped exponential backoff, the
// same pattern the teacher's reconnect logic in websocket_executor.go
// follows for its read-loop retries.
func New(q *queue.Queue, stream *resultstream.Stream, adapter Adapter, logger commons.Logger, workerID string, pollInterval time.Duration, backoffPolicy backoff.BackOff) *Loop {
	if backoffPolicy == nil {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0 // retry indefinitely; the loop itself owns shutdown via ctx
		b.MaxInterval = 30 * time.Second
		backoffPolicy = b
	}
	return &Loop{
		queue:        q,
		stream:       stream,
		adapter:      adapter,
		logger:       logger,
		workerID:     workerID,
		pollInterval: pollInterval,
		backoff:      backoffPolicy,
	}
}

// Run blocks, pulling and processing jobs until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	modelID := l.adapter.ModelID()
	l.logger.Infof("workerloop: starting for model=%s worker=%s", modelID, l.workerID)

	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("workerloop: stopping for model=%s worker=%s", modelID, l.workerID)
			return ctx.Err()
		default:
		}

		if err := l.adapter.Health(ctx); err != nil {
			delay := l.backoff.NextBackOff()
			if delay == backoff.Stop {
				delay = 30 * time.Second
			}
			l.logger.Warn("workerloop: adapter unhealthy, backing off", "model_id", modelID, "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		l.backoff.Reset()

		job, _, err := l.queue.PopAndClaim(ctx, modelID, l.workerID, l.pollInterval)
		if err == queue.ErrNoJob {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error("workerloop: pop_and_claim failed", "model_id", modelID, "error", err)
			continue
		}

		l.process(ctx, *job)
	}
}

func (l *Loop) process(ctx context.Context, job domain.SynthesisJob) {
	start := time.Now()
	audio, durationMs, err := l.adapter.Synthesize(ctx, job)
	elapsed := time.Since(start)

	result := domain.WorkerResult{
		JobID:            job.JobID,
		VariantHash:      job.VariantHash,
		UserID:           job.UserID,
		DocumentID:       job.DocumentID,
		BlockIndex:       job.BlockIndex,
		ModelID:          job.ModelID,
		VoiceID:          job.VoiceID,
		WorkerID:         l.workerID,
		ProcessingTimeMs: elapsed.Milliseconds(),
		RetryCount:       job.RetryCount,
	}

	if err != nil {
		nonRetriable := false
		code := "synthesis_failed"
		if nre, ok := err.(*NonRetriableError); ok {
			nonRetriable = true
			code = nre.Code
		}
		result.Error = &domain.ResultErr{Code: code, Message: err.Error(), NonRetriable: nonRetriable}
		l.logger.Warn("workerloop: synthesis failed", "job_id", job.JobID, "model_id", job.ModelID, "error", err, "non_retriable", nonRetriable)
	} else {
		result.AudioBytes = audio
		result.AudioDurationMs = durationMs
	}

	// The worker never mutates queue/processing-set state itself: completion,
	// requeue, and DLQ routing are decided by the gateway's result consumer
	// once it has seen whether this push succeeded or failed (spec §4.4/§4.5,
	// "workers never retry themselves").
	if pushErr := l.stream.Push(ctx, result); pushErr != nil {
		l.logger.Error("workerloop: failed to push result", "job_id", job.JobID, "error", pushErr)
	}
}
