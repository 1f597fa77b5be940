// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package queue implements the per-model job queue and processing set
// (spec §4.1) on top of Redis, using atomic Lua scripts for every
// transition that would otherwise race across concurrent workers — the
// same idiom the teacher uses for its RTP port allocator
// (sip/infra/rtp_port_allocator.go): one redis.NewScript per state
// transition, KEYS/ARGV driven, logged with commons.Logger.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

// ErrRetriesExhausted is returned by Requeue when the job has already hit
// max_retries (spec §4.1: "Fails with RetriesExhausted when retry_count ==
// max_retries").
var ErrRetriesExhausted = errors.New("queue: retries exhausted")

// Queue is the per-model FIFO + claim-set pair described in spec §3/§4.1.
type Queue struct {
	client     *redis.Client
	logger     commons.Logger
	keyPrefix  string
	maxRetries int
}

// New builds a Queue bound to a key prefix (spec §6.5 `queue_key_prefix`).
func New(client *redis.Client, logger commons.Logger, keyPrefix string, maxRetries int) *Queue {
	return &Queue{client: client, logger: logger, keyPrefix: keyPrefix, maxRetries: maxRetries}
}

func (q *Queue) queueKey(modelID string) string {
	return fmt.Sprintf("%s:queue:{%s}", q.keyPrefix, modelID)
}
func (q *Queue) processingKey(modelID string) string {
	return fmt.Sprintf("%s:processing:{%s}", q.keyPrefix, modelID)
}
func (q *Queue) dlqKey(modelID string) string {
	return fmt.Sprintf("%s:dlq:{%s}", q.keyPrefix, modelID)
}

// enqueueEnvelope is the payload stored in the list, carrying both the job
// and its enqueue timestamp (needed by ScanAged independent of RetryCount
// bookkeeping).
type enqueueEnvelope struct {
	Job        domain.SynthesisJob `json:"job"`
	EnqueuedAt int64               `json:"enqueued_at_unix_ms"`
}

// Push appends a job to queue:{model_id} (spec §4.1 `push`). The envelope's
// enqueue timestamp is job.EnqueuedAt, set to the current time when zero.
func (q *Queue) Push(ctx context.Context, modelID string, job domain.SynthesisJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	env := enqueueEnvelope{Job: job, EnqueuedAt: job.EnqueuedAt.UnixMilli()}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.queueKey(modelID), payload).Err(); err != nil {
		return fmt.Errorf("queue: push failed: %w", err)
	}
	return nil
}

// popAndClaimScript atomically pops the queue head and records it (with a
// claim timestamp) in the processing hash, mirroring the
// SPOP-then-SADD shape of the teacher's allocateLuaScript. The popped
// envelope is decoded with cjson so job_id never has to leave Lua between
// the LPOP and the HSETs that record the claim.
var popAndClaimScript = redis.NewScript(`
	local raw = redis.call('LPOP', KEYS[1])
	if raw == false then
		return false
	end
	local envelope = cjson.decode(raw)
	local job_id = envelope.job.job_id
	redis.call('HSET', KEYS[2], job_id, raw)
	redis.call('HSET', KEYS[3], job_id, ARGV[1])
	return raw
`)

// claimTsKey holds claim timestamps separately from the job payload hash
// so ScanStale can fetch just the timestamps cheaply.
func (q *Queue) claimTsKey(modelID string) string {
	return fmt.Sprintf("%s:claimts:{%s}", q.keyPrefix, modelID)
}

// PopAndClaim atomically removes the queue head and inserts it into the
// processing set with the current claim timestamp (spec §4.1
// `pop_and_claim`). Polls for pollInterval before giving up and returning
// ErrNoJob, rather than blocking forever — workers loop on this themselves.
var ErrNoJob = errors.New("queue: no job available")

func (q *Queue) PopAndClaim(ctx context.Context, modelID, workerID string, pollInterval time.Duration) (*domain.SynthesisJob, time.Time, error) {
	deadline := time.Now().Add(pollInterval)
	for {
		jobID, claimTs, job, err := q.tryPopAndClaim(ctx, modelID)
		if err != nil {
			return nil, time.Time{}, err
		}
		if job != nil {
			_ = jobID
			return job, claimTs, nil
		}
		if time.Now().After(deadline) {
			return nil, time.Time{}, ErrNoJob
		}
		select {
		case <-ctx.Done():
			return nil, time.Time{}, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (q *Queue) tryPopAndClaim(ctx context.Context, modelID string) (string, time.Time, *domain.SynthesisJob, error) {
	now := time.Now()
	nowStr := fmt.Sprintf("%d", now.UnixMilli())

	res, err := popAndClaimScript.Run(ctx, q.client,
		[]string{q.queueKey(modelID), q.processingKey(modelID), q.claimTsKey(modelID)},
		nowStr,
	).Result()
	if err == redis.Nil {
		return "", time.Time{}, nil, nil
	}
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("queue: pop and claim failed: %w", err)
	}

	raw, ok := res.(string)
	if !ok {
		// Lua returns `false` (decoded by go-redis as a nil interface) when
		// the queue was empty.
		return "", time.Time{}, nil, nil
	}

	var env enqueueEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		q.logger.Error("queue: dropping unparsable job payload", "error", err)
		return "", time.Time{}, nil, nil
	}

	job := env.Job
	return job.JobID, now, &job, nil
}

// Complete removes job_id from the processing set (spec §4.1 `complete`).
func (q *Queue) Complete(ctx context.Context, modelID, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.HDel(ctx, q.processingKey(modelID), jobID)
	pipe.HDel(ctx, q.claimTsKey(modelID), jobID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("queue: complete failed: %w", err)
	}
	return nil
}

// Requeue increments retry_count and re-pushes to the queue tail (spec
// §4.1 `requeue`), removing the job from the processing set first.
func (q *Queue) Requeue(ctx context.Context, modelID string, job domain.SynthesisJob) error {
	if job.RetryCount >= q.maxRetries {
		return ErrRetriesExhausted
	}
	job.RetryCount++

	if err := q.Complete(ctx, modelID, job.JobID); err != nil {
		return err
	}
	return q.Push(ctx, modelID, job)
}

// DLQ pushes the job to dlq:{model_id} with diagnostic metadata; it is
// terminal — no scanner ever pulls from here automatically (spec §4.1
// `dlq`, §8 "DLQ terminal").
func (q *Queue) DLQ(ctx context.Context, modelID string, job domain.SynthesisJob, reason domain.DLQReason) error {
	entry := domain.DLQEntry{
		ModelID:    modelID,
		Job:        job,
		Reason:     reason,
		RetryCount: job.RetryCount,
		RecordedAt: time.Now(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: marshal dlq entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.dlqKey(modelID), payload)
	pipe.HDel(ctx, q.processingKey(modelID), job.JobID)
	pipe.HDel(ctx, q.claimTsKey(modelID), job.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: dlq push failed: %w", err)
	}
	return nil
}

// DLQLength reports the current dead-letter depth for a model, used by the
// ops alert threshold check.
func (q *Queue) DLQLength(ctx context.Context, modelID string) (int64, error) {
	n, err := q.client.LLen(ctx, q.dlqKey(modelID)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: dlq length failed: %w", err)
	}
	return n, nil
}

// Depth reports how many jobs are currently waiting (not yet claimed) on a
// model's queue, used by the admin API's queue-depth endpoint.
func (q *Queue) Depth(ctx context.Context, modelID string) (int64, error) {
	n, err := q.client.LLen(ctx, q.queueKey(modelID)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: depth failed: %w", err)
	}
	return n, nil
}

// DrainDLQ pops up to limit entries off the DLQ for mirroring into durable
// storage (internal/dlq). Mirroring drains the Redis list so it never grows
// unbounded while still leaving the durable Postgres copy as the long-term
// record ops actually queries.
func (q *Queue) DrainDLQ(ctx context.Context, modelID string, limit int) ([]domain.DLQEntry, error) {
	var entries []domain.DLQEntry
	for i := 0; i < limit; i++ {
		raw, err := q.client.LPop(ctx, q.dlqKey(modelID)).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("queue: drain dlq failed: %w", err)
		}
		var entry domain.DLQEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			q.logger.Error("queue: dropping unparsable dlq entry", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ScanStale returns processing-set jobs whose claim timestamp is older than
// now - visibility_timeout_s (spec §4.1 `scan_stale`).
func (q *Queue) ScanStale(ctx context.Context, modelID string, visibilityTimeout time.Duration) ([]domain.SynthesisJob, error) {
	claims, err := q.client.HGetAll(ctx, q.claimTsKey(modelID)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan stale claims failed: %w", err)
	}
	cutoff := time.Now().Add(-visibilityTimeout).UnixMilli()

	var stale []string
	for jobID, tsStr := range claims {
		var ts int64
		if _, err := fmt.Sscanf(tsStr, "%d", &ts); err != nil {
			continue
		}
		if ts < cutoff {
			stale = append(stale, jobID)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	raws, err := q.client.HMGet(ctx, q.processingKey(modelID), stale...).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan stale fetch failed: %w", err)
	}

	jobs := make([]domain.SynthesisJob, 0, len(raws))
	for _, r := range raws {
		s, ok := r.(string)
		if !ok {
			continue
		}
		var env enqueueEnvelope
		if err := json.Unmarshal([]byte(s), &env); err != nil {
			continue
		}
		jobs = append(jobs, env.Job)
	}
	return jobs, nil
}

// ScanAged returns queued (not yet claimed) jobs older than
// overflow_threshold_s, WITHOUT removing them from the queue (spec §4.1
// `scan_aged`: "for overflow dispatch, NOT removed from queue").
func (q *Queue) ScanAged(ctx context.Context, modelID string, overflowThreshold time.Duration) ([]domain.SynthesisJob, error) {
	raws, err := q.client.LRange(ctx, q.queueKey(modelID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan aged failed: %w", err)
	}
	cutoff := time.Now().Add(-overflowThreshold).UnixMilli()

	var aged []domain.SynthesisJob
	for _, raw := range raws {
		var env enqueueEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			continue
		}
		if env.EnqueuedAt < cutoff {
			aged = append(aged, env.Job)
		}
	}
	return aged, nil
}

// claimForOverflowScript atomically removes a specific job payload from the
// queue (by exact match) and moves it into the processing set, so a local
// worker's concurrent PopAndClaim cannot also grab it (spec §4.7:
// "Local workers and overflow compete for the same jobs; the first to
// claim wins. Duplicate claims are prevented by the atomic claim
// operation.").
var claimForOverflowScript = redis.NewScript(`
	local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
	if removed == 0 then
		return 0
	end
	redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
	redis.call('HSET', KEYS[3], ARGV[2], ARGV[3])
	return 1
`)

// ClaimForOverflow attempts to atomically remove job from the live queue
// and place it into the processing set under the overflow scanner's
// ownership. Returns false if a local worker already claimed it first.
func (q *Queue) ClaimForOverflow(ctx context.Context, modelID string, job domain.SynthesisJob) (bool, error) {
	env := enqueueEnvelope{Job: job, EnqueuedAt: job.EnqueuedAt.UnixMilli()}
	payload, err := json.Marshal(env)
	if err != nil {
		return false, fmt.Errorf("queue: marshal for overflow claim: %w", err)
	}

	res, err := claimForOverflowScript.Run(ctx, q.client,
		[]string{q.queueKey(modelID), q.processingKey(modelID), q.claimTsKey(modelID)},
		string(payload), job.JobID, fmt.Sprintf("%d", time.Now().UnixMilli()),
	).Int()
	if err != nil || res == 0 {
		// LREM's exact-match requirement means re-marshalled JSON with a
		// different key order would never match; fall back to a scan-based
		// claim so overflow still works even if marshal order drifted.
		return q.claimForOverflowFallback(ctx, modelID, job)
	}
	return res == 1, nil
}

func (q *Queue) claimForOverflowFallback(ctx context.Context, modelID string, job domain.SynthesisJob) (bool, error) {
	raws, err := q.client.LRange(ctx, q.queueKey(modelID), 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("queue: overflow fallback scan failed: %w", err)
	}
	for _, raw := range raws {
		var env enqueueEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			continue
		}
		if env.Job.JobID != job.JobID {
			continue
		}
		removed, err := q.client.LRem(ctx, q.queueKey(modelID), 1, raw).Result()
		if err != nil {
			return false, fmt.Errorf("queue: overflow fallback lrem failed: %w", err)
		}
		if removed == 0 {
			return false, nil
		}
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.processingKey(modelID), job.JobID, raw)
		pipe.HSet(ctx, q.claimTsKey(modelID), job.JobID, fmt.Sprintf("%d", time.Now().UnixMilli()))
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("queue: overflow fallback claim failed: %w", err)
		}
		return true, nil
	}
	return false, nil
}
