// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package queue

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, commons.NewTestLogger(), "synth", 3), mr
}

func sampleJob() domain.SynthesisJob {
	return domain.SynthesisJob{
		JobID:       "job-1",
		VariantHash: "abc123",
		BlockIndex:  0,
		DocumentID:  "doc-1",
		UserID:      "user-1",
		ModelID:     "cartesia-sonic",
		VoiceID:     "voice-1",
		Text:        "hello world",
		EnqueuedAt:  time.Now(),
	}
}

func TestPushAndPopAndClaim(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "cartesia-sonic", sampleJob()))

	job, claimTs, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.JobID)
	require.WithinDuration(t, time.Now(), claimTs, 2*time.Second)
}

func TestPopAndClaimEmptyQueueTimesOut(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", 250*time.Millisecond)
	require.ErrorIs(t, err, ErrNoJob)
}

func TestCompleteRemovesFromProcessing(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "cartesia-sonic", sampleJob()))
	job, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, "cartesia-sonic", job.JobID))

	stale, err := q.ScanStale(ctx, "cartesia-sonic", 0)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestRequeueIncrementsRetryCountAndReturnsToQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, q.Push(ctx, "cartesia-sonic", job))
	popped, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(ctx, "cartesia-sonic", *popped))

	requeued, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, requeued.RetryCount)
}

func TestRequeueExhaustedReturnsError(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := sampleJob()
	job.RetryCount = 3 // == maxRetries configured in newTestQueue

	err := q.Requeue(ctx, "cartesia-sonic", job)
	require.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestDLQPersistsAndDrains(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := sampleJob()
	job.RetryCount = 3
	require.NoError(t, q.DLQ(ctx, "cartesia-sonic", job, domain.DLQReasonRetriesExhausted))

	n, err := q.DLQLength(ctx, "cartesia-sonic")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	entries, err := q.DrainDLQ(ctx, "cartesia-sonic", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.DLQReasonRetriesExhausted, entries[0].Reason)
}

func TestScanStaleFindsOverdueClaims(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "cartesia-sonic", sampleJob()))
	_, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)

	// Backdate the claim timestamp: FastForward only ages TTLs, while
	// ScanStale compares stored unix-ms claim times against the Go clock.
	mr.HSet("synth:claimts:{cartesia-sonic}", "job-1", strconv.FormatInt(time.Now().Add(-2*time.Second).UnixMilli(), 10))

	stale, err := q.ScanStale(ctx, "cartesia-sonic", time.Second)
	require.NoError(t, err)
	require.Len(t, stale, 1)
}

func TestScanAgedLeavesJobInQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := sampleJob()
	job.EnqueuedAt = time.Now().Add(-time.Hour)
	require.NoError(t, q.Push(ctx, "cartesia-sonic", job))

	aged, err := q.ScanAged(ctx, "cartesia-sonic", time.Minute)
	require.NoError(t, err)
	require.Len(t, aged, 1)

	// Still claimable afterwards — scan_aged must not remove it.
	claimed, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)
	require.Equal(t, job.JobID, claimed.JobID)
}

func TestClaimForOverflowPreventsDoubleClaim(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, q.Push(ctx, "cartesia-sonic", job))

	claimed, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)

	ok, err := q.ClaimForOverflow(ctx, "cartesia-sonic", *claimed)
	require.NoError(t, err)
	require.False(t, ok, "overflow must not claim a job a local worker already popped")
}
