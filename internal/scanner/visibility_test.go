// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package scanner

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
	"github.com/readvox/synthbridge/internal/inflight"
	"github.com/readvox/synthbridge/internal/pubsub"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
)

func newVisibilityHarness(t *testing.T) (*VisibilityScanner, *queue.Queue, *resultstream.Stream, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := commons.NewTestLogger()
	q := queue.New(client, logger, "synth", 3)
	reg := inflight.New(client, logger)
	bus := pubsub.New(client, logger)
	stream := resultstream.New(client, logger, "results", "gateway")
	require.NoError(t, stream.EnsureGroup(context.Background()))

	s := NewVisibilityScanner(q, stream, reg, bus, logger, []string{"cartesia-sonic"}, time.Second, 30*time.Second)
	return s, q, stream, mr
}

func TestVisibilityScannerRequeuesStaleClaim(t *testing.T) {
	s, q, _, mr := newVisibilityHarness(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "cartesia-sonic", domain.SynthesisJob{
		JobID: "job-1", ModelID: "cartesia-sonic", VariantHash: "h1", EnqueuedAt: time.Now(),
	}))
	_, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)

	// Backdate the claim timestamp: FastForward only ages TTLs, while
	// ScanStale compares stored unix-ms claim times against the Go clock.
	mr.HSet("synth:claimts:{cartesia-sonic}", "job-1", strconv.FormatInt(time.Now().Add(-31*time.Second).UnixMilli(), 10))

	s.scanOne(ctx, "cartesia-sonic")

	job, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-2", time.Second)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.JobID)
	require.Equal(t, 1, job.RetryCount)
}

func TestVisibilityScannerDLQsExhaustedClaimAndPushesSyntheticResult(t *testing.T) {
	s, q, stream, mr := newVisibilityHarness(t)
	ctx := context.Background()

	job := domain.SynthesisJob{
		JobID: "job-2", ModelID: "cartesia-sonic", VariantHash: "h2", EnqueuedAt: time.Now(), RetryCount: 3,
	}
	require.NoError(t, q.Push(ctx, "cartesia-sonic", job))
	_, _, err := q.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)

	mr.HSet("synth:claimts:{cartesia-sonic}", "job-2", strconv.FormatInt(time.Now().Add(-31*time.Second).UnixMilli(), 10))

	s.scanOne(ctx, "cartesia-sonic")

	n, err := q.DLQLength(ctx, "cartesia-sonic")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	entries, err := stream.Read(ctx, "consumer-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Result.Succeeded())
	require.True(t, entries[0].Result.Error.NonRetriable)
}
