// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package workerloop

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
)

type fakeAdapter struct {
	modelID    string
	audio      []byte
	durationMs int64
	err        error
	healthErr  error
}

func (f *fakeAdapter) ModelID() string { return f.modelID }
func (f *fakeAdapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	return f.audio, f.durationMs, f.err
}
func (f *fakeAdapter) Health(ctx context.Context) error { return f.healthErr }

func newTestHarness(t *testing.T) (*redis.Client, *queue.Queue, *resultstream.Stream) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := commons.NewTestLogger()
	q := queue.New(client, logger, "synth", 3)
	stream := resultstream.New(client, logger, "results", "gateway")
	require.NoError(t, stream.EnsureGroup(context.Background()))

	return client, q, stream
}

func TestLoopPushesSuccessResult(t *testing.T) {
	_, q, stream := newTestHarness(t)
	logger := commons.NewTestLogger()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Push(ctx, "cartesia-sonic", domain.SynthesisJob{
		JobID: "job-1", ModelID: "cartesia-sonic", VariantHash: "h1", Text: "hello", EnqueuedAt: time.Now(),
	}))

	adapter := &fakeAdapter{modelID: "cartesia-sonic", audio: []byte("audio"), durationMs: 500}
	loop := New(q, stream, adapter, logger, "worker-1", 100*time.Millisecond, nil)

	go func() {
		_ = loop.Run(ctx)
	}()

	entries, err := stream.Read(context.Background(), "consumer-1", 1, 2*time.Second)
	cancel()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Result.Succeeded())
	require.Equal(t, "job-1", entries[0].Result.JobID)
}

func TestLoopPushesErrorResultOnSynthesizeFailure(t *testing.T) {
	_, q, stream := newTestHarness(t)
	logger := commons.NewTestLogger()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, q.Push(ctx, "cartesia-sonic", domain.SynthesisJob{
		JobID: "job-2", ModelID: "cartesia-sonic", VariantHash: "h2", Text: "hello", EnqueuedAt: time.Now(),
	}))

	adapter := &fakeAdapter{modelID: "cartesia-sonic", err: &NonRetriableError{Code: "invalid_voice", Message: "no such voice"}}
	loop := New(q, stream, adapter, logger, "worker-1", 100*time.Millisecond, nil)

	go func() {
		_ = loop.Run(ctx)
	}()

	entries, err := stream.Read(context.Background(), "consumer-1", 1, 2*time.Second)
	cancel()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Result.Succeeded())
	require.True(t, entries[0].Result.Error.NonRetriable)
	require.Equal(t, "invalid_voice", entries[0].Result.Error.Code)
}
