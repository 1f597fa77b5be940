// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/replicate/replicate-go"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/metrics"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
	"github.com/readvox/synthbridge/internal/tracing"
)

// outstandingEntry pairs a submitted serverless prediction with the local
// job it stands in for, so a later poll can translate its outcome back
// into a WorkerResult (spec §4.7, the `outstanding` map).
type outstandingEntry struct {
	modelID      string
	job          domain.SynthesisJob
	predictionID string
	submittedAt  time.Time
}

// predictor is the slice of *replicate.Client this scanner actually calls,
// narrowed so a fake can stand in for tests without hitting the network.
type predictor interface {
	CreatePrediction(ctx context.Context, version string, input replicate.PredictionInput, webhook *replicate.Webhook, wait bool) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

// OverflowScanner claims aged (unclaimed-too-long) jobs off a model's queue
// and offloads them to a serverless prediction endpoint when local workers
// are running behind, relieving burst load (spec §4.7). Disabled entirely
// when no serverless endpoint is configured.
type OverflowScanner struct {
	queue    *queue.Queue
	stream   *resultstream.Stream
	metrics  *metrics.Registry
	logger   commons.Logger
	modelIDs []string

	client       predictor
	modelVersion string

	scanInterval      time.Duration
	overflowThreshold time.Duration
	requestTimeout    time.Duration

	mu          sync.Mutex
	outstanding map[string]*outstandingEntry // keyed by prediction ID
}

func NewOverflowScanner(
	q *queue.Queue,
	stream *resultstream.Stream,
	m *metrics.Registry,
	logger commons.Logger,
	modelIDs []string,
	apiToken, modelVersion string,
	scanInterval, overflowThreshold, requestTimeout time.Duration,
) (*OverflowScanner, error) {
	client, err := replicate.NewClient(replicate.WithToken(apiToken))
	if err != nil {
		return nil, err
	}
	return newOverflowScanner(q, stream, m, logger, modelIDs, client, modelVersion, scanInterval, overflowThreshold, requestTimeout), nil
}

func newOverflowScanner(
	q *queue.Queue,
	stream *resultstream.Stream,
	m *metrics.Registry,
	logger commons.Logger,
	modelIDs []string,
	client predictor,
	modelVersion string,
	scanInterval, overflowThreshold, requestTimeout time.Duration,
) *OverflowScanner {
	return &OverflowScanner{
		queue: q, stream: stream, metrics: m, logger: logger, modelIDs: modelIDs,
		client: client, modelVersion: modelVersion,
		scanInterval: scanInterval, overflowThreshold: overflowThreshold, requestTimeout: requestTimeout,
		outstanding: make(map[string]*outstandingEntry),
	}
}

// Run ticks on s.scanInterval until ctx is cancelled. Each tick: claims
// newly aged jobs and submits them, then polls every prediction already
// outstanding. Never blocks on a serverless job's own duration (spec §4.7
// invariant: "the scanner never blocks on a serverless job's duration").
func (s *OverflowScanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, modelID := range s.modelIDs {
				s.claimAndSubmit(ctx, modelID)
			}
			s.pollOutstanding(ctx)
		}
	}
}

func (s *OverflowScanner) claimAndSubmit(ctx context.Context, modelID string) {
	aged, err := s.queue.ScanAged(ctx, modelID, s.overflowThreshold)
	if err != nil {
		s.logger.Error("overflow-scanner: scan_aged failed", "model_id", modelID, "error", err)
		return
	}

	for _, job := range aged {
		claimed, err := s.queue.ClaimForOverflow(ctx, modelID, job)
		if err != nil {
			s.logger.Error("overflow-scanner: claim failed", "job_id", job.JobID, "error", err)
			continue
		}
		if !claimed {
			// A local worker already popped it; nothing to do.
			continue
		}
		s.submit(ctx, modelID, job)
	}
}

func (s *OverflowScanner) submit(ctx context.Context, modelID string, job domain.SynthesisJob) {
	input := replicate.PredictionInput{
		"text":     job.Text,
		"voice_id": job.VoiceID,
		"model_id": modelID,
	}
	if job.VoiceParameters != nil {
		input["voice_parameters"] = map[string]interface{}(job.VoiceParameters)
	}

	ctx, endSpan := tracing.StartSpan(ctx, "overflow_scanner.submit")
	prediction, err := s.client.CreatePrediction(ctx, s.modelVersion, input, nil, false)
	endSpan(err)
	if err != nil {
		s.logger.Error("overflow-scanner: submit failed", "job_id", job.JobID, "error", err)
		s.fail(ctx, modelID, job)
		return
	}

	s.mu.Lock()
	s.outstanding[prediction.ID] = &outstandingEntry{
		modelID: modelID, job: job, predictionID: prediction.ID, submittedAt: time.Now(),
	}
	s.mu.Unlock()
}

func (s *OverflowScanner) pollOutstanding(ctx context.Context) {
	s.mu.Lock()
	entries := make([]*outstandingEntry, 0, len(s.outstanding))
	for _, e := range s.outstanding {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.pollOne(ctx, e)
	}
}

func (s *OverflowScanner) pollOne(ctx context.Context, e *outstandingEntry) {
	ctx, endSpan := tracing.StartSpan(ctx, "overflow_scanner.poll")
	prediction, err := s.client.GetPrediction(ctx, e.predictionID)
	endSpan(err)
	if err != nil {
		s.logger.Error("overflow-scanner: poll failed", "prediction_id", e.predictionID, "error", err)
		return
	}

	timedOut := time.Since(e.submittedAt) > s.requestTimeout

	switch {
	case prediction.Status == replicate.Succeeded:
		s.complete(ctx, e, prediction)
		s.drop(e.predictionID)
	case prediction.Status == replicate.Failed || prediction.Status == replicate.Canceled || timedOut:
		s.fail(ctx, e.modelID, e.job)
		s.drop(e.predictionID)
	default:
		// Still starting/processing: leave it for the next tick.
	}
}

func (s *OverflowScanner) drop(predictionID string) {
	s.mu.Lock()
	delete(s.outstanding, predictionID)
	s.mu.Unlock()
}

func (s *OverflowScanner) complete(ctx context.Context, e *outstandingEntry, prediction *replicate.Prediction) {
	audioURL, _ := prediction.Output.(string)
	result := domain.WorkerResult{
		JobID:       e.job.JobID,
		VariantHash: e.job.VariantHash,
		UserID:      e.job.UserID,
		DocumentID:  e.job.DocumentID,
		BlockIndex:  e.job.BlockIndex,
		ModelID:     e.modelID,
		VoiceID:     e.job.VoiceID,
		WorkerID:    "overflow-scanner",
		RetryCount:  e.job.RetryCount,
	}
	if audioURL == "" {
		result.Error = &domain.ResultErr{Code: "overflow_bad_output", Message: "serverless prediction returned no audio", NonRetriable: false}
	} else {
		audio, fetchErr := fetchAudio(ctx, audioURL, s.requestTimeout)
		if fetchErr != nil {
			s.logger.Error("overflow-scanner: audio fetch failed", "job_id", e.job.JobID, "error", fetchErr)
			s.fail(ctx, e.modelID, e.job)
			return
		}
		result.AudioBytes = audio
	}

	if err := s.stream.Push(ctx, result); err != nil {
		s.logger.Error("overflow-scanner: result push failed", "job_id", e.job.JobID, "error", err)
	}
	if result.Succeeded() {
		s.metrics.IncOverflowComplete()
	}
}

// fail treats a serverless attempt as a single failed try of the job: a
// serverless submission counts toward max_retries the same way a local
// worker attempt does (spec §4.7 invariant).
func (s *OverflowScanner) fail(ctx context.Context, modelID string, job domain.SynthesisJob) {
	if err := s.queue.Requeue(ctx, modelID, job); err == nil {
		return
	} else if err != queue.ErrRetriesExhausted {
		s.logger.Error("overflow-scanner: requeue failed", "job_id", job.JobID, "error", err)
		return
	}

	if err := s.queue.DLQ(ctx, modelID, job, domain.DLQReasonRetriesExhausted); err != nil {
		s.logger.Error("overflow-scanner: dlq failed", "job_id", job.JobID, "error", err)
		return
	}

	syntheticResult := domain.WorkerResult{
		JobID:       job.JobID,
		VariantHash: job.VariantHash,
		UserID:      job.UserID,
		DocumentID:  job.DocumentID,
		BlockIndex:  job.BlockIndex,
		ModelID:     modelID,
		VoiceID:     job.VoiceID,
		RetryCount:  job.RetryCount,
		Error:       &domain.ResultErr{Code: "retries_exhausted", Message: "serverless overflow attempt failed past max_retries", NonRetriable: true},
	}
	if err := s.stream.Push(ctx, syntheticResult); err != nil {
		s.logger.Error("overflow-scanner: synthetic result push failed", "job_id", job.JobID, "error", err)
	}
}
