// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_cartesia talks to Cartesia's synchronous bytes
// endpoint. The teacher's cartesia transformer (internal/transformer/cartesia)
// holds an open websocket and streams context-chunked audio back through an
// OnSpeech callback; a worker here instead makes one blocking HTTP call per
// queued block and returns the whole clip, since pull-queue jobs carry no
// live caller to stream incrementally to.
package internal_adapter_cartesia

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/workerloop"
)

const baseURL = "https://api.cartesia.ai"

type Config struct {
	APIKey    string
	ModelName string // e.g. "sonic-2"
}

type Adapter struct {
	client *resty.Client
	logger commons.Logger
	cfg    Config
}

func New(logger commons.Logger, cfg Config) *Adapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Cartesia-Version", "2024-11-13").
		SetHeader("X-API-Key", cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Adapter{client: client, logger: logger, cfg: cfg}
}

func (a *Adapter) ModelID() string { return "cartesia-sonic" }

type ttsRequest struct {
	ModelID        string                 `json:"model_id"`
	Transcript     string                 `json:"transcript"`
	Voice          ttsVoice               `json:"voice"`
	OutputFormat   ttsOutputFormat        `json:"output_format"`
	Language       string                 `json:"language,omitempty"`
	ExperimentalCS map[string]interface{} `json:"__experimental_controls,omitempty"`
}

type ttsVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type ttsOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// buildTTSRequest assembles the bytes-endpoint request body, grounded on
// the teacher's GetTextToSpeechInput (fixed mp3 output format, voice
// selected by ID rather than name).
func buildTTSRequest(cfg Config, job domain.SynthesisJob) ttsRequest {
	return ttsRequest{
		ModelID:    cfg.ModelName,
		Transcript: job.Text,
		Voice:      ttsVoice{Mode: "id", ID: job.VoiceID},
		OutputFormat: ttsOutputFormat{
			Container:  "mp3",
			Encoding:   "mp3",
			SampleRate: 44100,
		},
	}
}

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	req := buildTTSRequest(a.cfg, job)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/tts/bytes")
	if err != nil {
		return nil, 0, fmt.Errorf("cartesia: request failed: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 400 || resp.StatusCode() == 422 {
			return nil, 0, &workerloop.NonRetriableError{Code: "invalid_request", Message: decodeErrMessage(resp.Body())}
		}
		return nil, 0, fmt.Errorf("cartesia: status %d: %s", resp.StatusCode(), resp.String())
	}

	audio := resp.Body()
	durationMs := estimateMp3DurationMs(len(audio))
	return audio, durationMs, nil
}

func (a *Adapter) Health(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Get("/voices")
	if err != nil {
		return fmt.Errorf("cartesia: health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("cartesia: health check status %d", resp.StatusCode())
	}
	return nil
}

func decodeErrMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Message == "" {
		return string(body)
	}
	return payload.Message
}

// estimateMp3DurationMs gives a rough duration for cache metadata when the
// vendor response carries no explicit duration field; 128kbps is Cartesia's
// default bitrate for the mp3 output format requested above.
func estimateMp3DurationMs(sizeBytes int) int64 {
	const bitrateBytesPerSec = 128_000 / 8
	if sizeBytes <= 0 {
		return 0
	}
	return int64(sizeBytes) * 1000 / int64(bitrateBytesPerSec)
}
