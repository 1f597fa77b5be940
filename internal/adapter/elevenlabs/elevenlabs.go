// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_elevenlabs calls ElevenLabs' synchronous
// text-to-speech endpoint, grounded on the teacher's
// internal/transformer/elevenlabs normalizer for voice-parameter naming
// (stability/similarity_boost/style) generalized from a streaming
// websocket transformer to a single blocking HTTP POST per job.
package internal_adapter_elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/readvox/synthbridge/internal/adapter"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/workerloop"
)

const baseURL = "https://api.elevenlabs.io/v1"

type Config struct {
	APIKey  string
	ModelID string // e.g. "eleven_multilingual_v2"
}

type Adapter struct {
	client *resty.Client
	cfg    Config
	logger commons.Logger
}

func New(logger commons.Logger, cfg Config) *Adapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("xi-api-key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "audio/mpeg")
	return &Adapter{client: client, cfg: cfg, logger: logger}
}

func (a *Adapter) ModelID() string { return "elevenlabs-tts" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// buildTTSRequest assembles the request body, grounded on the teacher's
// elevenlabs transformer's voice_settings defaults (stability 0.5,
// similarity_boost 0.75, style 0) generalized from websocket frames to a
// single JSON POST body.
func buildTTSRequest(cfg Config, job domain.SynthesisJob) ttsRequest {
	return ttsRequest{
		Text:    job.Text,
		ModelID: cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       adapter.FloatParam(job.VoiceParameters, "stability", 0.5),
			SimilarityBoost: adapter.FloatParam(job.VoiceParameters, "similarity_boost", 0.75),
			Style:           adapter.FloatParam(job.VoiceParameters, "style", 0),
		},
	}
}

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	req := buildTTSRequest(a.cfg, job)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(fmt.Sprintf("/text-to-speech/%s", job.VoiceID))
	if err != nil {
		return nil, 0, fmt.Errorf("elevenlabs: request failed: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 400 || resp.StatusCode() == 422 {
			return nil, 0, &workerloop.NonRetriableError{Code: "invalid_request", Message: decodeErrMessage(resp.Body())}
		}
		return nil, 0, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode(), resp.String())
	}

	audio := resp.Body()
	return audio, estimateMp3DurationMs(len(audio)), nil
}

func (a *Adapter) Health(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Get("/user")
	if err != nil {
		return fmt.Errorf("elevenlabs: health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("elevenlabs: health check status %d", resp.StatusCode())
	}
	return nil
}

func decodeErrMessage(body []byte) string {
	var payload struct {
		Detail struct {
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Detail.Message == "" {
		return string(body)
	}
	return payload.Detail.Message
}

func estimateMp3DurationMs(sizeBytes int) int64 {
	const bitrateBytesPerSec = 128_000 / 8
	if sizeBytes <= 0 {
		return 0
	}
	return int64(sizeBytes) * 1000 / int64(bitrateBytesPerSec)
}
