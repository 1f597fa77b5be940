// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_deepgram calls Deepgram's Aura text-to-speech
// REST endpoint directly over HTTP with go-resty, the same client used by
// adapter/cartesia, adapter/elevenlabs, and adapter/sarvam. deepgram-go-sdk's
// value is almost entirely its live streaming transcription client (see
// DESIGN.md); Aura TTS is one small synchronous POST, so wiring the whole
// streaming SDK in just for that call would mean importing its
// websocket/session machinery and never exercising it.
package internal_adapter_deepgram

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

const baseURL = "https://api.deepgram.com/v1"

type Config struct {
	APIKey string
	Model  string // e.g. "aura-asteria-en"
}

type Adapter struct {
	client *resty.Client
	cfg    Config
	logger commons.Logger
}

func New(logger commons.Logger, cfg Config) *Adapter {
	if cfg.Model == "" {
		cfg.Model = "aura-asteria-en"
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Token "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Adapter{client: client, cfg: cfg, logger: logger}
}

func (a *Adapter) ModelID() string { return "deepgram-aura" }

type speakRequest struct {
	Text string `json:"text"`
}

// resolveModel picks the Aura voice to speak with: an explicit job voice ID
// wins outright, otherwise the voice_parameters "model" override, otherwise
// the adapter's configured default.
func resolveModel(cfg Config, job domain.SynthesisJob) string {
	model := adapter.StringParam(job.VoiceParameters, "model", cfg.Model)
	if job.VoiceID != "" {
		model = job.VoiceID
	}
	return model
}

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	model := resolveModel(a.cfg, job)

	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"model":       model,
			"encoding":    "mp3",
			"sample_rate": "24000",
		}).
		SetBody(speakRequest{Text: job.Text}).
		Post("/speak")
	if err != nil {
		return nil, 0, fmt.Errorf("deepgram-aura: request failed: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 400 || resp.StatusCode() == 422 {
			return nil, 0, &workerloop.NonRetriableError{Code: "invalid_request", Message: decodeErrMessage(resp.Body())}
		}
		return nil, 0, fmt.Errorf("deepgram-aura: status %d: %s", resp.StatusCode(), resp.String())
	}

	audio := resp.Body()
	return audio, estimateMp3DurationMs(len(audio)), nil
}

func (a *Adapter) Health(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Get("/projects")
	if err != nil {
		return fmt.Errorf("deepgram-aura: health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("deepgram-aura: health check status %d", resp.StatusCode())
	}
	return nil
}

func decodeErrMessage(body []byte) string {
	var payload struct {
		ErrMsg string `json:"err_msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.ErrMsg == "" {
		return string(body)
	}
	return payload.ErrMsg
}

func estimateMp3DurationMs(sizeBytes int) int64 {
	const bitrateBytesPerSec = 128_000 / 8
	if sizeBytes <= 0 {
		return 0
	}
	return int64(sizeBytes) * 1000 / int64(bitrateBytesPerSec)
}
