// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_openaitts calls OpenAI's synchronous audio
// speech endpoint via the official openai-go client. Grounded on the
// teacher's internal/transformer/openai normalizer's note that "OpenAI TTS
// does NOT support SSML - only plain text is accepted" — this adapter never
// attempts SSML markup, just the normalized plain text already produced by
// internal/normalize.
package internal_adapter_openaitts

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/readvox/synthbridge/internal/adapter"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/workerloop"
)

type Config struct {
	APIKey string
	Model  string // e.g. "tts-1", "tts-1-hd"
}

type Adapter struct {
	client openai.Client
	cfg    Config
	logger commons.Logger
}

func New(logger commons.Logger, cfg Config) *Adapter {
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Adapter{client: client, cfg: cfg, logger: logger}
}

func (a *Adapter) ModelID() string { return "openai-tts" }

// resolveVoice picks the OpenAI voice preset: voice_parameters "voice"
// wins, then the job's voice ID, then OpenAI's "alloy" default.
func resolveVoice(job domain.SynthesisJob) string {
	voice := adapter.StringParam(job.VoiceParameters, "voice", job.VoiceID)
	if voice == "" {
		voice = "alloy"
	}
	return voice
}

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	voice := resolveVoice(job)

	resp, err := a.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(a.cfg.Model),
		Input:          job.Text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		if isBadRequest(err) {
			return nil, 0, &workerloop.NonRetriableError{Code: "invalid_request", Message: err.Error()}
		}
		return nil, 0, fmt.Errorf("openai-tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("openai-tts: read response failed: %w", err)
	}

	return audio, estimateMp3DurationMs(len(audio)), nil
}

func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai-tts: health check failed: %w", err)
	}
	return nil
}

func isBadRequest(err error) bool {
	var apiErr *openai.Error
	if ok := asOpenAIError(err, &apiErr); ok {
		return apiErr.StatusCode == 400 || apiErr.StatusCode == 422
	}
	return false
}

func asOpenAIError(err error, target **openai.Error) bool {
	apiErr, ok := err.(*openai.Error)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}

func estimateMp3DurationMs(sizeBytes int) int64 {
	const bitrateBytesPerSec = 128_000 / 8
	if sizeBytes <= 0 {
		return 0
	}
	return int64(sizeBytes) * 1000 / int64(bitrateBytesPerSec)
}
