// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_sarvam calls Sarvam AI's synchronous
// text-to-speech endpoint, grounded on the teacher's
// internal/transformer/sarvam websocket transformer (NewSarvamTextToSpeech,
// credential-bearing Initialize/Transform/Close lifecycle), generalized to
// a single blocking HTTP call per job the same way adapter/elevenlabs does.
package internal_adapter_sarvam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/readvox/synthbridge/internal/adapter"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/workerloop"
)

const baseURL = "https://api.sarvam.ai"

type Config struct {
	APIKey string
}

type Adapter struct {
	client *resty.Client
	logger commons.Logger
}

func New(logger commons.Logger, cfg Config) *Adapter {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("api-subscription-key", cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Adapter{client: client, logger: logger}
}

func (a *Adapter) ModelID() string { return "sarvam-bulbul" }

type ttsRequest struct {
	Text             string  `json:"text"`
	TargetLanguage   string  `json:"target_language_code"`
	Speaker          string  `json:"speaker"`
	Pitch            float64 `json:"pitch"`
	Pace             float64 `json:"pace"`
	Loudness         float64 `json:"loudness"`
	SpeechSampleRate int     `json:"speech_sample_rate"`
}

type ttsResponse struct {
	Audios []string `json:"audios"` // base64-encoded wav clips
}

// buildTTSRequest assembles the request body, grounded on the teacher's
// sarvam websocket transformer's default target language (en-IN) and
// pitch/pace/loudness neutrals.
func buildTTSRequest(job domain.SynthesisJob) ttsRequest {
	return ttsRequest{
		Text:             job.Text,
		TargetLanguage:   adapter.StringParam(job.VoiceParameters, "target_language_code", "en-IN"),
		Speaker:          job.VoiceID,
		Pitch:            adapter.FloatParam(job.VoiceParameters, "pitch", 0),
		Pace:             adapter.FloatParam(job.VoiceParameters, "pace", 1.0),
		Loudness:         adapter.FloatParam(job.VoiceParameters, "loudness", 1.0),
		SpeechSampleRate: 22050,
	}
}

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	req := buildTTSRequest(job)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/text-to-speech")
	if err != nil {
		return nil, 0, fmt.Errorf("sarvam: request failed: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 400 || resp.StatusCode() == 422 {
			return nil, 0, &workerloop.NonRetriableError{Code: "invalid_request", Message: decodeErrMessage(resp.Body())}
		}
		return nil, 0, fmt.Errorf("sarvam: status %d: %s", resp.StatusCode(), resp.String())
	}

	var payload ttsResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, 0, fmt.Errorf("sarvam: decode response failed: %w", err)
	}
	if len(payload.Audios) == 0 {
		return nil, 0, fmt.Errorf("sarvam: no audio in response")
	}

	audio, err := base64.StdEncoding.DecodeString(payload.Audios[0])
	if err != nil {
		return nil, 0, fmt.Errorf("sarvam: decode audio failed: %w", err)
	}

	return audio, estimateWavDurationMs(len(audio)), nil
}

func (a *Adapter) Health(ctx context.Context) error {
	resp, err := a.client.R().SetContext(ctx).Get("/text-to-speech/supported-languages")
	if err != nil {
		return fmt.Errorf("sarvam: health check failed: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return fmt.Errorf("sarvam: health check status %d", resp.StatusCode())
	}
	return nil
}

func decodeErrMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
		return string(body)
	}
	return payload.Error.Message
}

// estimateWavDurationMs assumes 22050Hz 16-bit mono PCM, the sample rate
// requested above.
func estimateWavDurationMs(sizeBytes int) int64 {
	const bytesPerSample = 2
	const sampleRate = 22050
	if sizeBytes <= 44 {
		return 0
	}
	samples := (sizeBytes - 44) / bytesPerSample
	return int64(samples) * 1000 / sampleRate
}
