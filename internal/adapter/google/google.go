// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_google calls Google Cloud Text-to-Speech's
// synchronous SynthesizeSpeech RPC. Client-option construction (API key vs.
// service-account JSON) is grounded on the teacher's
// internal/transformer/google.NewGoogleOption, generalized from its
// streaming-synthesis config to the non-streaming texttospeechpb request
// shape a queue-pulled job needs.
package internal_adapter_google

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/readvox/synthbridge/internal/adapter"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

const DefaultLanguageCode = "en-US"

type Config struct {
	APIKey            string
	ServiceAccountKey []byte
}

type Adapter struct {
	client *texttospeech.Client
	logger commons.Logger
}

func New(ctx context.Context, logger commons.Logger, cfg Config) (*Adapter, error) {
	var opts []option.ClientOption
	switch {
	case len(cfg.ServiceAccountKey) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.ServiceAccountKey))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google-tts: client init failed: %w", err)
	}
	return &Adapter{client: client, logger: logger}, nil
}

func (a *Adapter) ModelID() string { return "google-texttospeech" }

// buildSynthesizeRequest assembles the SynthesizeSpeech RPC request,
// grounded on the teacher's NewGoogleOption defaults (en-US, natural
// speaking rate/pitch) generalized from streaming config to a single
// non-streaming request message.
func buildSynthesizeRequest(job domain.SynthesisJob) *texttospeechpb.SynthesizeSpeechRequest {
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: job.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: adapter.StringParam(job.VoiceParameters, "language_code", DefaultLanguageCode),
			Name:         job.VoiceID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
			SpeakingRate:  adapter.FloatParam(job.VoiceParameters, "speaking_rate", 1.0),
			Pitch:         adapter.FloatParam(job.VoiceParameters, "pitch", 0),
		},
	}
}

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	req := buildSynthesizeRequest(job)

	resp, err := a.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("google-tts: synthesize failed: %w", err)
	}

	audio := resp.GetAudioContent()
	return audio, estimateMp3DurationMs(len(audio)), nil
}

func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: DefaultLanguageCode})
	if err != nil {
		return fmt.Errorf("google-tts: health check failed: %w", err)
	}
	return nil
}

func estimateMp3DurationMs(sizeBytes int) int64 {
	const bitrateBytesPerSec = 128_000 / 8
	if sizeBytes <= 0 {
		return 0
	}
	return int64(sizeBytes) * 1000 / int64(bitrateBytesPerSec)
}
