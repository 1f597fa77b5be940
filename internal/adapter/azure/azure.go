// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_azure calls Azure Cognitive Services Speech via
// its official Go SDK. Voice/language option naming is grounded on the
// teacher's internal/transformer/azure normalizer
// ("speaker.voice.name"/"speaker.language" option keys), generalized to the
// synchronous SpeakTextAsync call a queue-pulled job needs instead of the
// teacher's live SSML streaming path.
package internal_adapter_azure

import (
	"context"
	"fmt"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/readvox/synthbridge/internal/adapter"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/workerloop"
)

const DefaultLanguage = "en-US"

type Config struct {
	SubscriptionKey string
	Region          string
}

type Adapter struct {
	cfg    Config
	logger commons.Logger
}

func New(logger commons.Logger, cfg Config) *Adapter {
	return &Adapter{cfg: cfg, logger: logger}
}

func (a *Adapter) ModelID() string { return "azure-cognitive-speech" }

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	speechConfig, err := speech.NewSpeechConfigFromSubscription(a.cfg.SubscriptionKey, a.cfg.Region)
	if err != nil {
		return nil, 0, fmt.Errorf("azure-tts: config init failed: %w", err)
	}
	defer speechConfig.Close()

	voiceName := resolveVoiceName(job.VoiceID)
	if err := speechConfig.SetSpeechSynthesisVoiceName(voiceName); err != nil {
		return nil, 0, fmt.Errorf("azure-tts: set voice failed: %w", err)
	}
	language := adapter.StringParam(job.VoiceParameters, "language", DefaultLanguage)
	if err := speechConfig.SetSpeechSynthesisLanguage(language); err != nil {
		a.logger.Warn("azure-tts: set language failed, continuing with voice default", "error", err)
	}

	synthesizer, err := speech.NewSpeechSynthesizerFromConfig(speechConfig, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("azure-tts: synthesizer init failed: %w", err)
	}
	defer synthesizer.Close()

	task := synthesizer.SpeakTextAsync(job.Text)
	var outcome speech.SpeechSynthesisOutcome
	select {
	case outcome = <-task:
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
	defer outcome.Close()

	if outcome.Error != nil {
		return nil, 0, fmt.Errorf("azure-tts: synthesis failed: %w", outcome.Error)
	}
	if outcome.Result.Reason == speech.SynthesisCanceled {
		details, _ := speech.NewCancellationDetailsFromSpeechSynthesisResult(outcome.Result)
		if details != nil && details.Reason == speech.Error {
			return nil, 0, &workerloop.NonRetriableError{Code: "synthesis_canceled", Message: details.ErrorDetails}
		}
		return nil, 0, fmt.Errorf("azure-tts: synthesis canceled")
	}

	audio := outcome.Result.AudioData
	return audio, estimateMp3DurationMs(len(audio)), nil
}

func (a *Adapter) Health(ctx context.Context) error {
	speechConfig, err := speech.NewSpeechConfigFromSubscription(a.cfg.SubscriptionKey, a.cfg.Region)
	if err != nil {
		return fmt.Errorf("azure-tts: health check config failed: %w", err)
	}
	speechConfig.Close()
	return nil
}

// resolveVoiceName falls back to Azure's default neural voice when the job
// carries none (spec: every synthesis request must resolve to a concrete
// voice before reaching the vendor SDK).
func resolveVoiceName(voiceID string) string {
	if voiceID == "" {
		return "en-US-JennyNeural"
	}
	return voiceID
}

func estimateMp3DurationMs(sizeBytes int) int64 {
	const bitrateBytesPerSec = 128_000 / 8
	if sizeBytes <= 0 {
		return 0
	}
	return int64(sizeBytes) * 1000 / int64(bitrateBytesPerSec)
}
