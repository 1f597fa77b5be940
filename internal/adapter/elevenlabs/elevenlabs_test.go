// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_adapter_elevenlabs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/readvox/synthbridge/internal/domain"
)

func TestBuildTTSRequest_Defaults(t *testing.T) {
	cfg := Config{ModelID: "eleven_multilingual_v2"}
	job := domain.SynthesisJob{Text: "hello"}

	req := buildTTSRequest(cfg, job)

	assert.Equal(t, "hello", req.Text)
	assert.Equal(t, "eleven_multilingual_v2", req.ModelID)
	assert.Equal(t, 0.5, req.VoiceSettings.Stability)
	assert.Equal(t, 0.75, req.VoiceSettings.SimilarityBoost)
	assert.Equal(t, float64(0), req.VoiceSettings.Style)
}

func TestBuildTTSRequest_WithOverrides(t *testing.T) {
	cfg := Config{ModelID: "eleven_multilingual_v2"}
	job := domain.SynthesisJob{
		Text: "hola",
		VoiceParameters: domain.VoiceParameters{
			"stability":        0.2,
			"similarity_boost": 0.9,
			"style":            0.4,
		},
	}

	req := buildTTSRequest(cfg, job)

	assert.Equal(t, 0.2, req.VoiceSettings.Stability)
	assert.Equal(t, 0.9, req.VoiceSettings.SimilarityBoost)
	assert.Equal(t, 0.4, req.VoiceSettings.Style)
}

func TestDecodeErrMessage_WithDetailMessage(t *testing.T) {
	body := []byte(`{"detail": {"message": "voice not found"}}`)
	assert.Equal(t, "voice not found", decodeErrMessage(body))
}

func TestDecodeErrMessage_FallsBackToRawBody(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not json")},
		{"empty detail message", []byte(`{"detail": {"message": ""}}`)},
		{"missing detail", []byte(`{"other": "value"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, string(tt.body), decodeErrMessage(tt.body))
		})
	}
}

func TestEstimateMp3DurationMs(t *testing.T) {
	tests := []struct {
		name      string
		sizeBytes int
		want      int64
	}{
		{"empty", 0, 0},
		{"negative", -3, 0},
		{"one second at 128kbps", 16000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateMp3DurationMs(tt.sizeBytes))
		})
	}
}
