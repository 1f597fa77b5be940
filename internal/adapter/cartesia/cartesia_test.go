// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_adapter_cartesia

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/readvox/synthbridge/internal/domain"
)

func TestBuildTTSRequest(t *testing.T) {
	cfg := Config{ModelName: "sonic-2"}
	job := domain.SynthesisJob{Text: "hello world", VoiceID: "voice-1"}

	req := buildTTSRequest(cfg, job)

	assert.Equal(t, "sonic-2", req.ModelID)
	assert.Equal(t, "hello world", req.Transcript)
	assert.Equal(t, "id", req.Voice.Mode)
	assert.Equal(t, "voice-1", req.Voice.ID)
	assert.Equal(t, "mp3", req.OutputFormat.Container)
	assert.Equal(t, "mp3", req.OutputFormat.Encoding)
	assert.Equal(t, 44100, req.OutputFormat.SampleRate)
}

func TestDecodeErrMessage_WithMessageField(t *testing.T) {
	body := []byte(`{"message": "bad transcript"}`)
	assert.Equal(t, "bad transcript", decodeErrMessage(body))
}

func TestDecodeErrMessage_FallsBackToRawBody(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not json")},
		{"empty message field", []byte(`{"message": ""}`)},
		{"missing message field", []byte(`{"other": "value"}`)},
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
		{"negative", -1, 0},
		{"one second at 128kbps", 16000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateMp3DurationMs(tt.sizeBytes))
		})
	}
}
