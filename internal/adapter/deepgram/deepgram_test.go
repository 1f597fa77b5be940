// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_adapter_deepgram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/readvox/synthbridge/internal/domain"
)

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		job  domain.SynthesisJob
		want string
	}{
		{
			name: "configured default when nothing overrides it",
			cfg:  Config{Model: "aura-asteria-en"},
			job:  domain.SynthesisJob{},
			want: "aura-asteria-en",
		},
		{
			name: "voice_parameters model override",
			cfg:  Config{Model: "aura-asteria-en"},
			job:  domain.SynthesisJob{VoiceParameters: domain.VoiceParameters{"model": "aura-luna-en"}},
			want: "aura-luna-en",
		},
		{
			name: "job voice id wins over everything",
			cfg:  Config{Model: "aura-asteria-en"},
			job: domain.SynthesisJob{
				VoiceID:         "aura-zeus-en",
				VoiceParameters: domain.VoiceParameters{"model": "aura-luna-en"},
			},
			want: "aura-zeus-en",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveModel(tt.cfg, tt.job))
		})
	}
}

func TestDecodeErrMessage_WithErrMsgField(t *testing.T) {
	body := []byte(`{"err_msg": "invalid model"}`)
	assert.Equal(t, "invalid model", decodeErrMessage(body))
}

func TestDecodeErrMessage_FallsBackToRawBody(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("not json")},
		{"empty err_msg field", []byte(`{"err_msg": ""}`)},
		{"missing err_msg field", []byte(`{"other": "value"}`)},
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
		{"negative", -5, 0},
		{"one second at 128kbps", 16000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateMp3DurationMs(tt.sizeBytes))
		})
	}
}
