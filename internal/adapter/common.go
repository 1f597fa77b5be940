// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package adapter holds the shared helpers every per-vendor TTS adapter
// (adapter/google, adapter/azure, adapter/polly, adapter/openaitts,
// adapter/deepgram, adapter/cartesia, adapter/elevenlabs, adapter/sarvam)
// builds on. Each vendor adapter satisfies workerloop.Adapter, mirroring
// the teacher's per-provider transformer layout
// (internal/transformer/<vendor>) generalized from a streaming
// Initialize/Transform/Close lifecycle to a single synchronous call, since
// a worker here processes one queued block at a time rather than holding
// an open duplex connection per live call.
package adapter

import "github.com/readvox/synthbridge/internal/domain"

// FloatParam reads a float64-valued voice parameter, falling back to def
// when absent or of the wrong type.
func FloatParam(params domain.VoiceParameters, key string, def float64) float64 {
	if params == nil {
		return def
	}
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return def
}

// StringParam reads a string-valued voice parameter, falling back to def.
func StringParam(params domain.VoiceParameters, key, def string) string {
	if params == nil {
		return def
	}
	v, ok := params[key].(string)
	if !ok || v == "" {
		return def
	}
	return v
}
