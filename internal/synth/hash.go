// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package synth computes the variant hash: the content address that keys
// the audio cache, identifies queue payloads, and correlates pubsub
// deliveries (spec §3).
package synth

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/readvox/synthbridge/internal/domain"
)

// Fingerprint computes H = hash(normalized_text, model_id, voice_id,
// voice_parameters). context_tokens is deliberately excluded — see
// SPEC_FULL.md §C.1 and DESIGN.md for the decided rationale: excluding it
// lets consecutive blocks dedupe across playbacks at the cost of possible
// prosody drift across neighboring context.
//
// normalizedText must already have gone through internal/normalize before
// being passed here — hashing raw, unnormalized text would let trivial
// whitespace/markdown differences defeat deduplication.
func Fingerprint(normalizedText, modelID, voiceID string, params domain.VoiceParameters) string {
	h := xxhash.New()
	_, _ = h.WriteString(normalizedText)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(modelID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(voiceID)
	_, _ = h.WriteString("\x00")
	writeSortedParams(h, params)
	return fmt.Sprintf("%016x", h.Sum64())
}

// writeSortedParams feeds voice_parameters into the hash in a deterministic
// key order — map iteration order in Go is randomized, and two requests
// with identical parameters must fingerprint identically regardless of
// how the map was built.
func writeSortedParams(h *xxhash.Digest, params domain.VoiceParameters) {
	if len(params) == 0 {
		return
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf [8]byte
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("=")
		_, _ = h.WriteString(fmt.Sprintf("%v", params[k]))
		_, _ = h.WriteString(";")
	}
	binary.BigEndian.PutUint64(buf[:], uint64(len(keys)))
	_, _ = h.Write(buf[:])
}
