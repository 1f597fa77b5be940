// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package ws implements the per-connection WebSocket dispatcher (spec
// §4.8): authenticate, track subscribed documents and a pending set,
// translate `synthesize`/`cursor_moved` client messages into queue/cache/
// in-flight operations, and relay the result consumer's done messages back
// to the client over its own pubsub subscription. Message envelope and
// read/write-loop shape grounded on the teacher's websocket_executor.go
// (same JSON envelope + write-mutex + read-loop idiom, turned around to
// the server side the teacher's webrtc.go upgrade handler shows).
package ws

import (
	"encoding/json"

	"github.com/readvox/synthbridge/internal/domain"
)

// inboundType tags a client -> gateway message the same way the teacher's
// WSMessageType tags its own envelope.
type inboundType string

const (
	inboundSynthesize  inboundType = "synthesize"
	inboundCursorMoved inboundType = "cursor_moved"
)

type inboundEnvelope struct {
	Type inboundType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// synthesizeMsg is the client's request to render one block (spec §6.1).
type synthesizeMsg struct {
	DocumentID      string                 `json:"document_id"`
	BlockIndex      int                    `json:"block_index"`
	Text            string                 `json:"text"`
	ModelID         string                 `json:"model_id"`
	VoiceID         string                 `json:"voice_id"`
	VoiceParameters domain.VoiceParameters `json:"voice_parameters,omitempty"`
	ContextTokens   []byte                 `json:"context_tokens,omitempty"`
}

// cursorMovedMsg tells the dispatcher which blocks are no longer in the
// client's playback window (spec §6.1).
type cursorMovedMsg struct {
	DocumentID  string `json:"document_id"`
	CursorIndex int    `json:"cursor_index"`
}
