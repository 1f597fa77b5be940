// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/pubsub"
)

// pendingBlock is one entry of a connection's pending set: a block the
// client has asked for but has not yet received audio for.
type pendingBlock struct {
	variantHash string
}

// session holds the per-connection state spec §4.8 describes: the
// subscribed-documents set, the pubsub handle bound to the connection, and
// the pending set of blocks still awaited. Mutex/writeMu split and the
// relay-goroutine shape follow the teacher's websocket_executor.go, turned
// around to the server side of the connection.
type session struct {
	conn    *websocket.Conn
	userID  string
	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*pubsub.Subscription // document_id -> subscription
	pending map[string]map[int]pendingBlock // document_id -> block_index -> entry
}

func newSession(conn *websocket.Conn, userID string) *session {
	return &session{
		conn:    conn,
		userID:  userID,
		subs:    make(map[string]*pubsub.Subscription),
		pending: make(map[string]map[int]pendingBlock),
	}
}

// writeJSON serializes under the connection's write mutex — gorilla's
// websocket.Conn forbids concurrent writers.
func (s *session) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// isSubscribed reports whether the connection already has a pubsub handle
// open for documentID.
func (s *session) isSubscribed(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[documentID]
	return ok
}

// addSubscription records a newly opened subscription. Caller owns
// starting the relay goroutine that drains it.
func (s *session) addSubscription(documentID string, sub *pubsub.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[documentID] = sub
}

// addPending records that this connection is waiting on variantHash for
// (documentID, blockIndex).
func (s *session) addPending(documentID string, blockIndex int, variantHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blocks, ok := s.pending[documentID]
	if !ok {
		blocks = make(map[int]pendingBlock)
		s.pending[documentID] = blocks
	}
	blocks[blockIndex] = pendingBlock{variantHash: variantHash}
}

// removePending drops a single (documentID, blockIndex) pending entry,
// e.g. once its done message has been delivered.
func (s *session) removePending(documentID string, blockIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blocks, ok := s.pending[documentID]; ok {
		delete(blocks, blockIndex)
	}
}

// evictOutsideWindow removes every pending block of documentID whose index
// falls before cursorIndex — already-played blocks the client no longer
// needs (spec §4.8.3: "remove from the pending set any block outside the
// client's playback window"). Enqueued jobs are not cancelled by this;
// the caller still owes the in-flight registry a RemoveSubscriber call for
// each evicted (documentID, blockIndex, variantHash) tuple.
func (s *session) evictOutsideWindow(documentID string, cursorIndex int) []drainedPending {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks, ok := s.pending[documentID]
	if !ok {
		return nil
	}

	var evicted []drainedPending
	for idx, block := range blocks {
		if idx < cursorIndex {
			evicted = append(evicted, drainedPending{
				subscriber:  domain.Subscriber{UserID: s.userID, DocumentID: documentID, BlockIndex: idx},
				variantHash: block.variantHash,
			})
			delete(blocks, idx)
		}
	}
	return evicted
}

// drainedPending pairs a pending block's subscriber tuple with the variant
// hash it was registered against, so connection-close cleanup can release
// the matching in-flight subscriber row.
type drainedPending struct {
	subscriber  domain.Subscriber
	variantHash string
}

// drain clears all subscriptions and pending entries, returning both so the
// caller can close subscriptions and release in-flight subscriber rows
// outside the session lock (spec §4.8.4, connection-close cleanup).
func (s *session) drain() (map[string]*pubsub.Subscription, []drainedPending) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subs
	s.subs = make(map[string]*pubsub.Subscription)

	var pending []drainedPending
	for documentID, blocks := range s.pending {
		for blockIndex, block := range blocks {
			pending = append(pending, drainedPending{
				subscriber:  domain.Subscriber{UserID: s.userID, DocumentID: documentID, BlockIndex: blockIndex},
				variantHash: block.variantHash,
			})
		}
	}
	s.pending = make(map[string]map[int]pendingBlock)

	return subs, pending
}

// relaySubscription forwards every message the subscription receives to
// the client as-is, stopping when ctx is cancelled or the subscription
// closes — the server-side half of the idiom websocket_executor.go uses
// for its own inbound relay loop.
func relaySubscription(ctx context.Context, s *session, documentID string, sub *pubsub.Subscription, onDelivered func(blockIndex int)) {
	for msg := range sub.Messages(ctx) {
		if err := s.writeJSON(msg); err != nil {
			return
		}
		if msg.Status == domain.StatusCached || msg.Status == domain.StatusError {
			onDelivered(msg.BlockIndex)
		}
	}
}
