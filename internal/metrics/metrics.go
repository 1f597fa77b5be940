// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package metrics is the process-wide counter registry backing the named
// counters spec.md's prose mentions in passing (cache hit/miss,
// synthesis_error, overflow_complete) but never turns into its own
// [MODULE]. No teacher file owns an equivalent registry; this is a small
// atomic-counter struct in the same spirit as the teacher's health-check
// state, built directly against sync/atomic since nothing in the retrieval
// pack wires a metrics client (no prometheus/statsd import appears in any
// pack go.mod) and internal/adminapi is the only reader.
package metrics

import "sync/atomic"

// Registry holds every named counter the synthesis pipeline increments.
// Safe for concurrent use by workers, scanners, and the consumer alike.
type Registry struct {
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	synthesisErrors  atomic.Int64
	overflowComplete atomic.Int64
	dlqWrites        atomic.Int64
	jobsCompleted    atomic.Int64
}

func New() *Registry {
	return &Registry{}
}

func (r *Registry) IncCacheHit()         { r.cacheHits.Add(1) }
func (r *Registry) IncCacheMiss()        { r.cacheMisses.Add(1) }
func (r *Registry) IncSynthesisError()   { r.synthesisErrors.Add(1) }
func (r *Registry) IncOverflowComplete() { r.overflowComplete.Add(1) }
func (r *Registry) IncDLQWrite()         { r.dlqWrites.Add(1) }
func (r *Registry) IncJobCompleted()     { r.jobsCompleted.Add(1) }

// Snapshot is the point-in-time view the admin API serializes.
type Snapshot struct {
	CacheHits        int64 `json:"cache_hits"`
	CacheMisses      int64 `json:"cache_misses"`
	SynthesisErrors  int64 `json:"synthesis_errors"`
	OverflowComplete int64 `json:"overflow_complete"`
	DLQWrites        int64 `json:"dlq_writes"`
	JobsCompleted    int64 `json:"jobs_completed"`
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		CacheHits:        r.cacheHits.Load(),
		CacheMisses:      r.cacheMisses.Load(),
		SynthesisErrors:  r.synthesisErrors.Load(),
		OverflowComplete: r.overflowComplete.Load(),
		DLQWrites:        r.dlqWrites.Load(),
		JobsCompleted:    r.jobsCompleted.Load(),
	}
}
