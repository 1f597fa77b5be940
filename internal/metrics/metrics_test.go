// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersAccumulateUnderConcurrentIncrement(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncCacheHit()
			r.IncJobCompleted()
		}()
	}
	wg.Wait()

	snap := r.Snapshot()
	require.Equal(t, int64(100), snap.CacheHits)
	require.Equal(t, int64(100), snap.JobsCompleted)
	require.Equal(t, int64(0), snap.CacheMisses)
}
