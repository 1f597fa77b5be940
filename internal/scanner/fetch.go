// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/readvox/synthbridge/internal/tracing"
)

// fetchAudio downloads the rendered audio a serverless prediction points
// to. Replicate predictions resolve to a signed output URL rather than
// returning bytes inline, so completion still costs one more HTTP round
// trip before a WorkerResult can carry audio.
func fetchAudio(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "overflow_scanner.fetch_audio")

	client := resty.New().SetTimeout(timeout)
	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		endSpan(err)
		return nil, fmt.Errorf("scanner: audio fetch failed: %w", err)
	}
	if resp.IsError() {
		err = fmt.Errorf("scanner: audio fetch returned status %d", resp.StatusCode())
		endSpan(err)
		return nil, err
	}
	endSpan(nil)
	return resp.Body(), nil
}
