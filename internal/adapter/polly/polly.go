// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_adapter_polly calls AWS Polly's synchronous
// SynthesizeSpeech API via aws-sdk-go v1, grounded on the teacher's
// internal/transformer/aws normalizer naming (Polly-specific SSML
// preprocessing) generalized to a plain-text synchronous request.
package internal_adapter_polly

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/polly"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/workerloop"
)

type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type Adapter struct {
	client *polly.Polly
	logger commons.Logger
}

func New(logger commons.Logger, cfg Config) (*Adapter, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("polly: session init failed: %w", err)
	}
	return &Adapter{client: polly.New(sess), logger: logger}, nil
}

func (a *Adapter) ModelID() string { return "aws-polly" }

func (a *Adapter) Synthesize(ctx context.Context, job domain.SynthesisJob) ([]byte, int64, error) {
	voiceID := job.VoiceID
	if voiceID == "" {
		voiceID = "Joanna"
	}

	out, err := a.client.SynthesizeSpeechWithContext(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(job.Text),
		VoiceId:      aws.String(voiceID),
		OutputFormat: aws.String(polly.OutputFormatMp3),
		Engine:       aws.String(polly.EngineNeural),
	})
	if err != nil {
		if nonRetriable := classifySynthesizeError(err); nonRetriable != nil {
			return nil, 0, nonRetriable
		}
		return nil, 0, fmt.Errorf("polly: synthesize failed: %w", err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, 0, fmt.Errorf("polly: read audio stream failed: %w", err)
	}

	return audio, estimateMp3DurationMs(len(audio)), nil
}

func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.client.DescribeVoicesWithContext(ctx, &polly.DescribeVoicesInput{})
	if err != nil {
		return fmt.Errorf("polly: health check failed: %w", err)
	}
	return nil
}

// classifySynthesizeError maps Polly's invalid-SSML error to a
// workerloop.NonRetriableError (spec: retrying a request Polly already
// rejected as malformed can never succeed); any other error, including a
// non-AWS error, is left for the caller to treat as retriable.
func classifySynthesizeError(err error) error {
	aerr, ok := err.(awserr.Error)
	if !ok || aerr.Code() != polly.ErrCodeInvalidSsmlException {
		return nil
	}
	return &workerloop.NonRetriableError{Code: "invalid_ssml", Message: aerr.Message()}
}

func estimateMp3DurationMs(sizeBytes int) int64 {
	const bitrateBytesPerSec = 128_000 / 8
	if sizeBytes <= 0 {
		return 0
	}
	return int64(sizeBytes) * 1000 / int64(bitrateBytesPerSec)
}
