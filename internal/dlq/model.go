// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package dlq mirrors the Redis dead-letter list into Postgres so ops can
// query dead jobs without ever touching the hot-path Redis connection
// (spec §6.4, "DLQ is inspected manually... durable enough to survive a
// Redis restart"). Modeled the way the teacher's gorm entities are modeled
// (callcontext.CallContext): a plain struct with column tags, a TableName
// override, and a BeforeCreate hook for ID assignment.
package dlq

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/readvox/synthbridge/internal/domain"
)

// Record is the durable row mirroring one domain.DLQEntry. JobID carries a
// uniqueIndex so the scanner's DLQ write and the consumer's second write
// for the same job collapse to one row (see DESIGN.md, "Open Question
// resolved: scanner and consumer both write the DLQ").
type Record struct {
	ID          string    `gorm:"column:id;type:varchar(36);primaryKey"`
	JobID       string    `gorm:"column:job_id;type:varchar(64);not null;uniqueIndex"`
	ModelID     string    `gorm:"column:model_id;type:varchar(64);not null;index"`
	VariantHash string    `gorm:"column:variant_hash;type:varchar(64);not null"`
	DocumentID  string    `gorm:"column:document_id;type:varchar(64);not null"`
	UserID      string    `gorm:"column:user_id;type:varchar(64);not null"`
	VoiceID     string    `gorm:"column:voice_id;type:varchar(64);not null"`
	Reason      string    `gorm:"column:reason;type:varchar(32);not null"`
	RetryCount  int       `gorm:"column:retry_count;not null"`
	JobPayload  string    `gorm:"column:job_payload;type:jsonb;not null"`
	RecordedAt  time.Time `gorm:"column:recorded_at;type:timestamptz;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;<-:create"`
}

func (Record) TableName() string {
	return "dlq_records"
}

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

// fromDomain converts the wire DLQEntry (queue.DrainDLQ's output) into the
// durable row shape, leaving the original job serialized as JSON for full
// replay fidelity.
func fromDomain(entry domain.DLQEntry, payload string) Record {
	return Record{
		JobID:       entry.Job.JobID,
		ModelID:     entry.ModelID,
		VariantHash: entry.Job.VariantHash,
		DocumentID:  entry.Job.DocumentID,
		UserID:      entry.Job.UserID,
		VoiceID:     entry.Job.VoiceID,
		Reason:      string(entry.Reason),
		RetryCount:  entry.RetryCount,
		JobPayload:  payload,
		RecordedAt:  entry.RecordedAt,
	}
}
