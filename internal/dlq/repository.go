// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package dlq

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

// Repository is the durable mirror of the per-model Redis DLQ lists.
// Nothing on the synthesis hot path depends on it; it exists for ops
// inspection and survives a Redis restart.
type Repository struct {
	db     *gorm.DB
	logger commons.Logger
}

func NewRepository(db *gorm.DB, logger commons.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Mirror upserts one drained DLQ entry. The uniqueIndex on job_id makes
// this an effective no-op on a duplicate write, which is the one place in
// this module depending on that guarantee (see DESIGN.md's "scanner and
// consumer both write the DLQ" note).
func (r *Repository) Mirror(ctx context.Context, entry domain.DLQEntry) error {
	payload, err := json.Marshal(entry.Job)
	if err != nil {
		return fmt.Errorf("dlq: marshal job payload failed: %w", err)
	}
	record := fromDomain(entry, string(payload))

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoNothing: true,
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("dlq: mirror insert failed: %w", err)
	}
	return nil
}

// MirrorBatch mirrors every entry, logging (not failing) individual
// mirror errors so one bad row never blocks draining the rest of the
// Redis list.
func (r *Repository) MirrorBatch(ctx context.Context, entries []domain.DLQEntry) {
	for _, entry := range entries {
		if err := r.Mirror(ctx, entry); err != nil {
			r.logger.Error("dlq: mirror failed", "job_id", entry.Job.JobID, "error", err)
		}
	}
}

// List returns the most recent DLQ rows for a model, newest first, used by
// the admin API's DLQ listing endpoint.
func (r *Repository) List(ctx context.Context, modelID string, limit int) ([]Record, error) {
	var records []Record
	q := r.db.WithContext(ctx).Order("recorded_at DESC").Limit(limit)
	if modelID != "" {
		q = q.Where("model_id = ?", modelID)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("dlq: list failed: %w", err)
	}
	return records, nil
}

// Count reports the total mirrored DLQ depth for a model, used by the
// admin API's DLQ listing endpoint.
func (r *Repository) Count(ctx context.Context, modelID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Record{}).Where("model_id = ?", modelID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("dlq: count failed: %w", err)
	}
	return count, nil
}
