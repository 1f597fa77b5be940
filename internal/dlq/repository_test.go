// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package dlq

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	dialector := postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"})
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	return NewRepository(gdb, commons.NewTestLogger()), mock
}

func TestMirrorInsertsOnConflictDoNothing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "dlq_records"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Mirror(context.Background(), domain.DLQEntry{
		ModelID: "cartesia-sonic",
		Job: domain.SynthesisJob{
			JobID: "job-1", VariantHash: "h1", DocumentID: "doc-1", UserID: "user-1", VoiceID: "v1",
		},
		Reason:     domain.DLQReasonRetriesExhausted,
		RetryCount: 3,
		RecordedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueriesByModelID(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"id", "job_id", "model_id", "variant_hash", "document_id", "user_id", "voice_id", "reason", "retry_count", "job_payload", "recorded_at", "created_at"}).
		AddRow("id-1", "job-1", "cartesia-sonic", "h1", "doc-1", "user-1", "v1", "fatal", 1, "{}", time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "dlq_records" WHERE model_id = $1`)).
		WithArgs("cartesia-sonic").
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), "cartesia-sonic", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "job-1", records[0].JobID)
}

func TestCountReturnsRowCount(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "dlq_records" WHERE model_id = $1`)).
		WithArgs("cartesia-sonic").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := repo.Count(context.Background(), "cartesia-sonic")
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
}
