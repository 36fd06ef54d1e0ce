package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBatchRepositoryCreateWithDocuments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batches")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	batch := &models.Batch{
		UserID:         "user-1",
		Status:         models.BatchStatusQueued,
		PromptStrategy: models.PromptStrategyAuto,
		DocumentCount:  2,
		TotalPages:     7,
	}
	docs := []models.Document{
		{Filename: "a.pdf", StoragePath: "batches/x/a.pdf", MimeType: "application/pdf", SizeBytes: 100, PageCount: 3, Status: models.DocumentStatusUploaded},
		{Filename: "b.pdf", StoragePath: "batches/x/b.pdf", MimeType: "application/pdf", SizeBytes: 200, PageCount: 4, Status: models.DocumentStatusUploaded},
	}
	require.NoError(t, repo.CreateWithDocuments(context.Background(), batch, docs))
	require.NotEmpty(t, batch.ID)
	require.Equal(t, batch.ID, *docs[0].BatchID)
	require.Equal(t, "user-1", docs[1].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryCreateRollsBackOnDocumentError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO batches")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	batch := &models.Batch{UserID: "user-1", Status: models.BatchStatusQueued, PromptStrategy: models.PromptStrategyGlobal}
	docs := []models.Document{{Filename: "a.pdf", Status: models.DocumentStatusUploaded}}
	require.Error(t, repo.CreateWithDocuments(context.Background(), batch, docs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryClaim(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	now := time.Now().UTC()
	lease := now.Add(10 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches")).
		WithArgs("batch-1", lease, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	claimed, err := repo.Claim(context.Background(), "batch-1", lease, now)
	require.NoError(t, err)
	require.True(t, claimed)

	// a concurrent run already holds the lease: zero rows affected
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches")).
		WithArgs("batch-1", lease, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	claimed, err = repo.Claim(context.Background(), "batch-1", lease, now)
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchRepositoryListRunnable(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "name", "status", "prompt_strategy", "global_prompt",
		"document_count", "completed_count", "failed_count", "total_pages",
		"lease_expires_at", "created_at", "updated_at", "completed_at",
	}).AddRow("batch-1", "user-1", nil, "queued", "auto", nil, 3, 0, 0, 9, nil, now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs(now, 5).
		WillReturnRows(rows)

	batches, err := repo.ListRunnable(context.Background(), 5, now)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, models.BatchStatusQueued, batches[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectReconcile(mock sqlmock.Sqlmock, status string, docCount, storedFailed, completed, failed int) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, document_count, failed_count FROM batches")).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "document_count", "failed_count"}).
			AddRow(status, docCount, storedFailed))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER")).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"completed", "failed"}).AddRow(completed, failed))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE batches")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestBatchRepositoryReconcileRules(t *testing.T) {
	cases := []struct {
		name         string
		docCount     int
		storedFailed int
		completed    int
		failed       int
		want         models.BatchStatus
	}{
		{"work remaining stays processing", 5, 0, 2, 1, models.BatchStatusProcessing},
		{"all completed", 3, 0, 3, 0, models.BatchStatusCompleted},
		{"mixed outcome", 5, 0, 3, 2, models.BatchStatusPartiallyCompleted},
		{"all failed", 4, 0, 0, 4, models.BatchStatusFailed},
		{"ingestion failures flip completed to partial", 3, 1, 3, 0, models.BatchStatusPartiallyCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, cleanup := newRepoMock(t)
			defer cleanup()

			repo := NewBatchRepository(db)
			expectReconcile(mock, "processing", tc.docCount, tc.storedFailed, tc.completed, tc.failed)

			status, err := repo.Reconcile(context.Background(), "batch-1", time.Now().UTC())
			require.NoError(t, err)
			require.Equal(t, tc.want, status)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBatchRepositoryReconcileLeavesTerminalAlone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBatchRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, document_count, failed_count FROM batches")).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "document_count", "failed_count"}).
			AddRow("completed", 3, 0))
	mock.ExpectCommit()

	status, err := repo.Reconcile(context.Background(), "batch-1", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusCompleted, status)
	require.NoError(t, mock.ExpectationsWereMet())
}
