package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

const batchColumns = `id, user_id, name, status, prompt_strategy, global_prompt,
	document_count, completed_count, failed_count, total_pages,
	lease_expires_at, created_at, updated_at, completed_at`

// BatchRepository owns batch rows and their aggregate status transitions.
// All mutations go through status-scoped conditional updates; there is no
// blanket write path.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// CreateWithDocuments inserts the batch row and its document rows in one
// transaction. Documents receive the batch ID and inherit its owner.
func (r *BatchRepository) CreateWithDocuments(ctx context.Context, batch *models.Batch, docs []models.Document) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertBatch = `INSERT INTO batches (` + batchColumns + `)
VALUES (:id, :user_id, :name, :status, :prompt_strategy, :global_prompt,
	:document_count, :completed_count, :failed_count, :total_pages,
	:lease_expires_at, :created_at, :updated_at, :completed_at)`
	if _, err := tx.NamedExecContext(ctx, insertBatch, batch); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	const insertDoc = `INSERT INTO documents (` + documentColumns + `)
VALUES (:id, :user_id, :batch_id, :filename, :storage_path, :mime_type,
	:size_bytes, :page_count, :status, :extraction_prompt, :error_message,
	:created_at, :updated_at)`
	for i := range docs {
		if docs[i].ID == "" {
			docs[i].ID = uuid.NewString()
		}
		docs[i].BatchID = &batch.ID
		docs[i].UserID = batch.UserID
		docs[i].CreatedAt = now
		docs[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertDoc, docs[i]); err != nil {
			return fmt.Errorf("insert document %s: %w", docs[i].Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}
	return nil
}

// GetByID returns a batch row by its identifier.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListByUser returns the owner's batches, newest first, plus the total count
// for pagination.
func (r *BatchRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Batch, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM batches WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	const query = `SELECT ` + batchColumns + ` FROM batches
WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}
	return batches, total, nil
}

// ListRunnable fetches batches eligible for a processor pass: queued, or
// processing with a missing/expired lease (a crashed or stalled run). Oldest
// first for FIFO fairness.
func (r *BatchRepository) ListRunnable(ctx context.Context, limit int, now time.Time) ([]models.Batch, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT ` + batchColumns + ` FROM batches
WHERE status = 'queued'
   OR (status = 'processing' AND (lease_expires_at IS NULL OR lease_expires_at < $1))
ORDER BY created_at ASC LIMIT $2`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, now, limit); err != nil {
		return nil, fmt.Errorf("list runnable batches: %w", err)
	}
	return batches, nil
}

// Claim attempts to take the batch lease for one processing pass. The
// conditional update only succeeds while the stored status is still
// queued/processing and no other run holds a live lease; zero rows affected
// means a concurrent run won and the caller must skip the batch.
func (r *BatchRepository) Claim(ctx context.Context, id string, leaseUntil, now time.Time) (bool, error) {
	const query = `UPDATE batches
SET status = 'processing', lease_expires_at = $2, updated_at = $3
WHERE id = $1
  AND status IN ('queued', 'processing')
  AND (lease_expires_at IS NULL OR lease_expires_at < $3)`
	res, err := r.db.ExecContext(ctx, query, id, leaseUntil, now)
	if err != nil {
		return false, fmt.Errorf("claim batch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim batch rows: %w", err)
	}
	return affected == 1, nil
}

// Reconcile recounts document statuses and applies the aggregate rule:
// work remaining keeps the batch processing; otherwise zero failures mean
// completed, a mix means partially_completed, and all failures mean failed.
// The lease is always released so the next pass can pick the batch up
// immediately. Terminal batches are left untouched.
func (r *BatchRepository) Reconcile(ctx context.Context, id string, now time.Time) (models.BatchStatus, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin reconcile tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current struct {
		Status        models.BatchStatus `db:"status"`
		DocumentCount int                `db:"document_count"`
		FailedCount   int                `db:"failed_count"`
	}
	const lockQuery = `SELECT status, document_count, failed_count FROM batches WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return "", err
		}
		return "", fmt.Errorf("lock batch for reconcile: %w", err)
	}
	if current.Status.Terminal() {
		return current.Status, tx.Commit()
	}

	var counts struct {
		Completed int `db:"completed"`
		Failed    int `db:"failed"`
	}
	const countQuery = `SELECT
	COUNT(*) FILTER (WHERE status = 'completed') AS completed,
	COUNT(*) FILTER (WHERE status = 'failed') AS failed
FROM documents WHERE batch_id = $1`
	if err := tx.GetContext(ctx, &counts, countQuery, id); err != nil {
		return "", fmt.Errorf("count document statuses: %w", err)
	}

	// Files excluded at ingestion are charged to failed_count but have no
	// document row, so they count toward the terminal decision here.
	ingestionFailures := current.FailedCount - counts.Failed
	if ingestionFailures < 0 {
		ingestionFailures = 0
	}
	totalFailed := counts.Failed + ingestionFailures

	next := models.BatchStatusProcessing
	switch {
	case counts.Completed+counts.Failed < current.DocumentCount:
		next = models.BatchStatusProcessing
	case totalFailed == 0:
		next = models.BatchStatusCompleted
	case counts.Completed > 0:
		next = models.BatchStatusPartiallyCompleted
	default:
		next = models.BatchStatusFailed
	}

	var completedAt *time.Time
	if next.Terminal() {
		completedAt = &now
	}
	const update = `UPDATE batches
SET status = $2, completed_count = $3, failed_count = $4,
	lease_expires_at = NULL, updated_at = $5, completed_at = $6
WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id, next, counts.Completed, totalFailed, now, completedAt); err != nil {
		return "", fmt.Errorf("update batch aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit reconcile tx: %w", err)
	}
	return next, nil
}
