package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

const documentColumns = `id, user_id, batch_id, filename, storage_path, mime_type,
	size_bytes, page_count, status, extraction_prompt, error_message,
	created_at, updated_at`

// maxErrorMessageLen caps stored failure details so one noisy collaborator
// cannot bloat the row.
const maxErrorMessageLen = 1000

// DocumentRepository owns per-document rows and their forward-only status
// transitions. Every mutation is id-scoped and guarded by the current status,
// so a terminal document can never be picked up or rewritten.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetByID returns a document row by its identifier.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByBatch returns every document of a batch, oldest first.
func (r *DocumentRepository) ListByBatch(ctx context.Context, batchID string) ([]models.Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents
WHERE batch_id = $1 ORDER BY created_at ASC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch documents: %w", err)
	}
	return docs, nil
}

// ListUploaded fetches up to limit documents still awaiting their first
// attempt. Selection is always scoped to uploaded status, which is what makes
// re-processing of terminal documents impossible by construction.
func (r *DocumentRepository) ListUploaded(ctx context.Context, batchID string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT ` + documentColumns + ` FROM documents
WHERE batch_id = $1 AND status = 'uploaded' ORDER BY created_at ASC LIMIT $2`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, batchID, limit); err != nil {
		return nil, fmt.Errorf("list uploaded documents: %w", err)
	}
	return docs, nil
}

// MarkProcessing advances an uploaded document to processing.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE documents SET status = 'processing', updated_at = $2
WHERE id = $1 AND status = 'uploaded'`
	return r.execTransition(ctx, query, id, now)
}

// MarkCompleted advances a processing document to its terminal success state.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE documents SET status = 'completed', error_message = NULL, updated_at = $2
WHERE id = $1 AND status = 'processing'`
	return r.execTransition(ctx, query, id, now)
}

// MarkFailed records a terminal failure with a truncated error detail. A
// document can fail straight from uploaded (quota denial) or from processing.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error) {
	if len(message) > maxErrorMessageLen {
		message = message[:maxErrorMessageLen]
	}
	const query = `UPDATE documents SET status = 'failed', error_message = $2, updated_at = $3
WHERE id = $1 AND status IN ('uploaded', 'processing')`
	res, err := r.db.ExecContext(ctx, query, id, message, now)
	if err != nil {
		return false, fmt.Errorf("mark document failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark document failed rows: %w", err)
	}
	return affected == 1, nil
}

// SetPrompt memoizes the resolved extraction prompt on the document so later
// passes and retries never re-resolve it.
func (r *DocumentRepository) SetPrompt(ctx context.Context, id, prompt string, now time.Time) error {
	const query = `UPDATE documents SET extraction_prompt = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, prompt, now); err != nil {
		return fmt.Errorf("set document prompt: %w", err)
	}
	return nil
}

// RequeueStale returns documents stuck in processing to uploaded. Called right
// after a lease takeover: the only way a claimed batch still has processing
// documents is a crash of the previous holder.
func (r *DocumentRepository) RequeueStale(ctx context.Context, batchID string, now time.Time) (int64, error) {
	const query = `UPDATE documents SET status = 'uploaded', updated_at = $2
WHERE batch_id = $1 AND status = 'processing'`
	res, err := r.db.ExecContext(ctx, query, batchID, now)
	if err != nil {
		return 0, fmt.Errorf("requeue stale documents: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue stale rows: %w", err)
	}
	return affected, nil
}

func (r *DocumentRepository) execTransition(ctx context.Context, query, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("document transition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("document transition rows: %w", err)
	}
	return affected == 1, nil
}
