package dto

import (
	"time"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

// CreateBatchForm carries the non-file fields of the multipart upload form.
// Files arrive separately via the multipart reader.
type CreateBatchForm struct {
	Name           string `form:"name" validate:"max=200"`
	PromptStrategy string `form:"prompt_strategy" binding:"required,oneof=global per_document auto" validate:"required,oneof=global per_document auto"`
	GlobalPrompt   string `form:"global_prompt" validate:"max=10000"`
}

// PerDocumentPrompts maps an uploaded filename to its extraction prompt.
// Bound from repeated prompt[<filename>] form fields.
type PerDocumentPrompts map[string]string

// BatchResponse is the ingestion result returned on 201.
type BatchResponse struct {
	ID             string      `json:"id"`
	Name           *string     `json:"name,omitempty"`
	Status         string      `json:"status"`
	PromptStrategy string      `json:"prompt_strategy"`
	DocumentCount  int         `json:"document_count"`
	FailedCount    int         `json:"failed_count"`
	TotalPages     int         `json:"total_pages"`
	Rejected       []FileIssue `json:"rejected,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// FileIssue describes a single file the ingestion could not accept.
type FileIssue struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// DocumentView is the per-document slice of a batch status response.
type DocumentView struct {
	ID           string  `json:"id"`
	Filename     string  `json:"filename"`
	MimeType     string  `json:"mime_type"`
	PageCount    int     `json:"page_count"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// BatchStatusResponse is the full view of a batch and its documents.
type BatchStatusResponse struct {
	ID             string         `json:"id"`
	Name           *string        `json:"name,omitempty"`
	Status         string         `json:"status"`
	PromptStrategy string         `json:"prompt_strategy"`
	DocumentCount  int            `json:"document_count"`
	CompletedCount int            `json:"completed_count"`
	FailedCount    int            `json:"failed_count"`
	TotalPages     int            `json:"total_pages"`
	Documents      []DocumentView `json:"documents"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NewBatchResponse maps a persisted batch to its ingestion response.
func NewBatchResponse(batch *models.Batch, rejected []FileIssue) BatchResponse {
	return BatchResponse{
		ID:             batch.ID,
		Name:           batch.Name,
		Status:         string(batch.Status),
		PromptStrategy: string(batch.PromptStrategy),
		DocumentCount:  batch.DocumentCount,
		FailedCount:    batch.FailedCount,
		TotalPages:     batch.TotalPages,
		Rejected:       rejected,
		CreatedAt:      batch.CreatedAt,
	}
}

// NewBatchStatusResponse maps a batch and its documents to the status view.
func NewBatchStatusResponse(batch *models.Batch, docs []models.Document) BatchStatusResponse {
	views := make([]DocumentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, DocumentView{
			ID:           doc.ID,
			Filename:     doc.Filename,
			MimeType:     doc.MimeType,
			PageCount:    doc.PageCount,
			Status:       string(doc.Status),
			ErrorMessage: doc.ErrorMessage,
		})
	}
	return BatchStatusResponse{
		ID:             batch.ID,
		Name:           batch.Name,
		Status:         string(batch.Status),
		PromptStrategy: string(batch.PromptStrategy),
		DocumentCount:  batch.DocumentCount,
		CompletedCount: batch.CompletedCount,
		FailedCount:    batch.FailedCount,
		TotalPages:     batch.TotalPages,
		Documents:      views,
		CreatedAt:      batch.CreatedAt,
		CompletedAt:    batch.CompletedAt,
	}
}

// BatchListResponse is one row of the user's batch listing.
type BatchListResponse struct {
	ID             string     `json:"id"`
	Name           *string    `json:"name,omitempty"`
	Status         string     `json:"status"`
	DocumentCount  int        `json:"document_count"`
	CompletedCount int        `json:"completed_count"`
	FailedCount    int        `json:"failed_count"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// NewBatchListResponse maps batches to listing rows.
func NewBatchListResponse(batches []models.Batch) []BatchListResponse {
	out := make([]BatchListResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, BatchListResponse{
			ID:             b.ID,
			Name:           b.Name,
			Status:         string(b.Status),
			DocumentCount:  b.DocumentCount,
			CompletedCount: b.CompletedCount,
			FailedCount:    b.FailedCount,
			CreatedAt:      b.CreatedAt,
			CompletedAt:    b.CompletedAt,
		})
	}
	return out
}

// DownloadURLResponse carries a short-lived signed result link.
type DownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
