package models

import "time"

// BatchStatus captures the batch lifecycle states.
type BatchStatus string

const (
	BatchStatusPendingUpload      BatchStatus = "pending_upload"
	BatchStatusQueued             BatchStatus = "queued"
	BatchStatusProcessing         BatchStatus = "processing"
	BatchStatusCompleted          BatchStatus = "completed"
	BatchStatusPartiallyCompleted BatchStatus = "partially_completed"
	BatchStatusFailed             BatchStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusPartiallyCompleted, BatchStatusFailed:
		return true
	default:
		return false
	}
}

// PromptStrategy selects how per-document extraction prompts are resolved.
type PromptStrategy string

const (
	PromptStrategyGlobal      PromptStrategy = "global"
	PromptStrategyPerDocument PromptStrategy = "per_document"
	PromptStrategyAuto        PromptStrategy = "auto"
)

// Valid reports whether the strategy is one of the known variants.
func (p PromptStrategy) Valid() bool {
	switch p {
	case PromptStrategyGlobal, PromptStrategyPerDocument, PromptStrategyAuto:
		return true
	default:
		return false
	}
}

// Batch is a user-submitted group of documents sharing one extraction configuration.
// document_count is fixed at ingestion time; completed_count + failed_count never
// exceed it. lease_expires_at guards the processor claim (expired leases are
// re-claimable by a later pass).
type Batch struct {
	ID             string         `db:"id" json:"id"`
	UserID         string         `db:"user_id" json:"user_id"`
	Name           *string        `db:"name" json:"name,omitempty"`
	Status         BatchStatus    `db:"status" json:"status"`
	PromptStrategy PromptStrategy `db:"prompt_strategy" json:"prompt_strategy"`
	GlobalPrompt   *string        `db:"global_prompt" json:"global_prompt,omitempty"`
	DocumentCount  int            `db:"document_count" json:"document_count"`
	CompletedCount int            `db:"completed_count" json:"completed_count"`
	FailedCount    int            `db:"failed_count" json:"failed_count"`
	TotalPages     int            `db:"total_pages" json:"total_pages"`
	LeaseExpiresAt *time.Time     `db:"lease_expires_at" json:"-"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}
