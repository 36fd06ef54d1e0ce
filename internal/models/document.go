package models

import "time"

// DocumentStatus captures the per-document lifecycle states.
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the document has reached a final state.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// Document is one file within a batch, tracked independently through extraction.
// extraction_prompt stays nil until resolved (memoized for the auto strategy so
// a later pass never re-classifies).
type Document struct {
	ID               string         `db:"id" json:"id"`
	UserID           string         `db:"user_id" json:"user_id"`
	BatchID          *string        `db:"batch_id" json:"batch_id,omitempty"`
	Filename         string         `db:"filename" json:"filename"`
	StoragePath      string         `db:"storage_path" json:"-"`
	MimeType         string         `db:"mime_type" json:"mime_type"`
	SizeBytes        int64          `db:"size_bytes" json:"size_bytes"`
	PageCount        int            `db:"page_count" json:"page_count"`
	Status           DocumentStatus `db:"status" json:"status"`
	ExtractionPrompt *string        `db:"extraction_prompt" json:"extraction_prompt,omitempty"`
	ErrorMessage     *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentType is the coarse classification label used to pick a default
// extraction prompt under the auto strategy.
type DocumentType string

const (
	DocumentTypeInvoice   DocumentType = "invoice"
	DocumentTypeReceipt   DocumentType = "receipt"
	DocumentTypeContract  DocumentType = "contract"
	DocumentTypeStatement DocumentType = "statement"
	DocumentTypeGeneral   DocumentType = "general"
)

// DefaultPrompt returns the extraction instruction used when no explicit
// prompt was configured for a document.
func (t DocumentType) DefaultPrompt() string {
	switch t {
	case DocumentTypeInvoice:
		return "Extract the invoice number, issue date, due date, vendor, line items, and total amount."
	case DocumentTypeReceipt:
		return "Extract the merchant name, purchase date, payment method, line items, and total paid."
	case DocumentTypeContract:
		return "Extract the contracting parties, effective date, term, and key obligations."
	case DocumentTypeStatement:
		return "Extract the account holder, statement period, opening and closing balances, and transactions."
	default:
		return "Extract all key fields from this document as structured data."
	}
}
