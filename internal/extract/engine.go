package extract

import "context"

// Request carries one document through a single extraction attempt.
type Request struct {
	DocumentID string
	Filename   string
	MimeType   string
	Prompt     string
	Content    []byte
}

// Result is the structured output of a successful extraction.
type Result struct {
	Fields     map[string]any `json:"fields"`
	Model      string         `json:"model,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	RawJSON    []byte         `json:"-"`
}

// Engine runs the extraction model against one document. An error return means
// the attempt failed terminally for this document; callers do not retry.
type Engine interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}
