package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/pkg/config"
)

// HTTPEngine talks to the extraction model over a provider-agnostic JSON API.
// The endpoint receives the prompt and the base64 document and answers with a
// flat field map.
type HTTPEngine struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPEngine builds the engine from extraction config.
func NewHTTPEngine(cfg config.ExtractionConfig, logger *zap.Logger) *HTTPEngine {
	return &HTTPEngine{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type extractPayload struct {
	Prompt   string `json:"prompt"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}

type extractReply struct {
	Fields     map[string]any `json:"fields"`
	Model      string         `json:"model"`
	Confidence float64        `json:"confidence"`
	Error      string         `json:"error"`
}

// Extract sends one document for extraction and decodes the field map.
func (e *HTTPEngine) Extract(ctx context.Context, req Request) (*Result, error) {
	payload := extractPayload{
		Prompt:   req.Prompt,
		Filename: req.Filename,
		MimeType: req.MimeType,
		Content:  base64.StdEncoding.EncodeToString(req.Content),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode extraction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send extraction request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}

	e.logger.Debug("extraction response",
		zap.String("document_id", req.DocumentID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction engine returned status %d", resp.StatusCode)
	}

	var reply extractReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("extraction engine error: %s", reply.Error)
	}
	if len(reply.Fields) == 0 {
		return nil, fmt.Errorf("extraction engine returned no fields")
	}

	return &Result{
		Fields:     reply.Fields,
		Model:      reply.Model,
		Confidence: reply.Confidence,
		RawJSON:    raw,
	}, nil
}
