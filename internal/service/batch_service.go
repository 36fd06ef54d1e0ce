package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/internal/dto"
	"github.com/parsepoint/parsepoint-api/internal/models"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
)

type batchReader interface {
	GetByID(ctx context.Context, id string) (*models.Batch, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Batch, int, error)
}

type documentReader interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.Document, error)
}

type downloadSigner interface {
	Generate(documentID, storagePath string) (string, time.Time, error)
	Parse(token string) (documentID, storagePath string, expiresAt time.Time, err error)
}

type objectLoader interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// Download bundles the bytes and metadata of a redeemed signed link.
type Download struct {
	Filename string
	MimeType string
	Content  []byte
}

// BatchService serves owner-scoped batch views and signed document downloads.
type BatchService struct {
	batches   batchReader
	documents documentReader
	signer    downloadSigner
	storage   objectLoader
	logger    *zap.Logger
	apiPrefix string
}

// NewBatchService constructs the service.
func NewBatchService(batches batchReader, documents documentReader, signer downloadSigner, storage objectLoader, apiPrefix string, logger *zap.Logger) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if apiPrefix == "" {
		apiPrefix = "/api/v1"
	}
	return &BatchService{
		batches:   batches,
		documents: documents,
		signer:    signer,
		storage:   storage,
		logger:    logger,
		apiPrefix: apiPrefix,
	}
}

// getOwned fetches a batch and enforces ownership. Foreign batches surface as
// not found so the endpoint does not leak their existence.
func (s *BatchService) getOwned(ctx context.Context, userID, batchID string) (*models.Batch, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if batch.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
	}
	return batch, nil
}

// Get returns the full status view of one batch.
func (s *BatchService) Get(ctx context.Context, userID, batchID string) (*dto.BatchStatusResponse, error) {
	batch, err := s.getOwned(ctx, userID, batchID)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	resp := dto.NewBatchStatusResponse(batch, docs)
	return &resp, nil
}

// List returns the user's batches newest first.
func (s *BatchService) List(ctx context.Context, userID string, page, pageSize int) ([]dto.BatchListResponse, *models.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	batches, total, err := s.batches.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	totalPages := (total + pageSize - 1) / pageSize
	pagination := &models.Pagination{Page: page, PerPage: pageSize, Total: total, TotalPages: totalPages}
	return dto.NewBatchListResponse(batches), pagination, nil
}

// DownloadURL issues a short-lived signed link for one stored document.
func (s *BatchService) DownloadURL(ctx context.Context, userID, batchID, documentID string) (*dto.DownloadURLResponse, error) {
	if _, err := s.getOwned(ctx, userID, batchID); err != nil {
		return nil, err
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	if doc.BatchID == nil || *doc.BatchID != batchID || doc.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}

	token, expiresAt, err := s.signer.Generate(doc.ID, doc.StoragePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.DownloadURLResponse{
		URL:       fmt.Sprintf("%s/downloads/%s", s.apiPrefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Redeem validates a signed token and streams back the stored file.
func (s *BatchService) Redeem(ctx context.Context, token string) (*Download, error) {
	documentID, storagePath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	if doc.StoragePath != storagePath {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	content, err := s.storage.Load(ctx, storagePath)
	if err != nil {
		s.logger.Error("download load failed", zap.String("document_id", documentID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load file")
	}
	return &Download{Filename: doc.Filename, MimeType: doc.MimeType, Content: content}, nil
}
