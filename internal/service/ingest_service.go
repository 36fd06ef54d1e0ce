package service

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/internal/dto"
	"github.com/parsepoint/parsepoint-api/internal/models"
	"github.com/parsepoint/parsepoint-api/internal/ratelimit"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
)

type tierResolver interface {
	Resolve(ctx context.Context, userID string) (models.Tier, error)
}

type fileAdmitter interface {
	Validate(files []CandidateFile, tier models.Tier) ([]AdmittedFile, error)
}

type uploadLimiter interface {
	Check(ctx context.Context, userID string, tier models.Tier, op string) (ratelimit.Decision, error)
}

type quotaChecker interface {
	Remaining(ctx context.Context, userID string, tier models.Tier) (int, error)
}

type ingestBatchStore interface {
	CreateWithDocuments(ctx context.Context, batch *models.Batch, docs []models.Document) error
}

type objectWriter interface {
	Save(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, path string) error
}

type eventEmitter interface {
	Emit(name, userID string, payload models.EventPayload)
}

// IngestService turns an admitted upload into a persisted batch. Per-file
// failures after admission (page count, missing prompt, storage upload) are
// isolated: the file is excluded and counted in failed_count while the rest of
// the batch proceeds.
type IngestService struct {
	tiers     tierResolver
	admission fileAdmitter
	limiter   uploadLimiter
	quota     quotaChecker
	batches   ingestBatchStore
	storage   objectWriter
	events    eventEmitter
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewIngestService constructs the service.
func NewIngestService(tiers tierResolver, admission fileAdmitter, limiter uploadLimiter, quota quotaChecker, batches ingestBatchStore, storage objectWriter, events eventEmitter, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		tiers:     tiers,
		admission: admission,
		limiter:   limiter,
		quota:     quota,
		batches:   batches,
		storage:   storage,
		events:    events,
		validate:  validator.New(),
		logger:    logger,
	}
}

// CreateBatch validates, stores and persists one batch upload. prompts maps
// filenames to extraction prompts for the per_document strategy.
func (s *IngestService) CreateBatch(ctx context.Context, userID string, form dto.CreateBatchForm, prompts map[string]string, files []CandidateFile) (*dto.BatchResponse, error) {
	if err := s.validate.Struct(form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}

	tier, err := s.tiers.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	admitted, err := s.admission.Validate(files, tier)
	if err != nil {
		return nil, err
	}

	strategy := models.PromptStrategy(form.PromptStrategy)
	if !strategy.Valid() {
		return nil, appErrors.Clone(appErrors.ErrPromptConfig, fmt.Sprintf("unknown prompt strategy %q", form.PromptStrategy))
	}
	globalPrompt := strings.TrimSpace(form.GlobalPrompt)
	if strategy == models.PromptStrategyGlobal && globalPrompt == "" {
		return nil, appErrors.Clone(appErrors.ErrPromptConfig, "global strategy requires a global prompt")
	}

	decision, err := s.limiter.Check(ctx, userID, tier, "batch_upload")
	if err != nil {
		// fail open: an unavailable limiter must not block uploads
		s.logger.Warn("rate limit check failed", zap.String("user_id", userID), zap.Error(err))
	} else if !decision.Allowed {
		secs := int(math.Ceil(decision.RetryAfter.Seconds()))
		return nil, appErrors.WithRetryAfter(appErrors.ErrRateLimited, secs)
	}

	totalPages := 0
	for _, f := range admitted {
		if f.PageCountErr == nil {
			totalPages += f.PageCount
		}
	}
	remaining, err := s.quota.Remaining(ctx, userID, tier)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check quota")
	}
	if totalPages > remaining {
		return nil, appErrors.Clone(appErrors.ErrQuotaExceeded,
			fmt.Sprintf("batch needs %d pages, %d remain in the current period", totalPages, remaining))
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()

	var (
		docs     []models.Document
		rejected []dto.FileIssue
		uploaded []string
		docPages int
	)
	for _, f := range admitted {
		if f.PageCountErr != nil {
			rejected = append(rejected, dto.FileIssue{Filename: f.Filename, Reason: "could not determine page count"})
			continue
		}
		var prompt *string
		if strategy == models.PromptStrategyPerDocument {
			p, ok := prompts[f.Filename]
			if !ok || strings.TrimSpace(p) == "" {
				rejected = append(rejected, dto.FileIssue{Filename: f.Filename, Reason: "no prompt provided"})
				continue
			}
			prompt = &p
		}

		docID := uuid.NewString()
		path := fmt.Sprintf("batches/%s/%s%s", batchID, docID, strings.ToLower(filepath.Ext(f.Filename)))
		if err := s.storage.Save(ctx, path, f.Content, f.MimeType); err != nil {
			s.logger.Error("file upload failed", zap.String("filename", f.Filename), zap.Error(err))
			rejected = append(rejected, dto.FileIssue{Filename: f.Filename, Reason: "storage upload failed"})
			continue
		}
		uploaded = append(uploaded, path)

		docs = append(docs, models.Document{
			ID:               docID,
			Filename:         f.Filename,
			StoragePath:      path,
			MimeType:         f.MimeType,
			SizeBytes:        f.Size,
			PageCount:        f.PageCount,
			Status:           models.DocumentStatusUploaded,
			ExtractionPrompt: prompt,
		})
		docPages += f.PageCount
	}

	batch := &models.Batch{
		ID:             batchID,
		UserID:         userID,
		Status:         models.BatchStatusQueued,
		PromptStrategy: strategy,
		DocumentCount:  len(docs),
		FailedCount:    len(admitted) - len(docs),
		TotalPages:     docPages,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if name := strings.TrimSpace(form.Name); name != "" {
		batch.Name = &name
	}
	if strategy == models.PromptStrategyGlobal {
		batch.GlobalPrompt = &globalPrompt
	}
	if len(docs) == 0 {
		// every file was excluded: keep the batch as a terminal record
		batch.Status = models.BatchStatusFailed
		batch.CompletedAt = &now
	}

	if err := s.batches.CreateWithDocuments(ctx, batch, docs); err != nil {
		s.compensate(ctx, uploaded)
		s.logger.Error("batch insert failed", zap.String("batch_id", batchID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrBatchIngestion.Code, appErrors.ErrBatchIngestion.Status, appErrors.ErrBatchIngestion.Message)
	}

	s.events.Emit("batch_created", userID, models.EventPayload{
		"batch_id":       batch.ID,
		"document_count": batch.DocumentCount,
		"failed_count":   batch.FailedCount,
		"total_pages":    batch.TotalPages,
		"strategy":       string(strategy),
	})
	s.logger.Info("batch created",
		zap.String("batch_id", batch.ID),
		zap.String("user_id", userID),
		zap.Int("documents", batch.DocumentCount),
		zap.Int("rejected", batch.FailedCount),
		zap.Int("pages", batch.TotalPages),
	)

	resp := dto.NewBatchResponse(batch, rejected)
	return &resp, nil
}

// compensate removes objects uploaded before a failed insert.
func (s *IngestService) compensate(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := s.storage.Delete(ctx, path); err != nil {
			s.logger.Warn("orphaned object cleanup failed", zap.String("path", path), zap.Error(err))
		}
	}
}
