package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/internal/dto"
	"github.com/parsepoint/parsepoint-api/internal/extract"
	"github.com/parsepoint/parsepoint-api/internal/models"
)

type processorBatchStore interface {
	ListRunnable(ctx context.Context, limit int, now time.Time) ([]models.Batch, error)
	Claim(ctx context.Context, id string, leaseExpiresAt, now time.Time) (bool, error)
	Reconcile(ctx context.Context, id string, now time.Time) (models.BatchStatus, error)
}

type processorDocumentStore interface {
	ListUploaded(ctx context.Context, batchID string, limit int) ([]models.Document, error)
	MarkProcessing(ctx context.Context, id string, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, message string, now time.Time) (bool, error)
	SetPrompt(ctx context.Context, id, prompt string, now time.Time) error
	RequeueStale(ctx context.Context, batchID string, now time.Time) (int64, error)
}

type quotaCharger interface {
	Reserve(ctx context.Context, userID string, tier models.Tier, pages int) (bool, error)
	Release(ctx context.Context, userID string, pages int)
}

type objectReader interface {
	Save(ctx context.Context, path string, data []byte, contentType string) error
	Load(ctx context.Context, path string) ([]byte, error)
}

type documentClassifier interface {
	Classify(content []byte, mimeType string) models.DocumentType
}

type pipelineObserver interface {
	ObserveBatchClaimed()
	ObserveDocument(outcome string, pages int)
	ObservePass(duration time.Duration)
}

// ProcessorConfig bounds one pass.
type ProcessorConfig struct {
	MaxBatchesPerRun   int
	MaxDocsPerBatchRun int
	LeaseTTL           time.Duration
}

// ProcessorService drives queued batches through extraction. Each pass is
// bounded, idempotent and safe to run concurrently: batch ownership is a
// leased claim, document selection is scoped to uploaded status, and one
// document's failure never stops the loop.
type ProcessorService struct {
	batches    processorBatchStore
	documents  processorDocumentStore
	tiers      tierResolver
	quota      quotaCharger
	storage    objectReader
	classifier documentClassifier
	engine     extract.Engine
	events     eventEmitter
	metrics    pipelineObserver
	logger     *zap.Logger
	cfg        ProcessorConfig
}

// NewProcessorService constructs the service with defaults.
func NewProcessorService(batches processorBatchStore, documents processorDocumentStore, tiers tierResolver, quota quotaCharger, storage objectReader, classifier documentClassifier, engine extract.Engine, events eventEmitter, metrics pipelineObserver, logger *zap.Logger, cfg ProcessorConfig) *ProcessorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBatchesPerRun <= 0 {
		cfg.MaxBatchesPerRun = 5
	}
	if cfg.MaxDocsPerBatchRun <= 0 {
		cfg.MaxDocsPerBatchRun = 10
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	return &ProcessorService{
		batches:    batches,
		documents:  documents,
		tiers:      tiers,
		quota:      quota,
		storage:    storage,
		classifier: classifier,
		engine:     engine,
		events:     events,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// RunPass claims up to MaxBatchesPerRun runnable batches and advances each by
// up to MaxDocsPerBatchRun documents, reconciling aggregate status afterwards.
func (s *ProcessorService) RunPass(ctx context.Context) (dto.ProcessorRunSummary, error) {
	start := time.Now()
	var summary dto.ProcessorRunSummary

	now := time.Now().UTC()
	candidates, err := s.batches.ListRunnable(ctx, s.cfg.MaxBatchesPerRun, now)
	if err != nil {
		return summary, fmt.Errorf("list runnable batches: %w", err)
	}

	for i := range candidates {
		batch := &candidates[i]
		claimed, err := s.batches.Claim(ctx, batch.ID, now.Add(s.cfg.LeaseTTL), now)
		if err != nil {
			s.logger.Error("batch claim failed", zap.String("batch_id", batch.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		summary.BatchesClaimed++
		s.metrics.ObserveBatchClaimed()

		batchSummary, err := s.processBatch(ctx, batch)
		summary.Add(batchSummary)
		if err != nil {
			s.logger.Error("batch pass aborted", zap.String("batch_id", batch.ID), zap.Error(err))
		}

		if _, err := s.batches.Reconcile(ctx, batch.ID, time.Now().UTC()); err != nil {
			s.logger.Error("batch reconcile failed", zap.String("batch_id", batch.ID), zap.Error(err))
		}
	}

	s.metrics.ObservePass(time.Since(start))
	s.logger.Info("processor pass finished",
		zap.Int("batches_claimed", summary.BatchesClaimed),
		zap.Int("documents_attempted", summary.DocumentsAttempted),
		zap.Int("documents_completed", summary.DocumentsCompleted),
		zap.Int("documents_failed", summary.DocumentsFailed),
		zap.Int("pages_charged", summary.PagesCharged),
	)
	return summary, nil
}

func (s *ProcessorService) processBatch(ctx context.Context, batch *models.Batch) (dto.ProcessorRunSummary, error) {
	var summary dto.ProcessorRunSummary
	now := time.Now().UTC()

	// documents stranded in processing by a crashed holder become ours now
	requeued, err := s.documents.RequeueStale(ctx, batch.ID, now)
	if err != nil {
		return summary, fmt.Errorf("requeue stale documents: %w", err)
	}
	summary.DocumentsRequeued = int(requeued)
	if requeued > 0 {
		s.logger.Warn("requeued stale documents",
			zap.String("batch_id", batch.ID),
			zap.Int64("count", requeued),
		)
	}

	docs, err := s.documents.ListUploaded(ctx, batch.ID, s.cfg.MaxDocsPerBatchRun)
	if err != nil {
		return summary, fmt.Errorf("list uploaded documents: %w", err)
	}
	if len(docs) == 0 {
		return summary, nil
	}

	tier, err := s.tiers.Resolve(ctx, batch.UserID)
	if err != nil {
		return summary, fmt.Errorf("resolve tier: %w", err)
	}

	for i := range docs {
		summary.DocumentsAttempted++
		s.processDocument(ctx, batch, &docs[i], tier, &summary)
	}
	return summary, nil
}

func (s *ProcessorService) processDocument(ctx context.Context, batch *models.Batch, doc *models.Document, tier models.Tier, summary *dto.ProcessorRunSummary) {
	now := time.Now().UTC()

	reserved, err := s.quota.Reserve(ctx, doc.UserID, tier, doc.PageCount)
	if err != nil {
		s.failDocument(ctx, doc, fmt.Sprintf("quota check failed: %v", err), summary)
		return
	}
	if !reserved {
		s.failDocument(ctx, doc, "monthly page quota exhausted", summary)
		return
	}

	ok, err := s.documents.MarkProcessing(ctx, doc.ID, now)
	if err != nil || !ok {
		// another run advanced this document first; hand the pages back
		s.quota.Release(ctx, doc.UserID, doc.PageCount)
		if err != nil {
			s.logger.Error("mark processing failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
		return
	}

	content, prompt, err := s.resolvePrompt(ctx, batch, doc)
	if err != nil {
		s.quota.Release(ctx, doc.UserID, doc.PageCount)
		s.failDocument(ctx, doc, err.Error(), summary)
		return
	}

	result, err := s.engine.Extract(ctx, extract.Request{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		MimeType:   doc.MimeType,
		Prompt:     prompt,
		Content:    content,
	})
	if err != nil {
		s.quota.Release(ctx, doc.UserID, doc.PageCount)
		s.failDocument(ctx, doc, fmt.Sprintf("extraction failed: %v", err), summary)
		return
	}

	if err := s.saveResult(ctx, batch.ID, doc.ID, result); err != nil {
		s.quota.Release(ctx, doc.UserID, doc.PageCount)
		s.failDocument(ctx, doc, fmt.Sprintf("result persistence failed: %v", err), summary)
		return
	}

	if _, err := s.documents.MarkCompleted(ctx, doc.ID, time.Now().UTC()); err != nil {
		s.logger.Error("mark completed failed", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	summary.DocumentsCompleted++
	summary.PagesCharged += doc.PageCount
	s.metrics.ObserveDocument("completed", doc.PageCount)
	s.events.Emit("document_completed", doc.UserID, models.EventPayload{
		"batch_id":    batch.ID,
		"document_id": doc.ID,
		"pages":       doc.PageCount,
	})
}

// resolvePrompt returns the document content and its extraction prompt per the
// batch strategy. For auto, a previously memoized prompt short-circuits the
// classifier so later passes never re-classify.
func (s *ProcessorService) resolvePrompt(ctx context.Context, batch *models.Batch, doc *models.Document) ([]byte, string, error) {
	if doc.ExtractionPrompt != nil && strings.TrimSpace(*doc.ExtractionPrompt) != "" {
		content, err := s.storage.Load(ctx, doc.StoragePath)
		if err != nil {
			return nil, "", fmt.Errorf("download failed: %w", err)
		}
		return content, *doc.ExtractionPrompt, nil
	}

	switch batch.PromptStrategy {
	case models.PromptStrategyGlobal:
		if batch.GlobalPrompt == nil || strings.TrimSpace(*batch.GlobalPrompt) == "" {
			return nil, "", fmt.Errorf("batch has no global prompt")
		}
		content, err := s.storage.Load(ctx, doc.StoragePath)
		if err != nil {
			return nil, "", fmt.Errorf("download failed: %w", err)
		}
		return content, *batch.GlobalPrompt, nil

	case models.PromptStrategyPerDocument:
		return nil, "", fmt.Errorf("no prompt configured for this document")

	case models.PromptStrategyAuto:
		content, err := s.storage.Load(ctx, doc.StoragePath)
		if err != nil {
			return nil, "", fmt.Errorf("download failed: %w", err)
		}
		docType := s.classifier.Classify(content, doc.MimeType)
		prompt := docType.DefaultPrompt()
		if err := s.documents.SetPrompt(ctx, doc.ID, prompt, time.Now().UTC()); err != nil {
			s.logger.Warn("prompt memoization failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
		return content, prompt, nil

	default:
		return nil, "", fmt.Errorf("unknown prompt strategy %q", batch.PromptStrategy)
	}
}

// saveResult stores the extraction output next to the source object.
func (s *ProcessorService) saveResult(ctx context.Context, batchID, docID string, result *extract.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	path := fmt.Sprintf("results/%s/%s.json", batchID, docID)
	if err := s.storage.Save(ctx, path, data, "application/json"); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func (s *ProcessorService) failDocument(ctx context.Context, doc *models.Document, message string, summary *dto.ProcessorRunSummary) {
	if _, err := s.documents.MarkFailed(ctx, doc.ID, message, time.Now().UTC()); err != nil {
		s.logger.Error("mark failed errored", zap.String("document_id", doc.ID), zap.Error(err))
		return
	}
	summary.DocumentsFailed++
	s.metrics.ObserveDocument("failed", doc.PageCount)
	s.logger.Warn("document failed",
		zap.String("document_id", doc.ID),
		zap.String("reason", message),
	)
}
