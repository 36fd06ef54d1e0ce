package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parsepoint/parsepoint-api/internal/dto"
	"github.com/parsepoint/parsepoint-api/internal/models"
	"github.com/parsepoint/parsepoint-api/internal/ratelimit"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
)

type tierStub struct {
	tier models.Tier
	err  error
}

func (s *tierStub) Resolve(ctx context.Context, userID string) (models.Tier, error) {
	return s.tier, s.err
}

type limiterStub struct {
	decision ratelimit.Decision
	err      error
}

func (s *limiterStub) Check(ctx context.Context, userID string, tier models.Tier, op string) (ratelimit.Decision, error) {
	return s.decision, s.err
}

type quotaCheckerStub struct {
	remaining int
}

func (s *quotaCheckerStub) Remaining(ctx context.Context, userID string, tier models.Tier) (int, error) {
	return s.remaining, nil
}

type batchStoreStub struct {
	batch *models.Batch
	docs  []models.Document
	err   error
}

func (s *batchStoreStub) CreateWithDocuments(ctx context.Context, batch *models.Batch, docs []models.Document) error {
	if s.err != nil {
		return s.err
	}
	s.batch = batch
	s.docs = docs
	return nil
}

type objectStoreStub struct {
	saved   map[string][]byte
	deleted []string
	saveErr error
	loadErr error
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{saved: make(map[string][]byte)}
}

func (s *objectStoreStub) Save(ctx context.Context, path string, data []byte, contentType string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[path] = data
	return nil
}

func (s *objectStoreStub) Load(ctx context.Context, path string) ([]byte, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	data, ok := s.saved[path]
	if !ok {
		return nil, errors.New("object missing")
	}
	return data, nil
}

func (s *objectStoreStub) Delete(ctx context.Context, path string) error {
	s.deleted = append(s.deleted, path)
	delete(s.saved, path)
	return nil
}

type sinkStub struct {
	events []string
}

func (s *sinkStub) Emit(name, userID string, payload models.EventPayload) {
	s.events = append(s.events, name)
}

func newIngestFixture(tier models.Tier) (*IngestService, *batchStoreStub, *objectStoreStub, *sinkStub) {
	admission := NewAdmissionService(AdmissionConfig{}, stubPageCounter(2, nil), nil)
	batches := &batchStoreStub{}
	store := newObjectStoreStub()
	sink := &sinkStub{}
	svc := NewIngestService(
		&tierStub{tier: tier},
		admission,
		&limiterStub{decision: ratelimit.Decision{Allowed: true}},
		&quotaCheckerStub{remaining: 1000},
		batches,
		store,
		sink,
		nil,
	)
	return svc, batches, store, sink
}

func pdfFile(name, content string) CandidateFile {
	return CandidateFile{Filename: name, MimeType: "application/pdf", Size: int64(len(content)), Content: []byte(content)}
}

func TestCreateBatchHappyPath(t *testing.T) {
	svc, batches, store, sink := newIngestFixture(models.TierPlus)

	form := dto.CreateBatchForm{Name: "June invoices", PromptStrategy: "global", GlobalPrompt: "Extract totals"}
	files := []CandidateFile{pdfFile("a.pdf", "aa"), pdfFile("b.pdf", "bb"), pdfFile("c.pdf", "cc")}

	resp, err := svc.CreateBatch(context.Background(), "user-1", form, nil, files)
	require.NoError(t, err)
	require.Equal(t, string(models.BatchStatusQueued), resp.Status)
	require.Equal(t, 3, resp.DocumentCount)
	require.Equal(t, 0, resp.FailedCount)
	require.Equal(t, 6, resp.TotalPages)
	require.Empty(t, resp.Rejected)

	require.Len(t, batches.docs, 3)
	require.Len(t, store.saved, 3)
	require.Equal(t, []string{"batch_created"}, sink.events)
	require.Equal(t, "Extract totals", *batches.batch.GlobalPrompt)
}

func TestCreateBatchGlobalStrategyRequiresPrompt(t *testing.T) {
	svc, _, _, _ := newIngestFixture(models.TierPlus)
	form := dto.CreateBatchForm{PromptStrategy: "global"}
	_, err := svc.CreateBatch(context.Background(), "user-1", form, nil, []CandidateFile{pdfFile("a.pdf", "aa")})
	require.Equal(t, appErrors.ErrPromptConfig.Code, appErrors.FromError(err).Code)
}

func TestCreateBatchPerDocumentMissingPromptIsIsolated(t *testing.T) {
	svc, batches, _, _ := newIngestFixture(models.TierPlus)
	form := dto.CreateBatchForm{PromptStrategy: "per_document"}
	prompts := map[string]string{"a.pdf": "Extract invoice number"}
	files := []CandidateFile{pdfFile("a.pdf", "aa"), pdfFile("b.pdf", "bb")}

	resp, err := svc.CreateBatch(context.Background(), "user-1", form, prompts, files)
	require.NoError(t, err)
	require.Equal(t, 1, resp.DocumentCount)
	require.Equal(t, 1, resp.FailedCount)
	require.Len(t, resp.Rejected, 1)
	require.Equal(t, "b.pdf", resp.Rejected[0].Filename)

	require.Len(t, batches.docs, 1)
	require.Equal(t, "Extract invoice number", *batches.docs[0].ExtractionPrompt)
}

func TestCreateBatchRateLimited(t *testing.T) {
	admission := NewAdmissionService(AdmissionConfig{}, stubPageCounter(1, nil), nil)
	svc := NewIngestService(
		&tierStub{tier: models.TierPlus},
		admission,
		&limiterStub{decision: ratelimit.Decision{Allowed: false, RetryAfter: 42 * time.Second}},
		&quotaCheckerStub{remaining: 1000},
		&batchStoreStub{},
		newObjectStoreStub(),
		&sinkStub{},
		nil,
	)

	form := dto.CreateBatchForm{PromptStrategy: "auto"}
	_, err := svc.CreateBatch(context.Background(), "user-1", form, nil, []CandidateFile{pdfFile("a.pdf", "aa")})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrRateLimited.Code, appErr.Code)
	require.Equal(t, 42, appErr.RetryAfterSeconds)
}

func TestCreateBatchPreliminaryQuotaCheck(t *testing.T) {
	admission := NewAdmissionService(AdmissionConfig{}, stubPageCounter(50, nil), nil)
	svc := NewIngestService(
		&tierStub{tier: models.TierPlus},
		admission,
		&limiterStub{decision: ratelimit.Decision{Allowed: true}},
		&quotaCheckerStub{remaining: 40},
		&batchStoreStub{},
		newObjectStoreStub(),
		&sinkStub{},
		nil,
	)

	form := dto.CreateBatchForm{PromptStrategy: "auto"}
	_, err := svc.CreateBatch(context.Background(), "user-1", form, nil, []CandidateFile{pdfFile("a.pdf", "aa")})
	require.Equal(t, appErrors.ErrQuotaExceeded.Code, appErrors.FromError(err).Code)
}

func TestCreateBatchAllFilesExcludedCreatesFailedBatch(t *testing.T) {
	svc, batches, _, _ := newIngestFixture(models.TierPlus)
	form := dto.CreateBatchForm{PromptStrategy: "per_document"}
	files := []CandidateFile{pdfFile("a.pdf", "aa"), pdfFile("b.pdf", "bb")}

	resp, err := svc.CreateBatch(context.Background(), "user-1", form, map[string]string{}, files)
	require.NoError(t, err)
	require.Equal(t, string(models.BatchStatusFailed), resp.Status)
	require.Equal(t, 0, resp.DocumentCount)
	require.Equal(t, 2, resp.FailedCount)
	require.Empty(t, batches.docs)
	require.NotNil(t, batches.batch.CompletedAt)
}

func TestCreateBatchCompensatesStorageOnInsertFailure(t *testing.T) {
	admission := NewAdmissionService(AdmissionConfig{}, stubPageCounter(1, nil), nil)
	store := newObjectStoreStub()
	svc := NewIngestService(
		&tierStub{tier: models.TierPlus},
		admission,
		&limiterStub{decision: ratelimit.Decision{Allowed: true}},
		&quotaCheckerStub{remaining: 1000},
		&batchStoreStub{err: errors.New("deadlock")},
		store,
		&sinkStub{},
		nil,
	)

	form := dto.CreateBatchForm{PromptStrategy: "auto"}
	files := []CandidateFile{pdfFile("a.pdf", "aa"), pdfFile("b.pdf", "bb")}
	_, err := svc.CreateBatch(context.Background(), "user-1", form, nil, files)
	require.Equal(t, appErrors.ErrBatchIngestion.Code, appErrors.FromError(err).Code)
	require.Len(t, store.deleted, 2)
	require.Empty(t, store.saved)
}
