package service

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/internal/models"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
)

// CandidateFile is one uploaded file before admission.
type CandidateFile struct {
	Filename string
	MimeType string
	Size     int64
	Content  []byte
}

// AdmittedFile is a validated file with its resolved page count. PageCountErr
// marks a per-file introspection failure; the file is excluded later at
// ingestion, never rejected with the batch.
type AdmittedFile struct {
	CandidateFile
	PageCount    int
	PageCountErr error
}

type pageCounter func(content []byte) (int, error)

// AdmissionConfig bounds what the service accepts.
type AdmissionConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// AdmissionService validates a candidate upload against tier and file rules.
// Pure validation: it never touches storage or the database, and it collects
// every violation so the caller sees all offending files at once.
type AdmissionService struct {
	cfg     AdmissionConfig
	pages   pageCounter
	logger  *zap.Logger
	mimeSet map[string]struct{}
}

// NewAdmissionService constructs the service with defaults.
func NewAdmissionService(cfg AdmissionConfig, pages pageCounter, logger *zap.Logger) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &AdmissionService{cfg: cfg, pages: pages, logger: logger, mimeSet: mimeSet}
}

// Validate admits the candidate files for the given tier. On rejection the
// returned error lists every violation.
func (s *AdmissionService) Validate(files []CandidateFile, tier models.Tier) ([]AdmittedFile, error) {
	limits := tier.Limits()
	if !limits.BatchProcessing {
		return nil, appErrors.Clone(appErrors.ErrTierForbidden, "")
	}
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no files provided")
	}
	if len(files) > limits.MaxBatchFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("batch holds %d files, the %s plan allows at most %d", len(files), tier, limits.MaxBatchFiles))
	}

	var details []string
	for _, f := range files {
		if _, ok := s.mimeSet[strings.ToLower(f.MimeType)]; !ok {
			details = append(details, fmt.Sprintf("%s: unsupported type %s", f.Filename, f.MimeType))
		}
		if f.Size > s.cfg.MaxFileSizeBytes {
			details = append(details, fmt.Sprintf("%s: %d bytes exceeds the %d byte limit", f.Filename, f.Size, s.cfg.MaxFileSizeBytes))
		}
	}
	if len(details) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, details)
	}

	admitted := make([]AdmittedFile, 0, len(files))
	for _, f := range files {
		af := AdmittedFile{CandidateFile: f, PageCount: 1}
		if strings.EqualFold(f.MimeType, "application/pdf") {
			count, err := s.pages(f.Content)
			if err != nil {
				s.logger.Warn("page count failed", zap.String("filename", f.Filename), zap.Error(err))
				af.PageCount = 0
				af.PageCountErr = err
			} else {
				af.PageCount = count
			}
		}
		admitted = append(admitted, af)
	}
	return admitted, nil
}
