package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

type quotaStore interface {
	EnsureCurrentPeriod(ctx context.Context, userID string, periodStart, periodEnd time.Time, pagesLimit int) error
	GetCurrent(ctx context.Context, userID string, now time.Time) (*models.UsageQuota, error)
	Reserve(ctx context.Context, userID string, pages int, now time.Time) (bool, error)
	Release(ctx context.Context, userID string, pages int, now time.Time) error
}

// QuotaService manages the per-user pages ledger over calendar-month billing
// periods. Reservation happens per document during processing; the advisory
// pre-check at upload time only catches batches that obviously cannot fit.
type QuotaService struct {
	repo   quotaStore
	logger *zap.Logger
}

// NewQuotaService constructs the service.
func NewQuotaService(repo quotaStore, logger *zap.Logger) *QuotaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaService{repo: repo, logger: logger}
}

// periodBounds returns the calendar-month billing window containing now.
func periodBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func (s *QuotaService) ensure(ctx context.Context, userID string, tier models.Tier, now time.Time) error {
	start, end := periodBounds(now)
	return s.repo.EnsureCurrentPeriod(ctx, userID, start, end, tier.Limits().PagesPerPeriod)
}

// Remaining returns how many pages the user can still process this period,
// creating the period row on first use.
func (s *QuotaService) Remaining(ctx context.Context, userID string, tier models.Tier) (int, error) {
	now := time.Now().UTC()
	if err := s.ensure(ctx, userID, tier, now); err != nil {
		return 0, err
	}
	quota, err := s.repo.GetCurrent(ctx, userID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tier.Limits().PagesPerPeriod, nil
		}
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return quota.Remaining(), nil
}

// Reserve atomically charges pages for the current period. False means the
// reservation would exceed the limit and nothing was charged.
func (s *QuotaService) Reserve(ctx context.Context, userID string, tier models.Tier, pages int) (bool, error) {
	now := time.Now().UTC()
	if err := s.ensure(ctx, userID, tier, now); err != nil {
		return false, err
	}
	return s.repo.Reserve(ctx, userID, pages, now)
}

// Release refunds a reservation after a failed extraction. Best effort: a
// failed release is logged, the pipeline moves on.
func (s *QuotaService) Release(ctx context.Context, userID string, pages int) {
	if err := s.repo.Release(ctx, userID, pages, time.Now().UTC()); err != nil {
		s.logger.Error("quota release failed",
			zap.String("user_id", userID),
			zap.Int("pages", pages),
			zap.Error(err),
		)
	}
}
