package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

// QuotaRepository tracks pages processed per user per billing period.
// Reservation is a single conditional increment, so two concurrent passes can
// never jointly overshoot the limit.
type QuotaRepository struct {
	db *sqlx.DB
}

// NewQuotaRepository constructs the repository.
func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

// EnsureCurrentPeriod creates the quota row for the period if it does not
// exist yet. Existing rows keep their counters.
func (r *QuotaRepository) EnsureCurrentPeriod(ctx context.Context, userID string, periodStart, periodEnd time.Time, pagesLimit int) error {
	const query = `INSERT INTO usage_quotas (user_id, period_start, period_end, pages_processed, pages_limit)
VALUES ($1, $2, $3, 0, $4)
ON CONFLICT (user_id, period_start) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, periodStart, periodEnd, pagesLimit); err != nil {
		return fmt.Errorf("ensure quota period: %w", err)
	}
	return nil
}

// GetCurrent returns the quota row covering the given instant.
func (r *QuotaRepository) GetCurrent(ctx context.Context, userID string, now time.Time) (*models.UsageQuota, error) {
	const query = `SELECT user_id, period_start, period_end, pages_processed, pages_limit
FROM usage_quotas WHERE user_id = $1 AND period_start <= $2 AND period_end > $2`
	var quota models.UsageQuota
	if err := r.db.GetContext(ctx, &quota, query, userID, now); err != nil {
		return nil, err
	}
	return &quota, nil
}

// Reserve atomically charges pages against the current period. The ceiling
// check and the increment are one statement; zero rows affected means the
// quota would be exceeded and nothing was charged.
func (r *QuotaRepository) Reserve(ctx context.Context, userID string, pages int, now time.Time) (bool, error) {
	const query = `UPDATE usage_quotas
SET pages_processed = pages_processed + $2
WHERE user_id = $1 AND period_start <= $3 AND period_end > $3
  AND pages_processed + $2 <= pages_limit`
	res, err := r.db.ExecContext(ctx, query, userID, pages, now)
	if err != nil {
		return false, fmt.Errorf("reserve quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve quota rows: %w", err)
	}
	return affected == 1, nil
}

// Release returns previously reserved pages after a failed extraction,
// flooring at zero.
func (r *QuotaRepository) Release(ctx context.Context, userID string, pages int, now time.Time) error {
	const query = `UPDATE usage_quotas
SET pages_processed = GREATEST(pages_processed - $2, 0)
WHERE user_id = $1 AND period_start <= $3 AND period_end > $3`
	if _, err := r.db.ExecContext(ctx, query, userID, pages, now); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}
