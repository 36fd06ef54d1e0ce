package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/parsepoint/parsepoint-api/internal/models"
)

// SubscriptionRepository resolves a user's active plan tier.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetTier returns the active tier for the user. sql.ErrNoRows surfaces when
// the user has no active subscription; callers decide the fallback.
func (r *SubscriptionRepository) GetTier(ctx context.Context, userID string) (models.Tier, error) {
	const query = `SELECT tier FROM subscriptions WHERE user_id = $1 AND active = TRUE`
	var tier models.Tier
	if err := r.db.GetContext(ctx, &tier, query, userID); err != nil {
		return "", err
	}
	return tier, nil
}
