package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/parsepoint/parsepoint-api/internal/models"
	appErrors "github.com/parsepoint/parsepoint-api/pkg/errors"
)

type subscriptionTierStore interface {
	GetTier(ctx context.Context, userID string) (models.Tier, error)
}

// TierService resolves a user's plan tier. Users without an active
// subscription fall back to starter.
type TierService struct {
	subs   subscriptionTierStore
	logger *zap.Logger
}

// NewTierService constructs the service.
func NewTierService(subs subscriptionTierStore, logger *zap.Logger) *TierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TierService{subs: subs, logger: logger}
}

// Resolve returns the user's tier.
func (s *TierService) Resolve(ctx context.Context, userID string) (models.Tier, error) {
	tier, err := s.subs.GetTier(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TierStarter, nil
		}
		s.logger.Error("tier lookup failed", zap.String("user_id", userID), zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrTierLookup.Code, appErrors.ErrTierLookup.Status, appErrors.ErrTierLookup.Message)
	}
	return tier, nil
}
