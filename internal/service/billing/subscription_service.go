package billing

import (
	"context"

	domain "leadpilot-service/internal/domain/billing"

	"go.uber.org/zap"
)

// SubscriptionService serves the dashboard's billing history reads.
type SubscriptionService struct {
	subscriptionRepo SubscriptionStore
	logger           *zap.Logger
}

func NewSubscriptionService(subscriptionRepo SubscriptionStore, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{subscriptionRepo: subscriptionRepo, logger: logger}
}

// ListSubscriptions retrieves a user's subscription history, newest first.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, userID string, filters *domain.SubscriptionListFilters) ([]domain.Subscription, error) {
	return s.subscriptionRepo.ListByUser(ctx, userID, filters)
}

// GetActiveSubscription retrieves the user's most recent unexpired ACTIVE
// subscription.
func (s *SubscriptionService) GetActiveSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	return s.subscriptionRepo.FindLatestActiveByUser(ctx, userID)
}
