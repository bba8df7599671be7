package billing

import (
	"context"
	"time"

	domain "leadpilot-service/internal/domain/billing"

	"github.com/jackc/pgx/v5"
)

// SubscriptionStore is implemented by postgres.SubscriptionRepository.
type SubscriptionStore interface {
	CreateWithTx(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error
	FindByProviderOrder(ctx context.Context, provider, orderID string) (*domain.Subscription, error)
	FindLatestActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error)
	ListByUser(ctx context.Context, userID string, filters *domain.SubscriptionListFilters) ([]domain.Subscription, error)
	ExpireElapsed(ctx context.Context, now time.Time) (int64, error)
}

// UserStore is implemented by postgres.UserRepository. It extends the
// collaborator read contract with the narrow billing-column write used inside
// the verification transaction.
type UserStore interface {
	domain.UserStore
	UpdateBillingFieldsWithTx(ctx context.Context, tx pgx.Tx, userID string, plan domain.Plan, cycle domain.BillingCycle, credits *int) error
}

// TxBeginner is implemented by postgres.DB.
type TxBeginner interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
}
