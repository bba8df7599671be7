package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadpilot-service/internal/domain/billing"

	xerrors "leadpilot-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `
	id, user_id, plan_name, billing_cycle, currency, amount_paid,
	status, start_date, end_date,
	provider, provider_order_id, provider_reference_id,
	raw_provider_response, created_at, updated_at`

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// CreateWithTx inserts a subscription row within a transaction. A violation of
// the (provider, provider_order_id) unique index surfaces as
// xerrors.ErrDuplicateEntry so the verifier can resolve concurrent replays.
func (r *SubscriptionRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, sub *billing.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, plan_name, billing_cycle, currency, amount_paid,
			status, start_date, end_date,
			provider, provider_order_id, provider_reference_id, raw_provider_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx, query,
		sub.UserID, sub.PlanName, sub.BillingCycle, sub.Currency, sub.AmountPaid,
		sub.Status, sub.StartDate, sub.EndDate,
		sub.Provider, sub.ProviderOrderID, sub.ProviderReferenceID, sub.RawProviderResponse,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

// FindByProviderOrder retrieves the subscription committed for a provider
// order, if any. This lookup backs idempotent verification.
func (r *SubscriptionRepository) FindByProviderOrder(ctx context.Context, provider, orderID string) (*billing.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE provider = $1 AND provider_order_id = $2
	`
	return r.scanOne(r.db.QueryRow(ctx, query, provider, orderID))
}

// FindLatestActiveByUser retrieves the most recent ACTIVE subscription whose
// paid period has not elapsed.
func (r *SubscriptionRepository) FindLatestActiveByUser(ctx context.Context, userID string) (*billing.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status = $2 AND end_date > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, userID, billing.SubscriptionStatusActive))
}

// ListByUser retrieves a user's subscription history, newest first.
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string, filters *billing.SubscriptionListFilters) ([]billing.Subscription, error) {
	limit := 50
	offset := 0
	status := ""
	if filters != nil {
		if filters.Limit > 0 && filters.Limit <= 200 {
			limit = filters.Limit
		}
		if filters.Offset > 0 {
			offset = filters.Offset
		}
		status = filters.Status
	}

	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []billing.Subscription
	for rows.Next() {
		var sub billing.Subscription
		if err := scanSubscription(rows, &sub); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ExpireElapsed flips every ACTIVE subscription whose paid period has elapsed
// to EXPIRED in one conditional bulk statement. The WHERE clause makes the
// sweep idempotent and safe to run concurrently from multiple nodes.
func (r *SubscriptionRepository) ExpireElapsed(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND end_date <= $3
	`

	result, err := r.db.Exec(ctx, query,
		billing.SubscriptionStatusExpired, billing.SubscriptionStatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *SubscriptionRepository) scanOne(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	err := scanSubscription(row, &sub)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return &sub, nil
}

func scanSubscription(row pgx.Row, sub *billing.Subscription) error {
	return row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanName, &sub.BillingCycle, &sub.Currency, &sub.AmountPaid,
		&sub.Status, &sub.StartDate, &sub.EndDate,
		&sub.Provider, &sub.ProviderOrderID, &sub.ProviderReferenceID,
		&sub.RawProviderResponse, &sub.CreatedAt, &sub.UpdatedAt,
	)
}
