package postgres

import (
	"context"
	"errors"
	"fmt"

	"leadpilot-service/internal/domain/billing"

	xerrors "leadpilot-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser retrieves a user's billing projection.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*billing.User, error) {
	query := `
		SELECT id, email, display_name, credits, plan, plan_cycle, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user billing.User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.DisplayName,
		&user.Credits, &user.Plan, &user.PlanCycle,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// UpdateBillingFieldsWithTx applies a credit grant inside the verification
// transaction. Only the billing columns are touched so a concurrent profile
// save (name, email) can never be clobbered and can never clobber this write.
// A nil credits pointer leaves the balance untouched (zero-credit plans).
func (r *UserRepository) UpdateBillingFieldsWithTx(ctx context.Context, tx pgx.Tx, userID string, plan billing.Plan, cycle billing.BillingCycle, credits *int) error {
	query := `
		UPDATE users
		SET plan = $1, plan_cycle = $2, credits = COALESCE($3, credits), updated_at = NOW()
		WHERE id = $4
	`

	result, err := tx.Exec(ctx, query, plan, string(cycle), credits, userID)
	if err != nil {
		return fmt.Errorf("failed to update billing fields: %w", err)
	}

	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}

	return nil
}
