package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "leadpilot-service/internal/domain/billing"
	"leadpilot-service/internal/provider"

	xerrors "leadpilot-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// VerifyService turns a provider-settled payment into a subscription row and
// a credit grant, committed in one transaction. Verification is idempotent on
// (provider, order id): replays return the original result without granting
// credits twice.
type VerifyService struct {
	subscriptionRepo SubscriptionStore
	userRepo         UserStore
	db               TxBeginner
	registry         *provider.Registry
	pricing          *domain.PricingTable
	logger           *zap.Logger

	now func() time.Time
}

func NewVerifyService(
	subscriptionRepo SubscriptionStore,
	userRepo UserStore,
	db TxBeginner,
	registry *provider.Registry,
	pricing *domain.PricingTable,
	logger *zap.Logger,
) *VerifyService {
	return &VerifyService{
		subscriptionRepo: subscriptionRepo,
		userRepo:         userRepo,
		db:               db,
		registry:         registry,
		pricing:          pricing,
		logger:           logger,
		now:              time.Now,
	}
}

// Verify fetches the authoritative payment status and, on settlement, commits
// the subscription insert and the credit overwrite together. The provider
// round trip happens before any transaction is opened so a hung provider can
// never hold a database transaction.
func (s *VerifyService) Verify(ctx context.Context, userID string, req *domain.VerifyRequest) (*domain.VerifyResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", xerrors.ErrValidation)
	}
	if !req.Plan.Valid() || req.Plan == domain.PlanFree {
		return nil, fmt.Errorf("%w: plan %q is not purchasable", xerrors.ErrValidation, req.Plan)
	}
	if !req.BillingCycle.Valid() {
		return nil, fmt.Errorf("%w: invalid billing cycle %q", xerrors.ErrValidation, req.BillingCycle)
	}

	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	// Browsers retry the verify call; an order that already produced a row
	// returns its original result.
	existing, err := s.subscriptionRepo.FindByProviderOrder(ctx, adapter.Name(), req.OrderID)
	if err == nil {
		return s.replayResult(userID, existing)
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	// A missing user is bad input, not a settlement that failed to persist;
	// catching it here keeps the persistence-failure channel clean.
	if _, err := s.userRepo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", xerrors.ErrValidation)
		}
		return nil, err
	}

	outcome, err := adapter.FetchStatus(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !outcome.Settled {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrNotSettled, outcome.Reason)
	}
	if outcome.Currency != "" && !strings.EqualFold(outcome.Currency, req.Currency) {
		return nil, fmt.Errorf("%w: settled currency %s does not match %s",
			xerrors.ErrValidation, outcome.Currency, req.Currency)
	}

	// The settled amount is the authoritative price paid. Re-check it against
	// the catalog: no order row binds the checkout to a plan, so a verify
	// claiming a richer plan than the one paid for must be rejected here.
	if !outcome.Amount.IsZero() && !s.pricing.PriceMatches(req.Plan, req.BillingCycle, req.Currency, outcome.Amount) {
		s.logger.Warn("settled amount does not match claimed plan",
			zap.String("provider", adapter.Name()),
			zap.String("order_id", req.OrderID),
			zap.String("user_id", userID),
			zap.String("plan", string(req.Plan)),
			zap.String("billing_cycle", string(req.BillingCycle)),
			zap.String("settled_amount", outcome.Amount.String()),
		)
		return nil, fmt.Errorf("%w: settled amount %s does not match the %s %s price",
			xerrors.ErrValidation, outcome.Amount.String(), req.Plan, req.BillingCycle)
	}

	startDate := s.now().UTC()
	amountPaid := outcome.Amount
	if amountPaid.IsZero() {
		if price, ok := s.pricing.Price(req.Plan, req.BillingCycle, req.Currency); ok {
			amountPaid = price
		}
	}

	sub := &domain.Subscription{
		UserID:              userID,
		PlanName:            req.Plan,
		BillingCycle:        req.BillingCycle,
		Currency:            strings.ToUpper(req.Currency),
		AmountPaid:          amountPaid,
		Status:              domain.SubscriptionStatusActive,
		StartDate:           startDate,
		EndDate:             domain.AddCycle(startDate, req.BillingCycle),
		Provider:            adapter.Name(),
		ProviderOrderID:     req.OrderID,
		ProviderReferenceID: outcome.ReferenceID,
		RawProviderResponse: outcome.Raw,
	}

	grant := s.pricing.Credits(req.Plan)
	var credits *int
	if grant > 0 {
		credits = &grant
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, s.persistenceFailure(err, userID, sub, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := s.subscriptionRepo.CreateWithTx(ctx, tx, sub); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			// A concurrent verify for the same order won the insert race;
			// converge on its result.
			_ = tx.Rollback(ctx)
			winner, ferr := s.subscriptionRepo.FindByProviderOrder(ctx, adapter.Name(), req.OrderID)
			if ferr != nil {
				return nil, s.persistenceFailure(ferr, userID, sub, "failed to resolve duplicate settlement")
			}
			return s.replayResult(userID, winner)
		}
		return nil, s.persistenceFailure(err, userID, sub, "failed to record subscription")
	}

	if err := s.userRepo.UpdateBillingFieldsWithTx(ctx, tx, userID, req.Plan, req.BillingCycle, credits); err != nil {
		return nil, s.persistenceFailure(err, userID, sub, "failed to apply credit grant")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.persistenceFailure(err, userID, sub, "failed to commit settlement")
	}

	s.logger.Info("payment settled",
		zap.String("provider", sub.Provider),
		zap.String("order_id", sub.ProviderOrderID),
		zap.String("reference_id", sub.ProviderReferenceID),
		zap.String("user_id", userID),
		zap.String("plan", string(sub.PlanName)),
		zap.String("billing_cycle", string(sub.BillingCycle)),
		zap.String("amount_paid", sub.AmountPaid.String()),
		zap.Int("credits", grant),
	)

	return &domain.VerifyResult{Subscription: sub, Credits: grant}, nil
}

func (s *VerifyService) replayResult(userID string, sub *domain.Subscription) (*domain.VerifyResult, error) {
	if sub.UserID != userID {
		return nil, fmt.Errorf("%w: order belongs to a different user", xerrors.ErrValidation)
	}
	return &domain.VerifyResult{
		Subscription: sub,
		Credits:      s.pricing.Credits(sub.PlanName),
		Replayed:     true,
	}, nil
}

// persistenceFailure is the most serious class: the money has moved but
// internal state has not. It is logged with everything needed for manual
// reconciliation and never swallowed.
func (s *VerifyService) persistenceFailure(err error, userID string, sub *domain.Subscription, msg string) error {
	s.logger.Error("settlement persistence failure",
		zap.String("provider", sub.Provider),
		zap.String("order_id", sub.ProviderOrderID),
		zap.String("reference_id", sub.ProviderReferenceID),
		zap.String("user_id", userID),
		zap.String("plan", string(sub.PlanName)),
		zap.ByteString("raw_provider_response", sub.RawProviderResponse),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %v", xerrors.ErrPersistence, msg, err)
}
