package billing

import (
	"context"
	"errors"
	"fmt"

	domain "leadpilot-service/internal/domain/billing"
	"leadpilot-service/internal/provider"

	xerrors "leadpilot-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// OrderService opens provider checkout sessions. It writes no local state: a
// session the browser abandons simply expires on the provider's side.
type OrderService struct {
	registry *provider.Registry
	userRepo domain.UserStore
	pricing  *domain.PricingTable
	logger   *zap.Logger
}

func NewOrderService(registry *provider.Registry, userRepo domain.UserStore, pricing *domain.PricingTable, logger *zap.Logger) *OrderService {
	return &OrderService{
		registry: registry,
		userRepo: userRepo,
		pricing:  pricing,
		logger:   logger,
	}
}

// CreateOrder validates the checkout request against the plan catalog and
// opens a payment session. The order identifier is generated fresh per call
// and never reused.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req *domain.CreateOrderRequest) (*domain.OrderSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", xerrors.ErrValidation)
	}
	if !req.Plan.Valid() || req.Plan == domain.PlanFree {
		return nil, fmt.Errorf("%w: plan %q is not purchasable", xerrors.ErrValidation, req.Plan)
	}
	if !req.BillingCycle.Valid() {
		return nil, fmt.Errorf("%w: invalid billing cycle %q", xerrors.ErrValidation, req.BillingCycle)
	}

	// Re-validate the client-quoted amount against the catalog so a tampered
	// quote is rejected before any provider session is created.
	if !s.pricing.PriceMatches(req.Plan, req.BillingCycle, req.Currency, req.Amount) {
		s.logger.Warn("order amount mismatch",
			zap.String("user_id", userID),
			zap.String("plan", string(req.Plan)),
			zap.String("billing_cycle", string(req.BillingCycle)),
			zap.String("currency", req.Currency),
			zap.String("quoted", req.Amount.String()),
		)
		return nil, fmt.Errorf("%w: amount does not match plan price", xerrors.ErrValidation)
	}

	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", xerrors.ErrValidation)
		}
		return nil, err
	}

	orderID := "order_" + ulid.Make().String()

	session, err := adapter.CreateSession(ctx, provider.CreateSessionInput{
		OrderID:  orderID,
		UserID:   userID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: map[string]string{
			"plan":          string(req.Plan),
			"billing_cycle": string(req.BillingCycle),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open payment session: %w", err)
	}

	s.logger.Info("payment session created",
		zap.String("provider", adapter.Name()),
		zap.String("order_id", session.OrderID),
		zap.String("user_id", userID),
		zap.String("plan", string(req.Plan)),
	)

	return &domain.OrderSession{
		Provider:      adapter.Name(),
		OrderID:       session.OrderID,
		SessionHandle: session.SessionHandle,
	}, nil
}
