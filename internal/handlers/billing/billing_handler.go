package billing

import (
	"errors"
	"net/http"

	domain "leadpilot-service/internal/domain/billing"
	"leadpilot-service/internal/middleware"
	service "leadpilot-service/internal/service/billing"

	xerrors "leadpilot-service/internal/pkg/errors"
	"leadpilot-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	orderService        *service.OrderService
	verifyService       *service.VerifyService
	subscriptionService *service.SubscriptionService
}

func NewBillingHandler(
	orderService *service.OrderService,
	verifyService *service.VerifyService,
	subscriptionService *service.SubscriptionService,
) *BillingHandler {
	return &BillingHandler{
		orderService:        orderService,
		verifyService:       verifyService,
		subscriptionService: subscriptionService,
	}
}

// CreateOrder opens a checkout session with the requested payment provider.
func (h *BillingHandler) CreateOrder(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.orderService.CreateOrder(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, statusForError(err), "failed to create order", err)
		return
	}

	response.Success(c, http.StatusCreated, "payment session created", result)
}

// VerifyPayment re-queries the provider for the order's settlement status and
// commits the subscription and credit grant on success. Repeat calls with the
// same order id return the original result.
func (h *BillingHandler) VerifyPayment(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req domain.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.verifyService.Verify(c.Request.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotSettled) {
			// Terminal for this order, not a transport failure. The checkout
			// UI shows a generic message with the order id, never the raw
			// provider payload.
			response.Error(c, http.StatusOK, "payment could not be verified, contact support with order id "+req.OrderID, err)
			return
		}
		response.Error(c, statusForError(err), "failed to verify payment", err)
		return
	}

	response.Success(c, http.StatusOK, "payment verified", result)
}

// ListSubscriptions returns the authenticated user's billing history.
func (h *BillingHandler) ListSubscriptions(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var filters domain.SubscriptionListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	subs, err := h.subscriptionService.ListSubscriptions(c.Request.Context(), userID, &filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list subscriptions", err)
		return
	}

	response.Success(c, http.StatusOK, "subscriptions retrieved", subs)
}

// GetActiveSubscription returns the user's current unexpired subscription.
func (h *BillingHandler) GetActiveSubscription(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	sub, err := h.subscriptionService.GetActiveSubscription(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "no active subscription")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to get active subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "active subscription retrieved", sub)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, xerrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, xerrors.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
