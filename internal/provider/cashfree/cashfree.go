package cashfree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadpilot-service/internal/provider"

	xerrors "leadpilot-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	sandboxBaseURL    = "https://sandbox.cashfree.com"
	productionBaseURL = "https://api.cashfree.com"

	apiVersion = "2023-08-01"

	orderStatusPaid = "PAID"
)

// Adapter implements the hosted-checkout flow: an order is registered under
// our own order id, the returned payment_session_id drives the provider's
// checkout page, and verification re-reads the order status server-side.
type Adapter struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
}

func New(clientID, clientSecret, environment string, timeout time.Duration, logger *zap.Logger) *Adapter {
	baseURL := sandboxBaseURL
	if strings.EqualFold(environment, "production") {
		baseURL = productionBaseURL
	}
	return &Adapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// NewWithBaseURL is used by tests to point the adapter at a stub server.
func NewWithBaseURL(clientID, clientSecret, baseURL string, timeout time.Duration, logger *zap.Logger) *Adapter {
	a := New(clientID, clientSecret, "sandbox", timeout, logger)
	a.baseURL = baseURL
	return a
}

func (a *Adapter) Name() string { return "cashfree" }

// CreateSession registers the order with the provider. Cashfree keeps our
// order id, so the session's OrderID is the one passed in.
func (a *Adapter) CreateSession(ctx context.Context, in provider.CreateSessionInput) (*provider.Session, error) {
	body := map[string]interface{}{
		"order_id":       in.OrderID,
		"order_amount":   in.Amount.InexactFloat64(),
		"order_currency": strings.ToUpper(in.Currency),
		"customer_details": map[string]string{
			"customer_id": in.UserID,
		},
		"order_tags": in.Metadata,
	}

	raw, status, err := a.call(ctx, http.MethodPost, "/pg/orders", body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		a.logger.Error("cashfree order creation rejected",
			zap.Int("status", status),
			zap.String("order_id", in.OrderID),
		)
		return nil, fmt.Errorf("%w: cashfree returned status %d", xerrors.ErrProviderUnavailable, status)
	}

	var resp struct {
		OrderID          string `json:"order_id"`
		PaymentSessionID string `json:"payment_session_id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.PaymentSessionID == "" {
		return nil, fmt.Errorf("%w: malformed cashfree order response", xerrors.ErrProviderUnavailable)
	}

	return &provider.Session{
		OrderID:       in.OrderID,
		SessionHandle: resp.PaymentSessionID,
		Raw:           raw,
	}, nil
}

// FetchStatus re-reads the order from the provider. Only order_status PAID is
// settlement; ACTIVE, EXPIRED and TERMINATED are terminal non-settlement for
// verification purposes (an ACTIVE order can still be retried by the browser
// after the buyer finishes paying).
func (a *Adapter) FetchStatus(ctx context.Context, orderID string) (*provider.PaymentOutcome, error) {
	raw, status, err := a.call(ctx, http.MethodGet, "/pg/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusNotFound:
		return &provider.PaymentOutcome{Settled: false, Reason: "order not found", Raw: raw}, nil
	case status < 200 || status >= 300:
		a.logger.Error("cashfree status fetch failed",
			zap.Int("status", status),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("%w: cashfree returned status %d", xerrors.ErrProviderUnavailable, status)
	}

	var resp struct {
		OrderID       string          `json:"order_id"`
		CFOrderID     json.Number     `json:"cf_order_id"`
		OrderStatus   string          `json:"order_status"`
		OrderAmount   decimal.Decimal `json:"order_amount"`
		OrderCurrency string          `json:"order_currency"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed cashfree order response", xerrors.ErrProviderUnavailable)
	}

	if resp.OrderStatus != orderStatusPaid {
		return &provider.PaymentOutcome{
			Settled: false,
			Reason:  fmt.Sprintf("order status %s", resp.OrderStatus),
			Raw:     raw,
		}, nil
	}

	return &provider.PaymentOutcome{
		Settled:     true,
		Amount:      resp.OrderAmount,
		Currency:    resp.OrderCurrency,
		ReferenceID: resp.CFOrderID.String(),
		Raw:         raw,
	}, nil
}

func (a *Adapter) call(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal cashfree request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build cashfree request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-version", apiVersion)
	req.Header.Set("x-client-id", a.clientID)
	req.Header.Set("x-client-secret", a.clientSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", xerrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read cashfree response: %v", xerrors.ErrProviderUnavailable, err)
	}
	return raw, resp.StatusCode, nil
}
