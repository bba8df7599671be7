package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"leadpilot-service/internal/provider"

	xerrors "leadpilot-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	sandboxBaseURL    = "https://api-m.sandbox.paypal.com"
	productionBaseURL = "https://api-m.paypal.com"

	orderStatusCompleted = "COMPLETED"
)

// Adapter implements the capture-style flow: an order is created with intent
// CAPTURE, the buyer approves it in the checkout widget, and verification
// captures the order and reads the authoritative result.
type Adapter struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(clientID, clientSecret, environment string, timeout time.Duration, logger *zap.Logger) *Adapter {
	baseURL := sandboxBaseURL
	if strings.EqualFold(environment, "production") || strings.EqualFold(environment, "live") {
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

func (a *Adapter) Name() string { return "paypal" }

// CreateSession opens a CAPTURE-intent order. PayPal issues its own order id,
// which becomes both the session handle and the id the browser echoes back;
// our internally generated order id travels along as custom_id for audit.
func (a *Adapter) CreateSession(ctx context.Context, in provider.CreateSessionInput) (*provider.Session, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"custom_id": in.OrderID,
				"amount": map[string]string{
					"currency_code": strings.ToUpper(in.Currency),
					"value":         in.Amount.StringFixed(2),
				},
			},
		},
	}

	raw, status, err := a.call(ctx, http.MethodPost, "/v2/checkout/orders", body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		a.logger.Error("paypal order creation rejected",
			zap.Int("status", status),
			zap.String("order_id", in.OrderID),
		)
		return nil, fmt.Errorf("%w: paypal returned status %d", xerrors.ErrProviderUnavailable, status)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.ID == "" {
		return nil, fmt.Errorf("%w: malformed paypal order response", xerrors.ErrProviderUnavailable)
	}

	return &provider.Session{
		OrderID:       resp.ID,
		SessionHandle: resp.ID,
		Raw:           raw,
	}, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// FetchStatus captures the approved order and reports the authoritative
// outcome. An order already captured by an earlier verify attempt is fetched
// instead, so retries converge on the same settled result.
func (a *Adapter) FetchStatus(ctx context.Context, orderID string) (*provider.PaymentOutcome, error) {
	raw, status, err := a.call(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", struct{}{})
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 200 && status < 300:
		return a.outcomeFromOrder(raw)
	case status == http.StatusUnprocessableEntity:
		// ORDER_ALREADY_CAPTURED lands here; re-read the order. Any other
		// 422 (ORDER_NOT_APPROVED etc.) means the payment did not complete.
		if strings.Contains(string(raw), "ORDER_ALREADY_CAPTURED") {
			return a.fetchOrder(ctx, orderID)
		}
		return &provider.PaymentOutcome{
			Settled: false,
			Reason:  issueFromBody(raw),
			Raw:     raw,
		}, nil
	case status == http.StatusNotFound:
		return &provider.PaymentOutcome{Settled: false, Reason: "order not found", Raw: raw}, nil
	default:
		a.logger.Error("paypal capture failed",
			zap.Int("status", status),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("%w: paypal returned status %d", xerrors.ErrProviderUnavailable, status)
	}
}

func (a *Adapter) fetchOrder(ctx context.Context, orderID string) (*provider.PaymentOutcome, error) {
	raw, status, err := a.call(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: paypal returned status %d", xerrors.ErrProviderUnavailable, status)
	}
	return a.outcomeFromOrder(raw)
}

func (a *Adapter) outcomeFromOrder(raw []byte) (*provider.PaymentOutcome, error) {
	var resp captureResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed paypal capture response", xerrors.ErrProviderUnavailable)
	}

	if resp.Status != orderStatusCompleted {
		return &provider.PaymentOutcome{
			Settled: false,
			Reason:  fmt.Sprintf("order status %s", resp.Status),
			Raw:     raw,
		}, nil
	}

	outcome := &provider.PaymentOutcome{Settled: true, Raw: raw}
	if len(resp.PurchaseUnits) > 0 && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		capture := resp.PurchaseUnits[0].Payments.Captures[0]
		outcome.ReferenceID = capture.ID
		outcome.Currency = capture.Amount.CurrencyCode
		if amount, err := decimal.NewFromString(capture.Amount.Value); err == nil {
			outcome.Amount = amount
		}
	}
	return outcome, nil
}

func issueFromBody(raw []byte) string {
	var body struct {
		Details []struct {
			Issue string `json:"issue"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Details) > 0 {
		return body.Details[0].Issue
	}
	return "payment not completed"
}

// call performs an authenticated API request, refreshing the OAuth token when
// needed, and returns the raw body with the HTTP status. Transport errors map
// to ErrProviderUnavailable.
func (a *Adapter) call(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal paypal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build paypal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", xerrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read paypal response: %v", xerrors.ErrProviderUnavailable, err)
	}
	return raw, resp.StatusCode, nil
}

// token returns a cached client-credentials token, fetching a fresh one when
// within a minute of expiry.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("failed to build paypal token request: %w", err)
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", xerrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: paypal token endpoint returned status %d", xerrors.ErrProviderUnavailable, resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil || tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: malformed paypal token response", xerrors.ErrProviderUnavailable)
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return a.accessToken, nil
}
