package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "leadpilot-service/internal/domain/billing"
	"leadpilot-service/internal/middleware"
	"leadpilot-service/internal/provider"
	service "leadpilot-service/internal/service/billing"

	xerrors "leadpilot-service/internal/pkg/errors"
	"leadpilot-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

// memStore backs the whole service stack in memory for wire-level tests.
type memStore struct {
	subs  map[string]*domain.Subscription
	users map[string]*domain.User
}

type memTx struct{ pgx.Tx }

func (memTx) Commit(ctx context.Context) error   { return nil }
func (memTx) Rollback(ctx context.Context) error { return nil }

func newMemStore(userIDs ...string) *memStore {
	m := &memStore{
		subs:  make(map[string]*domain.Subscription),
		users: make(map[string]*domain.User),
	}
	for _, id := range userIDs {
		m.users[id] = &domain.User{ID: id, Plan: domain.PlanFree}
	}
	return m
}

func (m *memStore) BeginTx(ctx context.Context) (pgx.Tx, error) { return memTx{}, nil }

func (m *memStore) CreateWithTx(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error {
	key := sub.Provider + "|" + sub.ProviderOrderID
	if _, ok := m.subs[key]; ok {
		return xerrors.ErrDuplicateEntry
	}
	sub.ID = int64(len(m.subs) + 1)
	cp := *sub
	m.subs[key] = &cp
	return nil
}

func (m *memStore) FindByProviderOrder(ctx context.Context, providerName, orderID string) (*domain.Subscription, error) {
	if sub, ok := m.subs[providerName+"|"+orderID]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, xerrors.ErrNotFound
}

func (m *memStore) FindLatestActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	for _, sub := range m.subs {
		if sub.UserID == userID && sub.Active(time.Now()) {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (m *memStore) ListByUser(ctx context.Context, userID string, filters *domain.SubscriptionListFilters) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			subs = append(subs, *sub)
		}
	}
	return subs, nil
}

func (m *memStore) ExpireElapsed(ctx context.Context, now time.Time) (int64, error) { return 0, nil }

func (m *memStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if u, ok := m.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, xerrors.ErrNotFound
}

func (m *memStore) UpdateBillingFieldsWithTx(ctx context.Context, tx pgx.Tx, userID string, plan domain.Plan, cycle domain.BillingCycle, credits *int) error {
	u, ok := m.users[userID]
	if !ok {
		return xerrors.ErrNotFound
	}
	u.Plan = plan
	if credits != nil {
		u.Credits = *credits
	}
	return nil
}

type stubProvider struct {
	outcome  *provider.PaymentOutcome
	fetchErr error
}

func (stubProvider) Name() string { return "testpay" }

func (p stubProvider) CreateSession(ctx context.Context, in provider.CreateSessionInput) (*provider.Session, error) {
	return &provider.Session{OrderID: in.OrderID, SessionHandle: "sess_" + in.OrderID}, nil
}

func (p stubProvider) FetchStatus(ctx context.Context, orderID string) (*provider.PaymentOutcome, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	if p.outcome != nil {
		return p.outcome, nil
	}
	return &provider.PaymentOutcome{
		Settled:     true,
		Amount:      decimal.NewFromInt(49),
		Currency:    "USD",
		ReferenceID: "cap_789",
		Raw:         []byte(`{}`),
	}, nil
}

func newTestRouter(t *testing.T, p provider.Provider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore("u1")
	registry := provider.NewRegistry(p)
	pricing := domain.DefaultPricingTable()
	logger := zap.NewNop()

	handler := NewBillingHandler(
		service.NewOrderService(registry, store, pricing, logger),
		service.NewVerifyService(store, store, store, registry, pricing, logger),
		service.NewSubscriptionService(store, logger),
	)

	auth := middleware.NewAuthMiddleware(testSecret)

	r := gin.New()
	api := r.Group("/api/v1/billing")
	api.Use(auth.Auth())
	{
		api.POST("/orders", handler.CreateOrder)
		api.POST("/verify", handler.VerifyPayment)
		api.GET("/subscriptions", handler.ListSubscriptions)
		api.GET("/subscriptions/active", handler.GetActiveSubscription)
	}
	return r
}

func bearerToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, auth string, body interface{}) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func orderBody() map[string]interface{} {
	return map[string]interface{}{
		"provider":      "testpay",
		"plan":          "PILOT",
		"billing_cycle": "MONTHLY",
		"currency":      "USD",
		"amount":        "49",
	}
}

func verifyBody(orderID string) map[string]interface{} {
	return map[string]interface{}{
		"provider":      "testpay",
		"order_id":      orderID,
		"plan":          "PILOT",
		"billing_cycle": "MONTHLY",
		"currency":      "USD",
	}
}

func TestCreateOrderRequiresAuth(t *testing.T) {
	r := newTestRouter(t, stubProvider{})

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/billing/orders", "", orderBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrderHappyPath(t *testing.T) {
	r := newTestRouter(t, stubProvider{})

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/billing/orders", bearerToken(t, "u1"), orderBody())
	require.Equal(t, http.StatusCreated, w.Code)

	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["order_id"])
	assert.NotEmpty(t, data["session_handle"])
}

func TestCreateOrderTamperedAmount(t *testing.T) {
	r := newTestRouter(t, stubProvider{})

	body := orderBody()
	body["amount"] = "1"

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/billing/orders", bearerToken(t, "u1"), body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}

func TestCreateOrderUnknownProvider(t *testing.T) {
	r := newTestRouter(t, stubProvider{})

	// Unknown provider tag is a validation failure, not a gateway error.
	body := orderBody()
	body["provider"] = "stripe"
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/billing/orders", bearerToken(t, "u1"), body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifySettled(t *testing.T) {
	r := newTestRouter(t, stubProvider{})

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/billing/verify", bearerToken(t, "u1"), verifyBody("order_abc123"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	// Repeat call is idempotent and still succeeds.
	w, resp = doJSON(t, r, http.MethodPost, "/api/v1/billing/verify", bearerToken(t, "u1"), verifyBody("order_abc123"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestVerifyNotSettled(t *testing.T) {
	r := newTestRouter(t, stubProvider{outcome: &provider.PaymentOutcome{Settled: false, Reason: "order status ACTIVE"}})

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/billing/verify", bearerToken(t, "u1"), verifyBody("order_1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "order_1", "message carries the order id, never the raw payload")
}

func TestVerifyProviderUnavailable(t *testing.T) {
	r := newTestRouter(t, stubProvider{fetchErr: xerrors.ErrProviderUnavailable})

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/billing/verify", bearerToken(t, "u1"), verifyBody("order_1"))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, resp.Success)
}

func TestSubscriptionEndpoints(t *testing.T) {
	r := newTestRouter(t, stubProvider{})
	auth := bearerToken(t, "u1")

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/billing/subscriptions/active", auth, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no subscription before any settlement")

	_, resp := doJSON(t, r, http.MethodPost, "/api/v1/billing/verify", auth, verifyBody("order_1"))
	require.True(t, resp.Success)

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/billing/subscriptions/active", auth, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, resp = doJSON(t, r, http.MethodGet, "/api/v1/billing/subscriptions", auth, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
}
