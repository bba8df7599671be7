package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "leadpilot-service/internal/domain/billing"
	"leadpilot-service/internal/provider"

	xerrors "leadpilot-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// fakeTx satisfies pgx.Tx for the narrow Commit/Rollback surface the services
// touch; everything else panics via the embedded nil interface.
type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeDB struct {
	beginErr  error
	commitErr error
}

func (d *fakeDB) BeginTx(ctx context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	return &fakeTx{commitErr: d.commitErr}, nil
}

type fakeSubscriptionStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*domain.Subscription // provider|orderID
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{rows: make(map[string]*domain.Subscription)}
}

func subKey(providerName, orderID string) string { return providerName + "|" + orderID }

func (f *fakeSubscriptionStore) CreateWithTx(ctx context.Context, tx pgx.Tx, sub *domain.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := subKey(sub.Provider, sub.ProviderOrderID)
	if _, exists := f.rows[key]; exists {
		return xerrors.ErrDuplicateEntry
	}

	f.nextID++
	sub.ID = f.nextID
	stored := *sub
	f.rows[key] = &stored
	return nil
}

func (f *fakeSubscriptionStore) FindByProviderOrder(ctx context.Context, providerName, orderID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sub, ok := f.rows[subKey(providerName, orderID)]; ok {
		cp := *sub
		return &cp, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeSubscriptionStore) FindLatestActiveByUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var latest *domain.Subscription
	for _, sub := range f.rows {
		if sub.UserID != userID || !sub.Active(time.Now()) {
			continue
		}
		if latest == nil || sub.ID > latest.ID {
			latest = sub
		}
	}
	if latest == nil {
		return nil, xerrors.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeSubscriptionStore) ListByUser(ctx context.Context, userID string, filters *domain.SubscriptionListFilters) ([]domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var subs []domain.Subscription
	for _, sub := range f.rows {
		if sub.UserID == userID {
			subs = append(subs, *sub)
		}
	}
	return subs, nil
}

func (f *fakeSubscriptionStore) ExpireElapsed(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var expired int64
	for _, sub := range f.rows {
		if sub.Status == domain.SubscriptionStatusActive && !sub.EndDate.After(now) {
			sub.Status = domain.SubscriptionStatusExpired
			expired++
		}
	}
	return expired, nil
}

func (f *fakeSubscriptionStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeUserStore struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	updateErr  error
	grantCalls int
}

func newFakeUserStore(userIDs ...string) *fakeUserStore {
	f := &fakeUserStore{users: make(map[string]*domain.User)}
	for _, id := range userIDs {
		f.users[id] = &domain.User{ID: id, Plan: domain.PlanFree}
	}
	return f
}

func (f *fakeUserStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, ok := f.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeUserStore) UpdateBillingFieldsWithTx(ctx context.Context, tx pgx.Tx, userID string, plan domain.Plan, cycle domain.BillingCycle, credits *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.updateErr != nil {
		return f.updateErr
	}
	u, ok := f.users[userID]
	if !ok {
		return xerrors.ErrNotFound
	}

	u.Plan = plan
	u.PlanCycle.String = string(cycle)
	u.PlanCycle.Valid = true
	if credits != nil {
		u.Credits = *credits
		f.grantCalls++
	}
	u.UpdatedAt = time.Now()
	return nil
}

func (f *fakeUserStore) credits(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID].Credits
}

type fakeProvider struct {
	mu          sync.Mutex
	name        string
	session     *provider.Session
	sessionErr  error
	outcome     *provider.PaymentOutcome
	fetchErr    error
	createCalls int
	fetchCalls  int
	lastSession provider.CreateSessionInput
}

func (p *fakeProvider) Name() string {
	if p.name == "" {
		return "testpay"
	}
	return p.name
}

func (p *fakeProvider) CreateSession(ctx context.Context, in provider.CreateSessionInput) (*provider.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.createCalls++
	p.lastSession = in
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	if p.session != nil {
		return p.session, nil
	}
	return &provider.Session{OrderID: in.OrderID, SessionHandle: "sess_" + in.OrderID}, nil
}

func (p *fakeProvider) FetchStatus(ctx context.Context, orderID string) (*provider.PaymentOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetchCalls++
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
		ReferenceID: "cap_" + orderID,
		Raw:         []byte(`{"status":"ok"}`),
	}, nil
}

var errBoom = errors.New("boom")
