package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "leadpilot-service/internal/pkg/errors"

	"github.com/shopspring/decimal"
)

// CreateSessionInput carries everything an adapter needs to open a remote
// payment session. OrderID is generated fresh per call by the order initiator;
// capture-style providers replace it with their own order id, hosted-checkout
// providers use it verbatim.
type CreateSessionInput struct {
	OrderID  string
	UserID   string
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
}

// Session is the opaque handle handed to the browser-side checkout widget.
// OrderID is the identifier the browser must echo back during verification.
type Session struct {
	OrderID       string
	SessionHandle string
	Raw           json.RawMessage
}

// PaymentOutcome is the authoritative settlement status fetched from the
// provider. Settled carries the captured amount and reference; anything else
// is terminal for the order (as opposed to ErrProviderUnavailable, which is
// retryable).
type PaymentOutcome struct {
	Settled     bool
	Amount      decimal.Decimal
	Currency    string
	ReferenceID string
	Reason      string
	Raw         json.RawMessage
}

// Provider isolates one payment provider's wire contract. Settlement is never
// inferred from the client's claim; FetchStatus re-queries the provider.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, in CreateSessionInput) (*Session, error)
	FetchStatus(ctx context.Context, orderID string) (*PaymentOutcome, error)
}

// Registry selects an adapter by the provider tag stored alongside each
// subscription row. New providers are added here, never by branching on the
// provider name inside the ledger.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment provider %q", xerrors.ErrValidation, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
