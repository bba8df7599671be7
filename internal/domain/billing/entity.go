package billing

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPilot      Plan = "PILOT"
	PlanScale      Plan = "SCALE"
	PlanEnterprise Plan = "ENTERPRISE"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPilot, PlanScale, PlanEnterprise:
		return true
	}
	return false
}

type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleYearly  BillingCycle = "YEARLY"
)

func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleYearly
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired SubscriptionStatus = "EXPIRED"
)

// User carries only the billing projection of the account row. Profile fields
// (name, email) are owned by the profile CRUD layer and never written here.
type User struct {
	ID          string         `json:"id" db:"id"`
	Email       string         `json:"email" db:"email"`
	DisplayName string         `json:"display_name" db:"display_name"`
	Credits     int            `json:"credits" db:"credits"`
	Plan        Plan           `json:"plan" db:"plan"`
	PlanCycle   sql.NullString `json:"plan_cycle,omitempty" db:"plan_cycle"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Subscription is one row per completed payment. Append-mostly: status is the
// only field mutated after insert, and rows are never deleted.
type Subscription struct {
	ID                  int64              `json:"id" db:"id"`
	UserID              string             `json:"user_id" db:"user_id"`
	PlanName            Plan               `json:"plan_name" db:"plan_name"`
	BillingCycle        BillingCycle       `json:"billing_cycle" db:"billing_cycle"`
	Currency            string             `json:"currency" db:"currency"`
	AmountPaid          decimal.Decimal    `json:"amount_paid" db:"amount_paid"`
	Status              SubscriptionStatus `json:"status" db:"status"`
	StartDate           time.Time          `json:"start_date" db:"start_date"`
	EndDate             time.Time          `json:"end_date" db:"end_date"`
	Provider            string             `json:"provider" db:"provider"`
	ProviderOrderID     string             `json:"provider_order_id" db:"provider_order_id"`
	ProviderReferenceID string             `json:"provider_reference_id" db:"provider_reference_id"`
	RawProviderResponse json.RawMessage    `json:"-" db:"raw_provider_response"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at" db:"updated_at"`
}

// Active reports whether the subscription is ACTIVE and its paid period has
// not elapsed at the given instant.
func (s *Subscription) Active(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(now)
}
