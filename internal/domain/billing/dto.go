package billing

import "github.com/shopspring/decimal"

type CreateOrderRequest struct {
	Provider     string          `json:"provider" binding:"required"`
	Plan         Plan            `json:"plan" binding:"required"`
	BillingCycle BillingCycle    `json:"billing_cycle" binding:"required"`
	Currency     string          `json:"currency" binding:"required"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
}

// OrderSession is returned to the browser-side checkout widget. OrderID is the
// identifier the browser must echo back on verification.
type OrderSession struct {
	Provider      string `json:"provider"`
	OrderID       string `json:"order_id"`
	SessionHandle string `json:"session_handle"`
}

type VerifyRequest struct {
	Provider     string       `json:"provider" binding:"required"`
	OrderID      string       `json:"order_id" binding:"required"`
	Plan         Plan         `json:"plan" binding:"required"`
	BillingCycle BillingCycle `json:"billing_cycle" binding:"required"`
	Currency     string       `json:"currency" binding:"required"`
}

// VerifyResult reports a committed settlement. Replayed reports whether this
// verification hit an order that was already committed earlier.
type VerifyResult struct {
	Subscription *Subscription `json:"subscription"`
	Credits      int           `json:"credits"`
	Replayed     bool          `json:"replayed"`
}

type SubscriptionListFilters struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}
