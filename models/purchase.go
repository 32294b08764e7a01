package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseLine is one (tier, quantity) entry of a cart. Token holds the
// ledger reservation backing the line while the purchase is pending.
type PurchaseLine struct {
	TierID    string          `json:"tier_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Token     string          `json:"token,omitempty"`
}

type Purchase struct {
	ID         string          `db:"id" json:"id"`
	MerchantID string          `db:"merchant_id" json:"merchant_id"`
	EventID    string          `db:"event_id" json:"event_id"`
	BuyerID    string          `db:"buyer_id" json:"buyer_id"`
	Lines      []PurchaseLine  `db:"-" json:"lines"`
	LinesJSON  string          `db:"lines" json:"-"`
	Total      decimal.Decimal `db:"total" json:"total"`
	Status     string          `db:"status" json:"status"`
	PaymentRef string          `db:"payment_ref" json:"payment_ref,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

const (
	PurchasePending   = "pending"
	PurchaseCompleted = "completed"
	PurchaseCancelled = "cancelled"
	PurchaseRefunded  = "refunded"
	// PurchaseFailed is terminal: capacity was committed but tickets could
	// not be written. Requires operator reconciliation.
	PurchaseFailed = "failed"
)

// Reservation is the ledger-side hold on tier capacity. It lives in Redis
// until committed or released; uncommitted holds are swept after ExpiresAt.
type Reservation struct {
	Token     string    `json:"token"`
	TierID    string    `json:"tier_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
	Committed bool      `json:"committed"`
}
