package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID          string    `db:"id" json:"id"`
	MerchantID  string    `db:"merchant_id" json:"merchant_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Venue       string    `db:"venue" json:"venue"`
	Featured    bool      `db:"featured" json:"featured"`
	Status      string    `db:"status" json:"status"` // draft, published, ended
	Created     time.Time `db:"created" json:"created"`
}

// Session is one dated occurrence of an event. Remaining tracks the venue
// cap independently of the tiers that sell against it.
type Session struct {
	ID        string    `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"event_id"`
	Date      string    `db:"date" json:"date"` // YYYY-MM-DD
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Remaining int       `db:"remaining" json:"remaining"`
	Status    string    `db:"status" json:"status"` // active, cancelled
}

const (
	SessionActive    = "active"
	SessionCancelled = "cancelled"
)

// Tier is a priced ticket class within one session. Remaining only moves
// through the capacity ledger; 0 <= Remaining <= Capacity holds at all times.
type Tier struct {
	ID        string          `db:"id" json:"id"`
	SessionID string          `db:"session_id" json:"session_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Capacity  int             `db:"capacity" json:"capacity"`
	Remaining int             `db:"remaining" json:"remaining"`
	SortOrder int             `db:"sort_order" json:"sort_order"`
	Status    string          `db:"status" json:"status"` // active, inactive
}

const (
	TierActive   = "active"
	TierInactive = "inactive"
)
