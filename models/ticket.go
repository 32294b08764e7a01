package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Ticket struct {
	ID                string          `db:"id" json:"id"`
	TierID            string          `db:"tier_id" json:"tier_id"`
	PurchaseID        string          `db:"purchase_id" json:"purchase_id"`
	DisplayCode       string          `db:"display_code" json:"display_code"`
	VerificationToken string          `db:"verification_token" json:"-"`
	Price             decimal.Decimal `db:"price" json:"price"`
	Status            string          `db:"status" json:"status"` // sold, used, void
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UsedAt            *time.Time      `db:"used_at" json:"used_at,omitempty"`
	VerifierID        string          `db:"verifier_id" json:"verifier_id,omitempty"`
}

const (
	TicketSold = "sold"
	TicketUsed = "used"
	TicketVoid = "void"
)

// VerificationResult is what the door scanner sees. Errors block admission,
// warnings do not.
type VerificationResult struct {
	Valid    bool     `json:"valid"`
	Ticket   *Ticket  `json:"ticket,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
