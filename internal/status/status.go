// Package status defines the error taxonomy shared by the inventory and
// check-in services. Capacity and quota failures carry the numeric counts the
// caller needs to render an actionable message.
package status

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("status: record not found")
	ErrAlreadyUsed        = errors.New("checkin: ticket already used")
	ErrTicketVoid         = errors.New("checkin: ticket was voided")
	ErrWrongEvent         = errors.New("checkin: ticket belongs to another event")
	ErrInvalidTicket      = errors.New("checkin: unknown ticket code")
	ErrReservationExpired = errors.New("ledger: reservation expired or unknown")
	ErrPurchaseState      = errors.New("purchase: transition not allowed from current state")
	ErrUsedNotRefundable  = errors.New("purchase: used ticket cannot be refunded")
)

// CapacityError reports a failed reservation together with how many units the
// tier still has, so the buyer can retry with a smaller quantity.
type CapacityError struct {
	TierID    string
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("tier %s: insufficient capacity: requested %d, remaining %d",
		e.TierID, e.Requested, e.Remaining)
}

// QuotaError reports a merchant plan limit hit at resource-creation time.
type QuotaError struct {
	Kind    string
	Limit   int
	Current int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: limit %d, current %d", e.Kind, e.Limit, e.Current)
}

// GenerationError marks the non-recoverable case: capacity was committed but
// the ticket batch could not be written. It must reach an operator.
type GenerationError struct {
	PurchaseID string
	TierID     string
	Cause      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("ticket generation failed for purchase %s (tier %s): %v",
		e.PurchaseID, e.TierID, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }
