package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boleteria/internal/status"
	"boleteria/internal/store"
	"boleteria/models"
	"boleteria/monitoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// capacityLedger is the slice of LedgerService the state machine needs.
type capacityLedger interface {
	Reserve(ctx context.Context, tierID string, qty int) (*models.Reservation, error)
	Release(ctx context.Context, token string) error
	Commit(ctx context.Context, token string) error
	RestoreCapacity(ctx context.Context, tierID string, qty int) error
}

type ticketGenerator interface {
	Generate(tx *store.Store, purchaseID string, tier *models.Tier, qty int, unitPrice decimal.Decimal) ([]models.Ticket, error)
}

// PurchaseService drives pending → completed/cancelled/refunded. Reservations
// are acquired per tier and composed saga-style: any failure releases what
// was already held.
type PurchaseService struct {
	Store    *store.Store
	Ledger   capacityLedger
	Tickets  ticketGenerator
	Notifier Notifier
	monitor  *monitoring.Monitor
}

func NewPurchaseService(st *store.Store, ledger capacityLedger, tickets ticketGenerator, notifier Notifier, monitor *monitoring.Monitor) *PurchaseService {
	return &PurchaseService{
		Store:    st,
		Ledger:   ledger,
		Tickets:  tickets,
		Notifier: notifier,
		monitor:  monitor,
	}
}

// Create reserves every line of the cart and persists a pending purchase.
// All-or-nothing: if any tier cannot cover its quantity, every already-held
// reservation is released and the capacity error for the failing tier is
// returned.
func (s *PurchaseService) Create(ctx context.Context, merchantID, eventID, buyerID string, lines []models.PurchaseLine) (*models.Purchase, error) {
	if len(lines) == 0 {
		return nil, errors.New("purchase: at least one line required")
	}

	total := decimal.Zero
	for i := range lines {
		if lines[i].Quantity <= 0 {
			return nil, fmt.Errorf("purchase: line %d quantity must be positive", i)
		}

		tier, err := s.Store.GetTier(lines[i].TierID)
		if err != nil {
			return nil, err
		}
		if tier.Status != models.TierActive {
			return nil, fmt.Errorf("purchase: tier %s is not on sale", tier.ID)
		}

		session, err := s.Store.GetSession(tier.SessionID)
		if err != nil {
			return nil, err
		}
		if session.EventID != eventID {
			return nil, fmt.Errorf("purchase: tier %s does not belong to event %s", tier.ID, eventID)
		}
		if session.Status != models.SessionActive {
			return nil, fmt.Errorf("purchase: session %s is cancelled", session.ID)
		}

		lines[i].UnitPrice = tier.Price
		total = total.Add(tier.Price.Mul(decimal.NewFromInt(int64(lines[i].Quantity))))
	}

	reserved, err := acquireReservations(ctx, s.Ledger, lines)
	if err != nil {
		return nil, err
	}

	linesJSON, err := json.Marshal(reserved)
	if err != nil {
		s.releaseAll(ctx, reserved)
		return nil, fmt.Errorf("purchase: encode lines: %w", err)
	}

	purchase := &models.Purchase{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		EventID:    eventID,
		BuyerID:    buyerID,
		Lines:      reserved,
		LinesJSON:  string(linesJSON),
		Total:      total,
		Status:     models.PurchasePending,
		CreatedAt:  time.Now(),
	}
	if err := s.Store.InsertPurchase(purchase); err != nil {
		s.releaseAll(ctx, reserved)
		return nil, err
	}

	return purchase, nil
}

// acquireReservations holds capacity for every line or for none. On the
// first failure all previously acquired tokens are released before the
// error surfaces.
func acquireReservations(ctx context.Context, ledger capacityLedger, lines []models.PurchaseLine) ([]models.PurchaseLine, error) {
	acquired := make([]models.PurchaseLine, 0, len(lines))
	for _, line := range lines {
		resv, err := ledger.Reserve(ctx, line.TierID, line.Quantity)
		if err != nil {
			for _, held := range acquired {
				if relErr := ledger.Release(ctx, held.Token); relErr != nil {
					slog.Error("compensating release failed", "token", held.Token, "error", relErr)
				}
			}
			return nil, err
		}
		line.Token = resv.Token
		acquired = append(acquired, line)
	}
	return acquired, nil
}

// Confirm is driven by the external payment callback. It commits every
// reservation, generates the full ticket batch in one transaction, and marks
// the purchase completed. Safe to call again after completion.
func (s *PurchaseService) Confirm(ctx context.Context, purchaseID, paymentRef string) ([]models.Ticket, error) {
	purchase, err := s.Store.GetPurchase(purchaseID)
	if err != nil {
		return nil, err
	}

	switch purchase.Status {
	case models.PurchaseCompleted:
		// Gateway retried the callback; tickets already exist.
		return s.Store.TicketsForPurchase(purchaseID)
	case models.PurchasePending:
	default:
		return nil, status.ErrPurchaseState
	}

	lines, err := decodeLines(purchase.LinesJSON)
	if err != nil {
		return nil, err
	}

	if err := s.commitReservations(ctx, lines); err != nil {
		// Reservations expired while the buyer was paying. The purchase
		// cannot complete; the sweep already returned the capacity.
		if trErr := s.Store.TransitionPurchase(purchaseID, models.PurchasePending, models.PurchaseCancelled, ""); trErr != nil {
			slog.Error("cancel after expiry failed", "purchase_id", purchaseID, "error", trErr)
		}
		return nil, err
	}

	var generated []models.Ticket
	err = s.Store.InTransaction(func(tx *store.Store) error {
		for _, line := range lines {
			tier, err := tx.GetTier(line.TierID)
			if err != nil {
				return err
			}
			tickets, err := s.Tickets.Generate(tx, purchaseID, tier, line.Quantity, line.UnitPrice)
			if err != nil {
				return &status.GenerationError{PurchaseID: purchaseID, TierID: line.TierID, Cause: err}
			}
			generated = append(generated, tickets...)
		}
		return tx.TransitionPurchase(purchaseID, models.PurchasePending, models.PurchaseCompleted, paymentRef)
	})
	if err != nil {
		current, getErr := s.Store.GetPurchase(purchaseID)
		if getErr == nil && duplicateCallbackWon(err, current) {
			// A concurrent callback completed the purchase first; this
			// transaction rolled back and the winner's tickets are the ones
			// that exist. Not an inconsistency.
			return s.Store.TicketsForPurchase(purchaseID)
		}
		s.failPurchase(ctx, purchaseID, err)
		return nil, err
	}

	s.Notifier.NotifyTickets(ctx, purchase.BuyerID, purchaseID, generated)
	return generated, nil
}

// duplicateCallbackWon reports whether a confirm transaction failed only
// because another callback already moved the purchase to completed.
func duplicateCallbackWon(err error, current *models.Purchase) bool {
	return errors.Is(err, status.ErrPurchaseState) &&
		current != nil &&
		current.Status == models.PurchaseCompleted
}

// commitReservations finalizes every token. When one fails the cart cannot
// complete, so the capacity of lines committed before the failure is restored
// explicitly (a committed token no longer releases through the ledger) and
// the remaining tokens are released.
func (s *PurchaseService) commitReservations(ctx context.Context, lines []models.PurchaseLine) error {
	for i, line := range lines {
		if err := s.Ledger.Commit(ctx, line.Token); err != nil {
			for _, done := range lines[:i] {
				if resErr := s.Ledger.RestoreCapacity(ctx, done.TierID, done.Quantity); resErr != nil {
					slog.Error("restore capacity after failed commit", "tier_id", done.TierID, "error", resErr)
				}
			}
			for _, rest := range lines[i:] {
				if relErr := s.Ledger.Release(ctx, rest.Token); relErr != nil {
					slog.Error("release after failed commit", "token", rest.Token, "error", relErr)
				}
			}
			return err
		}
	}
	return nil
}

// failPurchase handles the one unrecoverable path: capacity committed but
// tickets not written. The purchase lands in a terminal failed state and an
// operator is paged.
func (s *PurchaseService) failPurchase(ctx context.Context, purchaseID string, cause error) {
	if err := s.Store.TransitionPurchase(purchaseID, models.PurchasePending, models.PurchaseFailed, ""); err != nil {
		slog.Error("transition to failed state", "purchase_id", purchaseID, "error", err)
	}
	if s.monitor != nil {
		s.monitor.TrackInconsistency()
	}
	slog.Error("ticket generation failed after capacity commit", "purchase_id", purchaseID, "error", cause)
	s.Notifier.NotifyOps(ctx, "ticket generation failed after capacity commit", map[string]any{
		"purchase_id": purchaseID,
		"error":       cause.Error(),
	})
}

// Cancel releases every reservation of a still-pending purchase. Used both
// for explicit buyer cancellation and checkout expiry.
func (s *PurchaseService) Cancel(ctx context.Context, purchaseID string) error {
	purchase, err := s.Store.GetPurchase(purchaseID)
	if err != nil {
		return err
	}
	if purchase.Status == models.PurchaseCancelled {
		return nil
	}
	if purchase.Status != models.PurchasePending {
		return status.ErrPurchaseState
	}

	lines, err := decodeLines(purchase.LinesJSON)
	if err != nil {
		return err
	}
	s.releaseAll(ctx, lines)

	return s.Store.TransitionPurchase(purchaseID, models.PurchasePending, models.PurchaseCancelled, "")
}

// Refund voids the purchase's unused tickets. Used tickets block the refund
// unless force is set, in which case they stay used and only the rest are
// voided. Capacity goes back to the ledger only when the merchant asks: the
// session may already be over.
func (s *PurchaseService) Refund(ctx context.Context, purchaseID string, restoreCapacity, force bool) error {
	purchase, err := s.Store.GetPurchase(purchaseID)
	if err != nil {
		return err
	}
	if purchase.Status != models.PurchaseCompleted {
		return status.ErrPurchaseState
	}

	if !force {
		tickets, err := s.Store.TicketsForPurchase(purchaseID)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if t.Status == models.TicketUsed {
				return status.ErrUsedNotRefundable
			}
		}
	}

	var voided map[string]int
	err = s.Store.InTransaction(func(tx *store.Store) error {
		var err error
		voided, err = tx.VoidSoldTickets(purchaseID)
		if err != nil {
			return err
		}
		if restoreCapacity {
			if err := restoreVoidedCapacity(tx, voided); err != nil {
				return err
			}
		}
		return tx.TransitionPurchase(purchaseID, models.PurchaseCompleted, models.PurchaseRefunded, "")
	})
	if err != nil {
		return err
	}

	if restoreCapacity {
		for tierID, qty := range voided {
			if err := s.Ledger.RestoreCapacity(ctx, tierID, qty); err != nil {
				slog.Error("restore ledger capacity", "tier_id", tierID, "error", err)
			}
		}
	}
	return nil
}

// capacityRestorer is the slice of the store refund restoration needs.
type capacityRestorer interface {
	GetTier(id string) (*models.Tier, error)
	IncrementTierRemaining(tierID string, qty int) error
	IncrementSessionRemaining(sessionID string, qty int) error
}

// restoreVoidedCapacity returns voided units to both durable counters: the
// tier and the venue aggregate its session tracks.
func restoreVoidedCapacity(tx capacityRestorer, voided map[string]int) error {
	for tierID, qty := range voided {
		if err := tx.IncrementTierRemaining(tierID, qty); err != nil {
			return err
		}
		tier, err := tx.GetTier(tierID)
		if err != nil {
			return err
		}
		if err := tx.IncrementSessionRemaining(tier.SessionID, qty); err != nil {
			return err
		}
	}
	return nil
}

func (s *PurchaseService) releaseAll(ctx context.Context, lines []models.PurchaseLine) {
	for _, line := range lines {
		if line.Token == "" {
			continue
		}
		if err := s.Ledger.Release(ctx, line.Token); err != nil {
			slog.Error("release reservation", "token", line.Token, "error", err)
		}
	}
}

func decodeLines(linesJSON string) ([]models.PurchaseLine, error) {
	var lines []models.PurchaseLine
	if err := json.Unmarshal([]byte(linesJSON), &lines); err != nil {
		return nil, fmt.Errorf("purchase: decode lines: %w", err)
	}
	return lines, nil
}
