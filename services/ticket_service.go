package services

import (
	"fmt"
	"strings"
	"time"

	"boleteria/config"
	"boleteria/internal/store"
	"boleteria/models"
	"boleteria/monitoring"
	"boleteria/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TicketService materializes committed reservations into immutable ticket
// rows. Generation always happens inside the caller's transaction so a batch
// is written completely or not at all.
type TicketService struct {
	Config  *config.Config
	monitor *monitoring.Monitor
}

func NewTicketService(cfg *config.Config, monitor *monitoring.Monitor) *TicketService {
	return &TicketService{Config: cfg, monitor: monitor}
}

// Generate writes qty tickets for one purchase line and applies the durable
// tier and session decrements. The caller must hold a committed ledger
// reservation for exactly qty units; this method does not re-check the
// ledger.
func (s *TicketService) Generate(tx *store.Store, purchaseID string, tier *models.Tier, qty int, unitPrice decimal.Decimal) ([]models.Ticket, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("generate: quantity must be positive, got %d", qty)
	}

	now := time.Now()
	tickets := make([]models.Ticket, 0, qty)

	for i := 0; i < qty; i++ {
		ticket, err := s.insertOne(tx, purchaseID, tier.ID, unitPrice, now)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}

	if err := tx.DecrementTierRemaining(tier.ID, qty); err != nil {
		return nil, err
	}
	if err := tx.DecrementSessionRemaining(tier.SessionID, qty); err != nil {
		return nil, err
	}

	if s.monitor != nil {
		s.monitor.TrackTickets(tier.ID, qty)
	}
	return tickets, nil
}

// codeCollisionRetries bounds regeneration when a random code hits the unique
// index. Two retries make a repeat collision astronomically unlikely.
const codeCollisionRetries = 2

func (s *TicketService) insertOne(tx *store.Store, purchaseID, tierID string, unitPrice decimal.Decimal, now time.Time) (*models.Ticket, error) {
	var lastErr error
	for attempt := 0; attempt <= codeCollisionRetries; attempt++ {
		displayCode, err := utils.GenerateDisplayCode(s.Config.CodeSecret)
		if err != nil {
			return nil, fmt.Errorf("generate display code: %w", err)
		}
		// The verification token is independent of the display code, so a
		// valid check-in credential cannot be guessed from a visible number.
		token, err := utils.GenerateCode(10)
		if err != nil {
			return nil, fmt.Errorf("generate verification token: %w", err)
		}

		ticket := models.Ticket{
			ID:                uuid.NewString(),
			TierID:            tierID,
			PurchaseID:        purchaseID,
			DisplayCode:       displayCode,
			VerificationToken: token,
			Price:             unitPrice,
			Status:            models.TicketSold,
			CreatedAt:         now,
		}
		err = tx.InsertTicket(&ticket)
		if err == nil {
			return &ticket, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("code collision persisted after %d retries: %w", codeCollisionRetries, lastErr)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
