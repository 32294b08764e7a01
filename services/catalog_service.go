package services

import (
	"context"
	"fmt"
	"time"

	"boleteria/internal/store"
	"boleteria/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// catalogLedger is the slice of LedgerService the catalog needs.
type catalogLedger interface {
	SeedTier(ctx context.Context, tierID string, remaining int) error
	AdjustCapacity(ctx context.Context, tierID string, delta int) error
}

// CatalogService handles merchant-side creation of events, sessions and
// tiers. Every bounded resource goes through the quota enforcer; tier
// creation seeds the capacity ledger.
type CatalogService struct {
	Store  *store.Store
	Quota  *QuotaService
	Ledger catalogLedger
}

func NewCatalogService(st *store.Store, quota *QuotaService, ledger catalogLedger) *CatalogService {
	return &CatalogService{Store: st, Quota: quota, Ledger: ledger}
}

// CreateEvent creates an event if the merchant's events quota allows one
// more.
func (s *CatalogService) CreateEvent(ctx context.Context, merchantID, name, description, venue string) (*models.Event, error) {
	event := &models.Event{
		ID:          uuid.NewString(),
		MerchantID:  merchantID,
		Name:        name,
		Description: description,
		Venue:       venue,
		Status:      "draft",
		Created:     time.Now(),
	}

	err := s.Quota.CheckAndConsume(ctx, merchantID, models.ResourceEvents, func(tx *store.Store) error {
		return tx.CreateEvent(event)
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

// FeatureEvent marks an event featured if the featured-events quota allows.
func (s *CatalogService) FeatureEvent(ctx context.Context, merchantID, eventID string) error {
	event, err := s.Store.GetEvent(eventID)
	if err != nil {
		return err
	}
	if event.MerchantID != merchantID {
		return fmt.Errorf("event %s does not belong to merchant %s", eventID, merchantID)
	}
	if event.Featured {
		return nil
	}

	return s.Quota.CheckAndConsume(ctx, merchantID, models.ResourceFeaturedEvents, func(tx *store.Store) error {
		return tx.SetEventFeatured(eventID, true)
	})
}

// InviteTeamMember adds a seat if the team-seats quota allows.
func (s *CatalogService) InviteTeamMember(ctx context.Context, merchantID, email, role string) error {
	return s.Quota.CheckAndConsume(ctx, merchantID, models.ResourceTeamSeats, func(tx *store.Store) error {
		return tx.AddTeamMember(merchantID, email, role)
	})
}

// CreateSession adds a dated occurrence to an event. Venue capacity is fixed
// at creation.
func (s *CatalogService) CreateSession(ctx context.Context, eventID, date string, start, end time.Time, capacity int) (*models.Session, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("session capacity must be positive, got %d", capacity)
	}
	if _, err := s.Store.GetEvent(eventID); err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		EventID:   eventID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Capacity:  capacity,
		Remaining: capacity,
		Status:    models.SessionActive,
	}
	if err := s.Store.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// CreateTier adds a priced class to a session and seeds its ledger counter.
func (s *CatalogService) CreateTier(ctx context.Context, sessionID, name string, price decimal.Decimal, capacity, sortOrder int) (*models.Tier, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("tier capacity must be positive, got %d", capacity)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("tier price must not be negative")
	}
	if _, err := s.Store.GetSession(sessionID); err != nil {
		return nil, err
	}

	tier := &models.Tier{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		Price:     price,
		Capacity:  capacity,
		Remaining: capacity,
		SortOrder: sortOrder,
		Status:    models.TierActive,
	}
	if err := s.Store.CreateTier(tier); err != nil {
		return nil, err
	}
	if err := s.Ledger.SeedTier(ctx, tier.ID, capacity); err != nil {
		return nil, fmt.Errorf("seed ledger for tier %s: %w", tier.ID, err)
	}
	return tier, nil
}

// ChangeTierCapacity reconciles a capacity edit after sales started. The new
// capacity can never drop below what is already sold, and the live counter
// shrinks only as far as outstanding holds permit.
func (s *CatalogService) ChangeTierCapacity(ctx context.Context, tierID string, newCapacity int) error {
	tier, err := s.Store.GetTier(tierID)
	if err != nil {
		return err
	}

	sold, err := s.Store.SoldCount(tierID)
	if err != nil {
		return err
	}
	if newCapacity < sold {
		return fmt.Errorf("tier %s: capacity %d below already-sold count %d", tierID, newCapacity, sold)
	}

	delta := newCapacity - tier.Capacity
	if delta == 0 {
		return nil
	}

	// Ledger first: it refuses a shrink that would cut under holds in
	// flight, leaving the durable row untouched.
	if err := s.Ledger.AdjustCapacity(ctx, tierID, delta); err != nil {
		return err
	}
	if err := s.Store.UpdateTierCapacity(tierID, newCapacity, tier.Remaining+delta); err != nil {
		return err
	}
	return nil
}
