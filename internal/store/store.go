// Package store holds all SQL against the PocketBase database. Services go
// through it so transactional boundaries stay in one place.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"boleteria/internal/status"
	"boleteria/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) db() dbx.Builder {
	return s.app.DB()
}

// InTransaction runs fn against a transactional view of the store. SQLite's
// single writer serializes these, which is what the quota check and the
// ticket batch rely on.
func (s *Store) InTransaction(fn func(*Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(New(txApp))
	})
}

// ---- merchants ----

func (s *Store) GetMerchant(id string) (*models.Merchant, error) {
	var m models.Merchant
	err := s.db().Select("id", "name", "plan", "events_limit_custom",
		"featured_limit_custom", "seats_limit_custom", "commission_pct").
		From("merchants").
		Where(dbx.HashExp{"id": id}).
		One(&m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	return &m, nil
}

// CountResource counts a merchant's current usage of a bounded resource.
// Called inside the same transaction as the creation it guards.
func (s *Store) CountResource(merchantID string, kind models.ResourceKind) (int, error) {
	var query *dbx.SelectQuery
	switch kind {
	case models.ResourceEvents:
		query = s.db().Select("COUNT(*)").From("events").
			Where(dbx.HashExp{"merchant_id": merchantID})
	case models.ResourceFeaturedEvents:
		query = s.db().Select("COUNT(*)").From("events").
			Where(dbx.HashExp{"merchant_id": merchantID, "featured": true})
	case models.ResourceTeamSeats:
		query = s.db().Select("COUNT(*)").From("team_members").
			Where(dbx.HashExp{"merchant_id": merchantID})
	default:
		return 0, fmt.Errorf("unknown resource kind %q", kind)
	}

	var count int
	if err := query.Row(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return count, nil
}

// ---- events / sessions / tiers ----

func (s *Store) CreateEvent(ev *models.Event) error {
	_, err := s.db().Insert("events", dbx.Params{
		"id":          ev.ID,
		"merchant_id": ev.MerchantID,
		"name":        ev.Name,
		"description": ev.Description,
		"venue":       ev.Venue,
		"featured":    ev.Featured,
		"status":      ev.Status,
		"created":     ev.Created.UTC().Format(time.RFC3339),
	}).Execute()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) SetEventFeatured(eventID string, featured bool) error {
	result, err := s.db().Update("events",
		dbx.Params{"featured": featured},
		dbx.HashExp{"id": eventID},
	).Execute()
	if err != nil {
		return fmt.Errorf("update event featured: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return status.ErrNotFound
	}
	return nil
}

func (s *Store) GetEvent(id string) (*models.Event, error) {
	var row struct {
		ID          string `db:"id"`
		MerchantID  string `db:"merchant_id"`
		Name        string `db:"name"`
		Description string `db:"description"`
		Venue       string `db:"venue"`
		Featured    bool   `db:"featured"`
		Status      string `db:"status"`
		Created     string `db:"created"`
	}
	err := s.db().Select("id", "merchant_id", "name", "description", "venue", "featured", "status", "created").
		From("events").
		Where(dbx.HashExp{"id": id}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	created, _ := time.Parse(time.RFC3339, row.Created)
	return &models.Event{
		ID:          row.ID,
		MerchantID:  row.MerchantID,
		Name:        row.Name,
		Description: row.Description,
		Venue:       row.Venue,
		Featured:    row.Featured,
		Status:      row.Status,
		Created:     created,
	}, nil
}

func (s *Store) AddTeamMember(merchantID, email, role string) error {
	_, err := s.db().Insert("team_members", dbx.Params{
		"merchant_id": merchantID,
		"email":       email,
		"role":        role,
		"created":     time.Now().UTC().Format(time.RFC3339),
	}).Execute()
	if err != nil {
		return fmt.Errorf("insert team member: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(sess *models.Session) error {
	_, err := s.db().Insert("sessions", dbx.Params{
		"id":         sess.ID,
		"event_id":   sess.EventID,
		"date":       sess.Date,
		"start_time": sess.StartTime.UTC().Format(time.RFC3339),
		"end_time":   sess.EndTime.UTC().Format(time.RFC3339),
		"capacity":   sess.Capacity,
		"remaining":  sess.Remaining,
		"status":     sess.Status,
	}).Execute()
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) CreateTier(tier *models.Tier) error {
	_, err := s.db().Insert("tiers", dbx.Params{
		"id":         tier.ID,
		"session_id": tier.SessionID,
		"name":       tier.Name,
		"price":      tier.Price.String(),
		"capacity":   tier.Capacity,
		"remaining":  tier.Remaining,
		"sort_order": tier.SortOrder,
		"status":     tier.Status,
	}).Execute()
	if err != nil {
		return fmt.Errorf("insert tier: %w", err)
	}
	return nil
}

func (s *Store) GetTier(id string) (*models.Tier, error) {
	var row struct {
		ID        string `db:"id"`
		SessionID string `db:"session_id"`
		Name      string `db:"name"`
		Price     string `db:"price"`
		Capacity  int    `db:"capacity"`
		Remaining int    `db:"remaining"`
		SortOrder int    `db:"sort_order"`
		Status    string `db:"status"`
	}
	err := s.db().Select("id", "session_id", "name", "price", "capacity", "remaining", "sort_order", "status").
		From("tiers").
		Where(dbx.HashExp{"id": id}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("get tier: %w", err)
	}
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return nil, fmt.Errorf("tier %s price: %w", id, err)
	}
	return &models.Tier{
		ID:        row.ID,
		SessionID: row.SessionID,
		Name:      row.Name,
		Price:     price,
		Capacity:  row.Capacity,
		Remaining: row.Remaining,
		SortOrder: row.SortOrder,
		Status:    row.Status,
	}, nil
}

func (s *Store) GetSession(id string) (*models.Session, error) {
	var row struct {
		ID        string `db:"id"`
		EventID   string `db:"event_id"`
		Date      string `db:"date"`
		StartTime string `db:"start_time"`
		EndTime   string `db:"end_time"`
		Capacity  int    `db:"capacity"`
		Remaining int    `db:"remaining"`
		Status    string `db:"status"`
	}
	err := s.db().Select("id", "event_id", "date", "start_time", "end_time", "capacity", "remaining", "status").
		From("sessions").
		Where(dbx.HashExp{"id": id}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	start, _ := time.Parse(time.RFC3339, row.StartTime)
	end, _ := time.Parse(time.RFC3339, row.EndTime)
	return &models.Session{
		ID:        row.ID,
		EventID:   row.EventID,
		Date:      row.Date,
		StartTime: start,
		EndTime:   end,
		Capacity:  row.Capacity,
		Remaining: row.Remaining,
		Status:    row.Status,
	}, nil
}

// SoldCount counts tickets already materialized against a tier, excluding
// voided ones. Capacity can never be lowered below this.
func (s *Store) SoldCount(tierID string) (int, error) {
	var count int
	err := s.db().Select("COUNT(*)").From("tickets").
		Where(dbx.HashExp{"tier_id": tierID}).
		AndWhere(dbx.Not(dbx.HashExp{"status": models.TicketVoid})).
		Row(&count)
	if err != nil {
		return 0, fmt.Errorf("sold count: %w", err)
	}
	return count, nil
}

// UpdateTierCapacity rewrites capacity and remaining together.
func (s *Store) UpdateTierCapacity(tierID string, capacity, remaining int) error {
	result, err := s.db().Update("tiers",
		dbx.Params{"capacity": capacity, "remaining": remaining},
		dbx.HashExp{"id": tierID},
	).Execute()
	if err != nil {
		return fmt.Errorf("update tier capacity: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return status.ErrNotFound
	}
	return nil
}

// DecrementTierRemaining applies the durable decrement with a guard so the
// row can never go negative even if the ledger and database disagree.
func (s *Store) DecrementTierRemaining(tierID string, qty int) error {
	result, err := s.db().NewQuery(
		`UPDATE tiers SET remaining = remaining - {:qty} WHERE id = {:id} AND remaining >= {:qty}`,
	).Bind(dbx.Params{"qty": qty, "id": tierID}).Execute()
	if err != nil {
		return fmt.Errorf("decrement tier remaining: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("tier %s: durable remaining below %d", tierID, qty)
	}
	return nil
}

// IncrementTierRemaining returns units to the durable counter, capped at
// capacity.
func (s *Store) IncrementTierRemaining(tierID string, qty int) error {
	_, err := s.db().NewQuery(
		`UPDATE tiers SET remaining = MIN(capacity, remaining + {:qty}) WHERE id = {:id}`,
	).Bind(dbx.Params{"qty": qty, "id": tierID}).Execute()
	if err != nil {
		return fmt.Errorf("increment tier remaining: %w", err)
	}
	return nil
}

// IncrementSessionRemaining returns units to the venue aggregate, capped at
// capacity.
func (s *Store) IncrementSessionRemaining(sessionID string, qty int) error {
	_, err := s.db().NewQuery(
		`UPDATE sessions SET remaining = MIN(capacity, remaining + {:qty}) WHERE id = {:id}`,
	).Bind(dbx.Params{"qty": qty, "id": sessionID}).Execute()
	if err != nil {
		return fmt.Errorf("increment session remaining: %w", err)
	}
	return nil
}

// DecrementSessionRemaining tracks the venue-level aggregate.
func (s *Store) DecrementSessionRemaining(sessionID string, qty int) error {
	result, err := s.db().NewQuery(
		`UPDATE sessions SET remaining = remaining - {:qty} WHERE id = {:id} AND remaining >= {:qty}`,
	).Bind(dbx.Params{"qty": qty, "id": sessionID}).Execute()
	if err != nil {
		return fmt.Errorf("decrement session remaining: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: venue remaining below %d", sessionID, qty)
	}
	return nil
}

// ---- purchases ----

func (s *Store) InsertPurchase(p *models.Purchase) error {
	_, err := s.db().Insert("purchases", dbx.Params{
		"id":          p.ID,
		"merchant_id": p.MerchantID,
		"event_id":    p.EventID,
		"buyer_id":    p.BuyerID,
		"lines":       p.LinesJSON,
		"total":       p.Total.String(),
		"status":      p.Status,
		"payment_ref": p.PaymentRef,
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339),
	}).Execute()
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (s *Store) GetPurchase(id string) (*models.Purchase, error) {
	var row struct {
		ID         string `db:"id"`
		MerchantID string `db:"merchant_id"`
		EventID    string `db:"event_id"`
		BuyerID    string `db:"buyer_id"`
		Lines      string `db:"lines"`
		Total      string `db:"total"`
		Status     string `db:"status"`
		PaymentRef string `db:"payment_ref"`
		CreatedAt  string `db:"created_at"`
	}
	err := s.db().Select("id", "merchant_id", "event_id", "buyer_id", "lines", "total", "status", "payment_ref", "created_at").
		From("purchases").
		Where(dbx.HashExp{"id": id}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	total, err := decimal.NewFromString(row.Total)
	if err != nil {
		return nil, fmt.Errorf("purchase %s total: %w", id, err)
	}
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	return &models.Purchase{
		ID:         row.ID,
		MerchantID: row.MerchantID,
		EventID:    row.EventID,
		BuyerID:    row.BuyerID,
		LinesJSON:  row.Lines,
		Total:      total,
		Status:     row.Status,
		PaymentRef: row.PaymentRef,
		CreatedAt:  createdAt,
	}, nil
}

// TransitionPurchase moves a purchase between states only when it is still
// in the expected source state, so concurrent callbacks cannot double-apply.
func (s *Store) TransitionPurchase(id, from, to, paymentRef string) error {
	params := dbx.Params{"status": to}
	if paymentRef != "" {
		params["payment_ref"] = paymentRef
	}
	result, err := s.db().Update("purchases", params,
		dbx.HashExp{"id": id, "status": from},
	).Execute()
	if err != nil {
		return fmt.Errorf("transition purchase: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return status.ErrPurchaseState
	}
	return nil
}

// ---- tickets ----

func (s *Store) InsertTicket(t *models.Ticket) error {
	_, err := s.db().Insert("tickets", dbx.Params{
		"id":                 t.ID,
		"tier_id":            t.TierID,
		"purchase_id":        t.PurchaseID,
		"display_code":       t.DisplayCode,
		"verification_token": t.VerificationToken,
		"price":              t.Price.String(),
		"status":             t.Status,
		"created_at":         t.CreatedAt.UTC().Format(time.RFC3339),
		"verifier_id":        "",
	}).Execute()
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// TicketScan is a ticket joined with the context the door needs.
type TicketScan struct {
	Ticket       models.Ticket
	EventID      string
	SessionID    string
	SessionStart time.Time
	SessionEnd   time.Time
	SessionState string
}

type ticketRow struct {
	ID                string `db:"id"`
	TierID            string `db:"tier_id"`
	PurchaseID        string `db:"purchase_id"`
	DisplayCode       string `db:"display_code"`
	VerificationToken string `db:"verification_token"`
	Price             string `db:"price"`
	Status            string `db:"status"`
	CreatedAt         string `db:"created_at"`
	UsedAt            string `db:"used_at"`
	VerifierID        string `db:"verifier_id"`
	EventID           string `db:"event_id"`
	SessionID         string `db:"session_id"`
	SessionStart      string `db:"session_start"`
	SessionEnd        string `db:"session_end"`
	SessionState      string `db:"session_state"`
}

const ticketScanQuery = `
SELECT t.id, t.tier_id, t.purchase_id, t.display_code, t.verification_token,
       t.price, t.status, t.created_at, COALESCE(t.used_at, '') AS used_at,
       t.verifier_id,
       s.event_id, s.id AS session_id, s.start_time AS session_start,
       s.end_time AS session_end, s.status AS session_state
FROM tickets t
JOIN tiers ti ON ti.id = t.tier_id
JOIN sessions s ON s.id = ti.session_id
`

// FindTicketByToken resolves a verification token presented at the door.
func (s *Store) FindTicketByToken(token string) (*TicketScan, error) {
	var row ticketRow
	err := s.db().NewQuery(ticketScanQuery + `WHERE t.verification_token = {:token}`).
		Bind(dbx.Params{"token": token}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrInvalidTicket
		}
		return nil, fmt.Errorf("find ticket by token: %w", err)
	}
	return scanFromRow(row)
}

// GetTicketScan resolves a ticket by id with its session context.
func (s *Store) GetTicketScan(ticketID string) (*TicketScan, error) {
	var row ticketRow
	err := s.db().NewQuery(ticketScanQuery + `WHERE t.id = {:id}`).
		Bind(dbx.Params{"id": ticketID}).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return scanFromRow(row)
}

func scanFromRow(row ticketRow) (*TicketScan, error) {
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return nil, fmt.Errorf("ticket %s price: %w", row.ID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	ticket := models.Ticket{
		ID:                row.ID,
		TierID:            row.TierID,
		PurchaseID:        row.PurchaseID,
		DisplayCode:       row.DisplayCode,
		VerificationToken: row.VerificationToken,
		Price:             price,
		Status:            row.Status,
		CreatedAt:         createdAt,
		VerifierID:        row.VerifierID,
	}
	if row.UsedAt != "" {
		usedAt, err := time.Parse(time.RFC3339, row.UsedAt)
		if err == nil {
			ticket.UsedAt = &usedAt
		}
	}
	start, _ := time.Parse(time.RFC3339, row.SessionStart)
	end, _ := time.Parse(time.RFC3339, row.SessionEnd)
	return &TicketScan{
		Ticket:       ticket,
		EventID:      row.EventID,
		SessionID:    row.SessionID,
		SessionStart: start,
		SessionEnd:   end,
		SessionState: row.SessionState,
	}, nil
}

// MarkTicketUsed performs the one-way sold → used transition. The status
// guard in the WHERE clause makes concurrent double-scans race safely: the
// update applies exactly once.
func (s *Store) MarkTicketUsed(ticketID, verifierID string, usedAt time.Time) (bool, error) {
	result, err := s.db().NewQuery(
		`UPDATE tickets SET status = {:used}, used_at = {:at}, verifier_id = {:verifier}
		 WHERE id = {:id} AND status = {:sold}`,
	).Bind(dbx.Params{
		"used":     models.TicketUsed,
		"at":       usedAt.UTC().Format(time.RFC3339),
		"verifier": verifierID,
		"id":       ticketID,
		"sold":     models.TicketSold,
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("mark ticket used: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// TicketsForPurchase lists a purchase's tickets.
func (s *Store) TicketsForPurchase(purchaseID string) ([]models.Ticket, error) {
	var rows []struct {
		ID          string `db:"id"`
		TierID      string `db:"tier_id"`
		DisplayCode string `db:"display_code"`
		Status      string `db:"status"`
		Price       string `db:"price"`
	}
	err := s.db().Select("id", "tier_id", "display_code", "status", "price").
		From("tickets").
		Where(dbx.HashExp{"purchase_id": purchaseID}).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("tickets for purchase: %w", err)
	}
	tickets := make([]models.Ticket, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row.Price)
		if err != nil {
			return nil, fmt.Errorf("ticket %s price: %w", row.ID, err)
		}
		tickets = append(tickets, models.Ticket{
			ID:          row.ID,
			TierID:      row.TierID,
			PurchaseID:  purchaseID,
			DisplayCode: row.DisplayCode,
			Status:      row.Status,
			Price:       price,
		})
	}
	return tickets, nil
}

// VoidSoldTickets voids every still-sold ticket of a purchase and returns
// how many were voided per tier.
func (s *Store) VoidSoldTickets(purchaseID string) (map[string]int, error) {
	tickets, err := s.TicketsForPurchase(purchaseID)
	if err != nil {
		return nil, err
	}

	voided := map[string]int{}
	for _, t := range tickets {
		if t.Status != models.TicketSold {
			continue
		}
		result, err := s.db().NewQuery(
			`UPDATE tickets SET status = {:void} WHERE id = {:id} AND status = {:sold}`,
		).Bind(dbx.Params{
			"void": models.TicketVoid,
			"id":   t.ID,
			"sold": models.TicketSold,
		}).Execute()
		if err != nil {
			return nil, fmt.Errorf("void ticket %s: %w", t.ID, err)
		}
		if n, _ := result.RowsAffected(); n == 1 {
			voided[t.TierID]++
		}
	}
	return voided, nil
}
