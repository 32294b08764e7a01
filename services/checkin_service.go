package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boleteria/config"
	"boleteria/internal/status"
	"boleteria/internal/store"
	"boleteria/models"
	"boleteria/monitoring"

	"github.com/avast/retry-go"
)

// earlyScanWindow is how far ahead of the session start a scan draws a
// warning instead of being rejected.
const earlyScanWindow = 12 * time.Hour

// ticketStore is the slice of the store the door needs.
type ticketStore interface {
	FindTicketByToken(token string) (*store.TicketScan, error)
	GetTicketScan(ticketID string) (*store.TicketScan, error)
	MarkTicketUsed(ticketID, verifierID string, usedAt time.Time) (bool, error)
}

// CheckinService validates presented codes and performs the one-way
// sold → used transition.
type CheckinService struct {
	Tickets ticketStore
	Config  *config.Config
	monitor *monitoring.Monitor
	now     func() time.Time
}

func NewCheckinService(tickets ticketStore, cfg *config.Config, monitor *monitoring.Monitor) *CheckinService {
	return &CheckinService{
		Tickets: tickets,
		Config:  cfg,
		monitor: monitor,
		now:     time.Now,
	}
}

// Verify is read-only and side-effect-free. It never fails the door: every
// rejection reason lands in the result's errors, and soft conditions in its
// warnings. Only storage faults return a non-nil error.
func (s *CheckinService) Verify(ctx context.Context, code, eventID string) (*models.VerificationResult, error) {
	result := &models.VerificationResult{}

	scan, err := s.Tickets.FindTicketByToken(code)
	if err != nil {
		if errors.Is(err, status.ErrInvalidTicket) {
			result.Errors = append(result.Errors, "unknown ticket code")
			s.track("invalid")
			return result, nil
		}
		return nil, err
	}

	result.Ticket = &scan.Ticket

	if eventID != "" && scan.EventID != eventID {
		result.Errors = append(result.Errors, "ticket belongs to a different event")
	}

	switch scan.Ticket.Status {
	case models.TicketSold:
	case models.TicketUsed:
		msg := "ticket already used"
		if scan.Ticket.UsedAt != nil {
			msg = fmt.Sprintf("ticket already used at %s", scan.Ticket.UsedAt.Format(time.RFC3339))
		}
		result.Errors = append(result.Errors, msg)
	case models.TicketVoid:
		result.Errors = append(result.Errors, "ticket was voided")
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("ticket in unexpected state %q", scan.Ticket.Status))
	}

	now := s.now()
	if scan.SessionState == models.SessionCancelled {
		result.Errors = append(result.Errors, "session was cancelled")
	} else if !scan.SessionEnd.IsZero() && now.After(scan.SessionEnd) {
		result.Errors = append(result.Errors, "session has already ended")
	} else if !scan.SessionStart.IsZero() && scan.SessionStart.Sub(now) > earlyScanWindow {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("session does not start until %s", scan.SessionStart.Format(time.RFC3339)))
	}

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		s.track("verify_ok")
	} else {
		s.track("verify_rejected")
	}
	return result, nil
}

// MarkUsed performs the single allowed sold → used transition. The guarded
// update makes concurrent double-scans resolve to exactly one success; the
// losers get ErrAlreadyUsed. Storage faults are retried with bounded backoff
// before surfacing. A non-empty eventID pins the scan to one event; a ticket
// from another event is refused before any state changes.
func (s *CheckinService) MarkUsed(ctx context.Context, ticketID, verifierID, eventID string) (*models.Ticket, error) {
	if eventID != "" {
		// Event membership never changes, so this read cannot race the update.
		scan, err := s.Tickets.GetTicketScan(ticketID)
		if err != nil {
			if errors.Is(err, status.ErrNotFound) {
				s.track("not_found")
			}
			return nil, err
		}
		if scan.EventID != eventID {
			s.track("wrong_event")
			return nil, status.ErrWrongEvent
		}
	}

	var updated bool

	err := retry.Do(
		func() error {
			var err error
			updated, err = s.Tickets.MarkTicketUsed(ticketID, verifierID, s.now())
			return err
		},
		retry.Attempts(s.Config.CheckinRetryAttempts),
		retry.Delay(s.Config.CheckinRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		s.track("storage_error")
		return nil, fmt.Errorf("checkin: mark used: %w", err)
	}

	if !updated {
		// The guard did not match: the ticket is missing or no longer sold.
		scan, err := s.Tickets.GetTicketScan(ticketID)
		if err != nil {
			if errors.Is(err, status.ErrNotFound) {
				s.track("not_found")
				return nil, status.ErrNotFound
			}
			return nil, err
		}
		switch scan.Ticket.Status {
		case models.TicketUsed:
			s.track("already_used")
			return nil, status.ErrAlreadyUsed
		case models.TicketVoid:
			s.track("void")
			return nil, status.ErrTicketVoid
		default:
			return nil, fmt.Errorf("checkin: ticket %s in unexpected state %q", ticketID, scan.Ticket.Status)
		}
	}

	scan, err := s.Tickets.GetTicketScan(ticketID)
	if err != nil {
		return nil, err
	}
	s.track("used")
	return &scan.Ticket, nil
}

func (s *CheckinService) track(outcome string) {
	if s.monitor != nil {
		s.monitor.TrackCheckin(outcome)
	}
}
