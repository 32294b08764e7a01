package handlers

import (
	"errors"
	"net/http"

	"boleteria/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// apiError translates service errors into HTTP responses. Capacity and quota
// failures keep their numeric counts in the response body so clients can
// render an actionable message.
func apiError(err error) error {
	var capErr *status.CapacityError
	if errors.As(err, &capErr) {
		return apis.NewApiError(http.StatusConflict, "Insufficient capacity", map[string]any{
			"tier_id":   capErr.TierID,
			"requested": capErr.Requested,
			"remaining": capErr.Remaining,
		})
	}

	var quotaErr *status.QuotaError
	if errors.As(err, &quotaErr) {
		return apis.NewApiError(http.StatusForbidden, "Plan quota exceeded", map[string]any{
			"resource": quotaErr.Kind,
			"limit":    quotaErr.Limit,
			"current":  quotaErr.Current,
		})
	}

	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", err)
	case errors.Is(err, status.ErrReservationExpired):
		return apis.NewApiError(http.StatusConflict, "Reservation expired", nil)
	case errors.Is(err, status.ErrPurchaseState):
		return apis.NewApiError(http.StatusConflict, "Purchase is not in a state that allows this operation", nil)
	case errors.Is(err, status.ErrUsedNotRefundable):
		return apis.NewApiError(http.StatusConflict, "Purchase has used tickets and cannot be refunded", nil)
	case errors.Is(err, status.ErrAlreadyUsed):
		return apis.NewApiError(http.StatusConflict, "Ticket already used", nil)
	case errors.Is(err, status.ErrTicketVoid):
		return apis.NewApiError(http.StatusConflict, "Ticket was voided", nil)
	case errors.Is(err, status.ErrWrongEvent):
		return apis.NewApiError(http.StatusConflict, "Ticket belongs to another event", nil)
	case errors.Is(err, status.ErrInvalidTicket):
		return apis.NewNotFoundError("Unknown ticket code", err)
	}

	return apis.NewBadRequestError(err.Error(), err)
}
