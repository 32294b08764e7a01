package handlers

import (
	"net/http"

	"boleteria/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type CheckinHandler struct {
	app     *pocketbase.PocketBase
	checkin *services.CheckinService
}

func NewCheckinHandler(app *pocketbase.PocketBase, checkin *services.CheckinService) *CheckinHandler {
	return &CheckinHandler{
		app:     app,
		checkin: checkin,
	}
}

// VerifyTicket answers "would this code admit someone" without changing
// anything. The response always carries the full list of problems found, not
// just the first one.
func (h *CheckinHandler) VerifyTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Code    string `json:"code"`
		EventID string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Code == "" {
		return apis.NewBadRequestError("code is required", nil)
	}

	result, err := h.checkin.Verify(e.Request.Context(), req.Code, req.EventID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, result)
}

// CheckIn performs the one-way admission. Exactly one of two concurrent scans
// of the same ticket succeeds; the other receives a conflict.
func (h *CheckinHandler) CheckIn(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TicketID string `json:"ticket_id"`
		EventID  string `json:"event_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.TicketID == "" {
		return apis.NewBadRequestError("ticket_id is required", nil)
	}

	ticket, err := h.checkin.MarkUsed(e.Request.Context(), req.TicketID, e.Auth.Id, req.EventID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id":   ticket.ID,
		"status":      ticket.Status,
		"used_at":     ticket.UsedAt,
		"verifier_id": ticket.VerifierID,
	})
}
