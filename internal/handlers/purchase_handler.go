package handlers

import (
	"net/http"

	"boleteria/models"
	"boleteria/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PurchaseHandler struct {
	app       *pocketbase.PocketBase
	purchases *services.PurchaseService
}

func NewPurchaseHandler(app *pocketbase.PocketBase, purchases *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{
		app:       app,
		purchases: purchases,
	}
}

// CreatePurchase reserves capacity for every line of the cart and opens a
// pending purchase. All lines succeed or none do.
func (h *PurchaseHandler) CreatePurchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		MerchantID string `json:"merchant_id"`
		EventID    string `json:"event_id"`
		Lines      []struct {
			TierID   string `json:"tier_id"`
			Quantity int    `json:"quantity"`
		} `json:"lines"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.EventID == "" || len(req.Lines) == 0 {
		return apis.NewBadRequestError("event_id and at least one line are required", nil)
	}

	lines := make([]models.PurchaseLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = models.PurchaseLine{TierID: l.TierID, Quantity: l.Quantity}
	}

	purchase, err := h.purchases.Create(e.Request.Context(), req.MerchantID, req.EventID, e.Auth.Id, lines)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"purchase_id": purchase.ID,
		"status":      purchase.Status,
		"total":       purchase.Total,
		"lines":       purchase.Lines,
		"created_at":  purchase.CreatedAt,
	})
}

// ConfirmPurchase is the payment callback target. Retried callbacks for an
// already-completed purchase return the existing tickets.
func (h *PurchaseHandler) ConfirmPurchase(e *core.RequestEvent) error {
	purchaseID := e.Request.PathValue("purchaseId")

	var req struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	tickets, err := h.purchases.Confirm(e.Request.Context(), purchaseID, req.PaymentRef)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"purchase_id": purchaseID,
		"status":      models.PurchaseCompleted,
		"tickets":     tickets,
	})
}

// CancelPurchase releases a pending purchase's reservations.
func (h *PurchaseHandler) CancelPurchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	purchaseID := e.Request.PathValue("purchaseId")

	if err := h.purchases.Cancel(e.Request.Context(), purchaseID); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"purchase_id": purchaseID,
		"status":      models.PurchaseCancelled,
	})
}

// RefundPurchase voids a completed purchase's tickets. restore_capacity puts
// the units back on sale; force refunds even when some tickets were used.
func (h *PurchaseHandler) RefundPurchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	purchaseID := e.Request.PathValue("purchaseId")

	var req struct {
		RestoreCapacity bool `json:"restore_capacity"`
		Force           bool `json:"force"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.purchases.Refund(e.Request.Context(), purchaseID, req.RestoreCapacity, req.Force); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"purchase_id": purchaseID,
		"status":      models.PurchaseRefunded,
	})
}

// GetPurchase returns a purchase with its tickets when completed.
func (h *PurchaseHandler) GetPurchase(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	purchaseID := e.Request.PathValue("purchaseId")

	purchase, err := h.purchases.Store.GetPurchase(purchaseID)
	if err != nil {
		return apiError(err)
	}

	resp := map[string]any{
		"purchase_id": purchase.ID,
		"event_id":    purchase.EventID,
		"buyer_id":    purchase.BuyerID,
		"total":       purchase.Total,
		"status":      purchase.Status,
		"created_at":  purchase.CreatedAt,
	}
	if purchase.Status == models.PurchaseCompleted {
		tickets, err := h.purchases.Store.TicketsForPurchase(purchaseID)
		if err != nil {
			return apiError(err)
		}
		resp["tickets"] = tickets
	}
	return e.JSON(http.StatusOK, resp)
}

// SimulatePayment drives the confirm flow without a real gateway. Registered
// only in development.
func (h *PurchaseHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		PurchaseID string `json:"purchase_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	tickets, err := h.purchases.Confirm(e.Request.Context(), req.PurchaseID, "simulated-"+req.PurchaseID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"purchase_id": req.PurchaseID,
		"status":      models.PurchaseCompleted,
		"tickets":     tickets,
	})
}
