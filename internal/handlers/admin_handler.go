package handlers

import (
	"net/http"
	"time"

	"boleteria/models"
	"boleteria/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// AdminHandler covers the merchant-side surface: catalog management, quota
// inspection and capacity changes.
type AdminHandler struct {
	app     *pocketbase.PocketBase
	catalog *services.CatalogService
	quota   *services.QuotaService
	ledger  *services.LedgerService
}

func NewAdminHandler(app *pocketbase.PocketBase, catalog *services.CatalogService, quota *services.QuotaService, ledger *services.LedgerService) *AdminHandler {
	return &AdminHandler{
		app:     app,
		catalog: catalog,
		quota:   quota,
		ledger:  ledger,
	}
}

func (h *AdminHandler) CreateEvent(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		MerchantID  string `json:"merchant_id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Venue       string `json:"venue"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.MerchantID == "" || req.Name == "" {
		return apis.NewBadRequestError("merchant_id and name are required", nil)
	}

	event, err := h.catalog.CreateEvent(e.Request.Context(), req.MerchantID, req.Name, req.Description, req.Venue)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, event)
}

func (h *AdminHandler) FeatureEvent(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		MerchantID string `json:"merchant_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	eventID := e.Request.PathValue("eventId")

	if err := h.catalog.FeatureEvent(e.Request.Context(), req.MerchantID, eventID); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"event_id": eventID, "featured": true})
}

func (h *AdminHandler) InviteTeamMember(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		MerchantID string `json:"merchant_id"`
		Email      string `json:"email"`
		Role       string `json:"role"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Email == "" {
		return apis.NewBadRequestError("email is required", nil)
	}
	if req.Role == "" {
		req.Role = "staff"
	}

	if err := h.catalog.InviteTeamMember(e.Request.Context(), req.MerchantID, req.Email, req.Role); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, map[string]any{"email": req.Email, "role": req.Role})
}

func (h *AdminHandler) CreateSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Date      string    `json:"date"`
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
		Capacity  int       `json:"capacity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	eventID := e.Request.PathValue("eventId")

	session, err := h.catalog.CreateSession(e.Request.Context(), eventID, req.Date, req.StartTime, req.EndTime, req.Capacity)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, session)
}

func (h *AdminHandler) CreateTier(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Name      string `json:"name"`
		Price     string `json:"price"`
		Capacity  int    `json:"capacity"`
		SortOrder int    `json:"sort_order"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	sessionID := e.Request.PathValue("sessionId")

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return apis.NewBadRequestError("Invalid price", err)
	}

	tier, err := h.catalog.CreateTier(e.Request.Context(), sessionID, req.Name, price, req.Capacity, req.SortOrder)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, tier)
}

// ChangeTierCapacity edits a tier's capacity after sales started. The edit is
// refused when it would cut under sold tickets or outstanding holds.
func (h *AdminHandler) ChangeTierCapacity(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Capacity int `json:"capacity"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	tierID := e.Request.PathValue("tierId")

	if err := h.catalog.ChangeTierCapacity(e.Request.Context(), tierID, req.Capacity); err != nil {
		return apiError(err)
	}

	remaining, err := h.ledger.Remaining(e.Request.Context(), tierID)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"tier_id":   tierID,
		"capacity":  req.Capacity,
		"remaining": remaining,
	})
}

// GetQuota reports a merchant's effective limit and current usage for one
// resource kind.
func (h *AdminHandler) GetQuota(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	merchantID := e.Request.PathValue("merchantId")
	kind := models.ResourceKind(e.Request.URL.Query().Get("resource"))
	if kind == "" {
		kind = models.ResourceEvents
	}

	limit, current, err := h.quota.CheckQuota(e.Request.Context(), merchantID, kind)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"merchant_id": merchantID,
		"resource":    kind,
		"limit":       limit,
		"current":     current,
		"unlimited":   limit == models.UnlimitedQuota,
	})
}

// GetTierAvailability exposes the live remaining counter next to the durable
// row so operators can spot drift.
func (h *AdminHandler) GetTierAvailability(e *core.RequestEvent) error {
	tierID := e.Request.PathValue("tierId")

	tier, err := h.catalog.Store.GetTier(tierID)
	if err != nil {
		return apiError(err)
	}
	live, err := h.ledger.Remaining(e.Request.Context(), tierID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"tier_id":          tierID,
		"capacity":         tier.Capacity,
		"remaining":        live,
		"remaining_stored": tier.Remaining,
		"status":           tier.Status,
	})
}
