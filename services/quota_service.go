package services

import (
	"context"

	"boleteria/internal/status"
	"boleteria/internal/store"
	"boleteria/models"
)

// planDefaults is the per-plan quota table. -1 means unlimited.
var planDefaults = map[string]map[models.ResourceKind]int{
	models.PlanFree: {
		models.ResourceEvents:         1,
		models.ResourceFeaturedEvents: 0,
		models.ResourceTeamSeats:      1,
	},
	models.PlanBasic: {
		models.ResourceEvents:         5,
		models.ResourceFeaturedEvents: 1,
		models.ResourceTeamSeats:      3,
	},
	models.PlanPro: {
		models.ResourceEvents:         20,
		models.ResourceFeaturedEvents: 2,
		models.ResourceTeamSeats:      10,
	},
	models.PlanEnterprise: {
		models.ResourceEvents:         models.UnlimitedQuota,
		models.ResourceFeaturedEvents: models.UnlimitedQuota,
		models.ResourceTeamSeats:      models.UnlimitedQuota,
	},
}

// QuotaService resolves and enforces merchant plan limits. One generic
// enforcer covers every bounded resource kind instead of per-field branching.
type QuotaService struct {
	Store *store.Store
}

func NewQuotaService(st *store.Store) *QuotaService {
	return &QuotaService{Store: st}
}

// EffectiveLimit resolves the limit for one resource kind: the custom
// override when present (an explicit 0 counts), otherwise the plan default.
func EffectiveLimit(m *models.Merchant, kind models.ResourceKind) int {
	if override := m.CustomOverride(kind); override != nil {
		return *override
	}
	defaults, ok := planDefaults[m.Plan]
	if !ok {
		// Unknown plan: treat as free, the most restrictive.
		defaults = planDefaults[models.PlanFree]
	}
	return defaults[kind]
}

// CheckQuota reports the effective limit and current usage without consuming.
func (s *QuotaService) CheckQuota(ctx context.Context, merchantID string, kind models.ResourceKind) (limit, current int, err error) {
	merchant, err := s.Store.GetMerchant(merchantID)
	if err != nil {
		return 0, 0, err
	}
	current, err = s.Store.CountResource(merchantID, kind)
	if err != nil {
		return 0, 0, err
	}
	return EffectiveLimit(merchant, kind), current, nil
}

// CheckAndConsume verifies the quota and, while still inside the same
// transaction, runs create. The count and the insert share one serialized
// view, so two concurrent creations cannot both slip under the limit.
func (s *QuotaService) CheckAndConsume(ctx context.Context, merchantID string, kind models.ResourceKind, create func(tx *store.Store) error) error {
	return s.Store.InTransaction(func(tx *store.Store) error {
		merchant, err := tx.GetMerchant(merchantID)
		if err != nil {
			return err
		}

		limit := EffectiveLimit(merchant, kind)
		if limit != models.UnlimitedQuota {
			current, err := tx.CountResource(merchantID, kind)
			if err != nil {
				return err
			}
			if current >= limit {
				return &status.QuotaError{Kind: string(kind), Limit: limit, Current: current}
			}
		}

		return create(tx)
	})
}
