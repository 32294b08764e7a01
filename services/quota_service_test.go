package services

import (
	"testing"

	"boleteria/models"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestEffectiveLimit_PlanDefaults(t *testing.T) {
	tests := []struct {
		name     string
		plan     string
		kind     models.ResourceKind
		expected int
	}{
		{"Free events", models.PlanFree, models.ResourceEvents, 1},
		{"Free featured", models.PlanFree, models.ResourceFeaturedEvents, 0},
		{"Basic events", models.PlanBasic, models.ResourceEvents, 5},
		{"Basic seats", models.PlanBasic, models.ResourceTeamSeats, 3},
		{"Pro featured", models.PlanPro, models.ResourceFeaturedEvents, 2},
		{"Enterprise events unlimited", models.PlanEnterprise, models.ResourceEvents, models.UnlimitedQuota},
		{"Enterprise seats unlimited", models.PlanEnterprise, models.ResourceTeamSeats, models.UnlimitedQuota},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &models.Merchant{Plan: tt.plan}
			assert.Equal(t, tt.expected, EffectiveLimit(m, tt.kind))
		})
	}
}

func TestEffectiveLimit_OverrideWinsOverPlan(t *testing.T) {
	m := &models.Merchant{
		Plan:              models.PlanFree,
		EventsLimitCustom: intPtr(50),
	}

	assert.Equal(t, 50, EffectiveLimit(m, models.ResourceEvents))
	// Other resources keep the plan default
	assert.Equal(t, 0, EffectiveLimit(m, models.ResourceFeaturedEvents))
}

func TestEffectiveLimit_ExplicitZeroOverride(t *testing.T) {
	// An explicit 0 override is a real limit, not "fall back to the plan"
	m := &models.Merchant{
		Plan:              models.PlanPro,
		EventsLimitCustom: intPtr(0),
	}

	assert.Equal(t, 0, EffectiveLimit(m, models.ResourceEvents))
}

func TestEffectiveLimit_UnlimitedOverrideOnFreePlan(t *testing.T) {
	m := &models.Merchant{
		Plan:             models.PlanFree,
		SeatsLimitCustom: intPtr(models.UnlimitedQuota),
	}

	assert.Equal(t, models.UnlimitedQuota, EffectiveLimit(m, models.ResourceTeamSeats))
}

func TestEffectiveLimit_UnknownPlanFallsBackToFree(t *testing.T) {
	m := &models.Merchant{Plan: "legacy-gold"}

	assert.Equal(t, 1, EffectiveLimit(m, models.ResourceEvents))
	assert.Equal(t, 0, EffectiveLimit(m, models.ResourceFeaturedEvents))
}
