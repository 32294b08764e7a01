package models

// ResourceKind names a bounded merchant resource governed by plan quotas.
type ResourceKind string

const (
	ResourceEvents         ResourceKind = "events"
	ResourceFeaturedEvents ResourceKind = "featured_events"
	ResourceTeamSeats      ResourceKind = "team_seats"
)

const (
	PlanFree       = "free"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// UnlimitedQuota means no cap regardless of current count.
const UnlimitedQuota = -1

// Merchant carries the plan plus nullable per-resource overrides. A nil
// override means "use the plan default"; an explicit 0 is a valid limit.
type Merchant struct {
	ID                  string `db:"id" json:"id"`
	Name                string `db:"name" json:"name"`
	Plan                string `db:"plan" json:"plan"`
	EventsLimitCustom   *int   `db:"events_limit_custom" json:"events_limit_custom,omitempty"`
	FeaturedLimitCustom *int   `db:"featured_limit_custom" json:"featured_limit_custom,omitempty"`
	SeatsLimitCustom    *int   `db:"seats_limit_custom" json:"seats_limit_custom,omitempty"`
	CommissionPct       int    `db:"commission_pct" json:"commission_pct"`
}

// CustomOverride returns the override for the given resource, or nil.
func (m *Merchant) CustomOverride(kind ResourceKind) *int {
	switch kind {
	case ResourceEvents:
		return m.EventsLimitCustom
	case ResourceFeaturedEvents:
		return m.FeaturedLimitCustom
	case ResourceTeamSeats:
		return m.SeatsLimitCustom
	}
	return nil
}
