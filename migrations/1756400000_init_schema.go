package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		statements := []string{
			`CREATE TABLE IF NOT EXISTS merchants (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				plan TEXT NOT NULL DEFAULT 'free',
				events_limit_custom INTEGER,
				featured_limit_custom INTEGER,
				seats_limit_custom INTEGER,
				commission_pct INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				merchant_id TEXT NOT NULL REFERENCES merchants(id),
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				venue TEXT NOT NULL DEFAULT '',
				featured BOOLEAN NOT NULL DEFAULT FALSE,
				status TEXT NOT NULL DEFAULT 'draft',
				created TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_merchant ON events(merchant_id)`,
			`CREATE TABLE IF NOT EXISTS team_members (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				merchant_id TEXT NOT NULL REFERENCES merchants(id),
				email TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'staff',
				created TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_team_members_email ON team_members(merchant_id, email)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				event_id TEXT NOT NULL REFERENCES events(id),
				date TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT NOT NULL,
				capacity INTEGER NOT NULL,
				remaining INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'active',
				CHECK (remaining >= 0 AND remaining <= capacity)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_event ON sessions(event_id)`,
			`CREATE TABLE IF NOT EXISTS tiers (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				name TEXT NOT NULL,
				price TEXT NOT NULL,
				capacity INTEGER NOT NULL,
				remaining INTEGER NOT NULL,
				sort_order INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'active',
				CHECK (remaining >= 0 AND remaining <= capacity)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tiers_session ON tiers(session_id)`,
			`CREATE TABLE IF NOT EXISTS purchases (
				id TEXT PRIMARY KEY,
				merchant_id TEXT NOT NULL REFERENCES merchants(id),
				event_id TEXT NOT NULL REFERENCES events(id),
				buyer_id TEXT NOT NULL,
				lines TEXT NOT NULL,
				total TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				payment_ref TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_purchases_buyer ON purchases(buyer_id)`,
			`CREATE INDEX IF NOT EXISTS idx_purchases_status ON purchases(status)`,
			`CREATE TABLE IF NOT EXISTS tickets (
				id TEXT PRIMARY KEY,
				tier_id TEXT NOT NULL REFERENCES tiers(id),
				purchase_id TEXT NOT NULL REFERENCES purchases(id),
				display_code TEXT NOT NULL,
				verification_token TEXT NOT NULL,
				price TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'sold',
				created_at TEXT NOT NULL,
				used_at TEXT,
				verifier_id TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_display_code ON tickets(display_code)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_tickets_verification_token ON tickets(verification_token)`,
			`CREATE INDEX IF NOT EXISTS idx_tickets_purchase ON tickets(purchase_id)`,
			`CREATE INDEX IF NOT EXISTS idx_tickets_tier ON tickets(tier_id)`,
		}

		for _, stmt := range statements {
			if _, err := app.DB().NewQuery(stmt).Execute(); err != nil {
				return err
			}
		}
		return nil
	}, func(app core.App) error {
		tables := []string{"tickets", "purchases", "tiers", "sessions", "team_members", "events", "merchants"}
		for _, table := range tables {
			if _, err := app.DB().NewQuery("DROP TABLE IF EXISTS " + table).Execute(); err != nil {
				return err
			}
		}
		return nil
	})
}
