package sqlstore

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		natural_key       TEXT NOT NULL UNIQUE,
		tenant_id         TEXT NOT NULL,
		plan_type         TEXT NOT NULL,
		period_start      TIMESTAMP NOT NULL,
		period_end        TIMESTAMP NOT NULL,
		currency          TEXT NOT NULL DEFAULT 'usd',
		total_tokens      INTEGER NOT NULL DEFAULT 0,
		total_cost        TEXT NOT NULL DEFAULT '0',
		governance_events INTEGER NOT NULL DEFAULT 0,
		status            TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'finalized', 'void')),
		payment_metadata  TEXT,
		voided_at         TIMESTAMP,
		voided_by         TEXT,
		finalized_at      TIMESTAMP,
		finalized_by      TEXT,
		created_at        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_tenant_period ON invoices (tenant_id, period_start, period_end)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_period_status ON invoices (period_start, period_end, status)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id                BIGSERIAL PRIMARY KEY,
		natural_key       TEXT NOT NULL UNIQUE,
		tenant_id         TEXT NOT NULL,
		plan_type         TEXT NOT NULL,
		period_start      TIMESTAMPTZ NOT NULL,
		period_end        TIMESTAMPTZ NOT NULL,
		currency          TEXT NOT NULL DEFAULT 'usd',
		total_tokens      BIGINT NOT NULL DEFAULT 0,
		total_cost        NUMERIC NOT NULL DEFAULT 0,
		governance_events BIGINT NOT NULL DEFAULT 0,
		status            TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'finalized', 'void')),
		payment_metadata  JSONB,
		voided_at         TIMESTAMPTZ,
		voided_by         TEXT,
		finalized_at      TIMESTAMPTZ,
		finalized_by      TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_tenant_period ON invoices (tenant_id, period_start, period_end)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_period_status ON invoices (period_start, period_end, status)`,
}

// Migrate creates the invoices table and its indexes if they don't exist
func (s *Store) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.dialect == DialectPostgres {
		stmts = postgresSchema
	}
	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i, err)
		}
	}
	return nil
}
