package postgres

import (
	"context"
	"fmt"
	"time"

	"pos-ledger/internal/domain/ledger"
	"pos-ledger/internal/infrastructure/monitoring"
)

// Schema creates every ledger table. Amounts are unconstrained NUMERIC so no
// value is ever rounded on write.
const Schema = `
CREATE TABLE IF NOT EXISTS customers (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT        NOT NULL,
	phone          TEXT        NOT NULL DEFAULT '',
	email          TEXT        NOT NULL DEFAULT '',
	status         TEXT        NOT NULL CHECK (status IN ('ACTIVE', 'INACTIVE', 'BLOCKED')),
	loyalty_points BIGINT      NOT NULL DEFAULT 0 CHECK (loyalty_points >= 0),
	credit_limit   NUMERIC     NOT NULL CHECK (credit_limit >= 0),
	credit_used    NUMERIC     NOT NULL DEFAULT 0 CHECK (credit_used >= 0 AND credit_used <= credit_limit),
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_status ON customers (status);

CREATE TABLE IF NOT EXISTS customer_credits (
	id          BIGSERIAL PRIMARY KEY,
	customer_id BIGINT      NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
	principal   NUMERIC     NOT NULL CHECK (principal > 0),
	amount_paid NUMERIC     NOT NULL DEFAULT 0 CHECK (amount_paid >= 0 AND amount_paid <= principal),
	due_date    TIMESTAMPTZ NOT NULL,
	status      TEXT        NOT NULL CHECK (status IN ('OPEN', 'PARTIALLY_PAID', 'PAID')),
	note        TEXT        NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customer_credits_customer ON customer_credits (customer_id);
CREATE INDEX IF NOT EXISTS idx_customer_credits_unpaid_due ON customer_credits (due_date, id) WHERE status <> 'PAID';

CREATE TABLE IF NOT EXISTS purchases (
	id            BIGSERIAL PRIMARY KEY,
	customer_id   BIGINT      NOT NULL REFERENCES customers (id) ON DELETE CASCADE,
	amount        NUMERIC     NOT NULL CHECK (amount >= 0),
	credit_used   NUMERIC     NOT NULL DEFAULT 0 CHECK (credit_used >= 0),
	points_earned BIGINT      NOT NULL DEFAULT 0,
	credit_id     BIGINT      REFERENCES customer_credits (id) ON DELETE SET NULL,
	purchased_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_purchases_customer ON purchases (customer_id);

CREATE TABLE IF NOT EXISTS loyalty_config (
	id                 SMALLINT    PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	points_per_unit    NUMERIC     NOT NULL,
	redemption_value   NUMERIC     NOT NULL,
	minimum_redemption BIGINT      NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
`

const seedLoyaltyConfigQuery = `INSERT INTO loyalty_config (id, points_per_unit, redemption_value, minimum_redemption, updated_at)
	VALUES (1, $1, $2, $3, $4)
	ON CONFLICT (id) DO NOTHING`

// Migrate applies Schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.Exec(ctx, Schema)
	s.observe("Migrate", start, err)
	if err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", translateDBError(err))
	}
	s.logger.InfoContext(ctx, "Ledger schema is up to date")
	return nil
}

// SeedLoyaltyConfig stores cfg unless a loyalty config row already exists.
func (s *Store) SeedLoyaltyConfig(ctx context.Context, cfg ledger.LoyaltyConfig) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	start := time.Now()
	tag, err := s.db.Exec(ctx, seedLoyaltyConfigQuery, cfg.PointsPerUnit, cfg.RedemptionValue, cfg.MinimumRedemption, cfg.UpdatedAt)
	s.observe("SeedLoyaltyConfig", start, err)
	if err != nil {
		return fmt.Errorf("failed to seed loyalty config: %w", translateDBError(err))
	}
	if tag.RowsAffected() > 0 {
		s.logger.InfoContext(ctx, "Seeded loyalty config",
			"pointsPerUnit", cfg.PointsPerUnit.String(),
			"redemptionValue", cfg.RedemptionValue.String(),
			"minimumRedemption", cfg.MinimumRedemption)
	}
	return nil
}

func (s *Store) observe(query string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery(query, status, time.Since(start))
}
