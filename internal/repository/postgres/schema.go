package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"dairy-credit-ledger/internal/logger"
)

// schema creates the ledger tables. collections and products are owned by
// the collection and inventory workflows; they are created here only when
// missing so a fresh development database works.
const schema = `
CREATE TABLE IF NOT EXISTS collections (
	id                   BIGSERIAL PRIMARY KEY,
	farmer_id            BIGINT NOT NULL,
	liters               NUMERIC(12,2) NOT NULL,
	rate_per_liter       NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_amount         NUMERIC(14,2) NOT NULL,
	status               TEXT NOT NULL DEFAULT 'collected',
	approved_for_company BOOLEAN NOT NULL DEFAULT FALSE,
	approved_for_payment BOOLEAN NOT NULL DEFAULT FALSE,
	collected_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	paid_at              TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_collections_farmer_status ON collections (farmer_id, status);

CREATE TABLE IF NOT EXISTS products (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL,
	is_credit_eligible BOOLEAN NOT NULL DEFAULT FALSE,
	unit_price         NUMERIC(12,2) NOT NULL,
	current_stock      INTEGER NOT NULL DEFAULT 0 CHECK (current_stock >= 0)
);

CREATE TABLE IF NOT EXISTS farmer_credit_profiles (
	farmer_id              BIGINT PRIMARY KEY,
	credit_tier            TEXT NOT NULL DEFAULT 'new',
	limit_percentage       NUMERIC(5,2) NOT NULL CHECK (limit_percentage BETWEEN 0 AND 100),
	max_credit_amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
	current_credit_balance NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_credit_used      NUMERIC(14,2) NOT NULL DEFAULT 0,
	pending_deductions     NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (pending_deductions >= 0),
	is_frozen              BOOLEAN NOT NULL DEFAULT FALSE,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL,
	CHECK (current_credit_balance >= 0 AND current_credit_balance <= max_credit_amount)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	seq              BIGSERIAL UNIQUE,
	id               UUID PRIMARY KEY,
	farmer_id        BIGINT NOT NULL REFERENCES farmer_credit_profiles (farmer_id),
	transaction_type TEXT NOT NULL,
	amount           NUMERIC(14,2) NOT NULL CHECK (amount > 0),
	balance_before   NUMERIC(14,2) NOT NULL,
	balance_after    NUMERIC(14,2) NOT NULL,
	reference_type   TEXT NOT NULL,
	reference_id     TEXT,
	description      TEXT,
	actor_id         BIGINT,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_farmer ON credit_transactions (farmer_id, seq);

CREATE TABLE IF NOT EXISTS payment_batches (
	id                   UUID PRIMARY KEY,
	period_start         TIMESTAMPTZ NOT NULL,
	period_end           TIMESTAMPTZ NOT NULL,
	status               TEXT NOT NULL,
	kind                 TEXT NOT NULL DEFAULT '',
	fee_per_liter        NUMERIC(12,4),
	total_amount         NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_credit_used    NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_collector_fees NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_net_payment    NUMERIC(14,2) NOT NULL DEFAULT 0,
	unsettled_count      INTEGER NOT NULL DEFAULT 0,
	unsettled_amount     NUMERIC(14,2) NOT NULL DEFAULT 0,
	created_by           BIGINT,
	created_at           TIMESTAMPTZ NOT NULL,
	processed_at         TIMESTAMPTZ,
	completed_at         TIMESTAMPTZ,
	failure_log          JSONB NOT NULL DEFAULT '[]'
);
ALTER TABLE payment_batches ADD COLUMN IF NOT EXISTS kind TEXT NOT NULL DEFAULT '';
ALTER TABLE payment_batches ADD COLUMN IF NOT EXISTS fee_per_liter NUMERIC(12,4);
ALTER TABLE payment_batches ADD COLUMN IF NOT EXISTS unsettled_count INTEGER NOT NULL DEFAULT 0;
ALTER TABLE payment_batches ADD COLUMN IF NOT EXISTS unsettled_amount NUMERIC(14,2) NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS collection_payment_records (
	id            BIGSERIAL PRIMARY KEY,
	collection_id BIGINT NOT NULL UNIQUE REFERENCES collections (id),
	farmer_id     BIGINT NOT NULL,
	batch_id      UUID REFERENCES payment_batches (id),
	amount        NUMERIC(14,2) NOT NULL,
	rate_applied  NUMERIC(12,2) NOT NULL DEFAULT 0,
	credit_used   NUMERIC(14,2) NOT NULL DEFAULT 0,
	collector_fee NUMERIC(14,2) NOT NULL DEFAULT 0,
	net_payment   NUMERIC(14,2) NOT NULL,
	settled       BOOLEAN NOT NULL DEFAULT FALSE,
	settled_at    TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL,
	CHECK (credit_used + collector_fee <= amount),
	CHECK (net_payment = amount - credit_used - collector_fee)
);
CREATE INDEX IF NOT EXISTS idx_payment_records_batch ON collection_payment_records (batch_id, farmer_id, collection_id);

CREATE TABLE IF NOT EXISTS farmer_payments (
	batch_id         UUID NOT NULL REFERENCES payment_batches (id),
	farmer_id        BIGINT NOT NULL,
	total_amount     NUMERIC(14,2) NOT NULL,
	credit_used      NUMERIC(14,2) NOT NULL,
	collector_fee    NUMERIC(14,2) NOT NULL,
	net_payment      NUMERIC(14,2) NOT NULL,
	collection_count INTEGER NOT NULL,
	is_approved      BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (batch_id, farmer_id)
);
`

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.Info("Applying database schema")
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
