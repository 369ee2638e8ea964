package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgx.Conn, pgx.Tx, and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// schemaStatements is the four-entity relational layout. Ledger entries are
// append-only by construction: nothing in this codebase issues UPDATE or
// DELETE against them, and the positivity and distinct-sides checks are
// enforced by the database as the last line of defense.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		code VARCHAR(20) NOT NULL UNIQUE,
		description TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		account_type TEXT NOT NULL,
		owner_id TEXT,
		name TEXT NOT NULL,
		asset_id BIGINT NOT NULL REFERENCES assets(id) ON DELETE RESTRICT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (owner_id, asset_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id BIGSERIAL PRIMARY KEY,
		transaction_group_id UUID NOT NULL,
		debit_account_id BIGINT NOT NULL REFERENCES accounts(id),
		credit_account_id BIGINT NOT NULL REFERENCES accounts(id),
		amount NUMERIC(18,2) NOT NULL,
		asset_id BIGINT NOT NULL REFERENCES assets(id),
		type TEXT NOT NULL,
		description TEXT,
		external_reference TEXT,
		idempotency_key TEXT,
		executed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT amount_positive CHECK (amount > 0),
		CONSTRAINT distinct_sides CHECK (debit_account_id <> credit_account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_group
		ON ledger_entries (transaction_group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_group_debit
		ON ledger_entries (transaction_group_id, debit_account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_group_credit
		ON ledger_entries (transaction_group_id, credit_account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_idempotency_key
		ON ledger_entries (idempotency_key)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		operation_type TEXT NOT NULL,
		account_id BIGINT REFERENCES accounts(id),
		transaction_group_id UUID,
		status TEXT NOT NULL DEFAULT 'processed',
		response_payload JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ
	)`,
}

// Provision applies the schema idempotently.
func Provision(ctx context.Context, db Execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
