package crdb

import "context"

// Schema is applied on startup. CockroachDB DDL is idempotent here; the
// partial unique index on payment_ref is the materializer's idempotency
// arbiter and must exist before any webhook traffic.
const Schema = `
CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	payment_ref TEXT,
	account_id UUID,
	guest_name TEXT NOT NULL DEFAULT '',
	guest_email TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	service_id UUID NOT NULL,
	option_id UUID,
	party_size INT NOT NULL,
	multi_user BOOL NOT NULL DEFAULT false,
	participants JSONB,
	details JSONB NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'canceled')),
	total_cents BIGINT NOT NULL,
	paid_cents BIGINT NOT NULL DEFAULT 0,
	remaining_cents BIGINT NOT NULL DEFAULT 0,
	cancellation JSONB,
	feedback JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS reservations_payment_ref_key
	ON reservations (payment_ref) WHERE payment_ref IS NOT NULL;

CREATE TABLE IF NOT EXISTS ledger_entries (
	id UUID PRIMARY KEY,
	reservation_id UUID NOT NULL REFERENCES reservations (id),
	account_id UUID,
	guest_name TEXT NOT NULL DEFAULT '',
	guest_email TEXT NOT NULL DEFAULT '',
	amount_cents BIGINT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'paid')),
	method TEXT NOT NULL CHECK (method IN ('card', 'cash', 'transfer')),
	paid_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS carts (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL UNIQUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cart_items (
	id UUID PRIMARY KEY,
	cart_id UUID NOT NULL REFERENCES carts (id),
	category TEXT NOT NULL,
	service_id UUID NOT NULL,
	option_id UUID,
	party_size INT NOT NULL,
	details JSONB NOT NULL,
	price_cents BIGINT NOT NULL,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS materialization_failures (
	id UUID PRIMARY KEY,
	payment_ref TEXT NOT NULL,
	reason TEXT NOT NULL,
	detail TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}
