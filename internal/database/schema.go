package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EnsureSchema creates the tables this service reads and writes.
// Safe to call multiple times - uses IF NOT EXISTS.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS service_requests (
    id UUID PRIMARY KEY,
    customer_id UUID NOT NULL,
    status TEXT NOT NULL DEFAULT 'open'
        CHECK (status IN ('open', 'assigned', 'completed', 'cancelled')),
    broadcast_status TEXT NOT NULL DEFAULT 'idle'
        CHECK (broadcast_status IN ('idle', 'broadcasting', 'accepted', 'expired')),
    assigned_helper_id UUID,
    assigned_at TIMESTAMPTZ,
    job_completed_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT service_requests_helper_matches_status
        CHECK ((assigned_helper_id IS NOT NULL) = (status IN ('assigned', 'completed'))),
    CONSTRAINT service_requests_accepted_has_helper
        CHECK (broadcast_status <> 'accepted' OR assigned_helper_id IS NOT NULL),
    CONSTRAINT service_requests_completed_stamped
        CHECK (status <> 'completed' OR job_completed_at IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_service_requests_customer ON service_requests(customer_id);
CREATE INDEX IF NOT EXISTS idx_service_requests_helper ON service_requests(assigned_helper_id)
    WHERE assigned_helper_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS device_tokens (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL,
    token TEXT NOT NULL,
    platform TEXT NOT NULL DEFAULT 'android'
        CHECK (platform IN ('android', 'ios', 'web')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, token)
);

CREATE INDEX IF NOT EXISTS idx_device_tokens_token ON device_tokens(token);
`
