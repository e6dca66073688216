package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"helparo/internal/model"
)

const requestColumns = `id, customer_id, status, broadcast_status, assigned_helper_id,
	assigned_at, job_completed_at, cancelled_at, version, created_at, updated_at`

type requestRepository struct {
	db *sqlx.DB
}

func NewRequestRepository(db *sqlx.DB) RequestRepository {
	return &requestRepository{db: db}
}

// GetStatus reads the poll projection. Ids that are not UUIDs cannot exist,
// so they short-circuit to not found without a round trip.
func (r *requestRepository) GetStatus(ctx context.Context, id string) (*model.StatusSnapshot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrRequestNotFound
	}

	query := `
		SELECT status, broadcast_status, assigned_helper_id
		FROM service_requests
		WHERE id = $1
	`
	var snap model.StatusSnapshot
	err := r.db.GetContext(ctx, &snap, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrRequestNotFound
		}
		return nil, model.NewStoreError("get request status", err)
	}
	return &snap, nil
}

func (r *requestRepository) Assign(ctx context.Context, id, helperID string, from []model.RequestStatus) (*model.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET status = 'assigned',
			assigned_helper_id = $2,
			assigned_at = NOW(),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($3::text[])
		RETURNING ` + requestColumns
	return r.conditionalUpdate(ctx, "assign helper", query, id, helperID, pq.Array(model.ToStrings(from)))
}

func (r *requestRepository) Complete(ctx context.Context, id string, helperID *string, from []model.RequestStatus) (*model.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET status = 'completed',
			assigned_helper_id = COALESCE(assigned_helper_id, $2::uuid),
			assigned_at = COALESCE(assigned_at, CASE WHEN $2::uuid IS NOT NULL THEN NOW() END),
			job_completed_at = NOW(),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($3::text[])
		RETURNING ` + requestColumns
	return r.conditionalUpdate(ctx, "complete request", query, id, helperID, pq.Array(model.ToStrings(from)))
}

type cancelledRow struct {
	model.ServiceRequest
	PreviousHelperID *string `db:"previous_helper_id"`
}

func (r *requestRepository) Cancel(ctx context.Context, id string, from []model.RequestStatus) (*model.ServiceRequest, *string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, model.ErrRequestNotFound
	}

	query := `
		WITH prev AS (
			SELECT id, assigned_helper_id FROM service_requests WHERE id = $1 FOR UPDATE
		)
		UPDATE service_requests r
		SET status = 'cancelled',
			assigned_helper_id = NULL,
			broadcast_status = CASE
				WHEN r.broadcast_status IN ('broadcasting', 'accepted') THEN 'expired'
				ELSE r.broadcast_status
			END,
			cancelled_at = NOW(),
			version = r.version + 1,
			updated_at = NOW()
		FROM prev
		WHERE r.id = prev.id AND r.status = ANY($2::text[])
		RETURNING r.id, r.customer_id, r.status, r.broadcast_status, r.assigned_helper_id,
			r.assigned_at, r.job_completed_at, r.cancelled_at, r.version, r.created_at, r.updated_at,
			prev.assigned_helper_id AS previous_helper_id
	`
	var row cancelledRow
	err := r.db.GetContext(ctx, &row, query, id, pq.Array(model.ToStrings(from)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNoMatch
		}
		return nil, nil, model.NewStoreError("cancel request", err)
	}
	return &row.ServiceRequest, row.PreviousHelperID, nil
}

func (r *requestRepository) StartBroadcast(ctx context.Context, id string) (*model.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET broadcast_status = 'broadcasting',
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND broadcast_status = ANY($2::text[])
		RETURNING ` + requestColumns
	from := model.BroadcastSourcesFor(model.BroadcastBroadcasting)
	return r.conditionalUpdate(ctx, "start broadcast", query, id, pq.Array(model.ToStrings(from)))
}

func (r *requestRepository) AcceptBroadcast(ctx context.Context, id, helperID string) (*model.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET status = 'assigned',
			broadcast_status = 'accepted',
			assigned_helper_id = $2,
			assigned_at = NOW(),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND broadcast_status = 'broadcasting'
		RETURNING ` + requestColumns
	return r.conditionalUpdate(ctx, "accept broadcast", query, id, helperID)
}

func (r *requestRepository) ExpireBroadcast(ctx context.Context, id string) (*model.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET broadcast_status = 'expired',
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'open' AND broadcast_status = 'broadcasting'
		RETURNING ` + requestColumns
	return r.conditionalUpdate(ctx, "expire broadcast", query, id)
}

// conditionalUpdate runs an UPDATE ... RETURNING whose first argument is the
// request id. No returned row means the WHERE clause did not hold.
func (r *requestRepository) conditionalUpdate(ctx context.Context, op, query string, args ...any) (*model.ServiceRequest, error) {
	if id, ok := args[0].(string); ok {
		if _, err := uuid.Parse(id); err != nil {
			return nil, model.ErrRequestNotFound
		}
	}

	var req model.ServiceRequest
	err := r.db.GetContext(ctx, &req, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoMatch
		}
		return nil, model.NewStoreError(op, fmt.Errorf("conditional update: %w", err))
	}
	return &req, nil
}
