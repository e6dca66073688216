package repository

import (
	"context"
	"encoding/json"
	"errors"

	"helparo/internal/model"
)

// ErrNoMatch is returned by conditional updates whose WHERE clause matched
// no row. The caller re-reads the request to find out why.
var ErrNoMatch = errors.New("conditional update matched no row")

type RequestRepository interface {
	// GetStatus returns only the three polled columns.
	GetStatus(ctx context.Context, id string) (*model.StatusSnapshot, error)

	// Assign moves a request whose status is in from to assigned.
	Assign(ctx context.Context, id, helperID string, from []model.RequestStatus) (*model.ServiceRequest, error)
	// Complete moves a request whose status is in from to completed. helperID
	// only fills an empty assigned_helper_id.
	Complete(ctx context.Context, id string, helperID *string, from []model.RequestStatus) (*model.ServiceRequest, error)
	// Cancel moves a request whose status is in from to cancelled and returns
	// the helper that was assigned before the update, if any.
	Cancel(ctx context.Context, id string, from []model.RequestStatus) (*model.ServiceRequest, *string, error)

	StartBroadcast(ctx context.Context, id string) (*model.ServiceRequest, error)
	AcceptBroadcast(ctx context.Context, id, helperID string) (*model.ServiceRequest, error)
	ExpireBroadcast(ctx context.Context, id string) (*model.ServiceRequest, error)
}

type DeviceTokenRepository interface {
	// Upsert creates or refreshes a (user, token) pair
	Upsert(ctx context.Context, userID, token, platform string) error
	// GetByUserID returns all device tokens for a user
	GetByUserID(ctx context.Context, userID string) ([]model.DeviceToken, error)
	// DeleteTokens removes tokens the push provider reported as dead
	DeleteTokens(ctx context.Context, tokens []string) (int64, error)
}

// RPC invokes a named database procedure on behalf of a caller and returns
// its result as JSON.
type RPC interface {
	Call(ctx context.Context, caller model.Caller, procedure string, args map[string]any) (json.RawMessage, error)
}
