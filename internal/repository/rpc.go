package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"helparo/internal/model"
)

// procedures is the fixed set of database functions callable through the
// gateway, each with its named parameters in call order.
var procedures = map[string][]string{
	"register_device_token":  {"p_device_token", "p_platform"},
	"set_notification_pref":  {"p_channel", "p_enabled"},
	"mark_notification_read": {"p_notification_id"},
}

// ErrUnknownProcedure is returned for names outside the registry.
var ErrUnknownProcedure = errors.New("unknown procedure")

type pgRPC struct {
	db *sqlx.DB
}

func NewRPC(db *sqlx.DB) RPC {
	return &pgRPC{db: db}
}

// Call runs the procedure in its own transaction with the caller's claims
// set for the transaction, so row-level policies and auth.uid()-style helpers
// inside the function see who is calling.
func (r *pgRPC) Call(ctx context.Context, caller model.Caller, procedure string, args map[string]any) (json.RawMessage, error) {
	params, ok := procedures[procedure]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, procedure)
	}

	named := make([]string, 0, len(params))
	values := make([]any, 0, len(params))
	for _, p := range params {
		v, ok := args[p]
		if !ok {
			return nil, fmt.Errorf("procedure %s: missing argument %s", procedure, p)
		}
		values = append(values, v)
		named = append(named, fmt.Sprintf("%s => $%d", p, len(values)))
	}

	claims, err := json.Marshal(map[string]string{"sub": caller.UserID, "role": caller.Role})
	if err != nil {
		return nil, fmt.Errorf("marshal claims: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.NewStoreError(procedure, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claims)); err != nil {
		return nil, model.NewStoreError(procedure, err)
	}

	query := fmt.Sprintf("SELECT %s(%s)::text", procedure, strings.Join(named, ", "))
	var out sql.NullString
	if err := tx.QueryRowxContext(ctx, query, values...).Scan(&out); err != nil {
		return nil, model.NewStoreError(procedure, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, model.NewStoreError(procedure, err)
	}

	return toJSON(out), nil
}

// toJSON relays the procedure result unchanged when it is already JSON and
// quotes it otherwise. void and NULL results become null.
func toJSON(out sql.NullString) json.RawMessage {
	if !out.Valid || out.String == "" {
		return json.RawMessage("null")
	}
	if json.Valid([]byte(out.String)) {
		return json.RawMessage(out.String)
	}
	quoted, _ := json.Marshal(out.String)
	return quoted
}
