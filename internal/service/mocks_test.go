package service

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"helparo/internal/model"
	"helparo/internal/queue"
	"helparo/internal/ratelimit"
)

// =============================================================================
// MOCKS
// =============================================================================
//
// Each mock exposes function fields so a test only defines the behaviour it
// cares about. Unset functions fall back to a neutral default.

var testLog = zap.NewNop().Sugar()

type mockRequestRepo struct {
	getStatusFn       func(ctx context.Context, id string) (*model.StatusSnapshot, error)
	assignFn          func(ctx context.Context, id, helperID string, from []model.RequestStatus) (*model.ServiceRequest, error)
	completeFn        func(ctx context.Context, id string, helperID *string, from []model.RequestStatus) (*model.ServiceRequest, error)
	cancelFn          func(ctx context.Context, id string, from []model.RequestStatus) (*model.ServiceRequest, *string, error)
	startBroadcastFn  func(ctx context.Context, id string) (*model.ServiceRequest, error)
	acceptBroadcastFn func(ctx context.Context, id, helperID string) (*model.ServiceRequest, error)
	expireBroadcastFn func(ctx context.Context, id string) (*model.ServiceRequest, error)

	mu             sync.Mutex
	getStatusCalls int
}

func (m *mockRequestRepo) GetStatus(ctx context.Context, id string) (*model.StatusSnapshot, error) {
	m.mu.Lock()
	m.getStatusCalls++
	m.mu.Unlock()
	if m.getStatusFn != nil {
		return m.getStatusFn(ctx, id)
	}
	return nil, model.ErrRequestNotFound
}

func (m *mockRequestRepo) Assign(ctx context.Context, id, helperID string, from []model.RequestStatus) (*model.ServiceRequest, error) {
	return m.assignFn(ctx, id, helperID, from)
}

func (m *mockRequestRepo) Complete(ctx context.Context, id string, helperID *string, from []model.RequestStatus) (*model.ServiceRequest, error) {
	return m.completeFn(ctx, id, helperID, from)
}

func (m *mockRequestRepo) Cancel(ctx context.Context, id string, from []model.RequestStatus) (*model.ServiceRequest, *string, error) {
	return m.cancelFn(ctx, id, from)
}

func (m *mockRequestRepo) StartBroadcast(ctx context.Context, id string) (*model.ServiceRequest, error) {
	return m.startBroadcastFn(ctx, id)
}

func (m *mockRequestRepo) AcceptBroadcast(ctx context.Context, id, helperID string) (*model.ServiceRequest, error) {
	return m.acceptBroadcastFn(ctx, id, helperID)
}

func (m *mockRequestRepo) ExpireBroadcast(ctx context.Context, id string) (*model.ServiceRequest, error) {
	return m.expireBroadcastFn(ctx, id)
}

type mockPublisher struct {
	err    error
	events []queue.RequestEvent
}

func (m *mockPublisher) Publish(ctx context.Context, stream string, event queue.RequestEvent) (string, error) {
	m.events = append(m.events, event)
	if m.err != nil {
		return "", m.err
	}
	return "1-0", nil
}

type mockStatusCache struct {
	getFn       func(ctx context.Context, id string) (*model.StatusSnapshot, bool, error)
	sets        map[string]model.StatusSnapshot
	invalidated []string
}

func (m *mockStatusCache) Get(ctx context.Context, id string) (*model.StatusSnapshot, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, false, nil
}

func (m *mockStatusCache) Set(ctx context.Context, id string, snap model.StatusSnapshot) error {
	if m.sets == nil {
		m.sets = map[string]model.StatusSnapshot{}
	}
	m.sets[id] = snap
	return nil
}

func (m *mockStatusCache) Invalidate(ctx context.Context, id string) error {
	m.invalidated = append(m.invalidated, id)
	return nil
}

type mockRecorder struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (m *mockRecorder) Count(ctx context.Context, name string, val int64, attrs ...attribute.KeyValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[name] += val
}

func (m *mockRecorder) Shutdown(ctx context.Context) error { return nil }

func (m *mockRecorder) get(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type rpcCall struct {
	Caller    model.Caller
	Procedure string
	Args      map[string]any
}

type mockRPC struct {
	callFn func(ctx context.Context, caller model.Caller, procedure string, args map[string]any) (json.RawMessage, error)
	calls  []rpcCall
}

func (m *mockRPC) Call(ctx context.Context, caller model.Caller, procedure string, args map[string]any) (json.RawMessage, error) {
	m.calls = append(m.calls, rpcCall{Caller: caller, Procedure: procedure, Args: args})
	if m.callFn != nil {
		return m.callFn(ctx, caller, procedure, args)
	}
	return json.RawMessage(`{"ok":true}`), nil
}

type mockTokenRepo struct {
	upsertFn      func(ctx context.Context, userID, token, platform string) error
	getByUserIDFn func(ctx context.Context, userID string) ([]model.DeviceToken, error)

	upserts []model.DeviceToken
	deleted []string
}

func (m *mockTokenRepo) Upsert(ctx context.Context, userID, token, platform string) error {
	m.upserts = append(m.upserts, model.DeviceToken{UserID: userID, Token: token, Platform: platform})
	if m.upsertFn != nil {
		return m.upsertFn(ctx, userID, token, platform)
	}
	return nil
}

func (m *mockTokenRepo) GetByUserID(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	if m.getByUserIDFn != nil {
		return m.getByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTokenRepo) DeleteTokens(ctx context.Context, tokens []string) (int64, error) {
	m.deleted = append(m.deleted, tokens...)
	return int64(len(tokens)), nil
}

type mockLimiter struct {
	allowFn func(ctx context.Context, action, identifier string, rule ratelimit.Rule) (ratelimit.Result, error)
}

func (m *mockLimiter) Allow(ctx context.Context, action, identifier string, rule ratelimit.Rule) (ratelimit.Result, error) {
	return m.allowFn(ctx, action, identifier, rule)
}

type mockPush struct {
	sendFn func(ctx context.Context, tokens []string, title, body string, data map[string]string) (PushResult, error)
}

func (m *mockPush) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) (PushResult, error) {
	return m.sendFn(ctx, tokens, title, body, data)
}
