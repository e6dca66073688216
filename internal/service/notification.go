package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"helparo/internal/metrics"
	"helparo/internal/model"
	"helparo/internal/ratelimit"
	"helparo/internal/repository"
)

// Rate-limited actions and their quotas.
const (
	actionRegisterDevice = "register-device"
	actionSetPref        = "set-notification-pref"
	actionMarkRead       = "mark-notification-read"
)

// NotificationService forwards device and notification-preference actions
// to the database procedures and fans push notifications out to devices.
type NotificationService struct {
	rpc       repository.RPC
	tokenRepo repository.DeviceTokenRepository
	limiter   ratelimit.Limiter // nil disables rate limiting
	push      PushSender        // nil when FCM is not configured
	metrics   metrics.Recorder
	validate  *validator.Validate
	log       *zap.SugaredLogger
}

func NewNotificationService(
	rpc repository.RPC,
	tokenRepo repository.DeviceTokenRepository,
	limiter ratelimit.Limiter,
	push PushSender,
	rec metrics.Recorder,
	log *zap.SugaredLogger,
) *NotificationService {
	return &NotificationService{
		rpc:       rpc,
		tokenRepo: tokenRepo,
		limiter:   limiter,
		push:      push,
		metrics:   rec,
		validate:  validator.New(),
		log:       log.Named("notifications"),
	}
}

// RegisterDevice calls register_device_token for the caller.
func (s *NotificationService) RegisterDevice(ctx context.Context, caller model.Caller, token, platform string) (json.RawMessage, error) {
	if !caller.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	platform = strings.TrimSpace(platform)
	if token == "" {
		return nil, model.NewValidationError("token", "Missing token")
	}
	if platform == "" {
		platform = model.DefaultPlatform
	}
	if !model.ValidPlatform(platform) {
		return nil, model.NewValidationError("platform", "Invalid platform")
	}
	if err := s.checkRate(ctx, actionRegisterDevice, caller.UserID, ratelimit.APIModerate); err != nil {
		return nil, err
	}

	data, err := s.rpc.Call(ctx, caller, "register_device_token", map[string]any{
		"p_device_token": token,
		"p_platform":     platform,
	})
	if err != nil {
		s.log.Errorw("Register device FAILED", "user", caller.UserID, "err", err)
		return nil, err
	}
	s.log.Infow("Device registered for notifications", "user", caller.UserID, "platform", platform)
	return data, nil
}

// SetNotificationPref calls set_notification_pref for the caller.
func (s *NotificationService) SetNotificationPref(ctx context.Context, caller model.Caller, channel string, enabled bool) (json.RawMessage, error) {
	if !caller.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, model.NewValidationError("channel", "Missing channel")
	}
	if err := s.checkRate(ctx, actionSetPref, caller.UserID, ratelimit.APIModerate); err != nil {
		return nil, err
	}

	data, err := s.rpc.Call(ctx, caller, "set_notification_pref", map[string]any{
		"p_channel": channel,
		"p_enabled": enabled,
	})
	if err != nil {
		s.log.Errorw("Set notification preference FAILED", "user", caller.UserID, "err", err)
		return nil, err
	}
	s.log.Infow("Notification preference updated", "user", caller.UserID, "channel", channel, "enabled", enabled)
	return data, nil
}

// MarkNotificationRead calls mark_notification_read for the caller.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, caller model.Caller, id string) (json.RawMessage, error) {
	if !caller.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, model.NewValidationError("id", "Missing notification id")
	}
	if err := s.checkRate(ctx, actionMarkRead, caller.UserID, ratelimit.APIRelaxed); err != nil {
		return nil, err
	}

	data, err := s.rpc.Call(ctx, caller, "mark_notification_read", map[string]any{
		"p_notification_id": id,
	})
	if err != nil {
		s.log.Errorw("Mark notification read FAILED", "user", caller.UserID, "err", err)
		return nil, err
	}
	return data, nil
}

// RegisterPushToken is the unauthenticated registration path used by the
// native shell before a session exists. Missing fields are rejected before
// any store call.
func (s *NotificationService) RegisterPushToken(ctx context.Context, req model.PushRegisterRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Token = strings.TrimSpace(req.Token)
	if req.UserID == "" || req.Token == "" {
		return model.NewValidationError("token", "Missing userId or token")
	}
	if req.Platform == "" {
		req.Platform = model.DefaultPlatform
	}
	if err := s.validate.Struct(req); err != nil {
		return model.NewValidationError("platform", "Invalid platform")
	}

	if err := s.tokenRepo.Upsert(ctx, req.UserID, req.Token, req.Platform); err != nil {
		s.log.Errorw("Push token save FAILED", "user", req.UserID, "err", err)
		return err
	}
	s.log.Infow("Push token registered", "user", req.UserID, "platform", req.Platform)
	return nil
}

// NotifyUser pushes a notification to every device of a user and deletes
// the tokens FCM reports as dead. Without FCM it is a no-op.
func (s *NotificationService) NotifyUser(ctx context.Context, userID, title, body string, data map[string]string) (PushResult, error) {
	if s.push == nil {
		s.log.Debugw("push disabled, skipping", "user", userID, "title", title)
		return PushResult{}, nil
	}

	tokens, err := s.tokenRepo.GetByUserID(ctx, userID)
	if err != nil {
		return PushResult{}, fmt.Errorf("load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return PushResult{}, nil
	}

	values := make([]string, len(tokens))
	for i, t := range tokens {
		values[i] = t.Token
	}

	result, err := s.push.SendToTokens(ctx, values, title, body, data)
	s.metrics.Count(ctx, metrics.MetricPushSent, int64(result.Sent), attribute.String("type", data["type"]))

	if len(result.InvalidTokens) > 0 {
		removed, delErr := s.tokenRepo.DeleteTokens(ctx, result.InvalidTokens)
		if delErr != nil {
			s.log.Warnw("invalid token cleanup failed", "user", userID, "err", delErr)
		} else {
			s.metrics.Count(ctx, metrics.MetricPushInvalidTokens, removed)
			s.log.Infow("Removed invalid tokens", "user", userID, "count", removed)
		}
	}
	if err != nil {
		return result, fmt.Errorf("push to user %s: %w", userID, err)
	}
	return result, nil
}

// checkRate fails open: a limiter outage must not block the action.
func (s *NotificationService) checkRate(ctx context.Context, action, userID string, rule ratelimit.Rule) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.Allow(ctx, action, userID, rule)
	if err != nil {
		s.log.Warnw("rate limiter unavailable, allowing", "action", action, "err", err)
		return nil
	}
	if !res.Allowed {
		s.metrics.Count(ctx, metrics.MetricRateLimited, 1, attribute.String("action", action))
		return model.ErrRateLimited
	}
	return nil
}
