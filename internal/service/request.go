package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"helparo/internal/cache"
	"helparo/internal/metrics"
	"helparo/internal/model"
	"helparo/internal/queue"
	"helparo/internal/repository"
)

// publishTimeout bounds the event publish that follows a committed transition.
const publishTimeout = 2 * time.Second

// RequestService moves service requests through their lifecycle. Every
// mutation is a conditional update on the current status, so concurrent
// writers cannot overwrite each other.
type RequestService struct {
	repo      repository.RequestRepository
	publisher queue.Publisher   // nil disables events
	cache     cache.StatusCache // nil when the poller is uncached
	metrics   metrics.Recorder
	validate  *validator.Validate
	log       *zap.SugaredLogger
}

func NewRequestService(
	repo repository.RequestRepository,
	publisher queue.Publisher,
	statusCache cache.StatusCache,
	rec metrics.Recorder,
	log *zap.SugaredLogger,
) *RequestService {
	return &RequestService{
		repo:      repo,
		publisher: publisher,
		cache:     statusCache,
		metrics:   rec,
		validate:  validator.New(),
		log:       log.Named("requests"),
	}
}

// AssignHelper moves an open request to assigned. broadcast_status is left as is.
func (s *RequestService) AssignHelper(ctx context.Context, caller model.Caller, id, helperID string) (*model.TransitionResult, error) {
	if !caller.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	if err := s.validate.Struct(model.AssignRequest{HelperID: helperID}); err != nil {
		return nil, model.NewValidationError("helper_id", "helper_id must be a valid id")
	}

	req, err := s.repo.Assign(ctx, id, helperID, model.SourcesFor(model.StatusAssigned))
	if errors.Is(err, repository.ErrNoMatch) {
		err = s.explain(ctx, id, statusCheck(model.StatusAssigned))
	}
	return s.finish(ctx, "assign", string(model.StatusAssigned), id, req, nil, err)
}

// CompleteRequest stamps job_completed_at and marks the request completed.
// An open request has no helper yet, so one must be supplied.
func (s *RequestService) CompleteRequest(ctx context.Context, caller model.Caller, id, helperID string) (*model.TransitionResult, error) {
	if !caller.Authenticated() {
		return nil, model.ErrUnauthenticated
	}
	if err := s.validate.Struct(model.CompleteRequestBody{HelperID: helperID}); err != nil {
		return nil, model.NewValidationError("helper_id", "helper_id must be a valid id")
	}

	var helper *string
	from := model.SourcesFor(model.StatusCompleted)
	if helperID != "" {
		helper = &helperID
	} else {
		from = []model.RequestStatus{model.StatusAssigned}
	}

	req, err := s.repo.Complete(ctx, id, helper, from)
	if errors.Is(err, repository.ErrNoMatch) {
		err = s.explain(ctx, id, func(snap model.StatusSnapshot) error {
			if snap.Status == model.StatusOpen && helper == nil {
				return model.NewValidationError("helper_id", "helper_id is required to complete an unassigned request")
			}
			return model.CheckTransition(snap.Status, model.StatusCompleted)
		})
	}
	return s.finish(ctx, "complete", string(model.StatusCompleted), id, req, nil, err)
}

// CancelRequest cancels an open or assigned request. The helper is released
// and a running or accepted broadcast is marked expired.
func (s *RequestService) CancelRequest(ctx context.Context, caller model.Caller, id string) (*model.TransitionResult, error) {
	if !caller.Authenticated() {
		return nil, model.ErrUnauthenticated
	}

	req, previousHelper, err := s.repo.Cancel(ctx, id, model.SourcesFor(model.StatusCancelled))
	if errors.Is(err, repository.ErrNoMatch) {
		err = s.explain(ctx, id, statusCheck(model.StatusCancelled))
	}
	return s.finish(ctx, "cancel", string(model.StatusCancelled), id, req, previousHelper, err)
}

// StartBroadcast records that the matcher began offering the request.
func (s *RequestService) StartBroadcast(ctx context.Context, caller model.Caller, id string) (*model.TransitionResult, error) {
	if !caller.IsService() {
		return nil, model.ErrForbidden
	}

	req, err := s.repo.StartBroadcast(ctx, id)
	if errors.Is(err, repository.ErrNoMatch) {
		err = s.explain(ctx, id, func(snap model.StatusSnapshot) error {
			if snap.Status != model.StatusOpen {
				return &model.IllegalTransitionError{From: string(snap.Status), To: string(model.BroadcastBroadcasting)}
			}
			return broadcastCheck(snap.BroadcastStatus, model.BroadcastBroadcasting)
		})
	}
	return s.finish(ctx, "start_broadcast", string(model.BroadcastBroadcasting), id, req, nil, err)
}

// AcceptBroadcast is the matcher's acceptance callback: the request becomes
// assigned and accepted with the helper set, in one statement.
func (s *RequestService) AcceptBroadcast(ctx context.Context, caller model.Caller, id, helperID string) (*model.TransitionResult, error) {
	if !caller.IsService() {
		return nil, model.ErrForbidden
	}
	if err := s.validate.Struct(model.AssignRequest{HelperID: helperID}); err != nil {
		return nil, model.NewValidationError("helper_id", "helper_id must be a valid id")
	}

	req, err := s.repo.AcceptBroadcast(ctx, id, helperID)
	if errors.Is(err, repository.ErrNoMatch) {
		err = s.explain(ctx, id, func(snap model.StatusSnapshot) error {
			if err := model.CheckTransition(snap.Status, model.StatusAssigned); err != nil {
				return err
			}
			return broadcastCheck(snap.BroadcastStatus, model.BroadcastAccepted)
		})
	}
	return s.finish(ctx, "accept_broadcast", string(model.BroadcastAccepted), id, req, nil, err)
}

// ExpireBroadcast records that no helper accepted in time. Only an open
// request can expire; once a helper is assigned the broadcast result stands.
func (s *RequestService) ExpireBroadcast(ctx context.Context, caller model.Caller, id string) (*model.TransitionResult, error) {
	if !caller.IsService() {
		return nil, model.ErrForbidden
	}

	req, err := s.repo.ExpireBroadcast(ctx, id)
	if errors.Is(err, repository.ErrNoMatch) {
		err = s.explain(ctx, id, func(snap model.StatusSnapshot) error {
			if snap.Status != model.StatusOpen {
				return &model.IllegalTransitionError{From: string(snap.Status), To: string(model.BroadcastExpired)}
			}
			return broadcastCheck(snap.BroadcastStatus, model.BroadcastExpired)
		})
	}
	return s.finish(ctx, "expire_broadcast", string(model.BroadcastExpired), id, req, nil, err)
}

func statusCheck(target model.RequestStatus) func(model.StatusSnapshot) error {
	return func(snap model.StatusSnapshot) error {
		return model.CheckTransition(snap.Status, target)
	}
}

func broadcastCheck(from, to model.BroadcastStatus) error {
	if !model.CanBroadcastTransition(from, to) {
		return &model.IllegalTransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// explain re-reads a request after a conditional update matched nothing.
// If the observed state still permits the edge, another writer got there
// between our update and this read.
func (s *RequestService) explain(ctx context.Context, id string, check func(model.StatusSnapshot) error) error {
	snap, err := s.repo.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	if err := check(*snap); err != nil {
		return err
	}
	return model.ErrConcurrentUpdate
}

// finish logs and counts the outcome and, on success, drops the cached poll
// snapshot and publishes the matching event.
func (s *RequestService) finish(ctx context.Context, op, target, id string, req *model.ServiceRequest, previousHelper *string, err error) (*model.TransitionResult, error) {
	if err != nil {
		s.metrics.Count(ctx, metrics.MetricTransitions, 1,
			attribute.String("to", target),
			attribute.String("result", resultLabel(err)))
		s.log.Infow(op+" rejected", "request", id, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Count(ctx, metrics.MetricTransitions, 1,
		attribute.String("to", target),
		attribute.String("result", "ok"))
	s.log.Infow(op+" OK", "request", id, "status", req.Status, "broadcast", req.BroadcastStatus, "version", req.Version)

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.log.Warnw("status cache invalidation failed", "request", id, "err", err)
		}
	}

	if eventType := eventFor(op); eventType != "" && s.publisher != nil {
		event := queue.NewRequestEvent(eventType, req)
		if previousHelper != nil {
			event.HelperID = *previousHelper
		}
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if _, err := s.publisher.Publish(pubCtx, queue.StreamRequests, event); err != nil {
			s.log.Errorw("event publish failed", "request", id, "type", eventType, "err", err)
		}
		cancel()
	}

	return &model.TransitionResult{Success: true, Version: req.Version}, nil
}

func eventFor(op string) string {
	switch op {
	case "assign", "accept_broadcast":
		return queue.EventRequestAssigned
	case "complete":
		return queue.EventRequestCompleted
	case "cancel":
		return queue.EventRequestCancelled
	case "start_broadcast":
		return queue.EventBroadcastStarted
	case "expire_broadcast":
		return queue.EventBroadcastExpired
	}
	return ""
}

func resultLabel(err error) string {
	var validationErr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrRequestNotFound):
		return "not_found"
	case errors.Is(err, model.ErrIllegalTransition):
		return "illegal"
	case errors.Is(err, model.ErrConcurrentUpdate):
		return "conflict"
	case errors.As(err, &validationErr):
		return "invalid"
	}
	return "error"
}
