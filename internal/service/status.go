package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"helparo/internal/cache"
	"helparo/internal/metrics"
	"helparo/internal/model"
	"helparo/internal/repository"
)

// statusLookupTimeout bounds one shared database lookup.
const statusLookupTimeout = 5 * time.Second

// StatusService answers status polls. Polls for the same request that
// arrive while a lookup is in flight share its result.
type StatusService struct {
	repo    repository.RequestRepository
	cache   cache.StatusCache // nil disables caching
	metrics metrics.Recorder
	log     *zap.SugaredLogger

	group singleflight.Group
}

func NewStatusService(repo repository.RequestRepository, statusCache cache.StatusCache, rec metrics.Recorder, log *zap.SugaredLogger) *StatusService {
	return &StatusService{
		repo:    repo,
		cache:   statusCache,
		metrics: rec,
		log:     log.Named("status"),
	}
}

// GetStatus returns the three polled fields of a request. Unknown and
// malformed ids are ErrRequestNotFound; backend failures are never reported
// as not found.
func (s *StatusService) GetStatus(ctx context.Context, id string) (*model.StatusSnapshot, error) {
	if _, err := uuid.Parse(id); err != nil {
		s.count(ctx, "not_found", "none")
		return nil, model.ErrRequestNotFound
	}

	if s.cache != nil {
		snap, found, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warnw("cache read failed, falling back to database", "request", id, "err", err)
		} else if found {
			s.count(ctx, "ok", "cache")
			return snap, nil
		}
	}

	// The lookup is shared by every coalesced poll, so it must not inherit
	// the first caller's cancellation.
	v, err, _ := s.group.Do(id, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusLookupTimeout)
		defer cancel()

		snap, err := s.repo.GetStatus(lookupCtx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(lookupCtx, id, *snap); err != nil {
				s.log.Warnw("cache write failed", "request", id, "err", err)
			}
		}
		return *snap, nil
	})
	if err != nil {
		if errors.Is(err, model.ErrRequestNotFound) {
			s.count(ctx, "not_found", "database")
			return nil, err
		}
		s.count(ctx, "error", "database")
		s.log.Errorw("GetStatus FAILED", "request", id, "err", err)
		return nil, err
	}

	s.count(ctx, "ok", "database")
	snap := v.(model.StatusSnapshot)
	return &snap, nil
}

func (s *StatusService) count(ctx context.Context, outcome, source string) {
	s.metrics.Count(ctx, metrics.MetricStatusPolls, 1,
		attribute.String("outcome", outcome),
		attribute.String("source", source))
}
