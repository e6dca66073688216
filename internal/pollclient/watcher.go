package pollclient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"helparo/internal/model"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 5 * time.Minute

	// maxBackoffFactor caps the retry delay after failures at this many intervals.
	maxBackoffFactor = 4
)

// ErrAcceptanceTimeout is returned once when no helper accepted before the
// overall timeout.
var ErrAcceptanceTimeout = errors.New("timed out waiting for acceptance")

// StopReason says why Watch returned.
type StopReason int

const (
	StopStatusChanged StopReason = iota + 1
	StopBroadcastExpired
	StopNotFound
	StopTimedOut
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopStatusChanged:
		return "status_changed"
	case StopBroadcastExpired:
		return "broadcast_expired"
	case StopNotFound:
		return "not_found"
	case StopTimedOut:
		return "timed_out"
	case StopCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome is the result of one Watch call.
type Outcome struct {
	Reason StopReason
	// Last is the most recent snapshot received, nil if no poll succeeded.
	Last  *model.StatusSnapshot
	Polls int
}

type WatcherConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnSnapshot, when set, sees every successful poll.
	OnSnapshot func(model.StatusSnapshot)
}

// Watcher polls one request until a helper is found, the broadcast
// expires, the request disappears, or the timeout elapses.
type Watcher struct {
	fetcher    Fetcher
	interval   time.Duration
	timeout    time.Duration
	onSnapshot func(model.StatusSnapshot)
	log        *zap.SugaredLogger
}

func NewWatcher(fetcher Fetcher, cfg WatcherConfig, log *zap.SugaredLogger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Watcher{
		fetcher:    fetcher,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		onSnapshot: cfg.OnSnapshot,
		log:        log.Named("watcher"),
	}
}

// Watch polls requestID on the calling goroutine. Each poll finishes before
// the next is scheduled, so polls never overlap. A poll is never started at
// or after the deadline, which bounds the number of polls by
// timeout/interval.
func (w *Watcher) Watch(ctx context.Context, requestID string) (Outcome, error) {
	start := time.Now()
	deadline := start.Add(w.timeout)
	out := Outcome{}

	retry := w.newBackOff()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			out.Reason = StopCancelled
			return out, ctx.Err()
		case <-timer.C:
		}

		pollStart := time.Now()
		out.Polls++
		snap, err := w.fetch(ctx, requestID, deadline)

		var delay time.Duration
		switch {
		case err == nil:
			out.Last = snap
			if w.onSnapshot != nil {
				w.onSnapshot(*snap)
			}
			if snap.Status != model.StatusOpen {
				out.Reason = StopStatusChanged
				return out, nil
			}
			if snap.BroadcastStatus == model.BroadcastExpired {
				out.Reason = StopBroadcastExpired
				return out, nil
			}
			retry.Reset()
			delay = w.interval

		case errors.Is(err, ErrNotFound):
			out.Reason = StopNotFound
			return out, ErrNotFound

		case ctx.Err() != nil:
			out.Reason = StopCancelled
			return out, ctx.Err()

		default:
			delay = retry.NextBackOff()
			w.log.Debugw("poll failed, retrying", "request", requestID, "delay", delay, "err", err)
		}

		// A slow poll can return past the deadline even when pollStart+delay
		// lies before it.
		if !time.Now().Before(deadline) {
			return w.timedOut(&out, requestID, start)
		}

		next := pollStart.Add(delay)
		if !next.Before(deadline) {
			next = deadline
		}
		timer.Reset(time.Until(next))

		if next.Equal(deadline) {
			select {
			case <-ctx.Done():
				out.Reason = StopCancelled
				return out, ctx.Err()
			case <-timer.C:
			}
			return w.timedOut(&out, requestID, start)
		}
	}
}

func (w *Watcher) timedOut(out *Outcome, requestID string, start time.Time) (Outcome, error) {
	w.log.Infow("gave up waiting for acceptance", "request", requestID, "polls", out.Polls, "elapsed", time.Since(start))
	out.Reason = StopTimedOut
	return *out, ErrAcceptanceTimeout
}

// fetch bounds a single call by the overall deadline as well as the
// fetcher's own timeout.
func (w *Watcher) fetch(ctx context.Context, requestID string, deadline time.Time) (*model.StatusSnapshot, error) {
	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	return w.fetcher.FetchStatus(callCtx, requestID)
}

func (w *Watcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.interval
	b.MaxInterval = maxBackoffFactor * w.interval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
