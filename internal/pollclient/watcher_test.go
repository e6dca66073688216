package pollclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"helparo/internal/model"
)

type fetchFunc func(ctx context.Context, requestID string) (*model.StatusSnapshot, error)

func (f fetchFunc) FetchStatus(ctx context.Context, requestID string) (*model.StatusSnapshot, error) {
	return f(ctx, requestID)
}

func openSnap(b model.BroadcastStatus) *model.StatusSnapshot {
	return &model.StatusSnapshot{Status: model.StatusOpen, BroadcastStatus: b}
}

func newTestWatcher(f Fetcher, interval, timeout time.Duration) *Watcher {
	return NewWatcher(f, WatcherConfig{Interval: interval, Timeout: timeout}, zap.NewNop().Sugar())
}

func TestWatch_StopsWhenAssigned(t *testing.T) {
	helper := "h1"
	var calls int32
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return openSnap(model.BroadcastBroadcasting), nil
		}
		return &model.StatusSnapshot{Status: model.StatusAssigned, BroadcastStatus: model.BroadcastAccepted, AssignedHelperID: &helper}, nil
	})

	out, err := newTestWatcher(f, 5*time.Millisecond, time.Second).Watch(context.Background(), "r1")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Reason != StopStatusChanged || out.Polls != 3 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Last == nil || out.Last.AssignedHelperID == nil || *out.Last.AssignedHelperID != "h1" {
		t.Errorf("last snapshot = %+v", out.Last)
	}
}

func TestWatch_StopsWhenBroadcastExpires(t *testing.T) {
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		return openSnap(model.BroadcastExpired), nil
	})

	out, err := newTestWatcher(f, 5*time.Millisecond, time.Second).Watch(context.Background(), "r1")

	if err != nil || out.Reason != StopBroadcastExpired || out.Polls != 1 {
		t.Errorf("outcome = %+v, err = %v", out, err)
	}
}

func TestWatch_NotFoundStopsImmediately(t *testing.T) {
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		return nil, ErrNotFound
	})

	out, err := newTestWatcher(f, 5*time.Millisecond, time.Second).Watch(context.Background(), "gone")

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if out.Reason != StopNotFound || out.Polls != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestWatch_TimesOutWithBoundedPolls(t *testing.T) {
	interval, timeout := 10*time.Millisecond, 100*time.Millisecond
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		return openSnap(model.BroadcastBroadcasting), nil
	})

	start := time.Now()
	out, err := newTestWatcher(f, interval, timeout).Watch(context.Background(), "r1")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrAcceptanceTimeout) {
		t.Fatalf("err = %v, want ErrAcceptanceTimeout", err)
	}
	if out.Reason != StopTimedOut {
		t.Errorf("reason = %v", out.Reason)
	}
	if max := int(timeout / interval); out.Polls < 1 || out.Polls > max {
		t.Errorf("polls = %d, want 1..%d", out.Polls, max)
	}
	if elapsed < timeout {
		t.Errorf("returned after %v, before the %v timeout", elapsed, timeout)
	}
}

func TestWatch_SlowPollPastDeadlineStartsNoMore(t *testing.T) {
	interval, timeout := 50*time.Millisecond, 200*time.Millisecond
	var calls int32
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return openSnap(model.BroadcastBroadcasting), nil
		}
		<-ctx.Done()
		return nil, ErrTransportTimeout
	})

	out, err := newTestWatcher(f, interval, timeout).Watch(context.Background(), "r1")

	if !errors.Is(err, ErrAcceptanceTimeout) {
		t.Fatalf("err = %v, want ErrAcceptanceTimeout", err)
	}
	if out.Reason != StopTimedOut {
		t.Errorf("reason = %v", out.Reason)
	}
	if n := atomic.LoadInt32(&calls); n != 3 || out.Polls != 3 {
		t.Errorf("fetches = %d, polls = %d, want 3 with none started after the deadline", n, out.Polls)
	}
}

func TestWatch_RetriesTransientFailures(t *testing.T) {
	var calls int32
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return nil, ErrServer
		case 2:
			return nil, ErrTransportTimeout
		}
		return &model.StatusSnapshot{Status: model.StatusCancelled, BroadcastStatus: model.BroadcastExpired}, nil
	})

	out, err := newTestWatcher(f, 5*time.Millisecond, time.Second).Watch(context.Background(), "r1")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Reason != StopStatusChanged || out.Polls != 3 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestWatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		cancel()
		return openSnap(model.BroadcastBroadcasting), nil
	})

	out, err := newTestWatcher(f, time.Hour, 2*time.Hour).Watch(ctx, "r1")

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out.Reason != StopCancelled || out.Polls != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestWatch_PollsNeverOverlap(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()

		time.Sleep(15 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return openSnap(model.BroadcastBroadcasting), nil
	})

	_, err := newTestWatcher(f, 5*time.Millisecond, 80*time.Millisecond).Watch(context.Background(), "r1")

	if !errors.Is(err, ErrAcceptanceTimeout) {
		t.Fatalf("err = %v", err)
	}
	if maxSeen != 1 {
		t.Errorf("max concurrent polls = %d, want 1", maxSeen)
	}
}

func TestWatch_OnSnapshot(t *testing.T) {
	var seen []model.StatusSnapshot
	f := fetchFunc(func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
		if len(seen) == 0 {
			return openSnap(model.BroadcastIdle), nil
		}
		return openSnap(model.BroadcastExpired), nil
	})

	w := NewWatcher(f, WatcherConfig{
		Interval:   time.Millisecond,
		Timeout:    time.Second,
		OnSnapshot: func(s model.StatusSnapshot) { seen = append(seen, s) },
	}, zap.NewNop().Sugar())

	if _, err := w.Watch(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0].BroadcastStatus != model.BroadcastIdle || seen[1].BroadcastStatus != model.BroadcastExpired {
		t.Errorf("seen = %+v", seen)
	}
}

func TestBackOffCappedAtFourIntervals(t *testing.T) {
	w := newTestWatcher(nil, 10*time.Millisecond, time.Second)
	b := w.newBackOff()

	want := []time.Duration{10, 20, 40, 40, 40}
	for i, d := range want {
		if got := b.NextBackOff(); got != d*time.Millisecond {
			t.Errorf("delay %d = %v, want %v", i, got, d*time.Millisecond)
		}
	}
}

func TestNewWatcher_Defaults(t *testing.T) {
	w := NewWatcher(nil, WatcherConfig{}, zap.NewNop().Sugar())
	if w.interval != DefaultInterval || w.timeout != DefaultTimeout {
		t.Errorf("interval=%v timeout=%v", w.interval, w.timeout)
	}
	if int(w.timeout/w.interval) != 60 {
		t.Errorf("default budget = %d polls, want 60", int(w.timeout/w.interval))
	}
}
