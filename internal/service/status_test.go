package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"helparo/internal/metrics"
	"helparo/internal/model"
)

func TestStatusService_MalformedIDIsNotFound(t *testing.T) {
	repo := &mockRequestRepo{}
	svc := NewStatusService(repo, nil, &mockRecorder{}, testLog)

	for _, id := range []string{"", "abc", "1234"} {
		_, err := svc.GetStatus(context.Background(), id)
		if !errors.Is(err, model.ErrRequestNotFound) {
			t.Errorf("GetStatus(%q) err = %v, want ErrRequestNotFound", id, err)
		}
	}
	if repo.getStatusCalls != 0 {
		t.Errorf("malformed ids should not reach the store, got %d calls", repo.getStatusCalls)
	}
}

func TestStatusService_StoreFailureIsNotNotFound(t *testing.T) {
	storeErr := model.NewStoreError("get request status", errors.New("connection reset"))
	repo := &mockRequestRepo{
		getStatusFn: func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
			return nil, storeErr
		},
	}
	rec := &mockRecorder{}
	svc := NewStatusService(repo, nil, rec, testLog)

	_, err := svc.GetStatus(context.Background(), uuid.NewString())
	if errors.Is(err, model.ErrRequestNotFound) {
		t.Fatal("store failure must not be reported as not found")
	}
	var se *model.StoreError
	if !errors.As(err, &se) {
		t.Errorf("err = %v, want StoreError", err)
	}
	if rec.get(metrics.MetricStatusPolls) != 1 {
		t.Errorf("poll counter = %d, want 1", rec.get(metrics.MetricStatusPolls))
	}
}

func TestStatusService_Idempotent(t *testing.T) {
	helper := uuid.NewString()
	repo := &mockRequestRepo{
		getStatusFn: func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
			return &model.StatusSnapshot{Status: model.StatusAssigned, BroadcastStatus: model.BroadcastAccepted, AssignedHelperID: &helper}, nil
		},
	}
	svc := NewStatusService(repo, nil, &mockRecorder{}, testLog)
	id := uuid.NewString()

	first, err := svc.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(*second) {
		t.Errorf("polls differ: %+v vs %+v", first, second)
	}
}

func TestStatusService_CacheHitSkipsStore(t *testing.T) {
	repo := &mockRequestRepo{}
	sc := &mockStatusCache{
		getFn: func(ctx context.Context, id string) (*model.StatusSnapshot, bool, error) {
			return &model.StatusSnapshot{Status: model.StatusOpen, BroadcastStatus: model.BroadcastBroadcasting}, true, nil
		},
	}
	svc := NewStatusService(repo, sc, &mockRecorder{}, testLog)

	snap, err := svc.GetStatus(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if snap.BroadcastStatus != model.BroadcastBroadcasting {
		t.Errorf("got %+v", snap)
	}
	if repo.getStatusCalls != 0 {
		t.Errorf("cache hit should not query the store")
	}
}

func TestStatusService_CacheErrorFallsThrough(t *testing.T) {
	repo := &mockRequestRepo{
		getStatusFn: func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
			return &model.StatusSnapshot{Status: model.StatusOpen, BroadcastStatus: model.BroadcastIdle}, nil
		},
	}
	sc := &mockStatusCache{
		getFn: func(ctx context.Context, id string) (*model.StatusSnapshot, bool, error) {
			return nil, false, errors.New("redis down")
		},
	}
	svc := NewStatusService(repo, sc, &mockRecorder{}, testLog)
	id := uuid.NewString()

	snap, err := svc.GetStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("cache failure should fall through, got %v", err)
	}
	if snap.Status != model.StatusOpen {
		t.Errorf("got %+v", snap)
	}
	if _, ok := sc.sets[id]; !ok {
		t.Error("store result should be written back to the cache")
	}
}

func TestStatusService_CoalescesConcurrentPolls(t *testing.T) {
	release := make(chan struct{})
	repo := &mockRequestRepo{
		getStatusFn: func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
			<-release
			return &model.StatusSnapshot{Status: model.StatusOpen, BroadcastStatus: model.BroadcastBroadcasting}, nil
		},
	}
	svc := NewStatusService(repo, nil, &mockRecorder{}, testLog)
	id := uuid.NewString()

	const pollers = 10
	var wg sync.WaitGroup
	errs := make(chan error, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetStatus(context.Background(), id)
			errs <- err
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
	}
	if repo.getStatusCalls != 1 {
		t.Errorf("store queried %d times, want 1 for coalesced polls", repo.getStatusCalls)
	}
}

func TestStatusService_SharedLookupOutlivesFirstCaller(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	repo := &mockRequestRepo{
		getStatusFn: func(ctx context.Context, id string) (*model.StatusSnapshot, error) {
			close(entered)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, model.NewStoreError("get request status", err)
			}
			return &model.StatusSnapshot{Status: model.StatusOpen, BroadcastStatus: model.BroadcastBroadcasting}, nil
		},
	}
	svc := NewStatusService(repo, nil, &mockRecorder{}, testLog)
	id := uuid.NewString()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetStatus(firstCtx, id)
		firstErr <- err
	}()
	<-entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := svc.GetStatus(context.Background(), id)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	close(release)

	if err := <-secondErr; err != nil {
		t.Errorf("coalesced poll failed after first caller left: %v", err)
	}
	if err := <-firstErr; err != nil {
		t.Errorf("first poll err = %v, want the shared result", err)
	}
}
