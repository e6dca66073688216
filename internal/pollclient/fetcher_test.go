package pollclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"helparo/internal/model"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/requests/ok/status":
			_, _ = w.Write([]byte(`{"status":"assigned","broadcast_status":"accepted","assigned_helper_id":"h1"}`))
		case "/requests/gone/status":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Not found"}`))
		case "/requests/broken/status":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Failed"}`))
		case "/requests/slow/status":
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", 50*time.Millisecond)
	ctx := context.Background()

	snap, err := f.FetchStatus(ctx, "ok")
	if err != nil {
		t.Fatalf("ok: %v", err)
	}
	if snap.Status != model.StatusAssigned || snap.AssignedHelperID == nil || *snap.AssignedHelperID != "h1" {
		t.Errorf("snapshot = %+v", snap)
	}

	if _, err := f.FetchStatus(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("gone: err = %v, want ErrNotFound", err)
	}

	_, err = f.FetchStatus(ctx, "broken")
	if !errors.Is(err, ErrServer) {
		t.Errorf("broken: err = %v, want ErrServer", err)
	}
	if err != nil && !strings.Contains(err.Error(), "Failed") {
		t.Errorf("broken: error should carry server message, got %v", err)
	}

	_, err = f.FetchStatus(ctx, "slow")
	if !errors.Is(err, ErrTransportTimeout) {
		t.Errorf("slow: err = %v, want ErrTransportTimeout", err)
	}
	if errors.Is(err, ErrServer) || errors.Is(err, ErrNotFound) {
		t.Errorf("slow: timeout must be distinguishable, got %v", err)
	}
}

func TestHTTPFetcher_DefaultTimeout(t *testing.T) {
	f := NewHTTPFetcher("http://localhost", 0)
	if f.client.Timeout != DefaultFetchTimeout {
		t.Errorf("timeout = %v, want %v", f.client.Timeout, DefaultFetchTimeout)
	}
}
