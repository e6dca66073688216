package pollclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"helparo/internal/model"
)

// DefaultFetchTimeout bounds a single status call.
const DefaultFetchTimeout = 10 * time.Second

var (
	// ErrNotFound means the request id no longer resolves. Polling stops.
	ErrNotFound = errors.New("request not found")

	// ErrServer is a 5xx or otherwise unusable response. Polling retries.
	ErrServer = errors.New("status server error")

	// ErrTransportTimeout is a status call that hit its own timeout. Polling retries.
	ErrTransportTimeout = errors.New("status call timed out")
)

// Fetcher reads one status snapshot.
type Fetcher interface {
	FetchStatus(ctx context.Context, requestID string) (*model.StatusSnapshot, error)
}

// HTTPFetcher calls GET {baseURL}/requests/{id}/status.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher builds a fetcher with a finite per-call timeout. A
// non-positive timeout means DefaultFetchTimeout.
func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) FetchStatus(ctx context.Context, requestID string) (*model.StatusSnapshot, error) {
	endpoint := fmt.Sprintf("%s/requests/%s/status", f.baseURL, url.PathEscape(requestID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportTimeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %s: %s", ErrServer, resp.Status, errorMessage(resp.Body))
	}

	var snap model.StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportTimeout, err)
		}
		return nil, fmt.Errorf("%w: decode status: %v", ErrServer, err)
	}
	return &snap, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorMessage pulls "error" out of a {"error": "..."} body, if present.
func errorMessage(body io.Reader) string {
	var out struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&out); err != nil || out.Error == "" {
		return "no error message"
	}
	return out.Error
}
