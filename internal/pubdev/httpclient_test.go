package pubdev

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

func newTestClient(opts ...Option) *Client {
	base := []Option{
		WithTimeout(200 * time.Millisecond),
		WithRetryBaseDelay(5 * time.Millisecond),
		WithMaxRetries(2),
		WithCircuitBreaker(time.Minute, 5, 50*time.Millisecond),
	}
	return NewClient(append(base, opts...)...)
}

func TestGetJSON_DecodesSuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"http"}`))
	}))
	defer srv.Close()

	c := newTestClient()
	var out struct {
		Name string `json:"name"`
	}
	if err := c.GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "http" {
		t.Fatalf("expected name=http, got %q", out.Name)
	}
}

func TestGetJSON_404MapsToUpstreamNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient()
	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
	if domain.KindOf(err) != domain.KindUpstreamNotFound {
		t.Fatalf("expected KindUpstreamNotFound, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestGetJSON_429MapsToUpstreamRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(0))
	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
	if domain.KindOf(err) != domain.KindUpstreamRateLimited {
		t.Fatalf("expected KindUpstreamRateLimited, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestGetJSON_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(3))
	if err := c.GetJSON(context.Background(), srv.URL, &struct{}{}); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 calls (2 failures + 1 success), got %d", got)
	}
}

func TestGetJSON_DoesNotRetryOn400(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(3))
	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one call for a non-retryable status, got %d", got)
	}
}

func TestGetJSON_MalformedBodyMapsToDecodeFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient()
	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
	if domain.KindOf(err) != domain.KindDecodeFailed {
		t.Fatalf("expected KindDecodeFailed, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestGetJSON_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(0), WithCircuitBreaker(time.Minute, 2, time.Minute))

	for i := 0; i < 5; i++ {
		_ = c.GetJSON(context.Background(), srv.URL, &struct{}{})
	}

	err := c.GetJSON(context.Background(), srv.URL, &struct{}{})
	if domain.KindOf(err) != domain.KindUpstreamUnavailable {
		t.Fatalf("expected the breaker to keep reporting KindUpstreamUnavailable, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestGetJSON_RespectsCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(WithTimeout(time.Second), WithMaxRetries(0))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.GetJSON(ctx, srv.URL, &struct{}{})
	if err == nil {
		t.Fatal("expected an error from caller cancellation")
	}
}

func TestGetJSON_CancellationDuringBackoffReturnsKindCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(WithMaxRetries(2), WithRetryBaseDelay(200*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.GetJSON(ctx, srv.URL, &struct{}{})
	if domain.KindOf(err) != domain.KindCancelled {
		t.Fatalf("expected KindCancelled from mid-backoff cancellation, got %v (%v)", domain.KindOf(err), err)
	}
}
