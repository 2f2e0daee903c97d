package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

type fakeDispatcher struct {
	response []byte
	ok       bool
}

func (f *fakeDispatcher) HandleMessage(ctx context.Context, body []byte) ([]byte, bool) {
	return f.response, f.ok
}

type fakeProbe struct {
	err error
}

func (f *fakeProbe) ProbeSearch(ctx context.Context) error { return f.err }

func TestRPCHandler_ReturnsDispatcherResponse(t *testing.T) {
	d := &fakeDispatcher{response: []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`), ok: true}
	router := NewRouter(d, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != string(d.response) {
		t.Fatalf("expected body %s, got %s", d.response, rec.Body.String())
	}
}

func TestRPCHandler_NotificationReturns204(t *testing.T) {
	d := &fakeDispatcher{response: nil, ok: false}
	router := NewRouter(d, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(`{"jsonrpc":"2.0","method":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRPCHandler_EmptyBodyReturns400(t *testing.T) {
	d := &fakeDispatcher{}
	router := NewRouter(d, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthLive_Always200(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthReady_200WhenProbeSucceeds(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, &fakeProbe{err: nil}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthReady_503WhenProbeFails(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, &fakeProbe{err: domain.NewError(domain.KindUpstreamUnavailable, "down", nil)}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRequestIDMiddleware_GeneratesIDWhenAbsent(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	id := rec.Header().Get(requestIDHeader)
	if id == "" {
		t.Fatal("expected a generated X-Request-Id header")
	}
}

func TestRequestIDMiddleware_ReusesCallerSuppliedID(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(requestIDHeader, "caller-id-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "caller-id-123" {
		t.Fatalf("expected caller-supplied id to be echoed, got %q", got)
	}
}

func TestHealthReady_200DegradedOn429(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, &fakeProbe{err: domain.NewError(domain.KindUpstreamRateLimited, "rate limited", nil)}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 (degraded), got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "degraded") {
		t.Fatalf("expected degraded indicator in body, got %s", rec.Body.String())
	}
}
