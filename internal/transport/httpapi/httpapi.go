// Package httpapi implements the HTTP transport: a single POST /rpc route
// plus liveness and readiness probes, routed with go-chi/chi and wrapped in
// rs/cors.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

const requestIDHeader = "X-Request-Id"

// Dispatcher is the subset of rpcserver.Server the transport needs.
type Dispatcher interface {
	HandleMessage(ctx context.Context, body []byte) ([]byte, bool)
}

// ReadinessProbe reports whether the upstream is reachable. It returns nil
// when healthy, an error carrying "429" behavior surfaced via IsRateLimited
// for the degraded case, and any other error for a hard failure.
type ReadinessProbe interface {
	ProbeSearch(ctx context.Context) error
}

// RateLimitedError types can report whether they represent an HTTP 429,
// which the readiness probe treats as "degraded" rather than "down".
type RateLimitedError interface {
	IsRateLimited() bool
}

// NewRouter builds the chi router for the three HTTP endpoints.
func NewRouter(dispatcher Dispatcher, probe ReadinessProbe, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	r.Use(c.Handler)

	r.Post("/rpc", rpcHandler(dispatcher))
	r.Get("/health/live", liveHandler)
	r.Get("/health/ready", readyHandler(probe))

	return r
}

// requestIDMiddleware stamps every response with a correlation id, reusing
// one the caller already supplied rather than minting a new one, so a
// client-side trace and this server's logs line up on the same value.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func rpcHandler(dispatcher Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		out, ok := dispatcher.HandleMessage(r.Context(), body)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

func liveHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"live"}`))
}

func readyHandler(probe ReadinessProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if probe == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}

		err := probe.ProbeSearch(r.Context())
		if err == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ready"}`))
			return
		}

		if rl, ok := err.(RateLimitedError); ok && rl.IsRateLimited() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"degraded","reason":"upstream rate limited"}`))
			return
		}

		w.WriteHeader(http.StatusServiceUnavailable)
		body, _ := json.Marshal(map[string]string{"status": "down", "reason": err.Error()})
		_, _ = w.Write(body)
	}
}
