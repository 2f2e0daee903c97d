// Package pubdev is the registry client for pub.dev: typed calls onto the
// upstream JSON API, wrapped in a resilience pipeline of circuit breaker,
// retry, and per-attempt timeout.
package pubdev

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/rs/dnscache"

	"github.com/mbilalbenli/pub-dev-mcp/internal/domain"
)

// Defaults for the client's configurable resilience parameters.
const (
	DefaultAttemptTimeout   = 3 * time.Second
	DefaultRetryBaseDelay   = 200 * time.Millisecond
	DefaultMaxRetries       = 3
	DefaultCBWindow         = 30 * time.Second
	DefaultCBMinThroughput  = 5
	DefaultCBFailureRatio   = 0.5
	DefaultCBOpenDuration   = 15 * time.Second
	DefaultUserAgent        = "pub-dev-mcp/1.0"
)

// httpErrorStatus lets the retry loop and the error mapper agree on the
// upstream HTTP status code without re-parsing the error text.
type httpErrorStatus struct {
	status int
	body   string
	err    error
}

func (e *httpErrorStatus) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.status, e.err)
}

func (e *httpErrorStatus) Unwrap() error { return e.err }

// Client is the resilient HTTP client shared by every pub.dev registry
// operation. It is safe for concurrent use: the circuit-breaker table and
// the underlying *http.Client are process-wide singletons.
type Client struct {
	httpClient     *http.Client
	userAgent      string
	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration

	cbWindow        time.Duration
	cbMinThroughput int64
	cbFailureRatio  float64
	cbOpenDuration  time.Duration

	breakersMu sync.RWMutex
	breakers   map[string]*circuit.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.attemptTimeout = d }
}

// WithMaxRetries sets the maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithRetryBaseDelay sets the exponential backoff base delay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithCircuitBreaker overrides the sliding-window failure-ratio breaker
// parameters; the 0.5 ratio threshold is fixed and not exposed here.
func WithCircuitBreaker(window time.Duration, minThroughput int64, openDuration time.Duration) Option {
	return func(c *Client) {
		c.cbWindow = window
		c.cbMinThroughput = minThroughput
		c.cbOpenDuration = openDuration
	}
}

// WithHTTPClient overrides the underlying *http.Client, primarily for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient builds a Client with DNS-cached dialing and the package's
// default resilience parameters, then applies opts.
func NewClient(opts ...Option) *Client {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					var lastErr error
					for _, ip := range ips {
						conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if dialErr == nil {
							return conn, nil
						}
						lastErr = dialErr
					}
					return nil, fmt.Errorf("failed to dial any resolved IP: %w", lastErr)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:       DefaultUserAgent,
		maxRetries:      DefaultMaxRetries,
		baseDelay:       DefaultRetryBaseDelay,
		attemptTimeout:  DefaultAttemptTimeout,
		cbWindow:        DefaultCBWindow,
		cbMinThroughput: DefaultCBMinThroughput,
		cbFailureRatio:  DefaultCBFailureRatio,
		cbOpenDuration:  DefaultCBOpenDuration,
		breakers:        make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getBreaker returns or lazily creates the circuit breaker for host, using
// double-checked locking so concurrent first-callers don't race to build
// duplicate breakers.
func (c *Client) getBreaker(host string) *circuit.Breaker {
	c.breakersMu.RLock()
	b, ok := c.breakers[host]
	c.breakersMu.RUnlock()
	if ok {
		return b
	}

	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}

	cbBackoff := backoff.NewConstantBackOff(c.cbOpenDuration)

	b = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:       cbBackoff,
		ShouldTrip:    circuit.RateTripFunc(c.cbFailureRatio, c.cbMinThroughput),
		WindowTime:    c.cbWindow,
		WindowBuckets: 10,
	})
	c.breakers[host] = b
	return b
}

// GetJSON performs a resilient GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewError(domain.KindDecodeFailed, fmt.Sprintf("decoding response from %s", rawURL), err)
	}
	return nil
}

// GetBody performs a resilient GET and returns the raw response body.
func (c *Client) GetBody(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, rawURL)
}

// get runs the full pipeline: circuit breaker (outer) -> retry -> per-attempt
// timeout (inner).
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	host := hostOf(rawURL)
	breaker := c.getBreaker(host)

	if !breaker.Ready() {
		return nil, domain.NewError(domain.KindUpstreamUnavailable, fmt.Sprintf("circuit open for %s", host), nil)
	}

	var body []byte
	callErr := breaker.Call(func() error {
		b, err := c.retryingGet(ctx, rawURL)
		body = b
		return err
	}, 0)

	if callErr != nil {
		return nil, classifyPipelineError(callErr, host)
	}
	return body, nil
}

// retryingGet is the middle stage of the pipeline: up to maxRetries+1
// attempts with exponential backoff and jitter drawn from crypto/rand.
func (c *Client) retryingGet(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	maxDelay := c.baseDelay << uint(c.maxRetries)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << uint(attempt-1)
			jitter, err := cryptoJitter(c.baseDelay)
			if err == nil {
				delay += jitter
			}
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-ctx.Done():
				return nil, domain.NewError(domain.KindCancelled, "retry cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := c.attempt(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// attempt performs exactly one HTTP round trip bounded by the per-attempt
// timeout, the pipeline's innermost stage.
func (c *Client) attempt(ctx context.Context, rawURL string) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "building request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			// this attempt's own timeout fired, not the caller's context
			return nil, domain.NewError(domain.KindUpstreamUnavailable, fmt.Sprintf("attempt to %s timed out", rawURL), err)
		}
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.KindCancelled, "request cancelled", ctx.Err())
		}
		return nil, domain.NewError(domain.KindUpstreamUnavailable, fmt.Sprintf("connecting to %s", rawURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, domain.NewError(domain.KindUpstreamUnavailable, "reading response body", err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	return nil, &httpErrorStatus{status: resp.StatusCode, body: string(body), err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
}

// isRetryable is the retry predicate: transient transport errors, 408, 429,
// and any 5xx; never decode errors or canceled contexts; never other 4xx.
func isRetryable(err error) bool {
	var de *domain.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.KindCancelled, domain.KindDecodeFailed, domain.KindInvalidInput:
			return false
		case domain.KindUpstreamUnavailable:
			return true
		}
	}
	var httpErr *httpErrorStatus
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.status == http.StatusRequestTimeout, httpErr.status == http.StatusTooManyRequests:
			return true
		case httpErr.status >= 500:
			return true
		default:
			return false
		}
	}
	return false
}

// classifyPipelineError maps the final pipeline outcome (after retries and
// the circuit breaker) onto the domain error taxonomy.
func classifyPipelineError(err error, host string) error {
	var httpErr *httpErrorStatus
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.status == http.StatusNotFound:
			return domain.NewError(domain.KindUpstreamNotFound, fmt.Sprintf("%s: not found", host), err)
		case httpErr.status == http.StatusTooManyRequests:
			return domain.NewError(domain.KindUpstreamRateLimited, fmt.Sprintf("%s: rate limited", host), err)
		case httpErr.status == http.StatusRequestTimeout, httpErr.status >= 500:
			return domain.NewError(domain.KindUpstreamUnavailable, fmt.Sprintf("%s: upstream exhausted retries (last status %d)", host, httpErr.status), err)
		default:
			return domain.NewError(domain.KindInvalidInput, fmt.Sprintf("%s: unexpected status %d", host, httpErr.status), err)
		}
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	return domain.NewError(domain.KindUpstreamUnavailable, fmt.Sprintf("%s: circuit breaker rejected call", host), err)
}

// cryptoJitter draws a duration uniformly from [0, base) using
// crypto/rand rather than math/rand, so retry timing can't be predicted by
// an observer racing the same upstream.
func cryptoJitter(base time.Duration) (time.Duration, error) {
	if base <= 0 {
		return 0, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(base)))
	if err != nil {
		return 0, err
	}
	return time.Duration(n.Int64()), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

