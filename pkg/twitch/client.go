package twitch

// TWITCH COMPLIANCE:
// Uses ONLY the official Helix API (no scraping, no unofficial endpoints).
// Respects the 800 requests/minute rate limit via a token bucket limiter.
// Authentication is delegated to an injected token.Provider — this
// package never persists or refreshes credentials itself.
// See: https://dev.twitch.tv/docs/api/reference

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cliparino/cliparino/internal/backoff"
	"github.com/cliparino/cliparino/internal/token"
	"github.com/cliparino/cliparino/pkg/metrics"
	"github.com/cliparino/cliparino/pkg/utils"
)

// baseURL is the official Twitch Helix API endpoint.
const baseURL = "https://api.twitch.tv/helix"

// Client wraps the Twitch Helix API with authentication, rate limiting,
// caching, and a circuit breaker over 5xx/transport failures.
type Client struct {
	clientID       string
	httpClient     *http.Client
	cache          *memoryCache
	tokens         token.Provider
	rateLimiter    *rate.Limiter
	circuitBreaker *CircuitBreaker
	logger         *utils.StructuredLogger
}

// CircuitBreaker implements a closed/open/half-open breaker over Helix
// availability.
type CircuitBreaker struct {
	mu           sync.RWMutex
	failureCount int
	lastFailure  time.Time
	state        string // "closed", "open", "half-open"
	failureLimit int
	timeout      time.Duration
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(failureLimit int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{state: "closed", failureLimit: failureLimit, timeout: timeout}
}

// Allow reports whether a request should proceed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "open" {
		if time.Since(cb.lastFailure) > cb.timeout {
			cb.state = "half-open"
			return nil
		}
		return &CircuitBreakerError{Message: "circuit breaker is open, Helix unavailable"}
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "half-open" {
		cb.state = "closed"
	}
	cb.failureCount = 0
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailure = time.Now()

	if cb.failureCount >= cb.failureLimit {
		cb.state = "open"
	}
}

// NewClient constructs a Helix client. clientID is the app's registered
// Client-Id header value; tokens supplies and refreshes bearer tokens.
func NewClient(clientID string, tokens token.Provider, logger *utils.StructuredLogger) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("twitch: client ID is required")
	}
	return &Client{
		clientID:       clientID,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		cache:          newMemoryCache(),
		tokens:         tokens,
		rateLimiter:    newRateLimiter(),
		circuitBreaker: NewCircuitBreaker(5, 30*time.Second),
		logger:         logger.With("twitch"),
	}, nil
}

const (
	maxRetries  = 3
	retryDelay  = time.Second
)

// doRequest performs an authenticated Helix call with rate limiting,
// a single 401-triggered token refresh and retry, exponential-backoff
// retry on 5xx/transport failures, and exact Retry-After honoring on
// 429. The caller owns closing the returned response body. operation
// labels the HelixRequestDuration metric (e.g. "get_clips").
func (c *Client) doRequest(ctx context.Context, operation, method, endpoint string, params url.Values, body []byte) (*http.Response, error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.HelixRequestDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	}()

	if err := c.circuitBreaker.Allow(); err != nil {
		return nil, err
	}

	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &AuthError{Message: "no token available", Err: err}
	}

	if err := waitForToken(ctx, c.rateLimiter); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	reqURL := baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	c.logger.Debug("helix request", map[string]interface{}{"operation": operation, "method": method, "endpoint": endpoint})

	refreshedOnce := false
	var resp *http.Response

	for attempt := 0; attempt < maxRetries; attempt++ {
		var req *http.Request
		var reqErr error
		if body != nil {
			req, reqErr = http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
		} else {
			req, reqErr = http.NewRequestWithContext(ctx, method, reqURL, nil)
		}
		if reqErr != nil {
			return nil, fmt.Errorf("twitch: build request: %w", reqErr)
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Client-Id", c.clientID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			c.circuitBreaker.RecordFailure()
			if attempt < maxRetries-1 {
				time.Sleep(backoff.Fast.Delay(attempt))
				continue
			}
			return nil, fmt.Errorf("twitch: request failed after %d attempts: %w", maxRetries, err)
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			c.circuitBreaker.RecordSuccess()
			outcome = "success"
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			if refreshedOnce {
				c.circuitBreaker.RecordFailure()
				return nil, &AuthError{Message: "authentication required"}
			}
			refreshedOnce = true
			if err := c.tokens.Refresh(ctx); err != nil {
				c.circuitBreaker.RecordFailure()
				return nil, &AuthError{Message: "token refresh failed", Err: err}
			}
			bearer, err = c.tokens.Token(ctx)
			if err != nil {
				c.circuitBreaker.RecordFailure()
				return nil, &AuthError{Message: "no token after refresh", Err: err}
			}
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Ratelimit-Reset"))
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
			resp.Body.Close()
			if attempt < maxRetries-1 {
				select {
				case <-time.After(retryAfter):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			return nil, &RateLimitError{Message: "rate limited by Twitch", RetryAfter: int(retryAfter.Seconds())}

		case resp.StatusCode >= 500:
			resp.Body.Close()
			c.circuitBreaker.RecordFailure()
			if attempt < maxRetries-1 {
				time.Sleep(backoff.Fast.Delay(attempt))
				continue
			}
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "Helix service unavailable"}

		default:
			c.circuitBreaker.RecordSuccess()
			outcome = "success"
			return resp, nil
		}
	}

	return resp, fmt.Errorf("twitch: request failed after %d attempts", maxRetries)
}

var retryAfterSeconds = regexp.MustCompile(`^\d+$`)

// parseRetryAfter reads Twitch's Ratelimit-Reset header (a unix
// timestamp) and returns the remaining duration, defaulting to 1s if
// the header is absent or malformed.
func parseRetryAfter(header string) time.Duration {
	if header == "" || !retryAfterSeconds.MatchString(header) {
		return time.Second
	}
	resetUnix, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return time.Second
	}
	d := time.Until(time.Unix(resetUnix, 0))
	if d <= 0 {
		return time.Second
	}
	return d
}

// jitteredBackoff returns an exponentially growing delay with
// decorrelated jitter: delay/2 + random(0, delay/2), using crypto/rand
// so concurrent retries don't all wake at once.
func jitteredBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if attempt > 62 {
		attempt = 62
	}
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay {
		delay = maxDelay
	}

	half := delay / 2
	if half <= 0 {
		return delay * 3 / 4
	}

	jitterBig, err := rand.Int(rand.Reader, big.NewInt(int64(half)))
	if err != nil {
		return delay * 3 / 4
	}
	return half + time.Duration(jitterBig.Int64())
}
