// Package httpclient provides the retrying HTTP client shared by every
// outbound request buildwatch makes.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/obentoo/buildwatch/internal/common/logger"
)

// Error variables for HTTP client errors
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have failed
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrRequestTimeout is returned when a request times out
	ErrRequestTimeout = errors.New("request timeout")
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one (default: 3)
	MaxRetries int
	// BaseDelay is the wait before the first retry (default: 1s)
	BaseDelay time.Duration
	// MaxDelay caps every wait, including server supplied Retry-After (default: 4s)
	MaxDelay time.Duration
	// Timeout bounds each individual attempt (default: 30s)
	Timeout time.Duration
}

// DefaultRetryConfig waits 1s, 2s and 4s between attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   4 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// RetryableHTTPClient retries idempotent requests that failed at the network
// level or with a 5xx or 429 status, backing off exponentially between
// attempts.
type RetryableHTTPClient struct {
	client  *http.Client
	config  RetryConfig
	sleep   func(time.Duration)
	headers map[string]string
	log     *logger.Logger

	mu     sync.Mutex
	delays []time.Duration
}

// NewRetryableHTTPClient creates a client with DefaultRetryConfig.
func NewRetryableHTTPClient() *RetryableHTTPClient {
	return NewRetryableHTTPClientWithConfig(DefaultRetryConfig())
}

// NewRetryableHTTPClientWithConfig creates a client with a custom retry configuration.
func NewRetryableHTTPClientWithConfig(config RetryConfig) *RetryableHTTPClient {
	return &RetryableHTTPClient{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		sleep:  time.Sleep,
		log:    logger.Named("http"),
	}
}

// SetHTTPClient replaces the underlying client.
func (c *RetryableHTTPClient) SetHTTPClient(client *http.Client) {
	c.client = client
}

// SetDelayFunc replaces the function that waits between attempts.
func (c *RetryableHTTPClient) SetDelayFunc(fn func(time.Duration)) {
	c.sleep = fn
}

// SetDefaultHeaders sets headers added to every request that does not set them itself.
func (c *RetryableHTTPClient) SetDefaultHeaders(headers map[string]string) {
	c.headers = headers
}

// GetRecordedDelays returns the most recent waits applied, oldest first.
func (c *RetryableHTTPClient) GetRecordedDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// Config returns the retry configuration.
func (c *RetryableHTTPClient) Config() RetryConfig {
	return c.config
}

// Do sends req with retries, using the request's context.
func (c *RetryableHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext sends req with retries. The context is checked before every
// attempt and after every wait. A non-retryable response, including any 4xx
// other than 429, is returned to the caller as is.
func (c *RetryableHTTPClient) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	var (
		lastErr error
		wait    time.Duration
	)
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 0 {
			if wait <= 0 {
				wait = c.calculateDelay(attempt)
			}
			c.record(wait)
			c.log.Debug("retrying %s %s in %s (attempt %d): %v", req.Method, req.URL.Redacted(), wait, attempt+1, lastErr)
			c.sleep(wait)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		resp, retryAfter, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		wait = retryAfter
	}

	return nil, fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// attempt sends one copy of req. It returns an error only when the attempt
// should be retried, along with any wait the server asked for.
func (c *RetryableHTTPClient) attempt(ctx context.Context, req *http.Request) (*http.Response, time.Duration, error) {
	resp, err := c.client.Do(req.Clone(ctx))
	if err != nil {
		if isTimeoutError(err) {
			return nil, 0, fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}
		return nil, 0, err
	}

	if !c.shouldRetry(resp.StatusCode) {
		return resp, 0, nil
	}

	retryAfter := c.retryAfter(resp.Header.Get("Retry-After"))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil, retryAfter, fmt.Errorf("server error: status %d", resp.StatusCode)
}

// Get sends a GET request with retries.
func (c *RetryableHTTPClient) Get(url string) (*http.Response, error) {
	return c.GetWithContext(context.Background(), url)
}

// GetWithContext sends a GET request with retries.
func (c *RetryableHTTPClient) GetWithContext(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.DoWithContext(ctx, req)
}

// maxRecordedDelays bounds the delay log of a long lived client
const maxRecordedDelays = 64

func (c *RetryableHTTPClient) record(d time.Duration) {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	if n := len(c.delays); n > maxRecordedDelays {
		c.delays = append(c.delays[:0], c.delays[n-maxRecordedDelays:]...)
	}
	c.mu.Unlock()
}

// calculateDelay returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (c *RetryableHTTPClient) calculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := c.config.BaseDelay << (attempt - 1)
	if delay > c.config.MaxDelay || delay <= 0 {
		delay = c.config.MaxDelay
	}
	return delay
}

// retryAfter reads a Retry-After header given in seconds, capped at
// MaxDelay. Dates and malformed values are ignored.
func (c *RetryableHTTPClient) retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return min(time.Duration(seconds)*time.Second, c.config.MaxDelay)
}

// shouldRetry reports whether a status is worth another attempt.
func (c *RetryableHTTPClient) shouldRetry(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// isTimeoutError reports whether err is a deadline or network timeout.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
