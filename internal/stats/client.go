package stats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/obentoo/buildwatch/internal/common/httpclient"
	"github.com/obentoo/buildwatch/internal/common/logger"
	"github.com/obentoo/buildwatch/internal/remote"
)

// ErrRemoteRequest wraps every failed review page request
var ErrRemoteRequest = errors.New("review request failed")

// PageSize is the number of reviews requested per page
const PageSize = 100

// ReviewPage is one page of the review listing
type ReviewPage struct {
	Reviews []Review `json:"reviews"`
	Cursor  string   `json:"cursor"`
}

// Review is a single review; only the author's playtime is used
type Review struct {
	Author Author `json:"author"`
}

// Author describes the reviewer
type Author struct {
	// PlaytimeForever is the reviewer's total playtime in minutes
	PlaytimeForever int64 `json:"playtime_forever"`
}

// ClientOption configures a ReviewClient
type ClientOption func(*ReviewClient)

// WithRateLimit paces page requests to rps per second with the given burst
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *ReviewClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreakerTimeout sets how long the breaker stays open before probing again
func WithBreakerTimeout(d time.Duration) ClientOption {
	return func(c *ReviewClient) {
		c.breakerTimeout = d
	}
}

// WithClientLogger sets the client logger
func WithClientLogger(l *logger.Logger) ClientOption {
	return func(c *ReviewClient) {
		c.log = l
	}
}

// ReviewClient fetches review pages. Requests are paced by a token bucket
// and guarded by a circuit breaker that opens after consecutive failures.
type ReviewClient struct {
	baseURL        string
	http           *httpclient.RetryableHTTPClient
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker[*ReviewPage]
	breakerTimeout time.Duration
	log            *logger.Logger
}

// breakerTrips is the number of consecutive failures that opens the breaker
const breakerTrips = 3

// NewReviewClient creates a client for the review endpoint at baseURL
func NewReviewClient(baseURL string, client *httpclient.RetryableHTTPClient, opts ...ClientOption) *ReviewClient {
	if client == nil {
		client = httpclient.NewRetryableHTTPClient()
	}
	c := &ReviewClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           client,
		limiter:        rate.NewLimiter(rate.Limit(2), 1),
		breakerTimeout: 30 * time.Second,
		log:            logger.Named("reviews"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*ReviewPage](gobreaker.Settings{
		Name:        "reviews",
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Debug("breaker %s: %s -> %s", name, from, to)
		},
	})
	return c
}

// PageURL builds the listing URL for id. The cursor is omitted when empty.
func (c *ReviewClient) PageURL(id remote.AppID, cursor string) string {
	u := fmt.Sprintf("%s/appreviews/%s?json=1&filter=recent&num_per_page=%d&language=all&purchase_type=all&filter_offtopic_activity=0",
		c.baseURL, id, PageSize)
	if cursor != "" {
		u += "&cursor=" + url.QueryEscape(cursor)
	}
	return u
}

// Page fetches one page of reviews
func (c *ReviewClient) Page(ctx context.Context, id remote.AppID, cursor string) (*ReviewPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	page, err := c.breaker.Execute(func() (*ReviewPage, error) {
		return c.fetch(ctx, id, cursor)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrRemoteRequest, err)
		}
		return nil, err
	}
	return page, nil
}

func (c *ReviewClient) fetch(ctx context.Context, id remote.AppID, cursor string) (*ReviewPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(id, cursor), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteRequest, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("Failed to get reviews page %q for %s: %s", cursor, id, resp.Status)
		return nil, fmt.Errorf("%w: status %d", ErrRemoteRequest, resp.StatusCode)
	}

	var page ReviewPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		c.log.Error("Failed to decode reviews page for %s: %v", id, err)
		return nil, fmt.Errorf("%w: %v", ErrRemoteRequest, err)
	}
	return &page, nil
}
