package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRetryExponentialBackoff(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("Retry delays grow with every failed attempt", prop.ForAll(
		func(numFailures int) bool {
			var requestCount int32
			var recorded []time.Duration

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if int(atomic.AddInt32(&requestCount, 1)) <= numFailures {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := NewRetryableHTTPClient()
			client.SetHTTPClient(server.Client())
			client.SetDelayFunc(func(d time.Duration) { recorded = append(recorded, d) })

			resp, err := client.Get(server.URL)
			if err != nil {
				t.Logf("Request failed: %v", err)
				return false
			}
			resp.Body.Close()

			if len(recorded) != numFailures {
				t.Logf("Expected %d delays, got %d", numFailures, len(recorded))
				return false
			}
			for i := 1; i < len(recorded); i++ {
				if recorded[i] <= recorded[i-1] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}

func TestDelayValuesDoubleUpToMax(t *testing.T) {
	client := NewRetryableHTTPClient()

	expected := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for attempt, want := range expected {
		if got := client.calculateDelay(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestNewRetryableHTTPClientDefaults(t *testing.T) {
	config := NewRetryableHTTPClient().Config()
	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}
	if config.BaseDelay != time.Second {
		t.Errorf("Expected BaseDelay=1s, got %v", config.BaseDelay)
	}
	if config.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout=30s, got %v", config.Timeout)
	}
}

func TestSuccessOnFirstAttemptRecordsNoDelay(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDelayFunc(func(time.Duration) {})

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()

	if n := atomic.LoadInt32(&requestCount); n != 1 {
		t.Errorf("Expected 1 request, got %d", n)
	}
	if len(client.GetRecordedDelays()) != 0 {
		t.Errorf("Expected no recorded delays, got %v", client.GetRecordedDelays())
	}
}

func TestMaxRetriesExceeded(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDelayFunc(func(time.Duration) {})

	_, err := client.Get(server.URL)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("Expected ErrMaxRetriesExceeded, got %v", err)
	}
	if n := atomic.LoadInt32(&requestCount); n != 4 {
		t.Errorf("Expected 4 requests (1 + 3 retries), got %d", n)
	}
	if len(client.GetRecordedDelays()) != 3 {
		t.Errorf("Expected 3 recorded delays, got %d", len(client.GetRecordedDelays()))
	}
}

func TestRecordedDelaysAreBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDelayFunc(func(time.Duration) {})

	// 30 failed requests with 3 retries each apply 90 waits
	for i := 0; i < 30; i++ {
		if _, err := client.Get(server.URL); !errors.Is(err, ErrMaxRetriesExceeded) {
			t.Fatalf("Expected ErrMaxRetriesExceeded, got %v", err)
		}
	}

	delays := client.GetRecordedDelays()
	if len(delays) != maxRecordedDelays {
		t.Fatalf("Expected %d recorded delays, got %d", maxRecordedDelays, len(delays))
	}
	if last := delays[len(delays)-1]; last != 4*time.Second {
		t.Errorf("Expected the newest delay to be kept (4s), got %v", last)
	}
}

func TestTooManyRequestsIsRetried(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requestCount, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDelayFunc(func(time.Duration) {})

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()
	if n := atomic.LoadInt32(&requestCount); n != 2 {
		t.Errorf("Expected 2 requests, got %d", n)
	}
}

func TestNoRetryOn4xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var requestCount int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&requestCount, 1)
				w.WriteHeader(status)
			}))
			defer server.Close()

			client := NewRetryableHTTPClient()
			client.SetHTTPClient(server.Client())
			client.SetDelayFunc(func(time.Duration) {})

			resp, err := client.Get(server.URL)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != status {
				t.Errorf("Expected status %d, got %d", status, resp.StatusCode)
			}
			if n := atomic.LoadInt32(&requestCount); n != 1 {
				t.Errorf("Expected 1 request, got %d", n)
			}
		})
	}
}

func TestDefaultHeadersDoNotOverrideRequest(t *testing.T) {
	var gotAgent, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
	}))
	defer server.Close()

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDefaultHeaders(map[string]string{
		"User-Agent": "buildwatch/test",
		"Accept":     "application/json",
	})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("Accept", "text/plain")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotAgent != "buildwatch/test" {
		t.Errorf("Expected default User-Agent, got %q", gotAgent)
	}
	if gotAccept != "text/plain" {
		t.Errorf("Request header should win over default, got %q", gotAccept)
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDelayFunc(func(time.Duration) { cancel() })

	_, err := client.GetWithContext(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if n := atomic.LoadInt32(&requestCount); n != 1 {
		t.Errorf("Expected 1 request before cancellation, got %d", n)
	}
}

func TestRetryAfterIsHonouredUpToMaxDelay(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"2", 2 * time.Second},
		{"120", 4 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", time.Second},
		{"", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			var requestCount int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&requestCount, 1) == 1 {
					if tt.header != "" {
						w.Header().Set("Retry-After", tt.header)
					}
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := NewRetryableHTTPClient()
			client.SetHTTPClient(server.Client())
			client.SetDelayFunc(func(time.Duration) {})

			resp, err := client.Get(server.URL)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			resp.Body.Close()

			delays := client.GetRecordedDelays()
			if len(delays) != 1 || delays[0] != tt.want {
				t.Errorf("Expected a single %v delay, got %v", tt.want, delays)
			}
		})
	}
}
