package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quotewatch/internal/config"
	"quotewatch/internal/metrics"
	"quotewatch/internal/poller"
	"quotewatch/internal/testutil"
)

// lockedBuffer collects console output written by the consumer goroutine
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// yahooStub serves the cookie, crumb and quote endpoints
type yahooStub struct {
	cookieCalls atomic.Int32
	crumbCalls  atomic.Int32
	quoteCalls  atomic.Int32

	// cookieFailures answers the first N cookie requests with 429
	cookieFailures int32
}

func (s *yahooStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cookie", func(w http.ResponseWriter, r *http.Request) {
		if s.cookieCalls.Add(1) <= s.cookieFailures {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Set-Cookie", "B=abc123; Path=/; Domain=.yahoo.com")
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/crumb", func(w http.ResponseWriter, r *http.Request) {
		s.crumbCalls.Add(1)
		if !strings.Contains(r.Header.Get("Cookie"), "B=abc123") {
			t.Errorf("crumb request cookie = %q", r.Header.Get("Cookie"))
		}
		w.Write([]byte("xyzCRUMB"))
	})
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		s.quoteCalls.Add(1)
		q := r.URL.Query()
		if q.Get("crumb") != "xyzCRUMB" {
			t.Errorf("quote crumb = %q, want xyzCRUMB", q.Get("crumb"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testutil.QuoteJSON(q.Get("symbols"), "34125.67")))
	})
	return mux
}

func testConfig(base string) *config.Config {
	return &config.Config{
		CookieURL:      base + "/cookie",
		CrumbURL:       base + "/crumb",
		QuoteURL:       base + "/quote",
		Symbol:         "^DJI",
		UserAgent:      "quotewatch-test",
		RequestTimeout: 5 * time.Second,
		LogLevel:       "info",
	}
}

// fastSleep stands in for real delays so several cycles fit in a test
func fastSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

func waitForLines(t *testing.T, out *lockedBuffer, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for strings.Count(out.String(), "\n") < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d lines, got %q", n, out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestIntegration_Pipeline runs the wired pipeline against stub endpoints
func TestIntegration_Pipeline(t *testing.T) {
	stub := &yahooStub{}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	out := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, testConfig(server.URL), out, logger,
			poller.WithSleep(fastSleep), poller.WithRetrySleep(fastSleep))
	}()

	waitForLines(t, out, 3)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not stop after cancellation")
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	for _, line := range lines {
		if !strings.HasPrefix(line, "^DJI: $34125.67 (t+") {
			t.Errorf("unexpected line %q", line)
		}
	}

	// Credentials are fetched once and reused by every cycle
	if got := stub.cookieCalls.Load(); got != 1 {
		t.Errorf("cookie calls = %d, want 1", got)
	}
	if got := stub.crumbCalls.Load(); got != 1 {
		t.Errorf("crumb calls = %d, want 1", got)
	}
	if got := stub.quoteCalls.Load(); got < 3 {
		t.Errorf("quote calls = %d, want at least 3", got)
	}
}

// TestIntegration_RateLimitedCookie retries the cookie endpoint until it succeeds
func TestIntegration_RateLimitedCookie(t *testing.T) {
	stub := &yahooStub{cookieFailures: 2}
	server := httptest.NewServer(stub.handler(t))
	defer server.Close()

	out := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var (
		mu      sync.Mutex
		backoff []time.Duration
	)
	retrySleep := func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		backoff = append(backoff, d)
		mu.Unlock()
		return fastSleep(ctx, d)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, testConfig(server.URL), out, logger,
			poller.WithSleep(fastSleep), poller.WithRetrySleep(retrySleep))
	}()

	waitForLines(t, out, 1)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run() returned unexpected error: %v", err)
	}

	if got := stub.cookieCalls.Load(); got != 3 {
		t.Errorf("cookie calls = %d, want 3", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(backoff) != len(want) {
		t.Fatalf("backoffs = %v, want %v", backoff, want)
	}
	for i := range want {
		if backoff[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, backoff[i], want[i])
		}
	}
}

func TestMetricsMux(t *testing.T) {
	m := metrics.New()
	m.Published(34125.67)

	srv := httptest.NewServer(metricsMux(m))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "quotewatch_observations_published_total 1") {
		t.Errorf("metrics output missing published counter:\n%s", body)
	}
}
