package testutil

import (
	"context"
	"sync"
	"time"

	"quotewatch/internal/fetcher"
)

// MockFetcher is a mock implementation of the Fetcher interface for testing.
// Each call is counted; a nil func field succeeds with a canned value.
type MockFetcher struct {
	CookieFunc func(ctx context.Context) (string, error)
	CrumbFunc  func(ctx context.Context, cookie string) (string, error)
	QuoteFunc  func(ctx context.Context, cookie, crumb, symbol string) ([]byte, error)

	mu          sync.Mutex
	cookieCalls int
	crumbCalls  int
	quoteCalls  int
}

var _ fetcher.Fetcher = (*MockFetcher)(nil)

// FetchCookie implements the Fetcher interface
func (m *MockFetcher) FetchCookie(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.cookieCalls++
	m.mu.Unlock()
	if m.CookieFunc != nil {
		return m.CookieFunc(ctx)
	}
	return "B=mock", nil
}

// FetchCrumb implements the Fetcher interface
func (m *MockFetcher) FetchCrumb(ctx context.Context, cookie string) (string, error) {
	m.mu.Lock()
	m.crumbCalls++
	m.mu.Unlock()
	if m.CrumbFunc != nil {
		return m.CrumbFunc(ctx, cookie)
	}
	return "mockcrumb", nil
}

// FetchQuote implements the Fetcher interface
func (m *MockFetcher) FetchQuote(ctx context.Context, cookie, crumb, symbol string) ([]byte, error) {
	m.mu.Lock()
	m.quoteCalls++
	m.mu.Unlock()
	if m.QuoteFunc != nil {
		return m.QuoteFunc(ctx, cookie, crumb, symbol)
	}
	return []byte(QuoteJSON(symbol, "34125.67")), nil
}

// Calls returns how many times each method has been called
func (m *MockFetcher) Calls() (cookie, crumb, quote int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cookieCalls, m.crumbCalls, m.quoteCalls
}

// QuoteJSON builds a single-result quote document
func QuoteJSON(symbol, fiftyDayAverage string) string {
	return `{"quoteResponse":{"result":[{` +
		`"symbol":"` + symbol + `",` +
		`"fiftyTwoWeekLow":32327.2,` +
		`"fiftyTwoWeekHigh":36952.65,` +
		`"fiftyTwoWeekChangePercent":4.81,` +
		`"fiftyDayAverage":` + fiftyDayAverage + `,` +
		`"twoHundredDayAverage":33901.12` +
		`}],"error":null}}`
}

// EmptyQuoteJSON is a quote document with no results
const EmptyQuoteJSON = `{"quoteResponse":{"result":[],"error":null}}`

// RecordingSleeper records requested waits without waiting.
// It honours cancellation the way a real sleeper does.
type RecordingSleeper struct {
	mu     sync.Mutex
	Delays []time.Duration
}

// Sleep records d and returns ctx.Err()
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Delays = append(s.Delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Recorded returns a copy of the recorded delays
func (s *RecordingSleeper) Recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.Delays...)
}

// Total returns the sum of recorded delays
func (s *RecordingSleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Recorded() {
		total += d
	}
	return total
}
