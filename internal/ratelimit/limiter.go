package ratelimit

import (
	"context"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Endpoint represents one of the provider endpoints we call
type Endpoint string

const (
	// EndpointSession is the cookie-issuing endpoint
	EndpointSession Endpoint = "session"
	// EndpointCrumb is the crumb endpoint
	EndpointCrumb Endpoint = "crumb"
	// EndpointQuote is the quote data endpoint
	EndpointQuote Endpoint = "quote"
)

// Limit is the pacing for one endpoint
type Limit struct {
	Rate  rate.Limit
	Burst int
}

// Limiter paces outbound requests per endpoint. The set of limiters is fixed
// at construction.
type Limiter struct {
	limiters map[Endpoint]*rate.Limiter
}

var (
	instance *Limiter
	once     sync.Once
)

// GetLimiter returns the process-wide rate limiter instance
func GetLimiter() *Limiter {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// DefaultLimits returns the production pacing. The session and crumb
// endpoints are only hit on refresh.
func DefaultLimits() map[Endpoint]Limit {
	return map[Endpoint]Limit{
		EndpointSession: {Rate: rate.Limit(1), Burst: 1},
		EndpointCrumb:   {Rate: rate.Limit(1), Burst: 1},
		EndpointQuote:   {Rate: rate.Limit(2), Burst: 2},
	}
}

// New returns a limiter with DefaultLimits, or an unlimited one inside a
// test binary.
func New() *Limiter {
	limits := DefaultLimits()
	if os.Getenv("GO_TESTING") == "1" || isTestMode() {
		for ep := range limits {
			limits[ep] = Limit{Rate: rate.Inf, Burst: 1}
		}
	}
	return NewWithLimits(limits)
}

// NewWithLimits returns a limiter for the given endpoints. Endpoints not in
// limits are never delayed.
func NewWithLimits(limits map[Endpoint]Limit) *Limiter {
	l := &Limiter{
		limiters: make(map[Endpoint]*rate.Limiter, len(limits)),
	}
	for ep, lim := range limits {
		l.limiters[ep] = rate.NewLimiter(lim.Rate, lim.Burst)
	}
	return l
}

// isTestMode checks if we're running in test mode
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// Wait blocks until the rate limiter permits a request to the given endpoint.
// It returns an error if the context is canceled before the request can proceed.
func (l *Limiter) Wait(ctx context.Context, endpoint Endpoint) error {
	limiter, exists := l.limiters[endpoint]
	if !exists {
		return nil
	}
	return limiter.Wait(ctx)
}
