// Package poller runs the credential refresh and quote fetch cycle.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"quotewatch/internal/credentials"
	"quotewatch/internal/fetcher"
	"quotewatch/internal/metrics"
	"quotewatch/internal/quote"
	"quotewatch/internal/retry"
)

const (
	// PollInterval is the wait between the end of one cycle and the next
	PollInterval = 5 * time.Second
	// SettleDelay is the wait between obtaining a cookie and asking for a crumb
	SettleDelay = 2 * time.Second
	// DefaultSymbol is the Dow Jones Industrial Average
	DefaultSymbol = "^DJI"
)

// Publisher receives observations. Publish must not block.
type Publisher interface {
	Publish(obs quote.Observation) error
}

// Outcome labels how a cycle ended
type Outcome string

const (
	OutcomePublished     Outcome = "published"
	OutcomeEmpty         Outcome = "empty"
	OutcomeRefreshFailed Outcome = "refresh_failed"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeParseFailed   Outcome = "parse_failed"
	OutcomePublishFailed Outcome = "publish_failed"
	OutcomeCancelled     Outcome = "cancelled"
)

// CycleResult is the typed result of one cycle
type CycleResult struct {
	Outcome     Outcome
	Refreshed   bool
	Invalidated bool
	Observation *quote.Observation
	Err         error
	NextDelay   time.Duration
}

// Config holds poller configuration
type Config struct {
	Symbol string
	Policy retry.Policy

	// InvalidateAfter drops cached credentials after this many consecutive
	// failed quote fetches. Zero keeps them forever.
	InvalidateAfter int
}

// DefaultConfig returns the fixed production settings
func DefaultConfig() Config {
	return Config{
		Symbol: DefaultSymbol,
		Policy: retry.DefaultPolicy(),
	}
}

// Option configures a Poller
type Option func(*Poller)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// WithSleep replaces the sleeper used for the settle delay and poll interval
func WithSleep(fn retry.SleepFunc) Option {
	return func(p *Poller) {
		p.sleep = fn
	}
}

// WithRetrySleep replaces the sleeper used between retry attempts
func WithRetrySleep(fn retry.SleepFunc) Option {
	return func(p *Poller) {
		p.retrySleep = fn
	}
}

// WithParser sets the quote parser
func WithParser(parser *quote.Parser) Option {
	return func(p *Poller) {
		p.parser = parser
	}
}

// Poller fetches the configured symbol forever, refreshing credentials when
// the cache is empty. All work happens on the goroutine calling Run.
type Poller struct {
	cfg        Config
	fetcher    fetcher.Fetcher
	cache      *credentials.Cache
	out        Publisher
	parser     *quote.Parser
	retrier    *retry.Executor
	sleep      retry.SleepFunc
	retrySleep retry.SleepFunc
	metrics    *metrics.Metrics
	logger     *slog.Logger

	quoteFailures int
}

// New creates a new Poller
func New(cfg Config, f fetcher.Fetcher, cache *credentials.Cache, out Publisher, opts ...Option) *Poller {
	if cfg.Symbol == "" {
		cfg.Symbol = DefaultSymbol
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}

	p := &Poller{
		cfg:     cfg,
		fetcher: f,
		cache:   cache,
		out:     out,
		sleep:   retry.Sleep,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.parser == nil {
		p.parser = quote.NewParser()
	}
	if err := p.cfg.Policy.Validate(); err != nil {
		p.logger.Warn("invalid retry policy, using default", "error", err)
		p.cfg.Policy = retry.DefaultPolicy()
	}

	p.retrier = retry.NewExecutor(p.cfg.Policy, fetcher.IsRetryable, p.logger)
	p.retrier.Sleep = p.retrySleep
	p.retrier.OnRetry = func(name string, attempt int, backoff time.Duration, err error) {
		p.metrics.Retry(name)
	}
	return p
}

// Run polls until ctx is cancelled and returns ctx.Err().
// No per-cycle failure ends the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("polling loop started",
		"symbol", p.cfg.Symbol,
		"interval", PollInterval,
		"max_attempts", p.cfg.Policy.MaxAttempts,
	)

	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("polling loop stopped", "reason", err)
			return err
		}

		res := p.Cycle(ctx)
		if err := ctx.Err(); err != nil {
			p.logger.Info("polling loop stopped", "reason", err)
			return err
		}

		if err := p.sleep(ctx, res.NextDelay); err != nil {
			p.logger.Info("polling loop stopped", "reason", err)
			return err
		}
	}
}

// Cycle runs one pass: refresh credentials if absent, fetch the quote, parse
// it, and publish any observation. Failures are logged and reported in the
// result, never returned.
func (p *Poller) Cycle(ctx context.Context) CycleResult {
	res := p.cycle(ctx)
	if res.Err != nil && ctx.Err() != nil {
		res.Outcome = OutcomeCancelled
	}
	res.NextDelay = PollInterval
	p.metrics.Cycle(string(res.Outcome))
	return res
}

func (p *Poller) cycle(ctx context.Context) CycleResult {
	var res CycleResult

	creds, ok := p.cache.Get()
	if !ok {
		fresh, err := p.refresh(ctx)
		if err != nil {
			res.Err = err
			res.Outcome = OutcomeRefreshFailed
			if ctx.Err() != nil {
				res.Outcome = OutcomeCancelled
				return res
			}
			p.logger.Error("credential refresh failed, skipping cycle", "error", err)
			return res
		}
		creds = fresh
		res.Refreshed = true
	}

	raw, err := retry.Do(ctx, p.retrier, "quote", counted(p, "quote", func(ctx context.Context) ([]byte, error) {
		return p.fetcher.FetchQuote(ctx, creds.Cookie, creds.Crumb, p.cfg.Symbol)
	}))
	if err != nil {
		res.Err = err
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			return res
		}
		res.Outcome = OutcomeFetchFailed
		p.logger.Error("quote fetch failed", "symbol", p.cfg.Symbol, "error", err)
		res.Invalidated = p.noteQuoteFailure()
		return res
	}
	p.quoteFailures = 0

	obs, ok, err := p.parser.Parse(raw)
	if err != nil {
		res.Err = err
		res.Outcome = OutcomeParseFailed
		p.metrics.ParseFailure()
		p.logger.Error("failed to parse quote", "symbol", p.cfg.Symbol, "error", err)
		return res
	}
	if !ok {
		res.Outcome = OutcomeEmpty
		p.logger.Debug("quote response had no result", "symbol", p.cfg.Symbol)
		return res
	}

	if err := p.out.Publish(obs); err != nil {
		res.Err = fmt.Errorf("publish observation: %w", err)
		res.Outcome = OutcomePublishFailed
		p.logger.Error("failed to publish observation", "error", err)
		return res
	}

	p.metrics.Published(obs.Price.InexactFloat64())
	p.logger.Info("stored observation",
		"symbol", obs.Symbol,
		"price", obs.Price.String(),
		"timestamp", obs.Timestamp,
	)
	res.Observation = &obs
	res.Outcome = OutcomePublished
	return res
}

// refresh obtains a cookie, waits SettleDelay, obtains a crumb, and stores
// both. Nothing is stored unless both steps succeed.
func (p *Poller) refresh(ctx context.Context) (credentials.Credentials, error) {
	log := p.logger.With("refresh_id", uuid.NewString())
	log.Info("refreshing credentials")

	cookie, err := retry.Do(ctx, p.retrier, "cookie", counted(p, "cookie", p.fetcher.FetchCookie))
	if err != nil {
		p.metrics.Refresh(false)
		return credentials.Credentials{}, fmt.Errorf("fetch cookie: %w", err)
	}

	if err := p.sleep(ctx, SettleDelay); err != nil {
		p.metrics.Refresh(false)
		return credentials.Credentials{}, fmt.Errorf("settle delay: %w", err)
	}

	crumb, err := retry.Do(ctx, p.retrier, "crumb", counted(p, "crumb", func(ctx context.Context) (string, error) {
		return p.fetcher.FetchCrumb(ctx, cookie)
	}))
	if err != nil {
		p.metrics.Refresh(false)
		return credentials.Credentials{}, fmt.Errorf("fetch crumb: %w", err)
	}

	if err := ctx.Err(); err != nil {
		p.metrics.Refresh(false)
		return credentials.Credentials{}, err
	}

	creds := credentials.Credentials{
		Cookie:     cookie,
		Crumb:      crumb,
		ObtainedAt: time.Now(),
	}
	if err := p.cache.Set(creds); err != nil {
		p.metrics.Refresh(false)
		return credentials.Credentials{}, err
	}

	p.metrics.Refresh(true)
	log.Info("credentials refreshed")
	return creds, nil
}

// noteQuoteFailure counts a failed quote cycle and invalidates the cached
// credentials once InvalidateAfter consecutive failures have been seen.
func (p *Poller) noteQuoteFailure() bool {
	p.quoteFailures++
	if p.cfg.InvalidateAfter <= 0 || p.quoteFailures < p.cfg.InvalidateAfter {
		return false
	}

	p.logger.Warn("invalidating credentials after repeated quote failures", "failures", p.quoteFailures)
	p.cache.Invalidate()
	p.quoteFailures = 0
	return true
}

// counted wraps op so every failed attempt is recorded by error type
func counted[T any](p *Poller, name string, op func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.metrics.FetchFailure(name, string(fetcher.TypeOf(err)))
		}
		return v, err
	}
}
