package yahoo

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"

	"quotewatch/internal/fetcher"
	"quotewatch/internal/ratelimit"
)

const (
	// DefaultCookieURL issues the session cookie
	DefaultCookieURL = "https://fc.yahoo.com"
	// DefaultCrumbURL exchanges the cookie for a crumb
	DefaultCrumbURL = "https://query2.finance.yahoo.com/v1/test/getcrumb"
	// DefaultQuoteURL serves quote documents
	DefaultQuoteURL = "https://query2.finance.yahoo.com/v7/finance/quote"

	// DefaultUserAgent is sent on crumb and quote requests
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Options configures a Gateway
type Options struct {
	CookieURL string
	CrumbURL  string
	QuoteURL  string
	UserAgent string
	Timeout   time.Duration

	// Limiter paces requests; nil uses the process-wide limiter
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// DefaultOptions returns options pointing at the production endpoints
func DefaultOptions() Options {
	return Options{
		CookieURL: DefaultCookieURL,
		CrumbURL:  DefaultCrumbURL,
		QuoteURL:  DefaultQuoteURL,
		UserAgent: DefaultUserAgent,
		Timeout:   fetcher.DefaultTimeout,
	}
}

// Gateway talks to Yahoo Finance. It implements fetcher.Fetcher.
type Gateway struct {
	cookieURL string
	crumbURL  string
	quoteURL  string
	userAgent string
	client    *resty.Client
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

var _ fetcher.Fetcher = (*Gateway)(nil)

// NewGateway creates a gateway from opts, filling blanks with defaults
func NewGateway(opts Options) *Gateway {
	def := DefaultOptions()
	if opts.CookieURL == "" {
		opts.CookieURL = def.CookieURL
	}
	if opts.CrumbURL == "" {
		opts.CrumbURL = def.CrumbURL
	}
	if opts.QuoteURL == "" {
		opts.QuoteURL = def.QuoteURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.GetLimiter()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Gateway{
		cookieURL: opts.CookieURL,
		crumbURL:  opts.CrumbURL,
		quoteURL:  opts.QuoteURL,
		userAgent: opts.UserAgent,
		client:    fetcher.NewHTTPClient(opts.Timeout, opts.Logger),
		limiter:   opts.Limiter,
		logger:    opts.Logger,
	}
}

// Close releases the underlying HTTP client
func (g *Gateway) Close() error {
	return g.client.Close()
}

func (g *Gateway) wait(ctx context.Context, endpoint ratelimit.Endpoint) error {
	if err := g.limiter.Wait(ctx, endpoint); err != nil {
		return fetcher.ClassifyTransportError(ctx, err)
	}
	return nil
}

// FetchCookie requests the session endpoint and returns its Set-Cookie header.
// The status code is ignored unless it is 429: the endpoint answers with an
// error page and still sets the cookie.
func (g *Gateway) FetchCookie(ctx context.Context) (string, error) {
	if err := g.wait(ctx, ratelimit.EndpointSession); err != nil {
		return "", err
	}

	resp, err := g.client.R().
		SetContext(ctx).
		Get(g.cookieURL)
	if err != nil {
		g.logger.Error("failed to fetch cookie", "error", err)
		return "", fetcher.ClassifyTransportError(ctx, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		g.logger.Warn("rate limit exceeded fetching cookie", "status", resp.StatusCode())
		return "", fetcher.NewRateLimitError(resp.StatusCode())
	}

	cookie := resp.Header().Get("Set-Cookie")
	if cookie == "" {
		g.logger.Error("failed to fetch cookie", "status", resp.StatusCode(), "error", "no set-cookie header")
		return "", fetcher.NewMissingHeaderError("set-cookie")
	}

	g.logger.Info("fetched cookie", "status", resp.StatusCode(), "length", len(cookie))
	return cookie, nil
}

// FetchCrumb returns the crumb bound to cookie
func (g *Gateway) FetchCrumb(ctx context.Context, cookie string) (string, error) {
	if err := g.wait(ctx, ratelimit.EndpointCrumb); err != nil {
		return "", err
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Cookie", cookie).
		SetHeader("User-Agent", g.userAgent).
		Get(g.crumbURL)
	if err != nil {
		g.logger.Error("failed to fetch crumb", "error", err)
		return "", fetcher.ClassifyTransportError(ctx, err)
	}

	body, err := g.checkResponse(resp, "crumb")
	if err != nil {
		return "", err
	}
	if body == "" {
		g.logger.Error("failed to fetch crumb", "status", resp.StatusCode(), "error", "empty body")
		return "", &fetcher.FetchError{
			Type:       fetcher.ErrorTypeUnknown,
			Retryable:  true,
			StatusCode: resp.StatusCode(),
			Message:    "empty crumb",
		}
	}

	g.logger.Info("fetched crumb", "length", len(body))
	return body, nil
}

// FetchQuote returns the raw quote document for symbol
func (g *Gateway) FetchQuote(ctx context.Context, cookie, crumb, symbol string) ([]byte, error) {
	if err := g.wait(ctx, ratelimit.EndpointQuote); err != nil {
		return nil, err
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Cookie", cookie).
		SetHeader("User-Agent", g.userAgent).
		SetHeader("Accept", "application/json").
		SetQueryParam("symbols", symbol).
		SetQueryParam("crumb", crumb).
		Get(g.quoteURL)
	if err != nil {
		g.logger.Error("failed to fetch quote", "symbol", symbol, "error", err)
		return nil, fetcher.ClassifyTransportError(ctx, err)
	}

	body, err := g.checkResponse(resp, "quote")
	if err != nil {
		return nil, err
	}

	g.logger.Debug("fetched quote", "symbol", symbol, "bytes", len(body))
	return []byte(body), nil
}

// checkResponse returns the body of a 200 response, or the classified failure
func (g *Gateway) checkResponse(resp *resty.Response, what string) (string, error) {
	switch status := resp.StatusCode(); {
	case status == http.StatusOK:
		return resp.String(), nil
	case status == http.StatusTooManyRequests:
		g.logger.Warn("rate limit exceeded (HTTP 429)", "request", what)
		return "", fetcher.NewRateLimitError(status)
	default:
		g.logger.Error("unexpected response", "request", what, "status", status, "body", resp.String())
		return "", fetcher.ClassifyHTTPError(status)
	}
}
