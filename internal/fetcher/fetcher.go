package fetcher

import "context"

// Fetcher is the gateway to a quote provider that guards its data behind a
// session cookie and a crumb token derived from it.
//
// Every method returns a nil error on success, a retryable *FetchError on a
// transient failure, or a non-retryable error (cancellation) that must not be
// retried.
type Fetcher interface {
	// FetchCookie obtains a fresh session cookie.
	FetchCookie(ctx context.Context) (string, error)

	// FetchCrumb exchanges a session cookie for a crumb token.
	FetchCrumb(ctx context.Context, cookie string) (string, error)

	// FetchQuote returns the raw JSON quote document for symbol.
	FetchQuote(ctx context.Context, cookie, crumb, symbol string) ([]byte, error)
}
