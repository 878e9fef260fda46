package fetcher

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"
)

const (
	// DefaultTimeout bounds a single request when the caller does not pick one
	DefaultTimeout = 30 * time.Second
)

// NewHTTPClient creates a new HTTP client for provider requests.
// Resty's own retries stay disabled: retrying is owned by the retry package so
// that every fetch kind shares one policy. The client keeps no cookie jar and
// never follows redirects: headers are read from the first response and the
// only cookie sent is the one the caller passes.
func NewHTTPClient(timeout time.Duration, logger *slog.Logger) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetCookieJar(nil).
		SetRedirectPolicy(NoRedirectPolicy()).
		SetLogger(&restyLogger{logger: logger})

	return client
}

// NoRedirectPolicy stops at the first response and hands it back as is
func NoRedirectPolicy() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
}

// restyLogger routes resty's internal warnings and errors to slog
type restyLogger struct {
	logger *slog.Logger
}

func (l *restyLogger) Errorf(format string, v ...any) {
	l.logger.Error("http client", "detail", fmt.Sprintf(format, v...))
}

func (l *restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn("http client", "detail", fmt.Sprintf(format, v...))
}

func (l *restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug("http client", "detail", fmt.Sprintf(format, v...))
}
