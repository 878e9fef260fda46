// Package retry runs fallible operations under an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrMaxRetriesExceeded is returned when every attempt allowed by the policy failed
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Default policy values
const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 2 * time.Second
	DefaultMultiplier     = 2.0
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
}

// DefaultPolicy returns 5 attempts starting at 2s and doubling
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		Multiplier:     DefaultMultiplier,
	}
}

// Validate checks the policy invariants
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialBackoff < 0 {
		return fmt.Errorf("retry policy: initial backoff must not be negative, got %s", p.InitialBackoff)
	}
	if p.Multiplier <= 0 {
		return fmt.Errorf("retry policy: multiplier must be positive, got %g", p.Multiplier)
	}
	return nil
}

// MaxBackoff caps a single computed wait
const MaxBackoff = time.Duration(math.MaxInt64)

// Backoff returns the wait after the given failed attempt (1-based):
// InitialBackoff * Multiplier^(attempt-1), capped at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if math.IsNaN(d) || d >= float64(MaxBackoff) {
		return MaxBackoff
	}
	return time.Duration(d)
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a real timer
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Executor applies a Policy to operations
type Executor struct {
	Policy Policy

	// Retryable classifies a failure. Nil treats every error other than a
	// context error as retryable.
	Retryable func(error) bool

	// Sleep waits between attempts. Nil uses Sleep.
	Sleep SleepFunc

	// OnRetry, if set, is called before each backoff wait
	OnRetry func(name string, attempt int, backoff time.Duration, err error)

	Logger *slog.Logger
}

// NewExecutor returns an Executor for policy with the default sleeper
func NewExecutor(policy Policy, retryable func(error) bool, logger *slog.Logger) *Executor {
	return &Executor{
		Policy:    policy,
		Retryable: retryable,
		Logger:    logger,
	}
}

func (e *Executor) isRetryable(err error) bool {
	if e.Retryable != nil {
		return e.Retryable(err)
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's attempt budget is spent. name labels log lines.
//
// A non-retryable error is returned as is. Exhausting the budget returns an
// error wrapping both ErrMaxRetriesExceeded and the last failure. If ctx is
// cancelled while waiting between attempts the wait is abandoned and the
// returned error wraps ctx.Err().
func Do[T any](ctx context.Context, e *Executor, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := e.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	log := e.logger()

	attempt := 0
	for {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !e.isRetryable(err) {
			return zero, err
		}

		attempt++
		if attempt >= maxAttempts {
			log.Error("giving up", "operation", name, "attempts", attempt, "error", err)
			return zero, fmt.Errorf("%s: %w after %d attempts: %w", name, ErrMaxRetriesExceeded, attempt, err)
		}

		backoff := e.Policy.Backoff(attempt)
		log.Info("retrying", "operation", name, "attempt", attempt, "backoff", backoff, "error", err)
		if e.OnRetry != nil {
			e.OnRetry(name, attempt, backoff, err)
		}

		if err := sleep(ctx, backoff); err != nil {
			return zero, fmt.Errorf("%s: interrupted while waiting to retry: %w", name, err)
		}
	}
}
