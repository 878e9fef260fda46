// Package feed hands observations from the polling loop to consumers.
//
// Publish never blocks. Consumers block in Consume (or range over Subscribe)
// until an observation is available. Delivery is FIFO and each observation is
// delivered at most once. A bounded feed drops its oldest entry to make room
// when full.
package feed

import (
	"context"
	"errors"
	"sync"

	"quotewatch/internal/quote"
)

// ErrClosed is returned by Publish after Close, and by Consume once a closed
// feed has been drained.
var ErrClosed = errors.New("feed closed")

// Unbounded is the capacity value for a feed that never drops
const Unbounded = 0

// Option configures a Feed
type Option func(*Feed)

// WithDropHandler sets a function called with each observation evicted by a
// full bounded feed. It runs on the publisher's goroutine.
func WithDropHandler(fn func(quote.Observation)) Option {
	return func(f *Feed) {
		f.onDrop = fn
	}
}

// Stats is a snapshot of feed counters
type Stats struct {
	Queued    int
	Capacity  int
	Published int64
	Delivered int64
	Dropped   int64
}

// Feed is a FIFO queue of observations
type Feed struct {
	mu       sync.Mutex
	items    []quote.Observation
	capacity int
	closed   bool

	// ready holds a token while items may be waiting
	ready    chan struct{}
	done     chan struct{}
	onDrop   func(quote.Observation)
	closeOne sync.Once

	published int64
	delivered int64
	dropped   int64
}

// New creates a feed. capacity <= 0 means unbounded.
func New(capacity int, opts ...Option) *Feed {
	if capacity < 0 {
		capacity = Unbounded
	}
	f := &Feed{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) signal() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// Publish appends obs without blocking
func (f *Feed) Publish(obs quote.Observation) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}

	var evicted *quote.Observation
	if f.capacity > 0 && len(f.items) >= f.capacity {
		oldest := f.items[0]
		evicted = &oldest
		f.items[0] = quote.Observation{}
		f.items = f.items[1:]
		f.dropped++
	}
	f.items = append(f.items, obs)
	f.published++
	f.mu.Unlock()

	if evicted != nil && f.onDrop != nil {
		f.onDrop(*evicted)
	}
	f.signal()
	return nil
}

// TryConsume removes the oldest observation if there is one
func (f *Feed) TryConsume() (quote.Observation, bool) {
	f.mu.Lock()
	if len(f.items) == 0 {
		f.mu.Unlock()
		return quote.Observation{}, false
	}

	obs := f.items[0]
	f.items[0] = quote.Observation{}
	f.items = f.items[1:]
	f.delivered++
	more := len(f.items) > 0
	f.mu.Unlock()

	// pass the token on so another waiting consumer wakes up
	if more {
		f.signal()
	}
	return obs, true
}

// Consume blocks until an observation is available, ctx is done, or the feed
// is closed and drained.
func (f *Feed) Consume(ctx context.Context) (quote.Observation, error) {
	for {
		if obs, ok := f.TryConsume(); ok {
			return obs, nil
		}

		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return quote.Observation{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return quote.Observation{}, ctx.Err()
		case <-f.ready:
		case <-f.done:
		}
	}
}

// Subscribe returns a channel carrying observations in order. The channel is
// closed when ctx is done or the feed is closed and drained. An observation
// taken from the feed while ctx is being cancelled may be lost.
func (f *Feed) Subscribe(ctx context.Context) <-chan quote.Observation {
	out := make(chan quote.Observation)
	go func() {
		defer close(out)
		for {
			obs, err := f.Consume(ctx)
			if err != nil {
				return
			}
			select {
			case out <- obs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close stops further publishing and wakes blocked consumers.
// Observations already queued can still be consumed.
func (f *Feed) Close() {
	f.closeOne.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	})
}

// Len returns the number of queued observations
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Stats returns a snapshot of the feed counters
func (f *Feed) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Queued:    len(f.items),
		Capacity:  f.capacity,
		Published: f.published,
		Delivered: f.delivered,
		Dropped:   f.dropped,
	}
}
