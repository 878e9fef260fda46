package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"quotewatch/internal/quote"
)

// Loop is the producer side: it runs until ctx is cancelled
type Loop interface {
	Run(ctx context.Context) error
}

// Source delivers observations in order
type Source interface {
	Subscribe(ctx context.Context) <-chan quote.Observation
}

// Point is an observation placed on chart axes: seconds since the consumer
// started, and price.
type Point struct {
	Seconds int64
	Price   float64
}

// Coordinator runs the polling loop and a console consumer side by side
type Coordinator struct {
	loop   Loop
	source Source
	out    io.Writer
	start  time.Time
}

// New creates a new Coordinator writing rendered observations to out
func New(loop Loop, source Source, out io.Writer) *Coordinator {
	return &Coordinator{
		loop:   loop,
		source: source,
		out:    out,
		start:  time.Now(),
	}
}

// Plot maps an observation onto the chart axes
func (c *Coordinator) Plot(obs quote.Observation) Point {
	return Point{
		Seconds: int64(obs.Timestamp.Sub(c.start) / time.Second),
		Price:   obs.Price.InexactFloat64(),
	}
}

// Run starts the loop on its own goroutine and prints observations as they
// arrive in the format "SYMBOL: $PRICE (t+Ns)". It returns nil once ctx is
// cancelled, or the loop's error if it stopped for another reason.
func (c *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.loop.Run(gctx)
	})

	g.Go(func() error {
		for obs := range c.source.Subscribe(gctx) {
			pt := c.Plot(obs)
			if _, err := fmt.Fprintf(c.out, "%s: $%s (t+%ds)\n", obs.Symbol, obs.Price.StringFixed(2), pt.Seconds); err != nil {
				return fmt.Errorf("write observation: %w", err)
			}
		}
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}
