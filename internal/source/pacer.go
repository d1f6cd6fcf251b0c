package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Pacer delays between listing pages.
type Pacer interface {
	Wait(ctx context.Context) error
}

// PacerFunc adapts a function to Pacer.
type PacerFunc func(ctx context.Context) error

// Wait implements Pacer.
func (f PacerFunc) Wait(ctx context.Context) error {
	return f(ctx)
}

// NoPacer never waits.
var NoPacer Pacer = PacerFunc(func(ctx context.Context) error { return ctx.Err() })

// RandomPacer sleeps a uniformly random duration in [Min, Max].
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
}

// Wait implements Pacer.
func (p RandomPacer) Wait(ctx context.Context) error {
	delay := p.Min
	if p.Max > p.Min {
		delay += rand.N(p.Max - p.Min + 1)
	}
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacer wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
