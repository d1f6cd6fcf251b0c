// Package ratelimit implements per-host token buckets for deep-crawl fetches.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	observe  func(host string, delay time.Duration)
}

// Config holds rate limiter configuration. A non-positive RPS disables
// limiting. OnDelay, when set, receives every wait longer than a millisecond.
type Config struct {
	RPS     float64
	Burst   int
	OnDelay func(host string, delay time.Duration)
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
		observe:  cfg.OnDelay,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond && l.observe != nil {
		l.observe(host, delay)
	}
	return nil
}

// Fetcher waits on a Limiter before every request it forwards.
type Fetcher struct {
	Next    crawler.Fetcher
	Limiter *Limiter
}

// Fetch implements crawler.Fetcher.
func (f Fetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx, req.URL); err != nil {
			return crawler.FetchResponse{}, err
		}
	}
	return f.Next.Fetch(ctx, req)
}
