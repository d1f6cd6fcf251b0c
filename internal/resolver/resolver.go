// Package resolver turns provider intermediate links into destination URLs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// ErrNoTarget is returned by a strategy that completed without finding a
// destination.
var ErrNoTarget = errors.New("no redirect target")

const (
	defaultHeadTimeout   = 3 * time.Second
	defaultStreamTimeout = 5 * time.Second
	defaultBodyTimeout   = 10 * time.Second
)

// Prober issues redirect-following requests and reports the final URL.
type Prober interface {
	Head(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (string, error)
	Locate(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (string, error)
}

// Strategy is one way of resolving a link.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Chain tries strategies in order and returns the first non-empty target.
type Chain []Strategy

// Resolve runs the chain. The returned error joins every strategy failure.
func (c Chain) Resolve(ctx context.Context, rawURL string) (string, error) {
	var errs []error
	for _, s := range c {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("resolve %s: %w", rawURL, err)
		}
		target, err := s.Resolve(ctx, rawURL)
		if err == nil && target != "" {
			return target, nil
		}
		if err == nil {
			err = ErrNoTarget
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	if len(errs) == 0 {
		return "", ErrNoTarget
	}
	return "", errors.Join(errs...)
}

// Config holds per-strategy timeouts and the headers sent while resolving.
type Config struct {
	HeadTimeout   time.Duration
	StreamTimeout time.Duration
	BodyTimeout   time.Duration
	Headers       map[string]string
}

// Resolver implements crawler.Resolver.
type Resolver struct {
	redirects Chain
	embedded  Chain
	logger    *zap.Logger
}

// New wires the default strategies: HEAD, then streamed GET for redirects;
// body parsing first for embedded wrappers.
func New(prober Prober, fetcher crawler.Fetcher, cfg Config, logger *zap.Logger) *Resolver {
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = defaultHeadTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = defaultStreamTimeout
	}
	if cfg.BodyTimeout <= 0 {
		cfg.BodyTimeout = defaultBodyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	head := HeadStrategy{Prober: prober, Timeout: cfg.HeadTimeout, Headers: cfg.Headers}
	stream := StreamStrategy{Prober: prober, Timeout: cfg.StreamTimeout, Headers: cfg.Headers}
	body := BodyStrategy{Fetcher: fetcher, Timeout: cfg.BodyTimeout, Headers: cfg.Headers}
	return NewWithChains(Chain{head, stream}, Chain{body, head, stream}, logger)
}

// NewWithChains builds a Resolver from explicit strategy chains.
func NewWithChains(redirects, embedded Chain, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{redirects: redirects, embedded: embedded, logger: logger.Named("resolver")}
}

// Resolve follows HTTP redirects. It never fails: the input comes back when
// no strategy produced a target.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	return r.run(ctx, r.redirects, rawURL)
}

// ResolveEmbedded resolves wrappers whose destination lives in the response
// body (JS location assignment or meta refresh).
func (r *Resolver) ResolveEmbedded(ctx context.Context, rawURL string) string {
	return r.run(ctx, r.embedded, rawURL)
}

func (r *Resolver) run(ctx context.Context, chain Chain, rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return rawURL
	}
	target, err := chain.Resolve(ctx, rawURL)
	if err != nil || target == "" {
		r.logger.Debug("link left unresolved", zap.String("url", rawURL), zap.Error(err))
		return rawURL
	}
	return target
}

// IsEmbeddedWrapper reports links that embed their destination in the body.
func IsEmbeddedWrapper(rawURL string) bool {
	return strings.Contains(rawURL, "sogou.com/link?") || strings.Contains(rawURL, "www.sogou.com/link")
}

// IsRedirectWrapper reports links that forward with an HTTP redirect.
func IsRedirectWrapper(rawURL string) bool {
	return strings.Contains(rawURL, "baidu.com/link?")
}
