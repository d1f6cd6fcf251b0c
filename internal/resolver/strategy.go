package resolver

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"time"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// HeadStrategy resolves with a redirect-following HEAD request.
type HeadStrategy struct {
	Prober  Prober
	Timeout time.Duration
	Headers map[string]string
}

// Name implements Strategy.
func (HeadStrategy) Name() string { return "head" }

// Resolve implements Strategy.
func (s HeadStrategy) Resolve(ctx context.Context, rawURL string) (string, error) {
	target, err := s.Prober.Head(ctx, rawURL, s.Headers, s.Timeout)
	if err != nil {
		return "", fmt.Errorf("head probe: %w", err)
	}
	return target, nil
}

// StreamStrategy resolves with a redirect-following GET whose body is
// never read.
type StreamStrategy struct {
	Prober  Prober
	Timeout time.Duration
	Headers map[string]string
}

// Name implements Strategy.
func (StreamStrategy) Name() string { return "stream" }

// Resolve implements Strategy.
func (s StreamStrategy) Resolve(ctx context.Context, rawURL string) (string, error) {
	target, err := s.Prober.Locate(ctx, rawURL, s.Headers, s.Timeout)
	if err != nil {
		return "", fmt.Errorf("stream probe: %w", err)
	}
	return target, nil
}

var (
	jsReplacePattern = regexp.MustCompile(`(?i)(?:^|[^\w.])(?:window\.)?location\.replace\(\s*["']([^"']+)["']\s*\)`)
	jsAssignPattern  = regexp.MustCompile(`(?i)(?:^|[^\w.])(?:window\.)?location(?:\.href)?\s*=\s*["']([^"']+)["']`)
	metaPattern      = regexp.MustCompile(`(?i)<meta[^>]+http-equiv\s*=\s*["']?refresh["']?[^>]*content\s*=\s*["']?\s*\d*\s*;\s*url\s*=\s*['"]?([^'">\s]+)`)
)

// BodyStrategy fetches the wrapper page and extracts the destination from a
// JS location assignment, falling back to a meta refresh.
type BodyStrategy struct {
	Fetcher crawler.Fetcher
	Timeout time.Duration
	Headers map[string]string
}

// Name implements Strategy.
func (BodyStrategy) Name() string { return "body" }

// Resolve implements Strategy.
func (s BodyStrategy) Resolve(ctx context.Context, rawURL string) (string, error) {
	resp, err := s.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Headers: s.Headers, Timeout: s.Timeout})
	if err != nil {
		return "", fmt.Errorf("fetch wrapper: %w", err)
	}
	target := EmbeddedTarget(string(resp.Body))
	if target == "" {
		return "", ErrNoTarget
	}
	base := resp.URL
	if base == "" {
		base = rawURL
	}
	return crawler.AbsoluteURL(base, target), nil
}

// EmbeddedTarget returns the first destination found in body, JS patterns
// before meta refresh, with HTML entities unescaped.
func EmbeddedTarget(body string) string {
	for _, pattern := range []*regexp.Regexp{jsReplacePattern, jsAssignPattern, metaPattern} {
		if m := pattern.FindStringSubmatch(body); len(m) == 2 {
			return html.UnescapeString(m[1])
		}
	}
	return ""
}
