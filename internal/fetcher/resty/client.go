// Package restyfetcher is the thin synchronous HTTP client used by the link
// resolver and the deep-crawl extractor. It injects headers, enforces a
// per-call timeout and normalizes response bodies to UTF-8.
package restyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/fetcher/charset"
)

// ErrStatus marks a completed request whose status code is outside 2xx.
var ErrStatus = errors.New("unexpected status")

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
	maxRedirects = 10
)

// Config controls client behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// BaseHeaders are sent with every request; per-request headers win.
	BaseHeaders map[string]string
}

// Client implements crawler.Fetcher on top of resty.
type Client struct {
	cfg  Config
	http *resty.Client
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	client := resty.New()
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(maxRedirects))
	client.SetHeader("User-Agent", cfg.UserAgent)
	return &Client{cfg: cfg, http: client}
}

// NewWithResty wraps an existing resty client (primarily for testing).
func NewWithResty(client *resty.Client, cfg Config) *Client {
	c := New(cfg)
	if client != nil {
		c.http = client
	}
	return c
}

// Fetch performs a GET and returns the UTF-8 body. Non-2xx responses are
// reported as ErrStatus.
func (c *Client) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout(request.Timeout))
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(MergeHeaders(c.cfg.BaseHeaders, request.Headers)).
		Get(request.URL)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("get %s: %w", request.URL, err)
	}
	if !resp.IsSuccess() {
		return crawler.FetchResponse{}, fmt.Errorf("get %s: %w: %d", request.URL, ErrStatus, resp.StatusCode())
	}
	body, name := charset.Normalize(resp.Body(), resp.Header().Get("Content-Type"))
	return crawler.FetchResponse{
		URL:        finalURL(resp, request.URL),
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header().Clone(),
		Body:       body,
		Charset:    name,
		Duration:   time.Since(start),
	}, nil
}

// Head issues a HEAD request, follows redirects and returns the final URL.
// Any completed response counts, whatever its status.
func (c *Client) Head(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout(timeout))
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(MergeHeaders(c.cfg.BaseHeaders, headers)).
		Head(rawURL)
	if err != nil {
		return "", fmt.Errorf("head %s: %w", rawURL, err)
	}
	return finalURL(resp, rawURL), nil
}

// Locate issues a streamed GET that follows redirects without reading the
// body and returns the final URL.
func (c *Client) Locate(ctx context.Context, rawURL string, headers map[string]string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout(timeout))
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(MergeHeaders(c.cfg.BaseHeaders, headers)).
		Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("stream get %s: %w", rawURL, err)
	}
	if body := resp.RawBody(); body != nil {
		_ = body.Close()
	}
	return finalURL(resp, rawURL), nil
}

func (c *Client) timeout(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return c.cfg.Timeout
}

// MergeHeaders overlays override on base. Names are canonicalized so a
// custom "user-agent" replaces the base "User-Agent".
func MergeHeaders(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range override {
		out[http.CanonicalHeaderKey(k)] = v
	}
	return out
}

func finalURL(resp *resty.Response, fallback string) string {
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Request == nil || resp.RawResponse.Request.URL == nil {
		return fallback
	}
	return resp.RawResponse.Request.URL.String()
}
