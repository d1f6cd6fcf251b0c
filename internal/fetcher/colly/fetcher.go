// Package collyfetcher fetches listing pages with gocolly. Each Fetch runs a
// fresh collector bound to the caller's context, so a cancelled scan stops
// the in-flight request.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/fetcher/charset"
)

const (
	defaultTimeout = 10 * time.Second
	// rawContentType carries the server's Content-Type past colly, whose
	// built-in conversion trusts a declared charset even when it is wrong.
	rawContentType = "X-Opinionscan-Content-Type"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Fetcher{
		cfg:       cfg,
		transport: &charsetTransport{base: newHTTPTransport()},
	}
}

// Fetch executes a single HTTP GET using Colly. Status codes outside 2xx
// are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, request, start, &result, &fetchErr)

	if err := collector.Visit(request.URL); err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
		}
		return crawler.FetchResponse{}, fmt.Errorf("colly visit %s: %w", request.URL, err)
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, fmt.Errorf("colly response %s: %w", request.URL, fetchErr)
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(f.transport)

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := r.Headers.Clone()
		contentType := headers.Get(rawContentType)
		if contentType == "" {
			contentType = headers.Get("Content-Type")
		} else {
			headers.Set("Content-Type", contentType)
			headers.Del(rawContentType)
		}
		body, name := charset.Normalize(r.Body, contentType)
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), body...),
			Charset:    name,
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func copyHeaders(headers map[string]string, r *colly.Request) {
	for key, value := range headers {
		r.Headers.Set(key, value)
	}
}

// charsetTransport hides the charset parameter from colly and keeps the
// original header under rawContentType for charset.Normalize.
type charsetTransport struct {
	base http.RoundTripper
}

func (t *charsetTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		resp.Header.Set(rawContentType, ct)
		resp.Header.Set("Content-Type", stripParams(ct))
	}
	return resp, nil
}

func stripParams(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mediaType)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
