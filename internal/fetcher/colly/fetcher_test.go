package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

func TestFetchDecodesMislabelledGBK(t *testing.T) {
	t.Parallel()

	page := `<html><head><meta charset="gbk"></head><body><p>舆情监测</p></body></html>`
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(page)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Trace", r.Header.Get("X-Trace"))
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte(encoded))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "test-agent", Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:     srv.URL,
		Headers: map[string]string{"X-Trace": "yes"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "舆情监测")
	require.Equal(t, "text/html; charset=ISO-8859-1", http.Header(resp.Headers).Get("Content-Type"))
	require.Empty(t, http.Header(resp.Headers).Get(rawContentType))
	require.Equal(t, "yes", http.Header(resp.Headers).Get("X-Seen-Trace"))
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{}).Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	collector := f.buildCollector(context.Background(), crawler.FetchRequest{URL: "https://example.com"},
		time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: map[string]string{"Cookie": "BAIDUID=1"},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "BAIDUID=1", collyReq.Headers.Get("Cookie"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/html"}, rawContentType: {"text/html; charset=utf-8"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/s")},
	})
	require.Equal(t, "https://example.com/s", result.URL)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "utf-8", result.Charset)
	require.Equal(t, "text/html; charset=utf-8", http.Header(result.Headers).Get("Content-Type"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestStripParams(t *testing.T) {
	t.Parallel()

	require.Equal(t, "text/html", stripParams("text/html; charset=gbk"))
	require.Equal(t, "text/html", stripParams("text/html"))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
