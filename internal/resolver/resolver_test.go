package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	restyfetcher "github.com/JakeFAU/opinionscan/internal/fetcher/resty"
)

func newTestResolver() *Resolver {
	client := restyfetcher.New(restyfetcher.Config{})
	return New(client, client, Config{
		HeadTimeout:   time.Second,
		StreamTimeout: time.Second,
		BodyTimeout:   time.Second,
	}, nil)
}

func TestResolveFollowsRedirect(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/link", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/article/1", http.StatusFound)
	})
	mux.HandleFunc("/article/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	require.Equal(t, srv.URL+"/article/1", newTestResolver().Resolve(context.Background(), srv.URL+"/link?url=abc"))
}

func TestResolveFallsBackToStreamWhenHeadFails(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/link", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		http.Redirect(w, r, "/dest", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/dest", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("dest"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	require.Equal(t, srv.URL+"/dest", newTestResolver().Resolve(context.Background(), srv.URL+"/link"))
}

func TestResolveUnreachableReturnsInput(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	raw := srv.URL + "/link?url=gone"
	srv.Close()

	require.Equal(t, raw, newTestResolver().Resolve(context.Background(), raw))
	require.Equal(t, raw, newTestResolver().ResolveEmbedded(context.Background(), raw))
}

func TestResolveEmptyInput(t *testing.T) {
	t.Parallel()

	r := newTestResolver()
	require.Empty(t, r.Resolve(context.Background(), ""))
	require.Empty(t, r.ResolveEmbedded(context.Background(), ""))
}

func TestResolveEmbeddedReadsBody(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/link", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><script>window.location.replace("/landing?a=1&amp;b=2")</script>
<noscript><META http-equiv="refresh" content="0;URL='https://other.example/'"></noscript></head></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	got := newTestResolver().ResolveEmbedded(context.Background(), srv.URL+"/link?url=xyz")
	require.Equal(t, srv.URL+"/landing?a=1&b=2", got)
}

func TestEmbeddedTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"replace", `<script>window.location.replace("https://a.example/x")</script>`, "https://a.example/x"},
		{"href", `<script>location.href = 'https://b.example/y';</script>`, "https://b.example/y"},
		{"meta", `<meta http-equiv="refresh" content="0;URL='https://c.example/z'">`, "https://c.example/z"},
		{"js before meta", `<meta http-equiv="refresh" content="0;URL='https://meta.example'"><script>location.replace('https://js.example')</script>`, "https://js.example"},
		{"none", `<html><body>nothing</body></html>`, ""},
		{"identifier suffix", `<script>var allocation = '/x';</script>`, ""},
		{"member suffix", `<script>cfg.relocation.replace('/y')</script>`, ""},
		{"after assignment", `<script>var allocation = '/x'; window.location.href="https://d.example/w"</script>`, "https://d.example/w"},
		{"line start", "location='https://e.example/v'", "https://e.example/v"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, EmbeddedTarget(tc.body))
		})
	}
}

func TestChainStopsAtFirstTarget(t *testing.T) {
	t.Parallel()

	second := &countingStrategy{target: "https://second.example"}
	chain := Chain{
		stubStrategy{err: errors.New("boom")},
		stubStrategy{target: "https://first.example"},
		second,
	}
	target, err := chain.Resolve(context.Background(), "https://in.example")
	require.NoError(t, err)
	require.Equal(t, "https://first.example", target)
	require.Zero(t, second.calls)
}

func TestChainJoinsFailures(t *testing.T) {
	t.Parallel()

	chain := Chain{stubStrategy{err: errors.New("boom")}, stubStrategy{}}
	_, err := chain.Resolve(context.Background(), "https://in.example")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoTarget)
	require.ErrorContains(t, err, "boom")
}

func TestChainHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	counting := &countingStrategy{target: "https://x.example"}
	r := NewWithChains(Chain{counting}, nil, nil)
	require.Equal(t, "https://in.example", r.Resolve(ctx, "https://in.example"))
	require.Zero(t, counting.calls)
}

func TestWrapperDetection(t *testing.T) {
	t.Parallel()

	require.True(t, IsEmbeddedWrapper("https://www.sogou.com/link?url=abc"))
	require.False(t, IsEmbeddedWrapper("https://www.baidu.com/link?url=abc"))
	require.True(t, IsRedirectWrapper("http://www.baidu.com/link?url=abc"))
	require.False(t, IsRedirectWrapper("https://news.sohu.com/a/1"))
}

func TestBodyStrategyUsesFinalURLAsBase(t *testing.T) {
	t.Parallel()

	s := BodyStrategy{Fetcher: fetcherFunc(func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
		return crawler.FetchResponse{URL: "https://wrapper.example/a/b", Body: []byte(`location.href="../c"`)}, nil
	})}
	target, err := s.Resolve(context.Background(), "https://start.example/")
	require.NoError(t, err)
	require.Equal(t, "https://wrapper.example/c", target)
}

type stubStrategy struct {
	target string
	err    error
}

func (stubStrategy) Name() string { return "stub" }

func (s stubStrategy) Resolve(context.Context, string) (string, error) {
	return s.target, s.err
}

type countingStrategy struct {
	target string
	calls  int
}

func (*countingStrategy) Name() string { return "counting" }

func (s *countingStrategy) Resolve(context.Context, string) (string, error) {
	s.calls++
	return s.target, nil
}

type fetcherFunc func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error)

func (f fetcherFunc) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	return f(ctx, req)
}
