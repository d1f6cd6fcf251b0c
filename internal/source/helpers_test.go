package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/progress"
)

// fakeFetcher serves canned bodies by URL and records every request.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	requests []crawler.FetchRequest
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, failures: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	if err, ok := f.failures[req.URL]; ok {
		return crawler.FetchResponse{}, err
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, errors.New("404 Not Found")
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeResolver maps wrapper links to "<link>#resolved" and records calls.
type fakeResolver struct {
	mu       sync.Mutex
	redirect []string
	embedded []string
}

func (r *fakeResolver) Resolve(_ context.Context, rawURL string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redirect = append(r.redirect, rawURL)
	if rawURL == "" {
		return ""
	}
	return rawURL + "#resolved"
}

func (r *fakeResolver) ResolveEmbedded(_ context.Context, rawURL string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedded = append(r.embedded, rawURL)
	return "https://www.sohu.com/a/real"
}

type acceptAll struct{}

func (acceptAll) IsValid(crawler.CandidateItem) bool { return true }

// baiduResults renders n baidu result containers labelled with prefix.
func baiduResults(prefix string, n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="content_left">`)
	for i := range n {
		fmt.Fprintf(&b, `<div class="result c-container xpath-log new-pmd">
<h3 class="t"><a href="http://www.baidu.com/link?url=%s-%d">%s 标题 %d</a></h3>
<div class="c-abstract">摘要 %d</div>
<img src="https://img.example/%s-%d.jpg">
<span class="c-color-gray2">2024-05-0%d</span>
<a class="c-showurl">新华网</a>
</div>`, prefix, i, prefix, i, i, prefix, i, i%9+1)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func drain(seq func(func(progress.Event) bool)) []progress.Event {
	var events []progress.Event
	for evt := range seq {
		events = append(events, evt)
	}
	return events
}

func testDeps(f crawler.Fetcher, r crawler.Resolver) Deps {
	return Deps{Fetcher: f, Resolver: r, Validator: acceptAll{}, Pacer: NoPacer}
}
