package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	restyfetcher "github.com/JakeFAU/opinionscan/internal/fetcher/resty"
)

const articlePage = `<html><head><title>页面标题 - 某网</title>
<meta property="og:title" content="OG 标题">
<script>var headline = "脚本标题";</script></head>
<body><div class="nav">导航</div>
<div id="main"><h1>新闻大标题</h1>
<p>第一段。</p><p>第二段。</p><p>第三段。</p><p>第四段  带双空格</p>
<script>var hidden = "脚本内容";</script></div>
<style>.x{color:red}</style></body></html>`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newExtractor(res crawler.Resolver) *Extractor {
	return New(restyfetcher.New(restyfetcher.Config{}), res, Config{}, nil)
}

func TestExtractRulePass(t *testing.T) {
	t.Parallel()

	srv := serve(t, articlePage)
	rule := &crawler.ExtractionRule{TitleSelector: "//h1", ContentSelector: `//div[@id="main"]/p`}

	res := newExtractor(nil).Extract(context.Background(), srv.URL, rule)
	require.Equal(t, ModeRule, res.Mode)
	require.Equal(t, "新闻大标题", res.Title)
	require.Equal(t, "第一段。\n第二段。\n第三段。\n第四段\n带双空格", res.Content)
	require.Nil(t, res.Proposal)
}

func TestExtractRuleContentWithFallbackTitle(t *testing.T) {
	t.Parallel()

	srv := serve(t, articlePage)
	rule := &crawler.ExtractionRule{ContentSelector: `//div[@id="main"]/p`}

	res := newExtractor(nil).Extract(context.Background(), srv.URL, rule)
	require.Equal(t, ModeRule, res.Mode)
	require.Equal(t, "OG 标题", res.Title)
	require.Equal(t, "第一段。\n第二段。\n第三段。\n第四段\n带双空格", res.Content)
	require.Nil(t, res.Proposal)
}

func TestExtractHealsFailingRule(t *testing.T) {
	t.Parallel()

	srv := serve(t, articlePage)
	rule := &crawler.ExtractionRule{
		ID:              7,
		SiteName:        "新华网",
		TitleSelector:   "//h2[@class='nope']",
		ContentSelector: "//div[@class='gone']",
		Headers:         map[string]string{"Referer": "https://news.example/"},
	}
	ex := newExtractor(nil)

	res := ex.Extract(context.Background(), srv.URL, rule)
	require.Equal(t, ModeHealed, res.Mode)
	require.Equal(t, "OG 标题", res.Title)
	require.Contains(t, res.Content, "第一段。")
	require.NotContains(t, res.Content, "脚本内容")
	require.NotNil(t, res.Proposal)
	require.Equal(t, `//*[@id="main"]`, res.Proposal.Rule.ContentSelector)
	require.NotEqual(t, rule.ContentSelector, res.Proposal.Rule.ContentSelector)
	require.Equal(t, "//div[@class='gone']", res.Proposal.Previous)
	require.Equal(t, int64(7), res.Proposal.Rule.ID)
	require.Equal(t, rule.TitleSelector, res.Proposal.Rule.TitleSelector)
	require.Equal(t, "//div[@class='gone']", rule.ContentSelector, "input rule is not modified")

	healed := res.Proposal.Rule
	again := ex.Extract(context.Background(), srv.URL, &healed)
	require.Nil(t, again.Proposal)
	require.NotEmpty(t, again.Content)
	require.Equal(t, res.Content, again.Content)
}

func TestExtractWithoutRuleNeverProposes(t *testing.T) {
	t.Parallel()

	srv := serve(t, articlePage)
	res := newExtractor(nil).Extract(context.Background(), srv.URL, nil)
	require.Equal(t, ModeHeuristic, res.Mode)
	require.Equal(t, "OG 标题", res.Title)
	require.NotEmpty(t, res.Content)
	require.Nil(t, res.Proposal)
}

func TestExtractInvalidExpressionFallsBack(t *testing.T) {
	t.Parallel()

	srv := serve(t, articlePage)
	res := newExtractor(nil).Extract(context.Background(), srv.URL, &crawler.ExtractionRule{ContentSelector: "//div["})
	require.Equal(t, ModeHealed, res.Mode)
	require.NotNil(t, res.Proposal)
	require.Equal(t, "//div[", res.Proposal.Previous)
}

func TestExtractFailureIsEmpty(t *testing.T) {
	t.Parallel()

	srv := serve(t, articlePage)
	ex := newExtractor(nil)

	res := ex.Extract(context.Background(), srv.URL+"/missing", &crawler.ExtractionRule{ContentSelector: "//p"})
	require.Equal(t, Result{Mode: ModeFailed}, res)
	require.Equal(t, Result{Mode: ModeFailed}, ex.Extract(context.Background(), "", nil))
}

func TestExtractSendsRuleHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "sid=1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(articlePage))
	}))
	t.Cleanup(srv.Close)

	ex := newExtractor(nil)
	require.Equal(t, ModeFailed, ex.Extract(context.Background(), srv.URL, nil).Mode)

	res := ex.Extract(context.Background(), srv.URL, &crawler.ExtractionRule{
		Headers:         map[string]string{"cookie": "sid=1"},
		ContentSelector: `//*[@id="main"]`,
	})
	require.Contains(t, res.Content, "第四段")
}

func TestExtractResolvesEmbeddedWrapper(t *testing.T) {
	t.Parallel()

	srv := serve(t, articlePage)
	res := newExtractor(stubResolver{target: srv.URL + "/a/1"}).
		Extract(context.Background(), "https://www.sogou.com/link?url=abc", nil)
	require.Equal(t, "OG 标题", res.Title)
}

func TestTitleFallbackOrder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		page string
		want string
	}{
		{"title tag", `<html><head><title> 标签 标题 </title></head><body><h1>H1</h1></body></html>`, "标签 标题"},
		{"h1", `<html><body><h1>只有 H1</h1></body></html>`, "只有 H1"},
		{"empty og skipped", `<html><head><meta property="og:title" content=" "><title>T</title></head></html>`, "T"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := serve(t, tc.page)
			require.Equal(t, tc.want, newExtractor(nil).Extract(context.Background(), srv.URL, nil).Title)
		})
	}
}

func TestLongestCandidateWins(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("长", 600)
	page := `<html><body>
<article><p>短文章</p></article>
<section class="story body"><span>` + long + `</span></section>
</body></html>`
	srv := serve(t, page)

	res := newExtractor(nil).Extract(context.Background(), srv.URL, &crawler.ExtractionRule{ContentSelector: "//nothing"})
	require.Equal(t, long, res.Content)
	require.NotNil(t, res.Proposal)
	require.Equal(t, `//section[contains(@class, "story")]`, res.Proposal.Rule.ContentSelector)
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a\nb\nc", cleanText("  a  \n\n b  c \n   "))
	require.Empty(t, cleanText(" \n \t\n"))
}

type stubResolver struct {
	target string
}

func (s stubResolver) Resolve(_ context.Context, raw string) string { return raw }

func (s stubResolver) ResolveEmbedded(context.Context, string) string { return s.target }
