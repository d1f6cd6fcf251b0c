package cmd

import (
	"bytes"
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/api"
	"github.com/JakeFAU/opinionscan/internal/app"
	"github.com/JakeFAU/opinionscan/internal/config"
	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/deepcrawl"
	"github.com/JakeFAU/opinionscan/internal/extract"
	"github.com/JakeFAU/opinionscan/internal/progress"
	"github.com/JakeFAU/opinionscan/internal/source"
	"github.com/JakeFAU/opinionscan/internal/storage/memory"
)

type fixedConnector struct{}

func (fixedConnector) Name() string { return source.Baidu }

func (fixedConnector) Scrape(_ context.Context, q source.Query) iter.Seq[progress.Event] {
	return func(yield func(progress.Event) bool) {
		if !yield(progress.Progress(1, 1, "正在采集第 1/1 页...")) {
			return
		}
		yield(progress.Result([]crawler.CandidateItem{
			{Title: q.Keyword + "新闻", URL: "https://a.example", OriginalURL: "https://a.example"},
		}))
	}
}

type fixedExtractor struct{ rule *crawler.ExtractionRule }

func (f *fixedExtractor) Extract(_ context.Context, _ string, rule *crawler.ExtractionRule) extract.Result {
	f.rule = rule
	return extract.Result{Title: "标题", Content: "正文", Mode: extract.ModeHeuristic}
}

type fixedDeepCrawler struct{ ids []int64 }

func (f *fixedDeepCrawler) Run(_ context.Context, ids []int64) (deepcrawl.Summary, error) {
	f.ids = ids
	return deepcrawl.Summary{Requested: len(ids)}, nil
}

type fakeApp struct {
	store     *memory.Store
	extractor *fixedExtractor
	deep      *fixedDeepCrawler
	closed    bool
}

func newFakeApp() *fakeApp {
	return &fakeApp{store: memory.New(), extractor: &fixedExtractor{}, deep: &fixedDeepCrawler{}}
}

func (f *fakeApp) Logger() *zap.Logger        { return zap.NewNop() }
func (f *fakeApp) Sources() *source.Registry  { return source.NewRegistry(fixedConnector{}) }
func (f *fakeApp) Extractor() api.Extractor   { return f.extractor }
func (f *fakeApp) DeepCrawl() api.DeepCrawler { return f.deep }
func (f *fakeApp) Store() app.Store           { return f.store }
func (f *fakeApp) Emitter() progress.Emitter  { return nil }

func (f *fakeApp) APIServer() *api.Server {
	return api.NewServer(api.Deps{Sources: f.Sources()}, api.Config{}, nil)
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

func runCommand(t *testing.T, fake *fakeApp, args ...string) (string, error) {
	t.Helper()
	original := newApp
	newApp = func(context.Context, string) (App, *config.Config, error) {
		return fake, &config.Config{}, nil
	}
	t.Cleanup(func() { newApp = original })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapeCommandStreamsAndSaves(t *testing.T) {
	fake := newFakeApp()
	out, err := runCommand(t, fake, "scrape", "宜宾", "--save")
	require.NoError(t, err)
	require.True(t, fake.closed)

	var events []progress.Event
	for evt, err := range progress.Decode(bytes.NewBufferString(out)) {
		require.NoError(t, err)
		events = append(events, evt)
	}
	require.Len(t, events, 2)
	require.Equal(t, "宜宾新闻", events[1].Data[0].Title)

	items, err := fake.store.GetItems(context.Background(), []int64{1})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestScrapeCommandUnknownSource(t *testing.T) {
	_, err := runCommand(t, newFakeApp(), "scrape", "k", "--source", "bing")
	require.ErrorIs(t, err, source.ErrUnknownSource)
}

func TestExtractCommandUsesStoredRule(t *testing.T) {
	fake := newFakeApp()
	_, err := fake.store.SaveRule(context.Background(), crawler.ExtractionRule{SiteName: "新华网", ContentSelector: "//div"})
	require.NoError(t, err)

	out, err := runCommand(t, fake, "extract", "https://news.cn/a", "--site", "新华网")
	require.NoError(t, err)
	require.Contains(t, out, `"content": "正文"`)
	require.NotNil(t, fake.extractor.rule)
	require.Equal(t, "新华网", fake.extractor.rule.SiteName)
}

func TestDeepCrawlCommandParsesIDs(t *testing.T) {
	fake := newFakeApp()
	out, err := runCommand(t, fake, "deep-crawl", "3", "5")
	require.NoError(t, err)
	require.Equal(t, []int64{3, 5}, fake.deep.ids)
	require.Contains(t, out, `"requested":2`)

	_, err = runCommand(t, newFakeApp(), "deep-crawl", "x")
	require.ErrorContains(t, err, `invalid id "x"`)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, serve(ctx, newFakeApp(), 0))
}
