package deepcrawl

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/extract"
	"github.com/JakeFAU/opinionscan/internal/storage/memory"
)

type scriptedExtractor struct {
	mu      sync.Mutex
	results map[string]extract.Result
	rules   map[string]*crawler.ExtractionRule
}

func (s *scriptedExtractor) Extract(_ context.Context, rawURL string, rule *crawler.ExtractionRule) extract.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rules == nil {
		s.rules = map[string]*crawler.ExtractionRule{}
	}
	s.rules[rawURL] = rule
	res, ok := s.results[rawURL]
	if !ok {
		return extract.Result{Mode: extract.ModeFailed}
	}
	return res
}

type recordingObserver struct {
	mu     sync.Mutex
	modes  []string
	healed int
}

func (r *recordingObserver) ObserveExtraction(_, mode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
}

func (r *recordingObserver) ObserveRuleHealed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healed++
}

func seed(t *testing.T, store *memory.Store) crawler.ExtractionRule {
	t.Helper()
	ctx := context.Background()
	rule, err := store.SaveRule(ctx, crawler.ExtractionRule{
		SiteName:        "新华网",
		ContentSelector: "//div[@id='gone']",
	})
	require.NoError(t, err)
	_, err = store.SaveItems(ctx, []crawler.CandidateItem{
		{Title: "a", URL: "https://news.cn/a", OriginalURL: "https://news.cn/a", Source: "新华网 2024-05-01"},
		{Title: "b", OriginalURL: "https://other.example/b", Source: "某网站"},
		{Title: "c", URL: "https://dead.example/c", OriginalURL: "https://dead.example/c"},
	})
	require.NoError(t, err)
	return rule
}

func TestRunPersistsDetailsAndHealsRules(t *testing.T) {
	t.Parallel()

	store := memory.New()
	rule := seed(t, store)
	healed := rule.Clone()
	healed.ContentSelector = `//*[@id="main"]`
	ex := &scriptedExtractor{results: map[string]extract.Result{
		"https://news.cn/a": {
			Title: "标题A", Content: "正文A", Mode: extract.ModeHealed,
			Proposal: &crawler.RuleUpdateProposal{Rule: healed, Previous: rule.ContentSelector},
		},
		"https://other.example/b": {Title: "标题B", Mode: extract.ModeHeuristic},
	}}
	obs := &recordingObserver{}
	svc := New(Stores{Items: store, Details: store, Rules: store}, ex, obs, Config{Concurrency: 2}, nil)

	summary, err := svc.Run(context.Background(), []int64{1, 2, 3, 99})
	require.NoError(t, err)
	require.Equal(t, 4, summary.Requested)
	require.Equal(t, 3, summary.Found)
	require.Equal(t, 2, summary.Extracted)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.RulesUpdated)
	require.Len(t, summary.Items, 3)
	require.True(t, summary.Items[0].RuleUpdated)
	require.Equal(t, "https://other.example/b", summary.Items[1].URL)

	ctx := context.Background()
	detail, err := store.GetDetail(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "正文A", detail.Content)
	_, err = store.GetDetail(ctx, 3)
	require.ErrorIs(t, err, crawler.ErrNotFound)

	items, err := store.GetItems(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.True(t, items[0].IsDeepCrawled)
	require.True(t, items[1].IsDeepCrawled)
	require.False(t, items[2].IsDeepCrawled)

	stored, err := store.FindRuleBySite(ctx, "新华网")
	require.NoError(t, err)
	require.Equal(t, `//*[@id="main"]`, stored.ContentSelector)

	require.NotNil(t, ex.rules["https://news.cn/a"])
	require.Nil(t, ex.rules["https://other.example/b"])
	require.Len(t, obs.modes, 3)
	require.Equal(t, 1, obs.healed)
}

func TestRunSkipsUnchangedProposal(t *testing.T) {
	t.Parallel()

	store := memory.New()
	rule := seed(t, store)
	ex := &scriptedExtractor{results: map[string]extract.Result{
		"https://news.cn/a": {
			Title: "标题A", Content: "正文A", Mode: extract.ModeRule,
			Proposal: &crawler.RuleUpdateProposal{Rule: rule, Previous: rule.ContentSelector},
		},
	}}
	svc := New(Stores{Items: store, Details: store, Rules: store}, ex, nil, Config{}, nil)

	summary, err := svc.Run(context.Background(), []int64{1})
	require.NoError(t, err)
	require.Zero(t, summary.RulesUpdated)
}

type failingItems struct{ crawler.ItemStore }

func (failingItems) GetItems(context.Context, []int64) ([]crawler.StoredItem, error) {
	return nil, errors.New("db down")
}

func TestRunReportsLoadFailure(t *testing.T) {
	t.Parallel()

	store := memory.New()
	svc := New(Stores{Items: failingItems{}, Details: store, Rules: store}, &scriptedExtractor{}, nil, Config{}, nil)
	_, err := svc.Run(context.Background(), []int64{1})
	require.ErrorContains(t, err, "db down")
}

func TestRunItemWithoutURL(t *testing.T) {
	t.Parallel()

	store := memory.New()
	_, err := store.SaveItems(context.Background(), []crawler.CandidateItem{{Title: "x"}})
	require.NoError(t, err)
	svc := New(Stores{Items: store, Details: store, Rules: store}, &scriptedExtractor{}, nil, Config{}, nil)

	summary, err := svc.Run(context.Background(), []int64{1})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, "item has no url", summary.Items[0].Error)
}
