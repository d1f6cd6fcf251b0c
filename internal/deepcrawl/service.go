// Package deepcrawl runs the extractor over stored listing items and
// persists what it finds.
package deepcrawl

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/extract"
	"github.com/JakeFAU/opinionscan/internal/rules"
)

const defaultConcurrency = 4

// Extractor is the subset of extract.Extractor the service needs.
type Extractor interface {
	Extract(ctx context.Context, rawURL string, rule *crawler.ExtractionRule) extract.Result
}

// Observer receives per-item outcomes. It is satisfied by *metrics.Metrics.
type Observer interface {
	ObserveExtraction(rawURL, mode string)
	ObserveRuleHealed()
}

// Stores bundles the persistence collaborators.
type Stores struct {
	Items   crawler.ItemStore
	Details crawler.DetailStore
	Rules   crawler.RuleStore
}

// Config controls fan-out.
type Config struct {
	Concurrency int
}

// ItemOutcome describes what happened to one stored item.
type ItemOutcome struct {
	ID          int64        `json:"id"`
	URL         string       `json:"url"`
	Mode        extract.Mode `json:"mode"`
	Title       string       `json:"title,omitempty"`
	RuleUpdated bool         `json:"rule_updated,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Summary aggregates a batch.
type Summary struct {
	Requested    int           `json:"requested"`
	Found        int           `json:"found"`
	Extracted    int           `json:"extracted"`
	Failed       int           `json:"failed"`
	RulesUpdated int           `json:"rules_updated"`
	Items        []ItemOutcome `json:"items"`
}

// Service deep-crawls stored items.
type Service struct {
	stores    Stores
	extractor Extractor
	observer  Observer
	cfg       Config
	logger    *zap.Logger
}

// New builds a Service. observer may be nil.
func New(stores Stores, extractor Extractor, observer Observer, cfg Config, logger *zap.Logger) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		stores:    stores,
		extractor: extractor,
		observer:  observer,
		cfg:       cfg,
		logger:    logger.Named("deepcrawl"),
	}
}

// Run deep-crawls the items with the given IDs. Per-item failures are
// reported in the summary; the returned error covers loading the batch and
// cancellation only.
func (s *Service) Run(ctx context.Context, ids []int64) (Summary, error) {
	summary := Summary{Requested: len(ids)}
	items, err := s.stores.Items.GetItems(ctx, ids)
	if err != nil {
		return summary, fmt.Errorf("load items: %w", err)
	}
	summary.Found = len(items)

	outcomes := make([]ItemOutcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = s.crawl(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch {
		case o.Error != "" || o.Mode == extract.ModeFailed:
			summary.Failed++
		default:
			summary.Extracted++
		}
		if o.RuleUpdated {
			summary.RulesUpdated++
		}
	}
	summary.Items = outcomes
	s.logger.Info("deep crawl finished",
		zap.Int("requested", summary.Requested),
		zap.Int("extracted", summary.Extracted),
		zap.Int("failed", summary.Failed),
		zap.Int("rules_updated", summary.RulesUpdated),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("deep crawl: %w", err)
	}
	return summary, nil
}

func (s *Service) crawl(ctx context.Context, stored crawler.StoredItem) ItemOutcome {
	target := stored.Item.URL
	if target == "" {
		target = stored.Item.OriginalURL
	}
	outcome := ItemOutcome{ID: stored.ID, URL: target, Mode: extract.ModeFailed}
	if target == "" {
		outcome.Error = "item has no url"
		return outcome
	}
	logger := s.logger.With(zap.Int64("item_id", stored.ID), zap.String("url", target))

	rule, err := rules.Lookup(ctx, s.stores.Rules, stored.Item.Source)
	if err != nil {
		logger.Warn("rule lookup failed, using heuristics", zap.Error(err))
		rule = nil
	}

	res := s.extractor.Extract(ctx, target, rule)
	outcome.Mode = res.Mode
	outcome.Title = res.Title
	if s.observer != nil {
		s.observer.ObserveExtraction(target, string(res.Mode))
	}
	if res.Title == "" && res.Content == "" {
		return outcome
	}

	if err := s.stores.Details.UpsertDetail(ctx, crawler.Detail{
		OpinionID: stored.ID,
		Title:     res.Title,
		Content:   res.Content,
	}); err != nil {
		logger.Error("save detail failed", zap.Error(err))
		outcome.Error = err.Error()
		return outcome
	}
	if err := s.stores.Items.MarkDeepCrawled(ctx, stored.ID); err != nil {
		logger.Error("mark deep crawled failed", zap.Error(err))
		outcome.Error = err.Error()
		return outcome
	}

	updated, err := rules.Apply(ctx, s.stores.Rules, rule, res.Proposal)
	if err != nil {
		logger.Warn("rule update failed", zap.Error(err))
		return outcome
	}
	if updated {
		outcome.RuleUpdated = true
		if s.observer != nil {
			s.observer.ObserveRuleHealed()
		}
		logger.Info("rule healed",
			zap.String("site", rule.SiteName),
			zap.String("content_xpath", res.Proposal.Rule.ContentSelector),
		)
	}
	return outcome
}
