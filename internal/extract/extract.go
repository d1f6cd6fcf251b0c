// Package extract pulls the title and body text out of an article page.
//
// Extraction runs in two passes. The rule pass evaluates the site's XPath
// selectors. Whatever it leaves empty is filled by the heuristic pass, which
// looks for a title in page metadata and picks the longest content block.
// When a rule was supplied but its content selector found nothing, the
// block the heuristic chose is turned into a new selector and returned as a
// RuleUpdateProposal so the rule can heal itself.
package extract

import (
	"bytes"
	"context"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/resolver"
	"github.com/JakeFAU/opinionscan/internal/selector"
)

// Mode reports how a Result was produced.
type Mode string

// Extraction modes.
const (
	ModeRule      Mode = "rule"
	ModeHeuristic Mode = "heuristic"
	ModeHealed    Mode = "healed"
	ModeFailed    Mode = "failed"
)

// Result is the extracted article. Empty Title and Content with ModeFailed
// means the page could not be fetched or held nothing usable.
type Result struct {
	Title    string                      `json:"title"`
	Content  string                      `json:"content"`
	Proposal *crawler.RuleUpdateProposal `json:"proposal,omitempty"`
	Mode     Mode                        `json:"mode"`
}

// Config tunes the heuristic pass.
type Config struct {
	Timeout time.Duration
	// MinBlockChars is the text length above which any block is a content
	// candidate.
	MinBlockChars int
	// MinParagraphs is the number of direct <p> children above which an
	// element is a content candidate.
	MinParagraphs int
}

const (
	defaultTimeout       = 10 * time.Second
	defaultMinBlockChars = 500
	defaultMinParagraphs = 3
)

// Extractor fetches pages and extracts article text.
type Extractor struct {
	fetcher  crawler.Fetcher
	resolver crawler.Resolver
	cfg      Config
	logger   *zap.Logger
}

// New builds an Extractor. resolver may be nil, in which case wrapper links
// are fetched as-is.
func New(fetcher crawler.Fetcher, res crawler.Resolver, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MinBlockChars <= 0 {
		cfg.MinBlockChars = defaultMinBlockChars
	}
	if cfg.MinParagraphs <= 0 {
		cfg.MinParagraphs = defaultMinParagraphs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, resolver: res, cfg: cfg, logger: logger.Named("extract")}
}

// Extract fetches rawURL and extracts its article. It never fails; errors
// are logged and yield an empty ModeFailed result. rule may be nil.
func (e *Extractor) Extract(ctx context.Context, rawURL string, rule *crawler.ExtractionRule) Result {
	failed := Result{Mode: ModeFailed}
	if rawURL == "" {
		return failed
	}
	target := rawURL
	if e.resolver != nil && resolver.IsEmbeddedWrapper(rawURL) {
		target = e.resolver.ResolveEmbedded(ctx, rawURL)
	}

	var headers map[string]string
	if rule != nil {
		headers = rule.Headers
	}
	resp, err := e.fetcher.Fetch(ctx, crawler.FetchRequest{URL: target, Headers: headers, Timeout: e.cfg.Timeout})
	if err != nil {
		e.logger.Warn("deep crawl fetch failed", zap.String("url", target), zap.Error(err))
		return failed
	}
	doc, err := htmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		e.logger.Warn("deep crawl parse failed", zap.String("url", target), zap.Error(err))
		return failed
	}

	var res Result
	if rule != nil {
		res.Title = ruleTitle(doc, rule.TitleSelector)
		res.Content = ruleContent(doc, rule.ContentSelector)
	}
	titleHeuristic, contentHeuristic := false, false
	if res.Title == "" {
		if res.Title = fallbackTitle(doc); res.Title != "" {
			titleHeuristic = true
		}
	}
	if res.Content == "" {
		if block := e.bestBlock(doc); block != nil {
			res.Content = block.text
			contentHeuristic = true
			if rule != nil {
				res.Proposal = propose(*rule, selector.Derive(block.node))
			}
		}
	}

	switch {
	case res.Title == "" && res.Content == "":
		res.Mode = ModeFailed
	case res.Proposal != nil:
		res.Mode = ModeHealed
	// The content pass decides the mode. A fallback title alone only counts
	// when there is no content at all.
	case contentHeuristic, res.Content == "" && titleHeuristic:
		res.Mode = ModeHeuristic
	default:
		res.Mode = ModeRule
	}
	e.logger.Debug("deep crawl extracted",
		zap.String("url", target),
		zap.String("mode", string(res.Mode)),
		zap.Int("content_chars", len(res.Content)))
	return res
}

// propose copies rule with the derived content selector. It returns nil
// when the selector is unusable or unchanged.
func propose(rule crawler.ExtractionRule, derived string) *crawler.RuleUpdateProposal {
	if derived == "" || derived == rule.ContentSelector {
		return nil
	}
	healed := rule.Clone()
	healed.ContentSelector = derived
	return &crawler.RuleUpdateProposal{Rule: healed, Previous: rule.ContentSelector}
}
