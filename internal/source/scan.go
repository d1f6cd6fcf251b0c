package source

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/progress"
)

const defaultPageTimeout = 10 * time.Second

// resolveFunc maps an intermediate link to its destination. embedded
// selects body parsing over HTTP redirects.
type resolveFunc func(ctx context.Context, rawURL string, embedded bool) string

// pager is the per-source part of a scan.
type pager interface {
	pageURL(q Query, page int) string
	// parse extracts the page's candidates with absolute, resolved URLs.
	// Entries without a title are skipped.
	parse(ctx context.Context, doc *goquery.Document, pageURL string, q Query, resolve resolveFunc) []crawler.CandidateItem
}

// connector runs the shared scan loop over a pager.
type connector struct {
	name  string
	pager pager
	deps  Deps
	log   *zap.Logger
}

func newConnector(name string, p pager, deps Deps) *connector {
	if deps.Pacer == nil {
		deps.Pacer = RandomPacer{Min: time.Second, Max: 2 * time.Second}
	}
	if deps.Timeout <= 0 {
		deps.Timeout = defaultPageTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("source").With(zap.String("source", name))
	logger.Debug("connector ready",
		zap.String("headers_version", deps.HeadersVersion),
		zap.Int("headers", len(deps.Headers)))
	return &connector{name: name, pager: p, deps: deps, log: logger}
}

// Name implements Connector.
func (c *connector) Name() string { return c.name }

// Scrape implements Connector.
func (c *connector) Scrape(ctx context.Context, q Query) iter.Seq[progress.Event] {
	pages := max(q.Pages, 1)
	return func(yield func(progress.Event) bool) {
		var items []crawler.CandidateItem
		for page := 1; page <= pages; page++ {
			if ctx.Err() != nil {
				return
			}
			if q.Limit > 0 && len(items) >= q.Limit {
				break
			}
			if !yield(progress.Progress(page, pages, fmt.Sprintf("正在采集第 %d/%d 页...", page, pages))) {
				return
			}
			accepted, err := c.collect(ctx, q, page)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.log.Warn("listing page failed", zap.Int("page", page), zap.Error(err))
				if !yield(progress.Error(err.Error())) {
					return
				}
				break
			}
			if len(accepted) == 0 {
				c.log.Debug("empty listing page, stopping", zap.Int("page", page))
				break
			}
			items = append(items, accepted...)
			if page < pages && (q.Limit == 0 || len(items) < q.Limit) {
				if err := c.deps.Pacer.Wait(ctx); err != nil {
					return
				}
			}
		}
		if q.Limit > 0 && len(items) > q.Limit {
			items = items[:q.Limit]
		}
		yield(progress.Result(items))
	}
}

// collect fetches one listing page and returns the accepted items.
func (c *connector) collect(ctx context.Context, q Query, page int) ([]crawler.CandidateItem, error) {
	pageURL := c.pager.pageURL(q, page)
	resp, err := c.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     pageURL,
		Headers: c.deps.Headers,
		Timeout: c.deps.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page %d: %w", page, err)
	}
	base := resp.URL
	if base == "" {
		base = pageURL
	}
	candidates := c.pager.parse(ctx, doc, base, q, c.resolve)
	accepted := make([]crawler.CandidateItem, 0, len(candidates))
	for _, item := range candidates {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		item.Keyword = q.Keyword
		if c.deps.Validator != nil && !c.deps.Validator.IsValid(item) {
			continue
		}
		accepted = append(accepted, item)
	}
	c.log.Debug("listing page parsed",
		zap.Int("page", page),
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(accepted)))
	return accepted, nil
}

// resolve runs the resolver unless ctx is already done.
func (c *connector) resolve(ctx context.Context, rawURL string, embedded bool) string {
	if rawURL == "" || c.deps.Resolver == nil || ctx.Err() != nil {
		return rawURL
	}
	if embedded {
		return c.deps.Resolver.ResolveEmbedded(ctx, rawURL)
	}
	return c.deps.Resolver.Resolve(ctx, rawURL)
}

// text returns the whitespace-collapsed text of sel.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// firstText returns the text of the first selector that yields any.
func firstText(scope *goquery.Selection, selectors ...string) string {
	for _, s := range selectors {
		if t := text(scope.Find(s).First()); t != "" {
			return t
		}
	}
	return ""
}
