package source

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// Defaults for the government news listing.
const (
	DefaultGovListingURL  = "https://www.gov.cn/yaowen/liebiao/home.htm"
	DefaultGovSourceLabel = "中国政府网"
)

// GovConfig points the listing connector at a chronological news index.
type GovConfig struct {
	ListingURL  string
	SourceLabel string
}

// NewGov builds the listing connector for sites without a query
// parameter. Entries whose title lacks the keyword are dropped.
func NewGov(deps Deps, cfg GovConfig) Connector {
	if cfg.ListingURL == "" {
		cfg.ListingURL = DefaultGovListingURL
	}
	if cfg.SourceLabel == "" {
		cfg.SourceLabel = DefaultGovSourceLabel
	}
	return newConnector(Gov, govPager{cfg: cfg}, deps)
}

type govPager struct {
	cfg GovConfig
}

// pageURL guesses the static pagination scheme: page 1 is the listing URL
// itself, page K is "<name>_<K-1>.<ext>" next to it.
func (p govPager) pageURL(_ Query, page int) string {
	return PagedURL(p.cfg.ListingURL, page)
}

// PagedURL derives the URL of page from a static listing URL.
func PagedURL(listing string, page int) string {
	if page <= 1 {
		return listing
	}
	u, err := url.Parse(listing)
	if err != nil {
		return listing
	}
	dir, file := path.Split(u.Path)
	if file == "" || !strings.Contains(file, ".") {
		if file != "" {
			dir += file + "/"
		}
		if dir == "" {
			dir = "/"
		}
		u.Path = fmt.Sprintf("%sindex_%d.html", dir, page-1)
		return u.String()
	}
	ext := path.Ext(file)
	u.Path = fmt.Sprintf("%s%s_%d%s", dir, strings.TrimSuffix(file, ext), page-1, ext)
	return u.String()
}

func (p govPager) parse(ctx context.Context, doc *goquery.Document, pageURL string, q Query, _ resolveFunc) []crawler.CandidateItem {
	keyword := strings.TrimSpace(q.Keyword)
	seen := make(map[string]struct{})
	var items []crawler.CandidateItem
	doc.Find("li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		link := s.Find("a[href]").First()
		if link.Length() == 0 {
			return true
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return true
		}
		title := text(link)
		if title == "" {
			title = strings.TrimSpace(link.AttrOr("title", ""))
		}
		if title == "" || (keyword != "" && !strings.Contains(title, keyword)) {
			return true
		}
		abs := crawler.AbsoluteURL(pageURL, href)
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		items = append(items, crawler.CandidateItem{
			Title:       title,
			URL:         abs,
			OriginalURL: abs,
			Source:      p.cfg.SourceLabel,
			PublishDate: text(s.Find("span").First()),
		})
		return true
	})
	return items
}
