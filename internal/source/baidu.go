package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/resolver"
)

const (
	baiduHost        = "https://www.baidu.com"
	baiduSearchURL   = baiduHost + "/s?ie=utf-8&f=8&rsv_bp=1&rsv_idx=1&tn=baidu&wd=%s&pn=%d"
	baiduPageSize    = 10
	baiduSourceLabel = "Baidu Search"
)

// NewBaidu builds the search-engine listing connector. Pages are addressed
// by result offset.
func NewBaidu(deps Deps) Connector {
	return newConnector(Baidu, baiduPager{}, deps)
}

type baiduPager struct{}

func (baiduPager) pageURL(q Query, page int) string {
	return fmt.Sprintf(baiduSearchURL, url.QueryEscape(q.Keyword), (page-1)*baiduPageSize)
}

func (baiduPager) parse(ctx context.Context, doc *goquery.Document, _ string, _ Query, resolve resolveFunc) []crawler.CandidateItem {
	containers := doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		class := s.AttrOr("class", "")
		return strings.Contains(class, "result") && strings.Contains(class, "c-container")
	})
	if containers.Length() == 0 {
		containers = doc.Find("div.result")
	}

	var items []crawler.CandidateItem
	containers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		heading := s.Find("h3").First()
		if heading.Length() == 0 {
			return true
		}
		item := crawler.CandidateItem{
			Title:       text(heading),
			URL:         strings.TrimSpace(heading.Find("a").First().AttrOr("href", "")),
			Cover:       crawler.AbsoluteURL(baiduHost, s.Find("img[src]").First().AttrOr("src", "")),
			Summary:     firstText(s, ".c-abstract", "[class*='content-right']"),
			PublishDate: firstText(s, ".c-color-gray2", ".newTimeFactor_before_abs"),
			Source:      baiduSource(s),
		}
		if strings.HasPrefix(item.URL, "/") {
			item.URL = baiduHost + item.URL
		}
		if resolver.IsRedirectWrapper(item.URL) {
			item.OriginalURL = resolve(ctx, item.URL, false)
		} else {
			item.OriginalURL = item.URL
		}
		items = append(items, item)
		return true
	})
	return items
}

func baiduSource(s *goquery.Selection) string {
	if label := firstText(s, "[class*='c-showurl'], [class*='c-source']", ".c-gap-right"); label != "" {
		return label
	}
	return baiduSourceLabel
}
