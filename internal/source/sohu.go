package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/resolver"
)

const (
	sogouHost        = "https://www.sogou.com"
	sogouSearchURL   = sogouHost + "/web?query=%s&page=%d"
	sohuSiteScope    = "site:sohu.com "
	sohuSourceLabel  = "Sohu"
	sohuSummaryQuery = ".str-text-info, .star-wiki, .ft, p.str_info"
)

var datePattern = regexp.MustCompile(`\d{4}[-/.年]\d{1,2}[-/.月]\d{1,2}日?`)

// NewSohu builds the search-engine-proxied connector: sogou web search
// scoped to sohu.com. Result links are sogou wrappers whose destination is
// embedded in the response body.
func NewSohu(deps Deps) Connector {
	return newConnector(Sohu, sohuPager{}, deps)
}

type sohuPager struct{}

func (sohuPager) pageURL(q Query, page int) string {
	return fmt.Sprintf(sogouSearchURL, url.QueryEscape(sohuSiteScope+q.Keyword), page)
}

func (sohuPager) parse(ctx context.Context, doc *goquery.Document, _ string, _ Query, resolve resolveFunc) []crawler.CandidateItem {
	var items []crawler.CandidateItem
	doc.Find("div.vrwrap, div.rb").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if ctx.Err() != nil {
			return false
		}
		heading := s.Find("h3").First()
		if heading.Length() == 0 {
			return true
		}
		cite := firstText(s, ".citeurl", "cite")
		label, date := splitCite(cite)
		item := crawler.CandidateItem{
			Title:       text(heading),
			URL:         strings.TrimSpace(heading.Find("a").First().AttrOr("href", "")),
			Cover:       coverOf(s),
			Summary:     firstText(s, sohuSummaryQuery),
			Source:      label,
			PublishDate: date,
		}
		if strings.HasPrefix(item.URL, "/") {
			item.URL = sogouHost + item.URL
		}
		if resolver.IsEmbeddedWrapper(item.URL) {
			item.OriginalURL = resolve(ctx, item.URL, true)
		} else {
			item.OriginalURL = item.URL
		}
		items = append(items, item)
		return true
	})
	return items
}

// splitCite separates the "label - date" source line sogou prints under
// each result.
func splitCite(cite string) (string, string) {
	date := datePattern.FindString(cite)
	label := cite
	if date != "" {
		label = strings.Replace(label, date, "", 1)
	}
	label = strings.TrimSpace(strings.Trim(strings.TrimSpace(label), "-"))
	if label == "" {
		label = sohuSourceLabel
	}
	return label, date
}

func coverOf(s *goquery.Selection) string {
	img := s.Find("img").First()
	for _, attr := range []string{"src", "data-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return crawler.AbsoluteURL(sogouHost, v)
		}
	}
	return ""
}
