package crawler

import (
	"maps"
	"time"
)

// CandidateItem is a single listing entry produced by a source connector.
// URL and OriginalURL are always serialized, even when empty, so downstream
// scoring sees a stable field set.
type CandidateItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	OriginalURL string `json:"original_url"`
	Source      string `json:"source"`
	Cover       string `json:"cover"`
	Summary     string `json:"summary"`
	PublishDate string `json:"publish_date,omitempty"`
	Keyword     string `json:"keyword,omitempty"`
}

// ExtractionRule is the persisted per-site deep-crawl configuration. Both
// selectors are XPath expressions; a rule without selectors is legal and
// sends the extractor straight to heuristic mode.
type ExtractionRule struct {
	ID              int64             `json:"id,omitempty"`
	SiteName        string            `json:"site_name"`
	Domain          string            `json:"domain,omitempty"`
	TitleSelector   string            `json:"title_xpath,omitempty"`
	ContentSelector string            `json:"content_xpath,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Description     string            `json:"description,omitempty"`
	UpdatedAt       time.Time         `json:"updated_at,omitzero"`
}

// Clone returns a deep copy of the rule.
func (r ExtractionRule) Clone() ExtractionRule {
	cp := r
	if r.Headers != nil {
		cp.Headers = maps.Clone(r.Headers)
	}
	return cp
}

// RuleUpdateProposal carries a healed copy of an input rule. Only the content
// selector differs from the rule the extractor was given.
type RuleUpdateProposal struct {
	Rule     ExtractionRule `json:"rule"`
	Previous string         `json:"previous_content_xpath"`
}

// StoredItem is a CandidateItem as persisted by the item store.
type StoredItem struct {
	ID            int64         `json:"id"`
	Item          CandidateItem `json:"item"`
	IsDeepCrawled bool          `json:"is_deep_crawled"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Detail is the deep-crawl output persisted for a stored item.
type Detail struct {
	OpinionID int64     `json:"opinion_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation. Body is
// always UTF-8 once it leaves the fetcher.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Charset    string
	Duration   time.Duration
}
