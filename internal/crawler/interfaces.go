package crawler

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Fetcher fetches a URL and returns the decoded body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Resolver turns intermediate provider links into destination URLs. It never
// fails; on error the input is returned unchanged.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) string
	ResolveEmbedded(ctx context.Context, rawURL string) string
}

// Validator decides whether a listing candidate is worth keeping.
type Validator interface {
	IsValid(item CandidateItem) bool
}

// RuleStore is the persistence collaborator owning extraction rules.
type RuleStore interface {
	FindRuleBySite(ctx context.Context, siteName string) (ExtractionRule, error)
	UpdateContentSelector(ctx context.Context, ruleID int64, selector string) error
}

// ItemStore persists listing candidates. SaveItems skips items whose
// original URL is already stored and reports how many were inserted.
type ItemStore interface {
	SaveItems(ctx context.Context, items []CandidateItem) (int, error)
	GetItems(ctx context.Context, ids []int64) ([]StoredItem, error)
	MarkDeepCrawled(ctx context.Context, id int64) error
}

// DetailStore persists deep-crawl output.
type DetailStore interface {
	UpsertDetail(ctx context.Context, detail Detail) error
	GetDetail(ctx context.Context, opinionID int64) (Detail, error)
}
