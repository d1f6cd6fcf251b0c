// Package memory stores rules, listing items and deep-crawl details
// in-memory for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// Store implements crawler.RuleStore, crawler.ItemStore and
// crawler.DetailStore.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextRuleID int64
	nextItemID int64
	rules      map[int64]crawler.ExtractionRule
	bySite     map[string]int64
	items      map[int64]crawler.StoredItem
	byOriginal map[string]int64
	details    map[int64]crawler.Detail
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		now:        func() time.Time { return time.Now().UTC() },
		rules:      make(map[int64]crawler.ExtractionRule),
		bySite:     make(map[string]int64),
		items:      make(map[int64]crawler.StoredItem),
		byOriginal: make(map[string]int64),
		details:    make(map[int64]crawler.Detail),
	}
}

// SaveRule inserts a rule, or replaces the rule with the same site name,
// and returns it with its ID.
func (s *Store) SaveRule(_ context.Context, rule crawler.ExtractionRule) (crawler.ExtractionRule, error) {
	site := strings.TrimSpace(rule.SiteName)
	if site == "" {
		return crawler.ExtractionRule{}, errors.New("site name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule = rule.Clone()
	rule.SiteName = site
	if id, ok := s.bySite[site]; ok {
		rule.ID = id
	} else {
		s.nextRuleID++
		rule.ID = s.nextRuleID
		s.bySite[site] = rule.ID
	}
	rule.UpdatedAt = s.now()
	s.rules[rule.ID] = rule
	return rule.Clone(), nil
}

// FindRuleBySite returns the rule registered under siteName.
func (s *Store) FindRuleBySite(_ context.Context, siteName string) (crawler.ExtractionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.bySite[siteName]
	if !ok {
		return crawler.ExtractionRule{}, fmt.Errorf("rule %q: %w", siteName, crawler.ErrNotFound)
	}
	return s.rules[id].Clone(), nil
}

// UpdateContentSelector replaces the content selector of a rule.
func (s *Store) UpdateContentSelector(_ context.Context, ruleID int64, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule %d: %w", ruleID, crawler.ErrNotFound)
	}
	rule.ContentSelector = selector
	rule.UpdatedAt = s.now()
	s.rules[ruleID] = rule
	return nil
}

// SaveItems stores items whose original URL is not yet known, including
// duplicates within the batch, and reports how many were inserted.
func (s *Store) SaveItems(_ context.Context, items []crawler.CandidateItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, item := range items {
		if _, exists := s.byOriginal[item.OriginalURL]; exists {
			continue
		}
		s.nextItemID++
		s.items[s.nextItemID] = crawler.StoredItem{ID: s.nextItemID, Item: item, CreatedAt: s.now()}
		s.byOriginal[item.OriginalURL] = s.nextItemID
		inserted++
	}
	return inserted, nil
}

// GetItems returns the stored items for ids ordered by ID. Unknown IDs are
// skipped.
func (s *Store) GetItems(_ context.Context, ids []int64) ([]crawler.StoredItem, error) {
	ids = slices.Compact(slices.Sorted(slices.Values(ids)))
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.StoredItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// MarkDeepCrawled flags an item as having a detail record.
func (s *Store) MarkDeepCrawled(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("item %d: %w", id, crawler.ErrNotFound)
	}
	item.IsDeepCrawled = true
	s.items[id] = item
	return nil
}

// UpsertDetail creates or updates the detail of an item. Empty fields do
// not overwrite stored values.
func (s *Store) UpsertDetail(_ context.Context, detail crawler.Detail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[detail.OpinionID]; !ok {
		return fmt.Errorf("item %d: %w", detail.OpinionID, crawler.ErrNotFound)
	}
	current := s.details[detail.OpinionID]
	current.OpinionID = detail.OpinionID
	if detail.Title != "" {
		current.Title = detail.Title
	}
	if detail.Content != "" {
		current.Content = detail.Content
	}
	current.UpdatedAt = s.now()
	s.details[detail.OpinionID] = current
	return nil
}

// GetDetail returns the detail of an item.
func (s *Store) GetDetail(_ context.Context, opinionID int64) (crawler.Detail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	detail, ok := s.details[opinionID]
	if !ok {
		return crawler.Detail{}, fmt.Errorf("detail %d: %w", opinionID, crawler.ErrNotFound)
	}
	return detail, nil
}
