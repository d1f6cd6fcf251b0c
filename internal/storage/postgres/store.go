// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Tables names the relations used by the Store.
type Tables struct {
	Items   string
	Details string
	Rules   string
}

func (t Tables) withDefaults() Tables {
	if t.Items == "" {
		t.Items = "opinion_data"
	}
	if t.Details == "" {
		t.Details = "opinion_detail"
	}
	if t.Rules == "" {
		t.Rules = "scraping_rules"
	}
	return t
}

func (t Tables) validate() error {
	for _, name := range []string{t.Items, t.Details, t.Rules} {
		if !validTableName.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Tables          Tables
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements the rule, item and detail stores on top of Postgres.
type Store struct {
	pool   querier
	tables Tables
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	tables := cfg.Tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, tables: tables}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, tables Tables) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	tables = tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	return &Store{pool: pool, tables: tables}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGSERIAL PRIMARY KEY,
	site_name TEXT NOT NULL UNIQUE,
	domain TEXT NOT NULL DEFAULT '',
	title_xpath TEXT NOT NULL DEFAULT '',
	content_xpath TEXT NOT NULL DEFAULT '',
	headers JSONB NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[2]s (
	id BIGSERIAL PRIMARY KEY,
	keyword TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	original_url TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	publish_date TEXT NOT NULL DEFAULT '',
	is_deep_crawled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS %[3]s (
	opinion_id BIGINT PRIMARY KEY REFERENCES %[2]s (id),
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.tables.Rules, s.tables.Items, s.tables.Details)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRule inserts a rule or replaces the rule with the same site name.
func (s *Store) SaveRule(ctx context.Context, rule crawler.ExtractionRule) (crawler.ExtractionRule, error) {
	rule = rule.Clone()
	rule.SiteName = strings.TrimSpace(rule.SiteName)
	if rule.SiteName == "" {
		return crawler.ExtractionRule{}, errors.New("site name is required")
	}
	headers, err := json.Marshal(nonNil(rule.Headers))
	if err != nil {
		return crawler.ExtractionRule{}, fmt.Errorf("marshal headers: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (site_name, domain, title_xpath, content_xpath, headers, description, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (site_name) DO UPDATE SET
	domain = EXCLUDED.domain,
	title_xpath = EXCLUDED.title_xpath,
	content_xpath = EXCLUDED.content_xpath,
	headers = EXCLUDED.headers,
	description = EXCLUDED.description,
	updated_at = EXCLUDED.updated_at
RETURNING id, updated_at`, s.tables.Rules)
	row := s.pool.QueryRow(ctx, query,
		rule.SiteName, rule.Domain, rule.TitleSelector, rule.ContentSelector, headers, rule.Description)
	if err := row.Scan(&rule.ID, &rule.UpdatedAt); err != nil {
		return crawler.ExtractionRule{}, fmt.Errorf("save rule %q: %w", rule.SiteName, err)
	}
	return rule, nil
}

// FindRuleBySite returns the rule registered under siteName.
func (s *Store) FindRuleBySite(ctx context.Context, siteName string) (crawler.ExtractionRule, error) {
	query := fmt.Sprintf(`
SELECT id, site_name, domain, title_xpath, content_xpath, headers, description, updated_at
FROM %s WHERE site_name = $1`, s.tables.Rules)
	var (
		rule    crawler.ExtractionRule
		headers []byte
	)
	err := s.pool.QueryRow(ctx, query, siteName).Scan(
		&rule.ID, &rule.SiteName, &rule.Domain, &rule.TitleSelector,
		&rule.ContentSelector, &headers, &rule.Description, &rule.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.ExtractionRule{}, fmt.Errorf("rule %q: %w", siteName, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.ExtractionRule{}, fmt.Errorf("find rule %q: %w", siteName, err)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &rule.Headers); err != nil {
			return crawler.ExtractionRule{}, fmt.Errorf("decode rule headers: %w", err)
		}
	}
	if len(rule.Headers) == 0 {
		rule.Headers = nil
	}
	return rule, nil
}

// UpdateContentSelector replaces the content selector of a rule.
func (s *Store) UpdateContentSelector(ctx context.Context, ruleID int64, selector string) error {
	query := fmt.Sprintf(`UPDATE %s SET content_xpath = $1, updated_at = now() WHERE id = $2`, s.tables.Rules)
	tag, err := s.pool.Exec(ctx, query, selector, ruleID)
	if err != nil {
		return fmt.Errorf("update rule %d: %w", ruleID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %d: %w", ruleID, crawler.ErrNotFound)
	}
	return nil
}

// SaveItems inserts items, skipping any whose original URL is already
// stored, and reports how many rows were written.
func (s *Store) SaveItems(ctx context.Context, items []crawler.CandidateItem) (int, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (keyword, title, url, original_url, source, cover_url, summary, publish_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (original_url) DO NOTHING`, s.tables.Items)
	inserted := 0
	for _, item := range items {
		tag, err := s.pool.Exec(ctx, query,
			item.Keyword, item.Title, item.URL, item.OriginalURL,
			item.Source, item.Cover, item.Summary, item.PublishDate,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert item %q: %w", item.OriginalURL, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// GetItems returns the stored items for ids ordered by ID.
func (s *Store) GetItems(ctx context.Context, ids []int64) ([]crawler.StoredItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT id, keyword, title, url, original_url, source, cover_url, summary, publish_date, is_deep_crawled, created_at
FROM %s WHERE id = ANY($1) ORDER BY id`, s.tables.Items)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()
	var out []crawler.StoredItem
	for rows.Next() {
		var si crawler.StoredItem
		if err := rows.Scan(
			&si.ID, &si.Item.Keyword, &si.Item.Title, &si.Item.URL, &si.Item.OriginalURL,
			&si.Item.Source, &si.Item.Cover, &si.Item.Summary, &si.Item.PublishDate,
			&si.IsDeepCrawled, &si.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, si)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// MarkDeepCrawled flags an item as having a detail record.
func (s *Store) MarkDeepCrawled(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`UPDATE %s SET is_deep_crawled = TRUE WHERE id = $1`, s.tables.Items)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", id, crawler.ErrNotFound)
	}
	return nil
}

// UpsertDetail creates or updates the detail of an item. Empty fields keep
// the stored value.
func (s *Store) UpsertDetail(ctx context.Context, detail crawler.Detail) error {
	query := fmt.Sprintf(`
INSERT INTO %s (opinion_id, title, content, updated_at)
VALUES ($1,$2,$3,now())
ON CONFLICT (opinion_id) DO UPDATE SET
	title = COALESCE(NULLIF(EXCLUDED.title, ''), %[1]s.title),
	content = COALESCE(NULLIF(EXCLUDED.content, ''), %[1]s.content),
	updated_at = EXCLUDED.updated_at`, s.tables.Details)
	if _, err := s.pool.Exec(ctx, query, detail.OpinionID, detail.Title, detail.Content); err != nil {
		return fmt.Errorf("upsert detail %d: %w", detail.OpinionID, err)
	}
	return nil
}

// GetDetail returns the detail of an item.
func (s *Store) GetDetail(ctx context.Context, opinionID int64) (crawler.Detail, error) {
	query := fmt.Sprintf(`SELECT opinion_id, title, content, updated_at FROM %s WHERE opinion_id = $1`, s.tables.Details)
	var d crawler.Detail
	err := s.pool.QueryRow(ctx, query, opinionID).Scan(&d.OpinionID, &d.Title, &d.Content, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Detail{}, fmt.Errorf("detail %d: %w", opinionID, crawler.ErrNotFound)
	}
	if err != nil {
		return crawler.Detail{}, fmt.Errorf("get detail %d: %w", opinionID, err)
	}
	return d, nil
}

func nonNil(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}
