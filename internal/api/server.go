package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/deepcrawl"
	"github.com/JakeFAU/opinionscan/internal/extract"
	"github.com/JakeFAU/opinionscan/internal/metrics"
	"github.com/JakeFAU/opinionscan/internal/progress"
	"github.com/JakeFAU/opinionscan/internal/rules"
	"github.com/JakeFAU/opinionscan/internal/source"
)

// Extractor deep-crawls a single URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string, rule *crawler.ExtractionRule) extract.Result
}

// DeepCrawler runs the batch extractor.
type DeepCrawler interface {
	Run(ctx context.Context, ids []int64) (deepcrawl.Summary, error)
}

// Deps are the collaborators behind the handlers. Items and Emitter may be
// nil; saving and progress fan-out are then disabled.
type Deps struct {
	Sources   *source.Registry
	Extractor Extractor
	DeepCrawl DeepCrawler
	Items     crawler.ItemStore
	Rules     crawler.RuleStore
	Emitter   progress.Emitter
	Metrics   *metrics.Metrics
}

// Config tunes request handling.
type Config struct {
	// RequestTimeout bounds the JSON endpoints. Scrape streams are bounded
	// by the client connection instead.
	RequestTimeout time.Duration
	MaxPages       int
}

const (
	defaultRequestTimeout = 60 * time.Second
	defaultMaxPages       = 20
	maxBodyBytes          = 1 << 20
)

// Server wires HTTP handlers to connectors, the extractor and stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(deps.Metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(cfg.RequestTimeout))
			r.Post("/extract", s.extract)
			r.Post("/deep-crawl", s.deepCrawl)
		})
		r.Get("/sources", s.sources)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sources(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"sources": s.deps.Sources.Names()})
}

type scrapeRequest struct {
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
	Pages   int    `json:"pages"`
	Limit   int    `json:"limit"`
	Save    bool   `json:"save"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		s.writeError(w, http.StatusBadRequest, "keyword required")
		return
	}
	if req.Pages > s.cfg.MaxPages {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("pages must be <= %d", s.cfg.MaxPages))
		return
	}
	if req.Pages < 0 || req.Limit < 0 {
		s.writeError(w, http.StatusBadRequest, "pages and limit must be >= 0")
		return
	}
	conn, err := s.deps.Sources.Get(req.Source)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	scanID := uuid.New()
	logger := s.logger.With(zap.String("scan_id", scanID.String()), zap.String("source", conn.Name()))
	seq := progress.Observe(
		conn.Scrape(ctx, source.Query{Keyword: req.Keyword, Pages: req.Pages, Limit: req.Limit}),
		s.deps.Emitter, scanID, conn.Name(),
	)

	w.Header().Set("Content-Type", progress.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Scan-ID", scanID.String())
	w.WriteHeader(http.StatusOK)
	outcome, err := progress.WriteStream(w, seq)
	if err != nil {
		logger.Warn("scrape stream interrupted", zap.Error(err))
		return
	}
	if !req.Save || !outcome.Completed || s.deps.Items == nil {
		return
	}
	inserted, err := s.deps.Items.SaveItems(context.WithoutCancel(ctx), outcome.Items)
	if err != nil {
		logger.Error("save scan items failed", zap.Error(err))
		return
	}
	logger.Info("scan items saved", zap.Int("items", len(outcome.Items)), zap.Int("inserted", inserted))
}

type extractRequest struct {
	URL  string `json:"url"`
	Site string `json:"site"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	var rule *crawler.ExtractionRule
	if req.Site != "" && s.deps.Rules != nil {
		found, err := rules.Lookup(r.Context(), s.deps.Rules, req.Site)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "rule lookup failed")
			return
		}
		rule = found
	}
	res := s.deps.Extractor.Extract(r.Context(), req.URL, rule)
	s.deps.Metrics.ObserveExtraction(req.URL, string(res.Mode))
	s.writeJSON(w, http.StatusOK, res)
}

type deepCrawlRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) deepCrawl(w http.ResponseWriter, r *http.Request) {
	var req deepCrawlRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	if s.deps.DeepCrawl == nil {
		s.writeError(w, http.StatusServiceUnavailable, "deep crawl not configured")
		return
	}
	summary, err := s.deps.DeepCrawl.Run(r.Context(), req.IDs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
