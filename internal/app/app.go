// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/api"
	"github.com/JakeFAU/opinionscan/internal/config"
	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/deepcrawl"
	"github.com/JakeFAU/opinionscan/internal/extract"
	collyfetcher "github.com/JakeFAU/opinionscan/internal/fetcher/colly"
	restyfetcher "github.com/JakeFAU/opinionscan/internal/fetcher/resty"
	"github.com/JakeFAU/opinionscan/internal/metrics"
	"github.com/JakeFAU/opinionscan/internal/policy/ratelimit"
	"github.com/JakeFAU/opinionscan/internal/progress"
	"github.com/JakeFAU/opinionscan/internal/progress/sinks"
	"github.com/JakeFAU/opinionscan/internal/resolver"
	"github.com/JakeFAU/opinionscan/internal/source"
	"github.com/JakeFAU/opinionscan/internal/storage/memory"
	"github.com/JakeFAU/opinionscan/internal/storage/postgres"
	"github.com/JakeFAU/opinionscan/internal/validate"
)

// Store is everything the service persists through.
type Store interface {
	crawler.RuleStore
	crawler.ItemStore
	crawler.DetailStore
	SaveRule(ctx context.Context, rule crawler.ExtractionRule) (crawler.ExtractionRule, error)
}

// App holds the shared, long-lived services for the process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	hub       *progress.Hub
	store     Store
	closeDB   func()
	sources   *source.Registry
	extractor *extract.Extractor
	deepCrawl *deepcrawl.Service
}

// New builds every service from cfg. The caller owns the returned App and
// must Close it.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry(), closeDB: func() {}}
	a.metrics = metrics.New(a.registry)

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	if err := a.initHub(); err != nil {
		a.closeDB()
		return nil, err
	}
	if err := a.seedRules(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	client := restyfetcher.New(restyfetcher.Config{UserAgent: cfg.HTTP.UserAgent, Timeout: cfg.Timeout()})
	res := resolver.New(client, client, resolver.Config{
		HeadTimeout:   cfg.HeadTimeout(),
		StreamTimeout: cfg.StreamTimeout(),
		BodyTimeout:   cfg.Timeout(),
	}, logger)
	a.sources = a.buildSources(res)

	limiter := ratelimit.New(ratelimit.Config{
		RPS:     cfg.DeepCrawl.HostRPS,
		Burst:   cfg.DeepCrawl.HostBurst,
		OnDelay: a.metrics.ObserveRateLimitDelay,
	})
	a.extractor = extract.New(
		ratelimit.Fetcher{Next: client, Limiter: limiter},
		res,
		extract.Config{Timeout: cfg.Timeout()},
		logger,
	)
	a.deepCrawl = deepcrawl.New(
		deepcrawl.Stores{Items: a.store, Details: a.store, Rules: a.store},
		a.extractor,
		a.metrics,
		deepcrawl.Config{Concurrency: cfg.DeepCrawl.Concurrency},
		logger,
	)
	logger.Info("application services ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.Strings("sources", a.sources.Names()),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, postgres.Config{DSN: a.cfg.DB.DSN, MaxConns: a.cfg.DB.MaxConns})
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return err
		}
		a.store = pg
		a.closeDB = pg.Close
	case config.DriverMemory, "":
		a.store = memory.New()
	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	return nil
}

func (a *App) initHub() error {
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger}, sinks.NewLogSink(a.logger), promSink)
	return nil
}

func (a *App) seedRules(ctx context.Context) error {
	seeds, err := a.cfg.ExtractionRules()
	if err != nil {
		return err
	}
	for _, rule := range seeds {
		if _, err := a.store.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %q: %w", rule.SiteName, err)
		}
	}
	if len(seeds) > 0 {
		a.logger.Info("extraction rules seeded", zap.Int("rules", len(seeds)))
	}
	return nil
}

func (a *App) buildSources(res crawler.Resolver) *source.Registry {
	listing := collyfetcher.New(collyfetcher.Config{UserAgent: a.cfg.HTTP.UserAgent, Timeout: a.cfg.Timeout()})
	minDelay, maxDelay := a.cfg.ScanDelay()
	deps := func(name string) source.Deps {
		sc := a.cfg.Source(name)
		return source.Deps{
			Fetcher:        listing,
			Resolver:       res,
			Validator:      validate.New(a.cfg.Validator.MaxInvalid),
			Pacer:          source.RandomPacer{Min: minDelay, Max: maxDelay},
			Logger:         a.logger,
			Headers:        source.WithDefaults(name, sc.Headers),
			HeadersVersion: sc.HeadersVersion,
			Timeout:        a.cfg.Timeout(),
		}
	}
	gov := a.cfg.Source(source.Gov)
	return source.NewRegistry(
		source.NewBaidu(deps(source.Baidu)),
		source.NewSohu(deps(source.Sohu)),
		source.NewGov(deps(source.Gov), source.GovConfig{ListingURL: gov.ListingURL, SourceLabel: gov.SourceLabel}),
	)
}

// APIServer builds the HTTP surface over the App's services.
func (a *App) APIServer() *api.Server {
	return api.NewServer(api.Deps{
		Sources:   a.sources,
		Extractor: a.extractor,
		DeepCrawl: a.deepCrawl,
		Items:     a.store,
		Rules:     a.store,
		Emitter:   a.hub,
		Metrics:   a.metrics,
	}, api.Config{RequestTimeout: a.cfg.Timeout() * 6}, a.logger)
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Sources returns the connector registry.
func (a *App) Sources() *source.Registry { return a.sources }

// Extractor returns the deep-crawl extractor.
func (a *App) Extractor() api.Extractor { return a.extractor }

// DeepCrawl returns the batch service.
func (a *App) DeepCrawl() api.DeepCrawler { return a.deepCrawl }

// Store returns the configured store.
func (a *App) Store() Store { return a.store }

// Emitter returns the progress hub.
func (a *App) Emitter() progress.Emitter { return a.hub }

// Close flushes the progress hub and releases the database pool.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closeDB()
	return errors.Join(errs...)
}
