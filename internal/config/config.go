// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/rules"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig            `mapstructure:"server"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	HTTP      HTTPConfig              `mapstructure:"http"`
	Scan      ScanConfig              `mapstructure:"scan"`
	Validator ValidatorConfig         `mapstructure:"validator"`
	DeepCrawl DeepCrawlConfig         `mapstructure:"deepcrawl"`
	Storage   StorageConfig           `mapstructure:"storage"`
	DB        DBConfig                `mapstructure:"db"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
	Rules     []RuleConfig            `mapstructure:"rules"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures outbound request timeouts and identity.
type HTTPConfig struct {
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`
	HeadTimeoutSeconds   int    `mapstructure:"head_timeout_seconds"`
	StreamTimeoutSeconds int    `mapstructure:"stream_timeout_seconds"`
	UserAgent            string `mapstructure:"user_agent"`
}

// ScanConfig bounds the random pause between listing pages.
type ScanConfig struct {
	MinDelayMs int `mapstructure:"min_delay_ms"`
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// ValidatorConfig tunes candidate rejection.
type ValidatorConfig struct {
	MaxInvalid int `mapstructure:"max_invalid"`
}

// DeepCrawlConfig governs the batch extractor.
type DeepCrawlConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	HostRPS     float64 `mapstructure:"host_rps"`
	HostBurst   int     `mapstructure:"host_burst"`
}

// StorageConfig selects the persistence driver.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SourceConfig overrides per-connector request identity. ListingURL and
// SourceLabel only apply to the gov connector.
type SourceConfig struct {
	Headers        map[string]string `mapstructure:"headers"`
	HeadersVersion string            `mapstructure:"headers_version"`
	ListingURL     string            `mapstructure:"listing_url"`
	SourceLabel    string            `mapstructure:"source_label"`
}

// RuleConfig seeds an extraction rule. Headers holds a raw header blob in
// any format rules.ParseHeaders accepts.
type RuleConfig struct {
	SiteName     string `mapstructure:"site_name"`
	Domain       string `mapstructure:"domain"`
	TitleXPath   string `mapstructure:"title_xpath"`
	ContentXPath string `mapstructure:"content_xpath"`
	Headers      string `mapstructure:"headers"`
	Description  string `mapstructure:"description"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPINION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("http.head_timeout_seconds", 3)
	v.SetDefault("http.stream_timeout_seconds", 5)
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	v.SetDefault("scan.min_delay_ms", 1000)
	v.SetDefault("scan.max_delay_ms", 2000)
	v.SetDefault("validator.max_invalid", 3)
	v.SetDefault("deepcrawl.concurrency", 4)
	v.SetDefault("deepcrawl.host_rps", 1.0)
	v.SetDefault("deepcrawl.host_burst", 2)
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("db.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.HeadTimeoutSeconds <= 0 {
		return fmt.Errorf("http.head_timeout_seconds must be > 0")
	}
	if c.HTTP.StreamTimeoutSeconds <= 0 {
		return fmt.Errorf("http.stream_timeout_seconds must be > 0")
	}
	if c.Scan.MinDelayMs < 0 || c.Scan.MaxDelayMs < c.Scan.MinDelayMs {
		return fmt.Errorf("scan.max_delay_ms must be >= scan.min_delay_ms >= 0")
	}
	if c.Validator.MaxInvalid <= 0 {
		return fmt.Errorf("validator.max_invalid must be > 0")
	}
	if c.DeepCrawl.Concurrency <= 0 {
		return fmt.Errorf("deepcrawl.concurrency must be > 0")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.Storage.Driver)
	}
	for i, r := range c.Rules {
		if strings.TrimSpace(r.SiteName) == "" {
			return fmt.Errorf("rules[%d].site_name is required", i)
		}
		if _, err := rules.ParseHeaders(r.Headers); err != nil {
			return fmt.Errorf("rules[%d].headers: %w", i, err)
		}
	}
	return nil
}

// Source returns the overrides for a connector, or the zero value.
func (c Config) Source(name string) SourceConfig {
	return c.Sources[strings.ToLower(name)]
}

// ExtractionRules converts the seeded rules into domain rules.
func (c Config) ExtractionRules() ([]crawler.ExtractionRule, error) {
	out := make([]crawler.ExtractionRule, 0, len(c.Rules))
	for i, r := range c.Rules {
		headers, err := rules.ParseHeaders(r.Headers)
		if err != nil {
			return nil, fmt.Errorf("rules[%d].headers: %w", i, err)
		}
		out = append(out, crawler.ExtractionRule{
			SiteName:        strings.TrimSpace(r.SiteName),
			Domain:          r.Domain,
			TitleSelector:   r.TitleXPath,
			ContentSelector: r.ContentXPath,
			Headers:         headers,
			Description:     r.Description,
		})
	}
	return out, nil
}

// Timeout is the page and deep-crawl fetch timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// HeadTimeout bounds redirect resolution via HEAD.
func (c Config) HeadTimeout() time.Duration {
	return time.Duration(c.HTTP.HeadTimeoutSeconds) * time.Second
}

// StreamTimeout bounds redirect resolution via streamed GET.
func (c Config) StreamTimeout() time.Duration {
	return time.Duration(c.HTTP.StreamTimeoutSeconds) * time.Second
}

// ScanDelay returns the pacing bounds between listing pages.
func (c Config) ScanDelay() (time.Duration, time.Duration) {
	return time.Duration(c.Scan.MinDelayMs) * time.Millisecond,
		time.Duration(c.Scan.MaxDelayMs) * time.Millisecond
}
