// Package metrics exposes Prometheus collectors for the scan service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors owned by the HTTP surface and the deep crawl.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	extractionsTotal           *prometheus.CounterVec
	rulesHealedTotal           prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a fresh registry so
// tests never collide on the global one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		),
		extractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opinion_extractions_total",
				Help: "Deep-crawl extractions, labeled by site and outcome mode.",
			},
			[]string{"site", "mode"},
		),
		rulesHealedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "opinion_rules_healed_total",
				Help: "Extraction rules whose content selector was rewritten.",
			},
		),
		rateLimitDelaySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opinion_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		),
	}
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the registry the Metrics were
// registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveExtraction counts one extraction of rawURL finishing in mode.
func (m *Metrics) ObserveExtraction(rawURL, mode string) {
	m.extractionsTotal.WithLabelValues(SanitizeSite(rawURL), mode).Inc()
}

// ObserveRuleHealed counts one persisted rule update.
func (m *Metrics) ObserveRuleHealed() {
	m.rulesHealedTotal.Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (m *Metrics) ObserveRateLimitDelay(domain string, duration time.Duration) {
	m.rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
