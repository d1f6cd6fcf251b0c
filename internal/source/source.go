// Package source implements the listing connectors. Each connector turns a
// query into a lazy stream of progress events: it fetches listing pages one
// at a time, parses candidate items, resolves intermediate links and keeps
// the items the validator accepts. The stream ends with a single result
// event holding everything collected.
package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/crawler"
	"github.com/JakeFAU/opinionscan/internal/progress"
)

// ErrUnknownSource is returned by Registry.Get for unregistered names.
var ErrUnknownSource = errors.New("unknown source")

// Names of the built-in connectors.
const (
	Baidu = "baidu"
	Sohu  = "sohu"
	Gov   = "gov"
)

// Query parameterizes one scan. Pages below 1 scan a single page; Limit 0
// means unlimited.
type Query struct {
	Keyword string `json:"keyword"`
	Pages   int    `json:"pages"`
	Limit   int    `json:"limit"`
}

// Connector produces the event stream for a query. Breaking out of the
// range loop or cancelling ctx stops the scan before its next request.
type Connector interface {
	Name() string
	Scrape(ctx context.Context, q Query) iter.Seq[progress.Event]
}

// Deps are the collaborators shared by every connector.
type Deps struct {
	Fetcher   crawler.Fetcher
	Resolver  crawler.Resolver
	Validator crawler.Validator
	Pacer     Pacer
	Logger    *zap.Logger
	// Headers are sent with every listing request. HeadersVersion labels
	// the configured header set in logs.
	Headers        map[string]string
	HeadersVersion string
	Timeout        time.Duration
}

// Registry selects connectors by name.
type Registry struct {
	connectors map[string]Connector
	fallback   string
}

// NewRegistry indexes connectors by name; the first one is the default.
func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		if c == nil {
			continue
		}
		if r.fallback == "" {
			r.fallback = c.Name()
		}
		r.connectors[c.Name()] = c
	}
	return r
}

// Get returns the named connector, or the default one for an empty name.
func (r *Registry) Get(name string) (Connector, error) {
	if name == "" {
		name = r.fallback
	}
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return c, nil
}

// Names lists the registered connector names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
