// Package scraper turns the operator's website into lines, stops and arrival
// estimates, keeping catalog data and the session security token in the cache.
package scraper

import (
	"context"
	"time"

	"github.com/saiset-co/dbus-service/browser"
	"github.com/saiset-co/dbus-service/types"
)

// Scraper wires the catalogs, the token manager and the estimator over one
// shared cache store.
type Scraper struct {
	Lines    *LineCatalog
	Stops    *StopCatalog
	Tokens   *TokenManager
	Arrivals *Estimator
}

type Option func(*options)

type options struct {
	clock   Clock
	fetcher StopFetcher
}

func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithStopFetcher replaces the browser-driven stop scrape.
func WithStopFetcher(fetcher StopFetcher) Option {
	return func(o *options) { o.fetcher = fetcher }
}

func New(config *types.ScraperConfig, cache types.CacheStore, client types.HTTPClient, launcher browser.Launcher, logger types.Logger, metrics types.MetricsManager, opts ...Option) (*Scraper, error) {
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, types.WrapError(err, "invalid scraper timezone")
	}

	o := &options{clock: SystemClock}
	for _, opt := range opts {
		opt(o)
	}

	if o.fetcher == nil {
		if launcher == nil {
			return nil, types.NewErrorf("scraper needs a browser launcher or a stop fetcher")
		}
		o.fetcher = NewBrowserStopFetcher(launcher, config.CookieTimeout, logger)
	}

	tokenStore := NewTokenStore(cache)
	lines := NewLineCatalog(cache, client, config.BaseURL, logger, metrics)
	stops := NewStopCatalog(cache, lines, o.fetcher, tokenStore, logger, metrics)
	tokens := NewTokenManager(tokenStore, cache, stops, logger)
	arrivals := NewEstimator(stops, tokens, client, config.AjaxURL, config.BaseURL, o.clock, location, logger, metrics)

	return &Scraper{
		Lines:    lines,
		Stops:    stops,
		Tokens:   tokens,
		Arrivals: arrivals,
	}, nil
}

func (s *Scraper) GetBusLines(ctx context.Context) ([]types.Line, error) {
	return s.Lines.GetBusLines(ctx)
}

func (s *Scraper) GetLineStops(ctx context.Context, lineCode string) ([]types.Stop, error) {
	return s.Stops.GetLineStops(ctx, lineCode)
}

func (s *Scraper) GetArrivalMinutes(ctx context.Context, lineCode, stopCode string) (int, error) {
	return s.Arrivals.GetArrivalMinutes(ctx, lineCode, stopCode)
}
