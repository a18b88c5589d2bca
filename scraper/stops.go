package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/saiset-co/dbus-service/browser"
	"github.com/saiset-co/dbus-service/types"
)

const (
	cookieAcceptSelector = ".cmplz-btn.cmplz-accept"
	stopSelectSelector   = "#select_paradas_1"
)

var securityPattern = regexp.MustCompile(`security:\s*'(\w+)'`)

// StopPage is what one visit to a line page yields. Token is empty when the
// page carried none.
type StopPage struct {
	Stops []types.Stop
	Token string
}

type StopFetcher interface {
	FetchStops(ctx context.Context, line types.Line) (StopPage, error)
}

type LineSource interface {
	GetBusLines(ctx context.Context) ([]types.Line, error)
}

type StopLoader interface {
	GetLineStops(ctx context.Context, lineCode string) ([]types.Stop, error)
}

// BrowserStopFetcher renders a line page in a headless browser; the stop
// selector is filled client-side and only appears after the cookie prompt
// has been handled and the page reloaded.
type BrowserStopFetcher struct {
	launcher      browser.Launcher
	cookieTimeout time.Duration
	logger        types.Logger
}

func NewBrowserStopFetcher(launcher browser.Launcher, cookieTimeout time.Duration, logger types.Logger) *BrowserStopFetcher {
	return &BrowserStopFetcher{
		launcher:      launcher,
		cookieTimeout: cookieTimeout,
		logger:        logger,
	}
}

func (f *BrowserStopFetcher) FetchStops(ctx context.Context, line types.Line) (StopPage, error) {
	if line.SourceURL == "" {
		return StopPage{}, types.Errorf(types.ErrUpstreamFormat, "line %s has no page url", line.Code)
	}

	page, err := f.launcher.NewPage(ctx)
	if err != nil {
		return StopPage{}, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			f.logger.Warn("Failed to close browser page", zap.Error(err))
		}
	}()

	if err := page.Navigate(line.SourceURL); err != nil {
		return StopPage{}, types.WrapError(err, "failed to open line page")
	}

	f.acceptCookies(page, line.Code)

	if err := page.Reload(); err != nil {
		return StopPage{}, types.WrapError(err, "failed to reload line page")
	}

	if err := page.WaitVisible(stopSelectSelector, 0); err != nil {
		return StopPage{}, types.Errorf(types.ErrUpstreamFormat, "stop selector %s did not appear: %v", stopSelectSelector, err)
	}

	var html string
	if err := page.Evaluate(browser.DocumentHTMLScript, &html); err != nil {
		return StopPage{}, types.WrapError(err, "failed to read rendered line page")
	}

	return ParseStopPage(html)
}

// acceptCookies dismisses the consent prompt. A missing prompt means consent
// was already given.
func (f *BrowserStopFetcher) acceptCookies(page browser.Page, lineCode string) {
	if err := page.WaitVisible(cookieAcceptSelector, f.cookieTimeout); err != nil {
		f.logger.Debug("Cookie prompt not shown", zap.String("line", lineCode), zap.Error(err))
		return
	}

	if err := page.Click(cookieAcceptSelector); err != nil {
		f.logger.Warn("Unable to accept cookies", zap.String("line", lineCode), zap.Error(err))
	}
}

// ParseStopPage reads the stop selector options and the inline security token
// from a rendered line page.
func ParseStopPage(html string) (StopPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return StopPage{}, types.Errorf(types.ErrUpstreamFormat, "line page is not HTML: %v", err)
	}

	selector := doc.Find(stopSelectSelector)
	if selector.Length() == 0 {
		return StopPage{}, types.Errorf(types.ErrUpstreamFormat, "stop selector %s missing", stopSelectSelector)
	}

	result := StopPage{Stops: make([]types.Stop, 0)}

	selector.Find("option").Each(func(_ int, option *goquery.Selection) {
		code, name, ok := splitDisplay(option.Text())
		if !ok {
			return
		}

		value, _ := option.Attr("value")
		result.Stops = append(result.Stops, types.Stop{
			Code:       code,
			Name:       name,
			InternalID: value,
		})
	})

	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		text := script.Text()
		if !strings.Contains(text, "security") {
			return true
		}

		if match := securityPattern.FindStringSubmatch(text); match != nil {
			result.Token = match[1]
			return false
		}
		return true
	})

	return result, nil
}

// StopCatalog serves a line's stops from cache, scraping the line page on a
// miss. Every scrape republishes the security token it found.
type StopCatalog struct {
	cache   types.CacheStore
	lines   LineSource
	fetcher StopFetcher
	tokens  *TokenStore
	logger  types.Logger
	metrics types.MetricsManager
}

func NewStopCatalog(cache types.CacheStore, lines LineSource, fetcher StopFetcher, tokens *TokenStore, logger types.Logger, metrics types.MetricsManager) *StopCatalog {
	return &StopCatalog{
		cache:   cache,
		lines:   lines,
		fetcher: fetcher,
		tokens:  tokens,
		logger:  logger,
		metrics: metrics,
	}
}

func (c *StopCatalog) GetLineStops(ctx context.Context, lineCode string) ([]types.Stop, error) {
	key := types.LineStopsKey(lineCode)

	var stops []types.Stop
	if c.cache.Get(ctx, key, &stops) {
		c.logger.Debug("Stops served from cache", zap.String("line", lineCode), zap.Int("count", len(stops)))
		return stops, nil
	}

	lines, err := c.lines.GetBusLines(ctx)
	if err != nil {
		return nil, err
	}

	line, ok := findLine(lines, lineCode)
	if !ok {
		return nil, fmt.Errorf("line with code %s %w", lineCode, types.ErrNotFound)
	}

	start := time.Now()
	page, err := c.fetcher.FetchStops(ctx, line)
	observeFetch(c.metrics, "stops", err, start)
	if err != nil {
		return nil, err
	}

	if page.Token != "" {
		if err := c.tokens.Publish(ctx, page.Token); err != nil {
			return nil, err
		}
	} else {
		c.logger.Warn("Line page carried no security token", zap.String("line", lineCode))
	}

	if err := c.cache.Set(ctx, key, page.Stops); err != nil {
		return nil, err
	}

	c.logger.Info("Stops refreshed", zap.String("line", lineCode), zap.Int("count", len(page.Stops)))
	return page.Stops, nil
}

func findLine(lines []types.Line, code string) (types.Line, bool) {
	for _, line := range lines {
		if line.Code == code {
			return line, true
		}
	}
	return types.Line{}, false
}

func findStop(stops []types.Stop, code string) (types.Stop, bool) {
	for _, stop := range stops {
		if stop.Code == code {
			return stop, true
		}
	}
	return types.Stop{}, false
}
