package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/dbus-service/browser"
	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/types"
)

const linePage = `<html><head>
<script>
var dbus_ajax = {
	url: 'https://dbus.eus/wp-admin/admin-ajax.php',
	security: 'a1b2c3d4e5'
};
</script>
</head><body>
<select id="select_paradas_1">
	<option value="">Seleccione una parada</option>
	<option value="2">101 | Boulevard 13</option>
	<option value="7">102&nbsp;|&nbsp;Easo 41</option>
</select>
</body></html>`

var benta = types.Line{Code: "05", Name: "Benta Berri", SourceURL: "https://dbus.eus/05/", InternalID: "30"}

func TestParseStopPage(t *testing.T) {
	page, err := ParseStopPage(linePage)
	require.NoError(t, err)

	assert.Equal(t, "a1b2c3d4e5", page.Token)
	assert.Equal(t, []types.Stop{
		{Code: "101", Name: "Boulevard 13", InternalID: "2"},
		{Code: "102", Name: "Easo 41", InternalID: "7"},
	}, page.Stops)
}

func TestParseStopPageWithoutToken(t *testing.T) {
	page, err := ParseStopPage(`<select id="select_paradas_1"><option value="2">101 | Boulevard</option></select>`)
	require.NoError(t, err)

	assert.Empty(t, page.Token)
	assert.Len(t, page.Stops, 1)
}

func TestParseStopPageMissingSelector(t *testing.T) {
	_, err := ParseStopPage(`<html><body><p>maintenance</p></body></html>`)
	assert.ErrorIs(t, err, types.ErrUpstreamFormat)
}

type fakePage struct {
	html     string
	visible  map[string]bool
	actions  []string
	closed   bool
	clickErr error
}

func (p *fakePage) Navigate(url string) error {
	p.actions = append(p.actions, "navigate "+url)
	return nil
}

func (p *fakePage) WaitVisible(selector string, _ time.Duration) error {
	p.actions = append(p.actions, "wait "+selector)
	if !p.visible[selector] {
		return context.DeadlineExceeded
	}
	return nil
}

func (p *fakePage) Click(selector string) error {
	p.actions = append(p.actions, "click "+selector)
	return p.clickErr
}

func (p *fakePage) Reload() error {
	p.actions = append(p.actions, "reload")
	return nil
}

func (p *fakePage) Evaluate(script string, res interface{}) error {
	p.actions = append(p.actions, "evaluate")
	if script != browser.DocumentHTMLScript {
		return errors.New("unexpected script")
	}
	*(res.(*string)) = p.html
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeLauncher struct {
	page *fakePage
}

func (l *fakeLauncher) NewPage(context.Context) (browser.Page, error) {
	return l.page, nil
}

func TestBrowserStopFetcherAcceptsCookies(t *testing.T) {
	page := &fakePage{
		html:    linePage,
		visible: map[string]bool{cookieAcceptSelector: true, stopSelectSelector: true},
	}
	fetcher := NewBrowserStopFetcher(&fakeLauncher{page: page}, time.Second, logger.NewNop())

	result, err := fetcher.FetchStops(context.Background(), benta)
	require.NoError(t, err)

	assert.Equal(t, "a1b2c3d4e5", result.Token)
	assert.Len(t, result.Stops, 2)
	assert.Equal(t, []string{
		"navigate https://dbus.eus/05/",
		"wait " + cookieAcceptSelector,
		"click " + cookieAcceptSelector,
		"reload",
		"wait " + stopSelectSelector,
		"evaluate",
	}, page.actions)
	assert.True(t, page.closed)
}

func TestBrowserStopFetcherCookiePromptAbsent(t *testing.T) {
	page := &fakePage{
		html:    linePage,
		visible: map[string]bool{stopSelectSelector: true},
	}
	fetcher := NewBrowserStopFetcher(&fakeLauncher{page: page}, 10*time.Millisecond, logger.NewNop())

	result, err := fetcher.FetchStops(context.Background(), benta)
	require.NoError(t, err)

	assert.Len(t, result.Stops, 2)
	assert.NotContains(t, page.actions, "click "+cookieAcceptSelector)
	assert.Contains(t, page.actions, "reload")
}

func TestBrowserStopFetcherSelectorNeverAppears(t *testing.T) {
	page := &fakePage{html: linePage, visible: map[string]bool{}}
	fetcher := NewBrowserStopFetcher(&fakeLauncher{page: page}, time.Millisecond, logger.NewNop())

	_, err := fetcher.FetchStops(context.Background(), benta)
	assert.ErrorIs(t, err, types.ErrUpstreamFormat)
	assert.True(t, page.closed)
}

func TestStopCatalogPublishesToken(t *testing.T) {
	ctx := context.Background()
	store := newSpyCache(t)
	tokens := NewTokenStore(store)
	require.NoError(t, tokens.Publish(ctx, "stale"))

	fetcher := &fakeFetcher{page: StopPage{
		Stops: []types.Stop{{Code: "101", Name: "Boulevard", InternalID: "2"}},
		Token: "fresh",
	}}
	catalog := NewStopCatalog(store, staticLines{benta}, fetcher, tokens, logger.NewNop(), nil)

	stops, err := catalog.GetLineStops(ctx, "05")
	require.NoError(t, err)
	assert.Len(t, stops, 1)

	token, ok := tokens.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "fresh", token)

	_, err = catalog.GetLineStops(ctx, "05")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, benta, fetcher.calls[0])
}

func TestStopCatalogKeepsTokenWhenPageHasNone(t *testing.T) {
	ctx := context.Background()
	store := newSpyCache(t)
	tokens := NewTokenStore(store)
	require.NoError(t, tokens.Publish(ctx, "existing"))

	fetcher := &fakeFetcher{page: StopPage{Stops: []types.Stop{}}}
	catalog := NewStopCatalog(store, staticLines{benta}, fetcher, tokens, logger.NewNop(), nil)

	stops, err := catalog.GetLineStops(ctx, "05")
	require.NoError(t, err)
	assert.Empty(t, stops)

	token, ok := tokens.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "existing", token)
}

func TestStopCatalogUnknownLine(t *testing.T) {
	ctx := context.Background()
	store := newSpyCache(t)
	fetcher := &fakeFetcher{}
	catalog := NewStopCatalog(store, staticLines{benta}, fetcher, NewTokenStore(store), logger.NewNop(), nil)

	_, err := catalog.GetLineStops(ctx, "99")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Contains(t, err.Error(), "line with code 99 not found")
	assert.Zero(t, fetcher.callCount())
}

func TestStopCatalogFetchErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := newSpyCache(t)
	fetcher := &fakeFetcher{err: types.Errorf(types.ErrUpstreamFormat, "boom")}
	catalog := NewStopCatalog(store, staticLines{benta}, fetcher, NewTokenStore(store), logger.NewNop(), nil)

	_, err := catalog.GetLineStops(ctx, "05")
	require.ErrorIs(t, err, types.ErrUpstreamFormat)

	var cached []types.Stop
	assert.False(t, store.Get(ctx, types.LineStopsKey("05"), &cached))
}
