package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/metrics"
	"github.com/saiset-co/dbus-service/types"
)

const (
	testBaseURL = "https://dbus.eus/"
	testAjaxURL = "https://dbus.eus/wp-admin/admin-ajax.php"
)

type harness struct {
	scraper *Scraper
	cache   *spyCache
	client  *fakeClient
	fetcher *fakeFetcher
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	fetcher := &fakeFetcher{page: StopPage{
		Stops: []types.Stop{
			{Code: "101", Name: "Boulevard 13", InternalID: "2"},
			{Code: "102", Name: "Easo 41", InternalID: "7"},
		},
		Token: "a1b2c3d4e5",
	}}

	h := &harness{
		cache:   newSpyCache(t),
		client:  &fakeClient{getBody: landingPage},
		fetcher: fetcher,
	}

	s, err := New(&types.ScraperConfig{
		BaseURL:  testBaseURL,
		AjaxURL:  testAjaxURL,
		Timezone: "Europe/Madrid",
	}, h.cache, h.client, nil, logger.NewNop(), metrics.NewNop(),
		WithClock(fixedClock(now)),
		WithStopFetcher(h.fetcher))
	require.NoError(t, err)

	h.scraper = s
	return h
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New(&types.ScraperConfig{Timezone: "Mars/Olympus"}, newSpyCache(t), &fakeClient{}, nil, logger.NewNop(), nil,
		WithStopFetcher(&fakeFetcher{}))
	assert.Error(t, err)
}

func TestNewNeedsStopSource(t *testing.T) {
	_, err := New(&types.ScraperConfig{Timezone: "UTC"}, newSpyCache(t), &fakeClient{}, nil, logger.NewNop(), nil)
	assert.Error(t, err)
}

func TestGetArrivalMinutes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 23, 50, 0, 0, madrid(t))
	h := newHarness(t, now)
	h.client.postBody = arrivalReply("Linea 05: 23:58")

	minutes, err := h.scraper.GetArrivalMinutes(ctx, "05", "101")
	require.NoError(t, err)
	assert.Equal(t, 8, minutes)

	require.Equal(t, 1, h.client.postCount())
	post := h.client.posts[0]
	assert.Equal(t, testAjaxURL, post.URL)
	assert.Equal(t, "a1b2c3d4e5", post.Form.Get("security"))
	assert.Equal(t, "2", post.Form.Get("parada"))
	assert.Equal(t, "05", post.Form.Get("linea"))
	assert.Equal(t, "23", post.Form.Get("hora"))
	assert.Equal(t, "50", post.Form.Get("minuto"))

	// the scrape that produced the stops also produced the token
	assert.Zero(t, h.cache.invalidated(types.LineStopsKey("05")))
	assert.Equal(t, 1, h.fetcher.callCount())
}

func TestGetArrivalMinutesUsesLocalTime(t *testing.T) {
	ctx := context.Background()
	utc := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	h := newHarness(t, utc)
	h.client.postBody = arrivalReply("Linea 05: 5 min")

	_, err := h.scraper.GetArrivalMinutes(ctx, "05", "101")
	require.NoError(t, err)

	// Madrid is UTC+2 in summer
	assert.Equal(t, "12", h.client.posts[0].Form.Get("hora"))
}

func TestGetArrivalMinutesUnknownStop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Now())

	_, err := h.scraper.GetArrivalMinutes(ctx, "05", "999")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Zero(t, h.client.postCount())
}

func TestGetArrivalMinutesUnknownLine(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Now())

	_, err := h.scraper.GetArrivalMinutes(ctx, "99", "101")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Zero(t, h.fetcher.callCount())
	assert.Zero(t, h.client.postCount())
}

func TestGetArrivalMinutesRefreshesMissingToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 3, 10, 12, 0, 0, 0, madrid(t)))
	h.client.postBody = arrivalReply("Linea 05: 4 min")

	// stops cached from an earlier run, token gone
	require.NoError(t, h.cache.Set(ctx, types.LineStopsKey("05"), h.fetcher.page.Stops))

	minutes, err := h.scraper.GetArrivalMinutes(ctx, "05", "102")
	require.NoError(t, err)
	assert.Equal(t, 4, minutes)

	assert.Equal(t, 1, h.cache.invalidated(types.LineStopsKey("05")))
	assert.Equal(t, 1, h.fetcher.callCount())
	require.Equal(t, 1, h.client.postCount())
	assert.Equal(t, "a1b2c3d4e5", h.client.posts[0].Form.Get("security"))
}

func TestGetArrivalMinutesTokenStillMissing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 3, 10, 12, 0, 0, 0, madrid(t)))
	h.fetcher.page.Token = ""

	require.NoError(t, h.cache.Set(ctx, types.LineStopsKey("05"), h.fetcher.page.Stops))

	_, err := h.scraper.GetArrivalMinutes(ctx, "05", "101")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTokenUnavailable)
	assert.ErrorIs(t, err, types.ErrUpstreamFormat)

	assert.Equal(t, 1, h.cache.invalidated(types.LineStopsKey("05")))
	assert.Equal(t, 1, h.fetcher.callCount())
	assert.Zero(t, h.client.postCount())
}

func TestGetArrivalMinutesUpstreamStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Now())
	h.client.postCode = 403

	_, err := h.scraper.GetArrivalMinutes(ctx, "05", "101")
	require.Error(t, err)

	var httpErr *types.UpstreamHTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 403, httpErr.Status)
	assert.Equal(t, testAjaxURL, httpErr.URL)
}

func TestArrivalsAreNotCached(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Date(2026, 3, 10, 12, 0, 0, 0, madrid(t)))
	h.client.postBody = arrivalReply("Linea 05: 4 min")

	for i := 0; i < 3; i++ {
		_, err := h.scraper.GetArrivalMinutes(ctx, "05", "101")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, h.client.postCount())
	assert.Equal(t, 1, h.client.getCount())
	assert.Equal(t, 1, h.fetcher.callCount())
}

func TestGetLineStopsOverLandingPage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Now())

	stops, err := h.scraper.GetLineStops(ctx, "28")
	require.NoError(t, err)
	assert.Len(t, stops, 2)

	require.Equal(t, 1, h.fetcher.callCount())
	assert.Equal(t, "https://dbus.eus/28/", h.fetcher.calls[0].SourceURL)

	lines, err := h.scraper.GetBusLines(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
	assert.Equal(t, 1, h.client.getCount())
}
