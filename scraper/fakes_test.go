package scraper

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/saiset-co/dbus-service/cache"
	"github.com/saiset-co/dbus-service/logger"
	"github.com/saiset-co/dbus-service/types"
)

type postedForm struct {
	URL     string
	Form    url.Values
	Headers map[string]string
}

type fakeClient struct {
	mu       sync.Mutex
	getBody  string
	getCode  int
	postBody string
	postCode int
	gets     []string
	posts    []postedForm
}

func (c *fakeClient) Get(_ context.Context, rawURL string, _ map[string]string) (*types.HTTPResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets = append(c.gets, rawURL)
	return &types.HTTPResponse{StatusCode: statusOr(c.getCode), Body: []byte(c.getBody)}, nil
}

func (c *fakeClient) PostForm(_ context.Context, rawURL string, form url.Values, headers map[string]string) (*types.HTTPResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.posts = append(c.posts, postedForm{URL: rawURL, Form: form, Headers: headers})
	return &types.HTTPResponse{StatusCode: statusOr(c.postCode), Body: []byte(c.postBody)}, nil
}

func (c *fakeClient) postCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.posts)
}

func (c *fakeClient) getCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.gets)
}

func statusOr(code int) int {
	if code == 0 {
		return 200
	}
	return code
}

type fakeFetcher struct {
	mu    sync.Mutex
	page  StopPage
	err   error
	calls []types.Line
}

func (f *fakeFetcher) FetchStops(_ context.Context, line types.Line) (StopPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, line)
	return f.page, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type staticLines []types.Line

func (s staticLines) GetBusLines(context.Context) ([]types.Line, error) {
	return s, nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// spyCache counts invalidations on top of a real file store.
type spyCache struct {
	types.CacheStore

	mu            sync.Mutex
	invalidations map[string]int
}

func (s *spyCache) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	s.invalidations[key]++
	s.mu.Unlock()
	return s.CacheStore.Invalidate(ctx, key)
}

func (s *spyCache) invalidated(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidations[key]
}

func newSpyCache(t *testing.T) *spyCache {
	t.Helper()

	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "cache"), time.Hour, logger.NewNop())
	require.NoError(t, err)

	return &spyCache{CacheStore: store, invalidations: make(map[string]int)}
}

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}
