package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadcapture/internal/cache"
	"github.com/JakeFAU/leadcapture/internal/storage/memory"
)

const origin = "http://app.test"

var errOffline = errors.New("dial tcp: connect: network is unreachable")

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

type fakeNetwork struct {
	mu      sync.Mutex
	offline bool
	calls   []string
	pages   map[string]string
	status  int
}

func (n *fakeNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req.Method+" "+req.URL.Path)
	if n.offline {
		return nil, errOffline
	}
	status := n.status
	if status == 0 {
		status = http.StatusOK
	}
	body := n.pages[req.URL.Path]
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (n *fakeNetwork) setOffline(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = v
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type routerFixture struct {
	router   *Router
	network  *fakeNetwork
	cache    *cache.Cache
	outcomes []Outcome
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	c, err := cache.New(memory.NewBlobStore(), cache.DefaultGeneration)
	require.NoError(t, err)
	f := &routerFixture{
		network: &fakeNetwork{pages: map[string]string{
			"/":                     "home",
			"/offline":              "offline page",
			"/icons/icon-72x72.png": "placeholder-png",
			"/app.css":              "body{}",
			"/api/leads":            `{"success":true}`,
		}},
		cache: c,
	}
	originURL, err := url.Parse(origin)
	require.NoError(t, err)
	f.router, err = New(Config{
		Cache:   c,
		Next:    f.network,
		Origin:  originURL,
		Observe: func(_ Class, o Outcome) { f.outcomes = append(f.outcomes, o) },
	})
	require.NoError(t, err)
	return f
}

func newRequest(t *testing.T, method, target string, header map[string]string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, target, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func dump(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	return []byte(fmt.Sprintf("%d %s\n%s\n", resp.StatusCode, resp.Header.Get("Content-Type"), readBody(t, resp)))
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	tests := []struct {
		name   string
		method string
		target string
		header map[string]string
		want   Class
	}{
		{"api get", http.MethodGet, origin + "/api/stats", nil, ClassAPI},
		{"api post", http.MethodPost, origin + "/api/leads", nil, ClassAPI},
		{"non-get outside api", http.MethodPost, origin + "/form", nil, ClassAPI},
		{"navigate mode", http.MethodGet, origin + "/", map[string]string{"Sec-Fetch-Mode": "navigate"}, ClassNavigation},
		{"html accept", http.MethodGet, origin + "/thank-you", map[string]string{"Accept": "text/html,application/xhtml+xml;q=0.9"}, ClassNavigation},
		{"stylesheet", http.MethodGet, origin + "/app.css", map[string]string{"Accept": "text/css"}, ClassStatic},
		{"image", http.MethodGet, origin + "/icons/icon-96x96.png", nil, ClassStatic},
		{"cross origin", http.MethodGet, "https://cdn.example.com/lib.js", nil, ClassPassthrough},
		{"cross scheme", http.MethodGet, "https://app.test/", nil, ClassPassthrough},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, f.router.Classify(newRequest(t, tt.method, tt.target, tt.header)))
		})
	}
}

func TestAPIOnlineGoesToNetwork(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	resp, err := f.router.RoundTrip(newRequest(t, http.MethodPost, origin+"/api/leads", nil))
	require.NoError(t, err)
	assert.Equal(t, `{"success":true}`, readBody(t, resp))

	n, err := f.cache.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []Outcome{OutcomeNetwork}, f.outcomes)
}

func TestAPIOfflineReturnsSyntheticResponse(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	// Prime a cached API GET; it must never be served.
	_, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/api/leads", nil))
	require.NoError(t, err)
	f.network.setOffline(true)

	resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/api/leads", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	golden(t).Assert(t, "api_offline", dump(t, resp))
}

func TestNavigationNetworkFirstThenCache(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	nav := map[string]string{"Sec-Fetch-Mode": "navigate"}

	resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/", nav))
	require.NoError(t, err)
	assert.Equal(t, "home", readBody(t, resp))
	assert.Empty(t, resp.Header.Get(CacheHeader))

	f.network.pages["/"] = "home v2"
	resp, err = f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/", nav))
	require.NoError(t, err)
	assert.Equal(t, "home v2", readBody(t, resp), "navigation must prefer the network")

	f.network.setOffline(true)
	resp, err = f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/", nav))
	require.NoError(t, err)
	assert.Equal(t, "home v2", readBody(t, resp))
	assert.Equal(t, "hit", resp.Header.Get(CacheHeader))
	assert.Equal(t, []Outcome{OutcomeNetwork, OutcomeNetwork, OutcomeCache}, f.outcomes)
}

func TestNavigationFallsBackToOfflinePage(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	_, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/offline", map[string]string{"Accept": "text/html"}))
	require.NoError(t, err)

	f.network.setOffline(true)
	resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/thank-you", map[string]string{"Accept": "text/html"}))
	require.NoError(t, err)
	assert.Equal(t, "offline page", readBody(t, resp))
	assert.Equal(t, "offline-page", resp.Header.Get(CacheHeader))
}

func TestNavigationBuiltinOfflinePage(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	f.network.setOffline(true)
	resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/", map[string]string{"Sec-Fetch-Mode": "navigate"}))
	require.NoError(t, err)
	golden(t).Assert(t, "builtin_offline_page", dump(t, resp))
}

func TestNavigationDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	f.network.status = http.StatusInternalServerError
	resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/", map[string]string{"Sec-Fetch-Mode": "navigate"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	_, err = f.cache.Get(context.Background(), http.MethodGet, origin+"/")
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestStaticCacheFirst(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/app.css", nil))
	require.NoError(t, err)
	assert.Equal(t, "body{}", readBody(t, resp))
	require.Equal(t, 1, f.network.callCount())

	f.network.pages["/app.css"] = "changed"
	resp, err = f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/app.css", nil))
	require.NoError(t, err)
	assert.Equal(t, "body{}", readBody(t, resp))
	assert.Equal(t, 1, f.network.callCount(), "a cached asset must not touch the network")
}

func TestStaticOfflineImageGetsPlaceholder(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	_, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/icons/icon-72x72.png", nil))
	require.NoError(t, err)
	f.network.setOffline(true)

	resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/images/hero.jpg", nil))
	require.NoError(t, err)
	assert.Equal(t, "placeholder-png", readBody(t, resp))
	assert.Equal(t, "placeholder", resp.Header.Get(CacheHeader))

	resp, err = f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/avatar", map[string]string{"Sec-Fetch-Dest": "image"}))
	require.NoError(t, err)
	assert.Equal(t, "placeholder-png", readBody(t, resp))
}

func TestStaticOfflineNonImagePropagatesError(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	f.network.setOffline(true)
	_, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+"/app.js", nil))
	require.ErrorIs(t, err, errOffline)
	assert.Equal(t, []Outcome{OutcomeFailed}, f.outcomes)
}

func TestPassthroughIsUntouched(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	f.network.setOffline(true)
	_, err := f.router.RoundTrip(newRequest(t, http.MethodGet, "https://cdn.example.com/api/x", nil))
	require.ErrorIs(t, err, errOffline)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	c, err := cache.New(memory.NewBlobStore(), cache.DefaultGeneration)
	require.NoError(t, err)
	_, err = New(Config{Cache: c})
	require.Error(t, err)
	_, err = New(Config{Origin: &url.URL{Scheme: "http", Host: "app.test"}})
	require.Error(t, err)

	r, err := New(Config{Cache: c, Origin: &url.URL{Scheme: "http", Host: "app.test"}, Next: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errOffline
	})})
	require.NoError(t, err)
	assert.Equal(t, "/api/", r.apiPrefix)
	assert.Equal(t, "/offline", r.offlinePath)
	assert.Equal(t, "/icons/icon-72x72.png", r.placeholder)
}

func TestOversizedResponsesAreServedButNotCached(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("x", maxCachedBody+1)
	tests := []struct {
		name   string
		path   string
		header map[string]string
	}{
		{name: "static", path: "/big.js"},
		{name: "navigation", path: "/big", header: map[string]string{"Sec-Fetch-Mode": "navigate"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newRouterFixture(t)
			f.network.pages[tc.path] = big

			resp, err := f.router.RoundTrip(newRequest(t, http.MethodGet, origin+tc.path, tc.header))
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			body := readBody(t, resp)
			assert.Len(t, body, len(big))
			assert.Equal(t, big, body)

			_, err = f.cache.Get(context.Background(), http.MethodGet, origin+tc.path)
			assert.ErrorIs(t, err, cache.ErrMiss)
		})
	}
}
