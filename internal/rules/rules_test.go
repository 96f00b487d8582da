package rules

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"offline-sync-agent/internal/config"

	"github.com/stretchr/testify/require"
)

func newGet(t *testing.T, path string, header map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return req
}

func TestClassify(t *testing.T) {
	e := New(config.CacheConfig{})

	nav := newGet(t, "/dashboard", map[string]string{"Accept": "text/html,application/xhtml+xml"})
	require.Equal(t, CategoryNavigation, e.Classify(nav))

	fetchNav := newGet(t, "/other", map[string]string{"Sec-Fetch-Mode": "navigate"})
	require.Equal(t, CategoryNavigation, e.Classify(fetchNav))

	api := newGet(t, "/api/tasks", nil)
	require.Equal(t, CategoryAPI, e.Classify(api))

	asset := newGet(t, "/img/a.png", nil)
	require.Equal(t, CategoryAsset, e.Classify(asset))
}

func TestResolve_FirstMatchWinsAndDefaults(t *testing.T) {
	e := New(config.CacheConfig{
		Rules: []config.RuleConfig{
			{Prefix: "/img/", Strategy: "cache-first", AppliesTo: "asset"},
		},
	})

	img := newGet(t, "/img/a.png", nil)
	require.Equal(t, StrategyCacheFirst, e.Resolve(img, e.Classify(img)))

	api := newGet(t, "/api/x", nil)
	require.Equal(t, StrategyNetworkFirst, e.Resolve(api, e.Classify(api)))

	// Rule scoped to assets does not leak into other categories.
	nav := newGet(t, "/img/page", map[string]string{"Accept": "text/html"})
	require.Equal(t, StrategyNetworkFirst, e.Resolve(nav, e.Classify(nav)))
}

func TestResolve_RegexAndOrder(t *testing.T) {
	e := New(config.CacheConfig{
		Rules: []config.RuleConfig{
			{Regex: `\.png$`, Strategy: "cache-first", AppliesTo: "all"},
			{Prefix: "/img/", Strategy: "network-first", AppliesTo: "all"},
		},
	})

	// Both rules match; the first configured one wins.
	img := newGet(t, "/img/a.png", nil)
	require.Equal(t, StrategyCacheFirst, e.Resolve(img, CategoryAsset))

	other := newGet(t, "/img/a.webp", nil)
	require.Equal(t, StrategyNetworkFirst, e.Resolve(other, CategoryAsset))
}

func TestResolve_MalformedRegexDroppedAndDefaultOverride(t *testing.T) {
	e := New(config.CacheConfig{
		Rules: []config.RuleConfig{
			{Regex: `([`, Strategy: "cache-first", AppliesTo: "all"},
		},
		Defaults: map[string]string{"asset": "cache-first"},
	})

	asset := newGet(t, "/img/a.png", nil)
	require.Equal(t, StrategyCacheFirst, e.Resolve(asset, CategoryAsset), "operator default override applies")

	api := newGet(t, "/api/x", nil)
	require.Equal(t, StrategyNetworkFirst, e.Resolve(api, CategoryAPI))
}
