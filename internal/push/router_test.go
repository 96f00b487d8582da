package push

import (
	"testing"

	"offline-sync-agent/internal/config"

	"github.com/stretchr/testify/require"
)

func newTestRouter() *Router {
	return NewRouter(config.PushConfig{
		Title:              "MyApp",
		Icon:               "/img/icon.png",
		Badge:              "/img/badge.png",
		Vibrate:            []int{200, 100, 200},
		RequireInteraction: false,
		BaseScope:          "https://app.example.com",
	})
}

func TestBuildDisplaySpec_DefaultsForEmptyPayload(t *testing.T) {
	r := newTestRouter()
	spec := r.BuildDisplaySpec([]byte(`{}`))

	require.Equal(t, "MyApp", spec.Title)
	require.Equal(t, "https://app.example.com/img/icon.png", spec.Icon, "relative default resolved against base scope")
	require.Equal(t, []int{200, 100, 200}, spec.Vibrate)
	require.False(t, spec.RequireInteraction)
}

func TestBuildDisplaySpec_PayloadOverridesDefaults(t *testing.T) {
	r := newTestRouter()
	spec := r.BuildDisplaySpec([]byte(`{
		"title": "Order shipped",
		"body": "Your order is on its way",
		"icon": "/img/truck.png",
		"tag": "orders",
		"requireInteraction": true,
		"actions": [{"action": "view", "title": "View", "icon": "/img/eye.png"}],
		"url": "/orders/42"
	}`))

	require.Equal(t, "Order shipped", spec.Title)
	require.Equal(t, "Your order is on its way", spec.Body)
	require.Equal(t, "https://app.example.com/img/truck.png", spec.Icon)
	require.Equal(t, "orders", spec.Tag)
	require.True(t, spec.RequireInteraction)
	require.Len(t, spec.Actions, 1)
	require.Equal(t, "https://app.example.com/img/eye.png", spec.Actions[0].Icon)
	require.Equal(t, "https://app.example.com/orders/42", spec.Data["url"])
}

func TestBuildDisplaySpec_CrossOriginTargetDiscarded(t *testing.T) {
	r := newTestRouter()
	spec := r.BuildDisplaySpec([]byte(`{"title": "x", "url": "https://evil.example.net/phish"}`))
	_, hasURL := spec.Data["url"]
	require.False(t, hasURL, "cross-origin click target is dropped")
}

func TestBuildDisplaySpec_MalformedPayload(t *testing.T) {
	r := newTestRouter()
	spec := r.BuildDisplaySpec([]byte(`{{{`))
	require.Equal(t, "MyApp", spec.Title, "malformed payload degrades to defaults")
}

func TestResolveClickTarget(t *testing.T) {
	r := newTestRouter()

	require.Equal(t, "https://app.example.com/orders/42",
		r.ResolveClickTarget(map[string]any{"url": "/orders/42"}))

	require.Empty(t, r.ResolveClickTarget(map[string]any{"url": "https://evil.example.net/"}),
		"cross-origin target resolves to nothing")

	require.Empty(t, r.ResolveClickTarget(nil))
	require.Empty(t, r.ResolveClickTarget(map[string]any{}))
}
