package push

import (
	"encoding/json"
	"net/url"

	"offline-sync-agent/internal/config"
)

// Action is one button on a displayed notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// DisplaySpec is the normalized display instruction derived from a raw push
// payload. It is ephemeral and never persisted.
type DisplaySpec struct {
	Title              string         `json:"title"`
	Body               string         `json:"body,omitempty"`
	Icon               string         `json:"icon,omitempty"`
	Badge              string         `json:"badge,omitempty"`
	Image              string         `json:"image,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	RequireInteraction bool           `json:"requireInteraction"`
	Renotify           bool           `json:"renotify"`
	Silent             bool           `json:"silent"`
	Vibrate            []int          `json:"vibrate,omitempty"`
	Actions            []Action       `json:"actions,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// payload is the loose wire shape of an inbound push event.
type payload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Image              string         `json:"image"`
	Tag                string         `json:"tag"`
	RequireInteraction *bool          `json:"requireInteraction"`
	Renotify           bool           `json:"renotify"`
	Silent             bool           `json:"silent"`
	Vibrate            []int          `json:"vibrate"`
	Actions            []Action       `json:"actions"`
	URL                string         `json:"url"`
	Data               map[string]any `json:"data"`
}

// Router normalizes inbound push payloads into display instructions and
// resolves click-navigation targets. Cross-origin targets are discarded as a
// defense against open-redirect abuse.
type Router struct {
	defaults config.PushConfig
	base     *url.URL
}

// NewRouter builds a Router around the configured static defaults. A base
// scope that fails to parse leaves relative URLs unresolved.
func NewRouter(defaults config.PushConfig) *Router {
	base, err := url.Parse(defaults.BaseScope)
	if err != nil {
		base = nil
	}
	return &Router{defaults: defaults, base: base}
}

// BuildDisplaySpec merges payload-supplied fields over the static defaults.
// Relative icon/image/action-icon URLs resolve against the base scope; the
// click target lands in Data["url"] only when it stays same-origin.
func (r *Router) BuildDisplaySpec(raw []byte) DisplaySpec {
	var p payload
	// A malformed payload degrades to the configured defaults.
	_ = json.Unmarshal(raw, &p)

	spec := DisplaySpec{
		Title:              r.defaults.Title,
		Icon:               r.resolve(r.defaults.Icon),
		Badge:              r.resolve(r.defaults.Badge),
		Vibrate:            r.defaults.Vibrate,
		RequireInteraction: r.defaults.RequireInteraction,
	}

	if p.Title != "" {
		spec.Title = p.Title
	}
	spec.Body = p.Body
	if p.Icon != "" {
		spec.Icon = r.resolve(p.Icon)
	}
	if p.Badge != "" {
		spec.Badge = r.resolve(p.Badge)
	}
	if p.Image != "" {
		spec.Image = r.resolve(p.Image)
	}
	spec.Tag = p.Tag
	if p.RequireInteraction != nil {
		spec.RequireInteraction = *p.RequireInteraction
	}
	spec.Renotify = p.Renotify
	spec.Silent = p.Silent
	if len(p.Vibrate) > 0 {
		spec.Vibrate = p.Vibrate
	}
	for _, a := range p.Actions {
		a.Icon = r.resolve(a.Icon)
		spec.Actions = append(spec.Actions, a)
	}

	spec.Data = p.Data
	target := p.URL
	if target == "" && p.Data != nil {
		if u, ok := p.Data["url"].(string); ok {
			target = u
		}
	}
	if target != "" {
		if spec.Data == nil {
			spec.Data = map[string]any{}
		}
		if resolved := r.sameOrigin(target); resolved != "" {
			spec.Data["url"] = resolved
		} else {
			delete(spec.Data, "url")
		}
	}
	return spec
}

// ResolveClickTarget reads the stored navigation target from a displayed
// notification's data. Cross-origin targets return "".
func (r *Router) ResolveClickTarget(data map[string]any) string {
	if data == nil {
		return ""
	}
	target, ok := data["url"].(string)
	if !ok || target == "" {
		return ""
	}
	return r.sameOrigin(target)
}

// resolve turns a relative asset URL into an absolute one under the base scope.
func (r *Router) resolve(ref string) string {
	if ref == "" || r.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return r.base.ResolveReference(u).String()
}

// sameOrigin resolves a target against the base scope and returns it only if
// it remains on the base origin.
func (r *Router) sameOrigin(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	if r.base == nil {
		if u.IsAbs() {
			return ""
		}
		return target
	}
	resolved := r.base.ResolveReference(u)
	if resolved.Scheme != r.base.Scheme || resolved.Host != r.base.Host {
		return ""
	}
	return resolved.String()
}
