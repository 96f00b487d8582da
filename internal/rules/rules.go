package rules

import (
	"net/http"
	"regexp"
	"strings"

	"offline-sync-agent/internal/config"
)

// Category classifies an intercepted request.
type Category string

const (
	CategoryNavigation Category = "navigation"
	CategoryAPI        Category = "api"
	CategoryAsset      Category = "asset"
)

// Strategy is the read/write policy applied to a cached resource.
type Strategy string

const (
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// rule is a compiled matcher. A rule matches a request when its appliesTo
// covers the request's category and either the prefix or the regex matches
// the request path.
type rule struct {
	prefix    string
	re        *regexp.Regexp
	strategy  Strategy
	appliesTo string // "all" or a Category value
}

// Engine resolves the caching strategy for intercepted requests. Rules are
// evaluated in configured order, first match wins; a request with no matching
// rule falls back to its category's default strategy. Engine is immutable
// after construction.
type Engine struct {
	rules    []rule
	defaults map[Category]Strategy
}

// New compiles the configured rule list. Rules whose regex does not compile
// are dropped silently, per the fail-open posture of the engine.
func New(cfg config.CacheConfig) *Engine {
	e := &Engine{
		defaults: map[Category]Strategy{
			CategoryNavigation: StrategyNetworkFirst,
			CategoryAPI:        StrategyNetworkFirst,
			CategoryAsset:      StrategyStaleWhileRevalidate,
		},
	}
	for cat, strat := range cfg.Defaults {
		e.defaults[Category(cat)] = Strategy(strat)
	}
	for _, rc := range cfg.Rules {
		r := rule{
			prefix:    rc.Prefix,
			strategy:  Strategy(rc.Strategy),
			appliesTo: rc.AppliesTo,
		}
		if rc.Regex != "" {
			re, err := regexp.Compile(rc.Regex)
			if err != nil {
				continue
			}
			r.re = re
		}
		e.rules = append(e.rules, r)
	}
	return e
}

// Classify buckets a request into navigation, api or asset.
func (e *Engine) Classify(req *http.Request) Category {
	if isNavigation(req) {
		return CategoryNavigation
	}
	if strings.HasPrefix(req.URL.Path, "/api/") {
		return CategoryAPI
	}
	return CategoryAsset
}

func isNavigation(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// Resolve scans the rules in order and returns the first matching rule's
// strategy, or the category default when nothing matches.
func (e *Engine) Resolve(req *http.Request, cat Category) Strategy {
	path := req.URL.Path
	for _, r := range e.rules {
		if r.appliesTo != "all" && r.appliesTo != string(cat) {
			continue
		}
		if r.prefix != "" && strings.HasPrefix(path, r.prefix) {
			return r.strategy
		}
		if r.re != nil && r.re.MatchString(path) {
			return r.strategy
		}
	}
	return e.defaults[cat]
}
