package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the agent's startup configuration. It is loaded once and is
// immutable for the lifetime of the engine instance.
type Config struct {
	Listen string `yaml:"listen"`
	Origin string `yaml:"origin"`

	Cache CacheConfig `yaml:"cache"`
	Sync  SyncConfig  `yaml:"sync"`
	Push  PushConfig  `yaml:"push"`
}

// CacheConfig controls the runtime response cache and its strategies.
type CacheConfig struct {
	Rules []RuleConfig `yaml:"rules"`

	// Defaults maps a request category (navigation, api, asset) to the
	// strategy used when no rule matches.
	Defaults map[string]string `yaml:"defaults"`

	MaxEntries          int    `yaml:"maxEntries"`
	MaxAgeSeconds       int    `yaml:"maxAgeSeconds"`
	FetchTimeoutSeconds int    `yaml:"fetchTimeoutSeconds"`
	OfflineFallbackPath string `yaml:"offlineFallbackPath"`

	// PrecacheURLs are warmed into the cache on first activation.
	PrecacheURLs []string `yaml:"precacheUrls"`
}

// RuleConfig is one caching rule. Exactly one of Prefix or Regex should be
// set; a rule with both set matches when either does.
type RuleConfig struct {
	Prefix    string `yaml:"prefix"`
	Regex     string `yaml:"regex"`
	Strategy  string `yaml:"strategy"`
	AppliesTo string `yaml:"appliesTo"`
}

// SyncConfig controls the durable mutation queue and its replay cycles.
type SyncConfig struct {
	MaxEntries         int    `yaml:"maxEntries"`
	MaxBodyBytes       int    `yaml:"maxBodyBytes"`
	MaxAgeSeconds      int    `yaml:"maxAgeSeconds"`
	MaxAttempts        int    `yaml:"maxAttempts"`
	RetryDelaysSeconds []int  `yaml:"retryDelaysSeconds"`
	ScopePrefix        string `yaml:"scopePrefix"`
}

// PushConfig holds static display defaults merged under incoming push
// payloads, plus the base scope used to resolve relative asset URLs.
type PushConfig struct {
	Title              string `yaml:"title"`
	Icon               string `yaml:"icon"`
	Badge              string `yaml:"badge"`
	Vibrate            []int  `yaml:"vibrate"`
	RequireInteraction bool   `yaml:"requireInteraction"`
	BaseScope          string `yaml:"baseScope"`
}

// Default returns a configuration with every field at its documented default.
func Default() Config {
	cfg := Config{
		Listen: ":8008",
	}
	cfg.normalize()
	return cfg
}

// Load reads and normalizes a yaml configuration file. Invalid values are
// clamped or defaulted rather than propagated; only an unreadable file or
// malformed yaml is an error.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Listen == "" {
		c.Listen = ":8008"
	}
	c.Origin = strings.TrimRight(c.Origin, "/")

	if c.Cache.MaxEntries < 1 {
		c.Cache.MaxEntries = 60
	}
	if c.Cache.MaxAgeSeconds < 1 {
		c.Cache.MaxAgeSeconds = 86400
	}
	if c.Cache.FetchTimeoutSeconds < 1 {
		c.Cache.FetchTimeoutSeconds = 30
	}
	if c.Cache.OfflineFallbackPath == "" {
		c.Cache.OfflineFallbackPath = "/offline.html"
	}
	if c.Cache.Defaults == nil {
		c.Cache.Defaults = map[string]string{}
	}
	for cat, strat := range c.Cache.Defaults {
		if !validStrategy(strat) {
			delete(c.Cache.Defaults, cat)
		}
	}

	// Drop rules that name no matcher or an unknown strategy; a malformed
	// regex is dropped later at compile time.
	kept := c.Cache.Rules[:0]
	for _, r := range c.Cache.Rules {
		if r.Prefix == "" && r.Regex == "" {
			continue
		}
		if !validStrategy(r.Strategy) {
			continue
		}
		if r.AppliesTo == "" {
			r.AppliesTo = "all"
		}
		kept = append(kept, r)
	}
	c.Cache.Rules = kept

	if c.Sync.MaxEntries < 1 {
		c.Sync.MaxEntries = 200
	}
	if c.Sync.MaxBodyBytes < 1 {
		c.Sync.MaxBodyBytes = 256 * 1024
	}
	if c.Sync.MaxAgeSeconds < 1 {
		c.Sync.MaxAgeSeconds = 7 * 86400
	}
	if c.Sync.MaxAttempts < 1 {
		c.Sync.MaxAttempts = 5
	}
	if len(c.Sync.RetryDelaysSeconds) == 0 {
		c.Sync.RetryDelaysSeconds = []int{30, 120, 600, 1800, 3600}
	} else {
		delays := c.Sync.RetryDelaysSeconds[:0]
		for _, d := range c.Sync.RetryDelaysSeconds {
			if d > 0 {
				delays = append(delays, d)
			}
		}
		if len(delays) == 0 {
			delays = []int{30, 120, 600, 1800, 3600}
		}
		sort.Ints(delays)
		c.Sync.RetryDelaysSeconds = delays
	}
	if c.Sync.ScopePrefix == "" {
		c.Sync.ScopePrefix = "/api/"
	}

	if c.Push.Title == "" {
		c.Push.Title = "Notification"
	}
	if c.Push.BaseScope == "" {
		c.Push.BaseScope = c.Origin
	}
}

func validStrategy(s string) bool {
	switch s {
	case "network-first", "cache-first", "stale-while-revalidate":
		return true
	}
	return false
}

// FetchTimeout returns the outbound fetch timeout as a duration.
func (c CacheConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// MaxAge returns the runtime cache TTL as a duration.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSeconds) * time.Second
}

// MaxAge returns the queue item lifetime as a duration.
func (c SyncConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSeconds) * time.Second
}

// RetryDelays returns the backoff table as durations.
func (c SyncConfig) RetryDelays() []time.Duration {
	out := make([]time.Duration, len(c.RetryDelaysSeconds))
	for i, d := range c.RetryDelaysSeconds {
		out[i] = time.Duration(d) * time.Second
	}
	return out
}
