// Package stats assembles denormalized snapshots for pages and widgets.
// Calculators never fail: an upstream error yields a zero valued snapshot
// flagged with fallback and error, so a cache builder can always store or
// serve something.
package stats

import (
	"time"

	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/goliatone/go-readmodel-cache/readmodels"
)

// Calculator names. They also name the cache key operation and the
// snapshot id.
const (
	NameHomepageImpact      = "homepage_impact"
	NameActiveCurrencies    = "active_currencies"
	NameFooterPages         = "footer_pages"
	NameFeaturedCampaigns   = "featured_campaigns"
	NameCampaignListing     = "campaign_listing"
	NameCampaignPerformance = "campaign_performance"
	NameOrganizationSummary = "organization_summary"
)

// Snapshot keys present on every snapshot.
const (
	KeyMeta     = "cache_meta"
	KeyFallback = "fallback"
	KeyError    = "error"
)

// KeyPrefix prefixes every stats cache key.
const KeyPrefix = "stats"

const scopeAll = "all"

var keys = cache.NewKeyBuilder(KeyPrefix)

// Snapshot is the output of a calculator.
type Snapshot map[string]any

// Meta describes when a snapshot was generated and where it is cached.
type Meta struct {
	GeneratedAt time.Time
	ExpiresAt   time.Time
	CacheKey    string
	Version     string
}

// Meta returns the embedded cache metadata.
func (s Snapshot) Meta() Meta {
	raw, _ := s[KeyMeta].(map[string]any)
	var m Meta
	if v, ok := readmodel.ToInt64(raw["generated_at"]); ok {
		m.GeneratedAt = time.Unix(v, 0)
	}
	if v, ok := readmodel.ToInt64(raw["expires_at"]); ok {
		m.ExpiresAt = time.Unix(v, 0)
	}
	m.CacheKey, _ = raw["cache_key"].(string)
	m.Version, _ = raw["version"].(string)
	return m
}

// IsFallback reports whether the snapshot replaced a failed calculation.
func (s Snapshot) IsFallback() bool {
	b, _ := s[KeyFallback].(bool)
	return b
}

// Failed reports whether an upstream error produced the snapshot.
func (s Snapshot) Failed() bool {
	b, _ := s[KeyError].(bool)
	return b
}

// Float returns a numeric field.
func (s Snapshot) Float(key string) float64 {
	f, _ := readmodel.ToFloat64(s[key])
	return f
}

// Int returns an integer field.
func (s Snapshot) Int(key string) int {
	i, _ := readmodel.ToInt64(s[key])
	return int(i)
}

// Strings returns a list of strings, accepting decoded []any values.
func (s Snapshot) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Items returns a list of objects, accepting decoded []any values.
func (s Snapshot) Items(key string) []map[string]any {
	switch v := s[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// target identifies one calculation: its cache key, TTL and tags.
type target struct {
	name  string
	scope string
	ttl   time.Duration
	tags  []string
}

func (t target) key() string {
	return keys.Build(t.name, t.scope, nil)
}

// id is the snapshot read model id.
func (t target) id() string {
	if t.scope == scopeAll {
		return t.name
	}
	return t.name + ":" + t.scope
}

func pageTags(extra ...string) []string {
	return append([]string{readmodels.TagPageStats}, extra...)
}
