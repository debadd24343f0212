package news

import (
	"strings"
	"time"
)

// SourceKind selects which adapter collects a source.
type SourceKind string

const (
	KindFeed            SourceKind = "feed"
	KindHTML            SourceKind = "html"
	KindPlatformProfile SourceKind = "platform_profile"
)

// SourceConfig is the per-source collection policy. It is loaded once per run
// and never mutated afterwards.
type SourceConfig struct {
	Name   string
	Kind   SourceKind
	URL    string
	Weight float64
	Tags   []string

	// HTML listing selectors
	ArticleSelector       string
	LinkPattern           string
	DateSelector          string
	DateAttr              string
	DateRegex             string
	AuthorSelector        string
	ItemContainerSelector string

	RequiredKeywordsAny       []string
	RequiredAuthorKeywordsAny []string

	// PlatformID is the profile identifier for platform-profile sources.
	PlatformID       string
	ResolveRedirect  bool
	SplitByPublisher bool
}

// HasTag reports whether the source carries tag (case-insensitive).
func (s SourceConfig) HasTag(tag string) bool {
	return HasTag(s.Tags, tag)
}

// RawItem is an article as returned by a source adapter.
type RawItem struct {
	SourceName   string
	SourceWeight float64
	URL          string
	Title        string
	Content      string
	// PublishedAt is nil when no publish time could be resolved.
	PublishedAt  *time.Time
	DiscoveredAt time.Time
	Tags         []string
}

// Language is the coarse script tag detected for an item.
type Language string

const (
	LangZH      Language = "zh"
	LangEN      Language = "en"
	LangMixed   Language = "mixed"
	LangUnknown Language = "unknown"
)

// NormalizedItem is a RawItem that passed cleanup, relevance and window checks.
type NormalizedItem struct {
	ItemID       string     `json:"item_id"`
	SourceName   string     `json:"source_name"`
	SourceWeight float64    `json:"source_weight"`
	URL          string     `json:"url"`
	CanonicalURL string     `json:"canonical_url"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	Language     Language   `json:"language"`
	Tags         []string   `json:"tags"`
}

// Perspective is the topical angle used to balance a selection.
type Perspective string

const (
	PerspectiveProduct    Perspective = "product"
	PerspectiveTechnology Perspective = "technology"
	PerspectiveIndustry   Perspective = "industry"
)

// Perspectives lists every perspective in selection order.
var Perspectives = []Perspective{PerspectiveProduct, PerspectiveTechnology, PerspectiveIndustry}

// ParsePerspective maps free text onto a perspective. The first perspective
// name found in s wins.
func ParsePerspective(s string) (Perspective, bool) {
	s = strings.ToLower(s)
	for _, p := range Perspectives {
		if strings.Contains(s, string(p)) {
			return p, true
		}
	}
	return "", false
}

// ClassificationSource records how a perspective was assigned.
type ClassificationSource string

const (
	ClassifiedByRule     ClassificationSource = "rule"
	ClassifiedByExternal ClassificationSource = "llm"
	ClassifiedByFallback ClassificationSource = "fallback"
)

type ClassifiedItem struct {
	NormalizedItem
	Perspective          Perspective          `json:"perspective"`
	ClassificationSource ClassificationSource `json:"classification_source"`
}

type RankedItem struct {
	ClassifiedItem
	Score      float64 `json:"score"`
	RankReason string  `json:"rank_reason"`
}

// HasTag reports whether tags contains tag, ignoring case.
func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// TagSet lowercases tags into a set.
func TagSet(tags []string) map[string]bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return set
}
