// Package normalize turns raw source items into clean, windowed, on-topic
// items with a stable identity.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/ainews/internal/dom"
	"github.com/deusflow/ainews/internal/news"
)

// MaxContentRunes bounds the content carried past normalization.
const MaxContentRunes = 5000

// Reject names why an item did not survive normalization.
type Reject string

const (
	RejectEmptyTitle    Reject = "empty_title"
	RejectIrrelevant    Reject = "irrelevant"
	RejectNoPublishTime Reject = "no_publish_time"
	RejectOutOfWindow   Reject = "out_of_window"
)

// Stats reports what normalization dropped and what each source
// contributed inside the window.
type Stats struct {
	Rejected   map[Reject]int
	WindowHits map[string]int
}

var trackingKeys = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"spm":          true,
	"from":         true,
	"source":       true,
}

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Items normalizes raw items, keeping those with a title, on-topic text and
// a publish time inside [since, until].
func Items(raw []news.RawItem, since, until time.Time) ([]news.NormalizedItem, Stats) {
	stats := Stats{
		Rejected:   make(map[Reject]int),
		WindowHits: make(map[string]int),
	}
	out := make([]news.NormalizedItem, 0, len(raw))
	for _, it := range raw {
		n, reason, ok := Item(it, since, until)
		if !ok {
			stats.Rejected[reason]++
			continue
		}
		stats.WindowHits[it.SourceName]++
		out = append(out, n)
	}
	return out, stats
}

// Item normalizes a single raw item or reports why it was rejected.
func Item(it news.RawItem, since, until time.Time) (news.NormalizedItem, Reject, bool) {
	title := CleanText(it.Title)
	content := CleanText(it.Content)
	if title == "" {
		return news.NormalizedItem{}, RejectEmptyTitle, false
	}
	if !IsRelevant(title, content, it.Tags) {
		return news.NormalizedItem{}, RejectIrrelevant, false
	}
	if it.PublishedAt == nil {
		return news.NormalizedItem{}, RejectNoPublishTime, false
	}
	if it.PublishedAt.Before(since) || it.PublishedAt.After(until) {
		return news.NormalizedItem{}, RejectOutOfWindow, false
	}

	canonical := CanonicalURL(it.URL)
	published := *it.PublishedAt
	return news.NormalizedItem{
		ItemID:       ItemID(canonical, title),
		SourceName:   it.SourceName,
		SourceWeight: it.SourceWeight,
		URL:          it.URL,
		CanonicalURL: canonical,
		Title:        title,
		Content:      dom.Truncate(content, MaxContentRunes),
		PublishedAt:  &published,
		DiscoveredAt: it.DiscoveredAt,
		Language:     DetectLanguage(title + " " + content),
		Tags:         it.Tags,
	}, "", true
}

// CleanText strips markup and collapses whitespace.
func CleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// IsRelevant reports whether an item is on topic: a keyword hit in the
// text, an "ai" tag, or a broad topical tag with a title of at least ten
// characters.
func IsRelevant(title, content string, tags []string) bool {
	if news.CountSubstrings(title+" "+content, news.AIKeywords) > 0 {
		return true
	}
	set := news.TagSet(tags)
	if set["ai"] {
		return true
	}
	if (set["technology"] || set["research"] || set["official"]) && utf8.RuneCountInString(title) >= 10 {
		return true
	}
	return false
}

// CanonicalURL lowercases scheme and host, trims the trailing slash from the
// path, drops tracking parameters and the fragment, and sorts the query.
// Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	out := url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Opaque:   u.Opaque,
		User:     u.User,
		Host:     strings.ToLower(u.Host),
		Path:     strings.TrimRight(u.Path, "/"),
		RawPath:  strings.TrimRight(u.RawPath, "/"),
		RawQuery: canonicalQuery(u.RawQuery),
	}
	return out.String()
}

type queryPair struct{ key, value string }

func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	var pairs []queryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		k, v = unescape(k), unescape(v)
		if trackingKeys[k] {
			continue
		}
		pairs = append(pairs, queryPair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}

// ItemID is the stable identity of an article: sha256 over the canonical URL
// and the lowercased, trimmed title.
func ItemID(canonicalURL, title string) string {
	sum := sha256.Sum256([]byte(canonicalURL + "|" + strings.ToLower(strings.TrimSpace(title))))
	return hex.EncodeToString(sum[:])
}

// DetectLanguage tags text by the scripts it contains.
func DetectLanguage(text string) news.Language {
	var cjk, latin bool
	for _, r := range text {
		switch {
		case r >= 0x4e00 && r <= 0x9fff:
			cjk = true
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			latin = true
		}
	}
	switch {
	case cjk && latin:
		return news.LangMixed
	case cjk:
		return news.LangZH
	case latin:
		return news.LangEN
	}
	return news.LangUnknown
}
