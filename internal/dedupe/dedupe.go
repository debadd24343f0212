// Package dedupe collapses items that point at the same story.
package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"github.com/deusflow/ainews/internal/dom"
	"github.com/deusflow/ainews/internal/news"
)

// DefaultThreshold is the title similarity at which two items are treated
// as the same story.
const DefaultThreshold = 0.92

const fingerprintRunes = 800

var titleSynonyms = strings.NewReplacer(
	"人工智能", "ai",
	"大模型", "模型",
)

// Items keeps one representative per duplicate cluster. Items are visited
// by descending source weight, then most recent discovery, so the kept
// representative is the most authoritative one. A threshold <= 0 uses
// DefaultThreshold.
func Items(items []news.NormalizedItem, threshold float64) []news.NormalizedItem {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	sorted := make([]news.NormalizedItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceWeight != sorted[j].SourceWeight {
			return sorted[i].SourceWeight > sorted[j].SourceWeight
		}
		return sorted[i].DiscoveredAt.After(sorted[j].DiscoveredAt)
	})

	var (
		kept         []news.NormalizedItem
		keptTitles   [][]rune
		seenURLs     = make(map[string]bool)
		fingerprints = make(map[string]bool)
	)
	for _, it := range sorted {
		if seenURLs[it.CanonicalURL] {
			continue
		}
		fp := Fingerprint(it.Content)
		if it.Content != "" && fingerprints[fp] {
			continue
		}
		title := []rune(NormalizeTitle(it.Title))
		if similarToAny(title, keptTitles, threshold) {
			continue
		}

		kept = append(kept, it)
		keptTitles = append(keptTitles, title)
		seenURLs[it.CanonicalURL] = true
		if it.Content != "" {
			fingerprints[fp] = true
		}
	}
	return kept
}

func similarToAny(title []rune, kept [][]rune, threshold float64) bool {
	for _, k := range kept {
		if Ratio(title, k) >= threshold {
			return true
		}
	}
	return false
}

// Fingerprint hashes the lowercased, trimmed first 800 characters of content.
func Fingerprint(content string) string {
	prefix := strings.ToLower(strings.TrimSpace(dom.Truncate(content, fingerprintRunes)))
	sum := md5.Sum([]byte(prefix))
	return hex.EncodeToString(sum[:])
}

// NormalizeTitle lowercases the title, folds a few synonyms and keeps only
// word characters.
func NormalizeTitle(title string) string {
	title = titleSynonyms.Replace(strings.ToLower(title))
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return -1
	}, title)
}
