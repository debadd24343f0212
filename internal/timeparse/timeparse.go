// Package timeparse recovers publish timestamps from free text, attribute
// values and article documents.
//
// Resolution order for text:
//  1. relative expressions on short strings ("3小时前", "yesterday")
//  2. snippet extraction (custom pattern first, then built-in date shapes)
//  3. unix seconds / milliseconds
//  4. localized year-month-day and month-day forms
//  5. a list of common layouts; zone-less results are UTC
//
// Nothing matching is not an error: callers get ok == false.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxRelativeLen bounds the text length (in runes) relative parsing looks at.
const MaxRelativeLen = 80

// Options tune a single Parse call.
type Options struct {
	// Pattern, when set, is tried before the built-in snippet patterns.
	Pattern *regexp.Regexp
	// NoRelative disables step 1. Used for nearby DOM text where titles often
	// contain words like "today".
	NoRelative bool
}

type relativeRule struct {
	re   *regexp.Regexp
	unit time.Duration
	// fixed is used when the pattern has no numeric group.
	fixed time.Duration
}

var relativeRules = []relativeRule{
	{re: regexp.MustCompile(`(\d+)\s*小时前`), unit: time.Hour},
	{re: regexp.MustCompile(`(\d+)\s*分钟前`), unit: time.Minute},
	{re: regexp.MustCompile(`(\d+)\s*天前`), unit: 24 * time.Hour},
	{re: regexp.MustCompile(`(?i)\b(\d+)\s*(?:hours?|hrs?)\s+ago\b`), unit: time.Hour},
	{re: regexp.MustCompile(`(?i)\b(\d+)\s*(?:minutes?|mins?)\s+ago\b`), unit: time.Minute},
	{re: regexp.MustCompile(`(?i)\b(\d+)\s*days?\s+ago\b`), unit: 24 * time.Hour},
	{re: regexp.MustCompile(`刚刚|(?i)\bjust now\b`)},
	{re: regexp.MustCompile(`昨天|(?i)\byesterday\b`), fixed: 24 * time.Hour},
	{re: regexp.MustCompile(`今天|(?i)\btoday\b`)},
}

// snippetPatterns is tried in order. ISO-8601 comes first because the
// year-month-day shape is a prefix of it and would drop time and offset.
var snippetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})`),
	regexp.MustCompile(`\d{4}[年/\-.]\d{1,2}[月/\-.]\d{1,2}(?:日|号)?(?:\s+\d{1,2}(?:[:：]\d{1,2}|点(?:\d{1,2})?))?`),
	regexp.MustCompile(`\d{1,2}月\d{1,2}日(?:\s+\d{1,2}(?:[:：]\d{1,2}|点(?:\d{1,2})?))?`),
	regexp.MustCompile(`(?i)(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},\s+\d{4}(?:\s+\d{1,2}:\d{2})?`),
}

var (
	unixRe = regexp.MustCompile(`^\d{10}$|^\d{13}$`)
	isoRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
	ymdRe  = regexp.MustCompile(`(\d{4})\s*[年/\-.]\s*(\d{1,2})\s*[月/\-.]\s*(\d{1,2})\s*(?:日|号)?(?:\s*(\d{1,2})(?:\s*[:：点时]\s*(\d{1,2}))?)?`)
	mdRe   = regexp.MustCompile(`(\d{1,2})\s*月\s*(\d{1,2})\s*日(?:\s*(\d{1,2})(?:\s*[:：点时]\s*(\d{1,2}))?)?`)
)

// fallbackLayouts are tried on the snippet (or on short text with no snippet).
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"January 2, 2006 15:04",
	"January 2, 2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// maxBareFallbackLen limits the whole-text fallback when no snippet matched.
const maxBareFallbackLen = 64

// Parse resolves a publish time from text relative to ref. The result is UTC.
func Parse(text string, ref time.Time, opts Options) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	ref = ref.UTC()

	if !opts.NoRelative && len([]rune(text)) <= MaxRelativeLen {
		if t, ok := parseRelative(text, ref); ok {
			return t, true
		}
	}

	snippet := extractSnippet(text, opts.Pattern)
	if snippet == "" {
		if unixRe.MatchString(text) || len([]rune(text)) <= maxBareFallbackLen {
			snippet = text
		} else {
			return time.Time{}, false
		}
	}

	if unixRe.MatchString(snippet) {
		return parseUnix(snippet)
	}
	if isoRe.MatchString(snippet) {
		if t, ok := parseLayouts(snippet); ok {
			return t, true
		}
	}
	if t, ok := parseLocalized(snippet, ref); ok {
		return t, true
	}
	return parseLayouts(snippet)
}

func parseRelative(text string, ref time.Time) (time.Time, bool) {
	for _, rule := range relativeRules {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if rule.unit == 0 {
			return ref.Add(-rule.fixed), true
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return ref.Add(-time.Duration(n) * rule.unit), true
	}
	return time.Time{}, false
}

func extractSnippet(text string, custom *regexp.Regexp) string {
	if custom != nil {
		if s := custom.FindString(text); s != "" {
			return strings.TrimSpace(s)
		}
	}
	for _, re := range snippetPatterns {
		if s := re.FindString(text); s != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func parseUnix(s string) (time.Time, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(s) == 13 {
		return time.UnixMilli(n).UTC(), true
	}
	return time.Unix(n, 0).UTC(), true
}

func parseLocalized(s string, ref time.Time) (time.Time, bool) {
	if m := ymdRe.FindStringSubmatch(s); m != nil {
		return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), m[4], m[5])
	}
	if m := mdRe.FindStringSubmatch(s); m != nil {
		t, ok := buildDate(ref.Year(), atoi(m[1]), atoi(m[2]), m[3], m[4])
		if !ok {
			return time.Time{}, false
		}
		// A month-day in the future most likely belongs to last year.
		if t.Sub(ref) > 48*time.Hour {
			return buildDate(ref.Year()-1, atoi(m[1]), atoi(m[2]), m[3], m[4])
		}
		return t, true
	}
	return time.Time{}, false
}

func buildDate(year, month, day int, hour, minute string) (time.Time, bool) {
	h, mi := 0, 0
	if hour != "" {
		h = atoi(hour)
	}
	if minute != "" {
		mi = atoi(minute)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || h > 23 || mi > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, h, mi, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func parseLayouts(s string) (time.Time, bool) {
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
