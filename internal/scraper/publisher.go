package scraper

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// publisherPatterns are tried in order; the first valid capture wins.
var publisherPatterns = []*regexp.Regexp{
	regexp.MustCompile(`本文来自微信公众号[:：]\s*([^\s，。；;、"“”'’<]{2,40})`),
	regexp.MustCompile(`作者\s*[：:]\s*["“]?([A-Za-z0-9_\-\x{4e00}-\x{9fff}·]{2,40})`),
	regexp.MustCompile(`作者\s*"([A-Za-z0-9_\-\x{4e00}-\x{9fff}·]{2,40})"`),
	regexp.MustCompile(`来源\s*[：:]\s*([A-Za-z0-9_\-\x{4e00}-\x{9fff}·]{2,40})`),
}

const publisherTrim = ".,;:，。；：\"'“”’"

// ExtractPublisher finds a "republished from" or byline name in text.
// Returns "" when no pattern yields a 2-40 character name.
func ExtractPublisher(text string) string {
	payload := html.UnescapeString(text)
	for _, re := range publisherPatterns {
		m := re.FindStringSubmatch(payload)
		if m == nil {
			continue
		}
		publisher := strings.Trim(strings.TrimSpace(m[1]), publisherTrim)
		if n := utf8.RuneCountInString(publisher); n >= 2 && n <= 40 {
			return publisher
		}
	}
	return ""
}
